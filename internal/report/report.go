// Package report writes the tab-separated mover log consumed by follow-up
// tooling: one line per mover with the three object measurements, track
// parameters and score.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"asterhunt/internal/tracker"
)

const header = "Log\t\tSeq\tx1\ty1\tpix1\ttCnt1\tsnr1\tflx1\t" +
	"x2\ty2\tpix2\ttCnt2\tsnr2\tflx2\t" +
	"x3\ty3\tpix3\ttCnt3\tsnr3\tflx3\t" +
	"motion\tPA\terMid\tscore\tstatus\r\n"

// Writer appends mover records to a timestamped log file.
type Writer struct {
	f      *os.File
	prefix string
}

// New creates a log file named <timestamp>-log.txt in dir and writes the
// header line.
func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	prefix := time.Now().Format("20060102-150405")
	f, err := os.Create(filepath.Join(dir, prefix+"-log.txt"))
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{f: f, prefix: prefix}, nil
}

// Prefix returns the run timestamp written at the head of each record.
func (w *Writer) Prefix() string { return w.prefix }

// Save writes one record per mover, in list order.
func (w *Writer) Save(movers []*tracker.Mover) error {
	return write(w.f, w.prefix, movers)
}

// Close closes the log file.
func (w *Writer) Close() error { return w.f.Close() }

func write(out io.Writer, prefix string, movers []*tracker.Mover) error {
	for seq, m := range movers {
		line := fmt.Sprintf("%s\t%d\t", prefix, seq)
		for _, ob := range m.Objects {
			line += fmt.Sprintf("%d\t%d\t%d\t%d\t%.3f\t%.3f\t",
				int(ob.Location.X), int(ob.Location.Y),
				ob.Size, ob.TCount, ob.SNR, ob.Flux)
		}
		line += fmt.Sprintf("%.3f\t%.3f\t%.3f\t%.3f\t%v\r\n",
			m.Motion, degrees(m.PA), m.ErrMid, m.Score, m.Status)
		if _, err := io.WriteString(out, line); err != nil {
			return err
		}
	}
	return nil
}

func degrees(rad float32) float32 { return float32(float64(rad) * 180 / math.Pi) }
