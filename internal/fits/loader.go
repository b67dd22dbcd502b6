package fits

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"asterhunt/internal/tracker"
)

// groupMarker starts a new stacking group: capture runs name the first
// frame of each group with a "_0_" sequence tag.
const groupMarker = "_0_"

// LoadResult is the loader's output: frames assigned to stacking groups,
// plus the shared pixel scale.
type LoadResult struct {
	Groups   [][]*tracker.Frame
	PixScale float32 // arcsec per pixel
	Loaded   int
	Rejected int
}

// LoadDir loads every .fit/.fits file in dir, in name order, into stacking
// groups. Frames that fail to parse are rejected with a warning and the
// load continues; a group left empty fails the load.
func LoadDir(dir string, log *slog.Logger) (*LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".fit" || ext == ".fits" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return LoadFiles(files, log)
}

// LoadFiles loads the given FITS files in order, starting a new group at
// each file whose name contains the group marker.
func LoadFiles(files []string, log *slog.Logger) (*LoadResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no FITS files to load")
	}

	res := &LoadResult{}
	for _, path := range files {
		name := filepath.Base(path)
		if strings.Contains(name, groupMarker) || len(res.Groups) == 0 {
			res.Groups = append(res.Groups, nil)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		f, err := Parse(name, data)
		if err != nil {
			log.Warn("frame rejected", "file", name, "error", err)
			res.Rejected++
			continue
		}

		g := len(res.Groups) - 1
		res.Groups[g] = append(res.Groups[g], f)
		res.PixScale = PixScale(f)
		res.Loaded++
	}

	for i, g := range res.Groups {
		if len(g) == 0 {
			return nil, fmt.Errorf("group %d has no usable frames", i)
		}
	}
	log.Info("frames loaded", "files", res.Loaded, "rejected", res.Rejected, "groups", len(res.Groups))
	return res, nil
}
