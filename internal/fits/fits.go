// Package fits reads the 16-bit integer FITS files produced by amateur
// capture software: the 80-column header cards and the big-endian pixel
// block, plus the WCS keywords the tracker needs for alignment.
package fits

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"asterhunt/internal/astro"
	"asterhunt/internal/tracker"
)

const blockSize = 2880
const cardSize = 80

// header collects the keyword values of one file.
type header struct {
	simple  bool
	wcs     bool
	bitpix  int
	naxis1  int
	naxis2  int
	bzero   int
	exptime float32
	jd      float64
	crpix   tracker.Point
	crval   astro.SphCoord
	cdelt1  float64
	cdelt2  float64
	crota2  float64
	filter  string
	end     int // byte offset just past the END card
}

// Parse decodes one FITS file into a Frame. The frame is rejected with an
// error when the file is not FITS or carries no WCS solution.
func Parse(name string, data []byte) (*tracker.Frame, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !h.simple {
		return nil, fmt.Errorf("%s: not a FITS file", name)
	}
	if !h.wcs {
		return nil, fmt.Errorf("%s: no WCS data", name)
	}
	if h.bitpix != 16 {
		return nil, fmt.Errorf("%s: unsupported BITPIX %d", name, h.bitpix)
	}
	if h.naxis1 <= 0 || h.naxis2 <= 0 {
		return nil, fmt.Errorf("%s: bad image dimensions %dx%d", name, h.naxis1, h.naxis2)
	}

	// Pixel data begins at the next 2880-byte block boundary.
	start := ((h.end + blockSize - 1) / blockSize) * blockSize
	need := h.naxis1 * h.naxis2 * 2
	if start+need > len(data) {
		return nil, fmt.Errorf("%s: truncated pixel data", name)
	}

	f := tracker.NewFrame(h.naxis1, h.naxis2)
	f.Name = name
	f.Exposure = h.exptime
	f.Obs = h.jd
	f.RefPix = h.crpix
	f.Ref = h.crval
	// True angular RA scale needs the cos(Dec) correction.
	f.ScaleRA = h.cdelt1 / math.Cos(h.crval.Dec)
	f.ScaleDec = h.cdelt2
	f.Rotation = h.crota2
	f.Filter = h.filter

	k := start
	for j := 0; j < h.naxis2; j++ {
		for i := 0; i < h.naxis1; i++ {
			raw := int16(binary.BigEndian.Uint16(data[k : k+2]))
			f.Pixels[i][j] = float32(int(raw) + h.bzero)
			k += 2
		}
	}
	return f, nil
}

func parseHeader(data []byte) (header, error) {
	var h header
	for k := 0; k+cardSize <= len(data); k += cardSize {
		card := string(data[k : k+cardSize])
		key, val := splitCard(card)
		switch key {
		case "SIMPLE":
			h.simple = true
		case "BITPIX":
			h.bitpix = atoi(val)
		case "NAXIS1":
			h.naxis1 = atoi(val)
		case "NAXIS2":
			h.naxis2 = atoi(val)
		case "BZERO":
			h.bzero = int(atof(val))
		case "EXPTIME":
			h.exptime = float32(atof(val))
		case "DATE-OBS":
			jd, err := astro.ParseDateObs(val)
			if err != nil {
				return h, err
			}
			h.jd = jd
		case "CRPIX1":
			h.crpix.X = int(atof(val))
			h.wcs = true
		case "CRPIX2":
			h.crpix.Y = int(atof(val))
		case "CRVAL1":
			h.crval.RA = radians(atof(val))
		case "CRVAL2":
			h.crval.Dec = radians(atof(val))
		case "CDELT1":
			h.cdelt1 = radians(atof(val))
		case "CDELT2":
			h.cdelt2 = radians(atof(val))
		case "CROTA2":
			h.crota2 = -radians(atof(val))
		case "FILTER":
			h.filter = strings.Trim(val, "'")
		case "END":
			h.end = k + cardSize
			return h, nil
		}
	}
	return h, fmt.Errorf("no END card")
}

// splitCard separates "KEY = value / comment" into its key and first value
// token.
func splitCard(card string) (key, val string) {
	fields := strings.FieldsFunc(card, func(r rune) bool {
		return r == ' ' || r == '=' || r == '/'
	})
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], fields[1]
}

func atoi(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// PixScale returns the shared arcsec-per-pixel scale of a frame.
func PixScale(f *tracker.Frame) float32 {
	return float32(math.Abs(3600 * f.ScaleDec * 180 / math.Pi))
}
