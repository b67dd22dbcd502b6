package astro

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// JulianDay converts a civil UTC time to a Julian day number.
func JulianDay(t time.Time) float64 {
	t = t.UTC()
	y, mo, d := t.Date()
	m := int(mo)
	if m <= 2 {
		y--
		m += 12
	}
	a := y / 100
	b := 2 - a + a/4
	jd := float64(int(365.25*float64(y+4716))) + float64(int(30.6001*float64(m+1))) +
		float64(d) + float64(b) - 1524.5
	frac := (float64(t.Hour()) + float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600) / 24
	return jd + frac
}

// ParseDateObs parses a FITS DATE-OBS value (ISO 8601, with or without a
// fractional second or trailing Z) into a Julian day.
func ParseDateObs(s string) (float64, error) {
	s = strings.Trim(s, "' ")
	s = strings.TrimSuffix(s, "Z")
	layouts := []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return JulianDay(t), nil
		}
	}
	// Some writers emit a bare Julian day.
	if jd, err := strconv.ParseFloat(s, 64); err == nil && jd > 2400000 {
		return jd, nil
	}
	return 0, fmt.Errorf("unparseable DATE-OBS %q", s)
}
