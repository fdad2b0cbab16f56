package nmea

import (
	"log"
	"math"
	"strconv"
	"strings"
)

// fieldReader pulls typed values off a Tokenizer. Empty fields fall back to
// the zero value quietly; unparsable ones fall back too but are logged and
// counted in Warnings.
type fieldReader struct {
	tok      *Tokenizer
	sentence string
	warnings int
}

func newFieldReader(sentence, fields string) *fieldReader {
	return &fieldReader{tok: NewTokenizer(fields), sentence: sentence}
}

func (r *fieldReader) text() string {
	f, _ := r.tok.Next()
	return strings.TrimSpace(f)
}

func (r *fieldReader) skip() { r.tok.Next() }

func (r *fieldReader) int(name string) int {
	f := r.text()
	v, ok := ParseInt(f)
	if !ok {
		r.warn(name, f)
	}
	return v
}

func (r *fieldReader) float(name string) float64 {
	f := r.text()
	v, ok := ParseFloat(f)
	if !ok {
		r.warn(name, f)
	}
	return v
}

// coordinate reads a ddmm.mmmm value and the hemisphere letter after it.
func (r *fieldReader) coordinate(name string) float64 {
	f := r.text()
	hemi := r.text()
	v, ok := Coordinate(f, hemi)
	if !ok {
		r.warn(name, f)
	}
	return v
}

func (r *fieldReader) warn(name, value string) {
	r.warnings++
	log.Printf("[nmea] %s: bad %s field %q, using 0", r.sentence, name, value)
}

// ParseInt decodes an integer field. Empty input is a valid zero.
func ParseInt(f string) (int, bool) {
	if f == "" {
		return 0, true
	}
	v, err := strconv.Atoi(f)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseFloat decodes a decimal field. Empty input is a valid zero.
func ParseFloat(f string) (float64, bool) {
	if f == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Coordinate converts NMEA degrees-and-minutes (ddmm.mmmm / dddmm.mmmm) into
// signed decimal degrees. S and W are negative.
func Coordinate(raw, hemi string) (float64, bool) {
	v, ok := ParseFloat(raw)
	if !ok {
		return 0, false
	}
	deg := math.Floor(v / 100)
	dec := deg + (v-deg*100)/60
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
