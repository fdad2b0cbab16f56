package nmea

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownSentence is returned by Classify for bodies without a 5-char id.
	ErrUnknownSentence = errors.New("nmea: unknown sentence")
	// ErrTruncated is returned by decoders when mandatory fields are missing.
	ErrTruncated = errors.New("nmea: truncated sentence")
)

// Sentence ids handled by the receiver engine.
const (
	IDGPGGA = "GPGGA"
	IDGNGGA = "GNGGA"
	IDGPRMC = "GPRMC"
	IDGNRMC = "GNRMC"
	IDGPGSV = "GPGSV"
)

// Classify splits a validated body into its 5-char talker+sentence id and the
// comma-delimited field list that follows it.
func Classify(body string) (id string, fields string, err error) {
	if len(body) < 6 || body[5] != ',' {
		return "", "", ErrUnknownSentence
	}
	return body[:5], body[6:], nil
}

// Tokenizer walks the comma-delimited fields of a sentence in order. Adjacent
// commas yield empty fields so positions stay aligned with the grammar.
type Tokenizer struct {
	fields string
	off    int
	done   bool
}

func NewTokenizer(fields string) *Tokenizer {
	return &Tokenizer{fields: fields}
}

// Next returns the next field. Once the list is exhausted it keeps returning
// ("", false).
func (t *Tokenizer) Next() (string, bool) {
	if t.done {
		return "", false
	}
	rest := t.fields[t.off:]
	if i := strings.IndexByte(rest, ','); i >= 0 {
		t.off += i + 1
		return rest[:i], true
	}
	t.done = true
	t.off = len(t.fields)
	return rest, true
}

// Reset rewinds to the first field.
func (t *Tokenizer) Reset() {
	t.off = 0
	t.done = false
}

// Len is the total number of fields, including empty ones.
func (t *Tokenizer) Len() int {
	return strings.Count(t.fields, ",") + 1
}
