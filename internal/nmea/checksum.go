package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned for frames without the $ ... *hh envelope.
	ErrMalformed = errors.New("nmea: malformed frame")
	// ErrChecksum is returned when the trailer does not match the body.
	ErrChecksum = errors.New("nmea: checksum mismatch")
)

// minFrameLen is "$" + 5-char id + "*hh".
const minFrameLen = 9

// Checksum returns the XOR of every byte in body.
func Checksum(body string) byte {
	var ck byte
	for i := 0; i < len(body); i++ {
		ck ^= body[i]
	}
	return ck
}

// Append wraps body into a complete frame: $body*HH.
func Append(body string) string {
	return fmt.Sprintf("$%s*%02X", body, Checksum(body))
}

// Validate checks a frame that still carries its leading "$" (CR/LF already
// trimmed) and returns the body between "$" and "*".
func Validate(frame string) (string, error) {
	if len(frame) < minFrameLen || frame[0] != '$' {
		return "", ErrMalformed
	}
	star := strings.IndexByte(frame, '*')
	if star < 0 || star != len(frame)-3 {
		return "", ErrMalformed
	}
	want, err := strconv.ParseUint(frame[star+1:], 16, 8)
	if err != nil {
		return "", ErrMalformed
	}
	body := frame[1:star]
	if got := Checksum(body); got != byte(want) {
		return "", fmt.Errorf("%w: calculated %02X, trailer %02X", ErrChecksum, got, byte(want))
	}
	return body, nil
}
