package nmea

import (
	"errors"
	"fmt"
	"testing"

	gonmea "github.com/adrianmo/go-nmea"
)

const ggaSample = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"

func TestValidate_Accepts(t *testing.T) {
	lines := []string{
		ggaSample,
		"$GPRMC,225446.000,A,4916.45,N,12311.12,W,000.5,054.7,191194,020.3,E*76",
		"$GPGSV,3,3,11,22,42,067,42,24,14,311,43,27,05,244,00,,,,*4D",
		"$GPGSV,3,3,11,22,42,067,42,24,14,311,43,27,05,244,00,,,,*4d",
	}
	for _, line := range lines {
		body, err := Validate(line)
		if err != nil {
			t.Fatalf("Validate(%q): unexpected err: %v", line, err)
		}
		if want := line[1 : len(line)-3]; body != want {
			t.Fatalf("body=%q want %q", body, want)
		}
	}
}

func TestValidate_MatchesGoNMEAChecksum(t *testing.T) {
	bodies := []string{
		"GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,",
		"GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W",
		"GPGSV,1,1,00",
	}
	for _, b := range bodies {
		if got, want := fmt.Sprintf("%02X", Checksum(b)), gonmea.Checksum(b); got != want {
			t.Fatalf("Checksum(%q)=%s, go-nmea says %s", b, got, want)
		}
		if _, err := Validate(Append(b)); err != nil {
			t.Fatalf("Validate(Append(%q)): %v", b, err)
		}
	}
}

func TestValidate_SingleBitFlipRejected(t *testing.T) {
	for i := 1; i < len(ggaSample)-3; i++ {
		for bit := 0; bit < 7; bit++ {
			b := []byte(ggaSample)
			b[i] ^= 1 << bit
			if _, err := Validate(string(b)); err == nil {
				t.Fatalf("flip byte %d bit %d accepted: %q", i, bit, b)
			}
		}
	}
}

func TestValidate_MalformedFrameRejected(t *testing.T) {
	_, err := Validate("$GPGGA,not,a,valid,sentence*00")
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected checksum error, got %v", err)
	}
}

func TestValidate_Envelope(t *testing.T) {
	cases := map[string]string{
		"no dollar":     "GPGGA,1,2*00",
		"no star":       "$GPGGA,123519,4807.038",
		"short":         "$GPGG*00",
		"one hex digit": "$GPGGA,1*4",
		"trailing junk": "$GPGGA,1*47X",
		"non hex":       "$GPGGA,1*ZZ",
		"two stars":     "$GPGGA,1*2*47",
		"empty":         "",
	}
	for name, line := range cases {
		if _, err := Validate(line); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}
