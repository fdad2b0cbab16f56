package nmea

import (
	"errors"
	"strconv"
	"time"
)

// ErrBadGroup is returned for GSV headers whose index/total pair is impossible.
var ErrBadGroup = errors.New("nmea: bad GSV group header")

// Mandatory field counts; trailing fields beyond these are optional.
const (
	ggaMinFields = 12 // through geoid separation unit
	rmcMinFields = 9  // through date
	gsvMinFields = 3  // message count, index, satellites in view
)

// GGA is a decoded fix sentence.
//
//	$GPGGA,hhmmss.ss,llll.ll,a,yyyyy.yy,a,q,ns,h.d,a.a,M,g.g,M,age,stn*hh
type GGA struct {
	TimeOfDay    string  // hhmmss.ss as sent
	Latitude     float64 // decimal degrees
	Longitude    float64 // decimal degrees
	Quality      int     // 0=none, 1=autonomous, 2=differential
	Satellites   int     // in use, not in view
	HDOP         float64
	Altitude     float64 // above mean sea level
	AltitudeUnit string
	GeoidSep     float64 // ellipsoid minus geoid, signed
	GeoidUnit    string
	DGPSAge      float64 // seconds
	DGPSStation  string

	// Warnings counts fields that failed to parse and were zeroed.
	Warnings int
}

func DecodeGGA(fields string) (GGA, error) {
	r := newFieldReader("GGA", fields)
	if r.tok.Len() < ggaMinFields {
		return GGA{}, ErrTruncated
	}
	var g GGA
	g.TimeOfDay = r.text()
	g.Latitude = r.coordinate("latitude")
	g.Longitude = r.coordinate("longitude")
	g.Quality = r.int("quality")
	g.Satellites = r.int("satellites")
	g.HDOP = r.float("hdop")
	g.Altitude = r.float("altitude")
	g.AltitudeUnit = r.text()
	g.GeoidSep = r.float("geoid separation")
	g.GeoidUnit = r.text()
	g.DGPSAge = r.float("dgps age")
	g.DGPSStation = r.text()
	g.Warnings = r.warnings
	return g, nil
}

// RMC is a decoded recommended-minimum sentence.
//
//	$GPRMC,hhmmss.ss,A,llll.ll,a,yyyyy.yy,a,x.x,x.x,ddmmyy,x.x,a*hh
type RMC struct {
	TimeOfDay string
	Validity  string  // "A" valid, "V" receiver warning
	Latitude  float64 // decimal degrees
	Longitude float64 // decimal degrees
	Speed     float64 // knots over ground
	Course    float64 // degrees true
	Date      string  // ddmmyy
	MagVar    float64 // degrees, negative when west
	Warnings  int
}

func DecodeRMC(fields string) (RMC, error) {
	r := newFieldReader("RMC", fields)
	if r.tok.Len() < rmcMinFields {
		return RMC{}, ErrTruncated
	}
	var m RMC
	m.TimeOfDay = r.text()
	m.Validity = r.text()
	m.Latitude = r.coordinate("latitude")
	m.Longitude = r.coordinate("longitude")
	m.Speed = r.float("speed")
	m.Course = r.float("course")
	m.Date = r.text()
	m.MagVar = r.float("magnetic variation")
	if r.text() == "W" {
		m.MagVar = -m.MagVar
	}
	m.Warnings = r.warnings
	return m, nil
}

// Time combines the date and time-of-day fields into a UTC instant. It
// reports false when either field is missing or malformed.
func (m RMC) Time() (time.Time, bool) { return Stamp(m.Date, m.TimeOfDay) }

// Stamp builds a UTC instant from a ddmmyy date and an hhmmss[.ss] time of
// day, the way RMC carries them. GGA only carries the time of day, so its
// callers supply a date remembered from RMC.
func Stamp(date, timeOfDay string) (time.Time, bool) {
	if len(date) != 6 || len(timeOfDay) < 6 {
		return time.Time{}, false
	}
	t, err := time.Parse("020106150405", date+timeOfDay[:6])
	if err != nil {
		return time.Time{}, false
	}
	if frac := timeOfDay[6:]; len(frac) > 1 && frac[0] == '.' {
		if f, err := strconv.ParseFloat("0"+frac, 64); err == nil {
			t = t.Add(time.Duration(f * float64(time.Second)))
		}
	}
	return t.UTC(), true
}

// SatelliteView is one (PRN, elevation, azimuth, SNR) quad of a GSV sentence.
type SatelliteView struct {
	PRN       string // kept as text, leading zeros matter
	Elevation int    // degrees, 90 max
	Azimuth   int    // degrees from true north
	SNR       int    // dB-Hz 0-99, 0 when not tracking
}

// GSV is one message of a satellites-in-view group.
//
//	$GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00*74
type GSV struct {
	Total      int // messages in this group
	Index      int // 1-based message number
	InView     int // satellites in view across the group
	Satellites []SatelliteView
	Warnings   int
}

// MaxSatellitesPerGSV is the number of quads a single GSV message can carry.
const MaxSatellitesPerGSV = 4

func DecodeGSV(fields string) (GSV, error) {
	r := newFieldReader("GSV", fields)
	if r.tok.Len() < gsvMinFields {
		return GSV{}, ErrTruncated
	}
	var s GSV
	s.Total = r.int("message count")
	s.Index = r.int("message index")
	s.InView = r.int("satellites in view")
	if s.Total < 1 || s.Index < 1 || s.Index > s.Total {
		return GSV{}, ErrBadGroup
	}
	for i := 0; i < MaxSatellitesPerGSV; i++ {
		prn, ok := r.tok.Next()
		if !ok {
			break
		}
		if prn == "" {
			// padding quad
			r.skip()
			r.skip()
			r.skip()
			continue
		}
		s.Satellites = append(s.Satellites, SatelliteView{
			PRN:       prn,
			Elevation: r.int("elevation"),
			Azimuth:   r.int("azimuth"),
			SNR:       r.int("snr"),
		})
	}
	s.Warnings = r.warnings
	return s, nil
}
