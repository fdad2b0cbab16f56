package gps

import (
	"fmt"
	"io"
	"log"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout matches the receiver's sentence cadence and bounds how
// long Stop takes to be observed.
const DefaultReadTimeout = 3 * time.Second

// SerialConfig describes a UART-attached receiver.
type SerialConfig struct {
	PortPath    string
	BaudRate    int
	ReadTimeout time.Duration
}

// OpenSerial opens the port 8N1 with a read timeout so reads return
// (0, nil) when the receiver is quiet.
func OpenSerial(cfg SerialConfig) (io.ReadCloser, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("gps: failed to open %s: %w", cfg.PortPath, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("gps: set read timeout on %s: %w", cfg.PortPath, err)
	}
	log.Printf("[gps] connected to %s at %d baud", cfg.PortPath, cfg.BaudRate)
	return port, nil
}
