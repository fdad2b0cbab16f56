package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaunagostinho/pitft-gps/internal/gps"
	"github.com/shaunagostinho/pitft-gps/internal/publish"
	"github.com/shaunagostinho/pitft-gps/internal/server"
	"github.com/shaunagostinho/pitft-gps/web"
)

func main() {
	configPath := flag.String("config", server.DefaultConfigPath, "Path to config file")
	demo := flag.Bool("demo", false, "Replay the built-in NMEA capture instead of a receiver")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] pitftgps starting")

	cfg := server.LoadConfig(*configPath)
	if *demo {
		cfg.GPS.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	// the config API may rewrite cfg while these run, so they get copies
	gpsCfg, mqttCfg := cfg.GPSSettings(), cfg.MQTTSettings()

	engine := gps.NewEngine(nil, gps.Options{
		LogInterval: gpsCfg.LogInterval(),
		Metrics:     gps.NewMetrics(reg),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runReceiver(ctx, gpsCfg, engine)
	}()

	if mqttCfg.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runPublisher(ctx, mqttCfg, engine)
		}()
	}

	// the display works immediately, showing no fix until the receiver connects
	srv := server.New(cfg, engine, web.FS, reg)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
	cancel()
	wg.Wait()
}

// openSource opens whatever the config names as the NMEA input.
func openSource(cfg server.GPSConfig) (io.ReadCloser, error) {
	switch cfg.Type {
	case "nmea":
		return gps.OpenSerial(gps.SerialConfig{
			PortPath:    cfg.PortPath,
			BaudRate:    cfg.BaudRate,
			ReadTimeout: cfg.ReadTimeout(),
		})
	case "replay":
		return gps.OpenReplay(gps.ReplayConfig{
			Path: cfg.ReplayPath,
			Rate: cfg.ReplayRate,
			Loop: cfg.ReplayLoop,
		})
	default:
		log.Printf("[gps] using built-in demo capture")
		return gps.Demo(), nil
	}
}

// runReceiver keeps the engine fed: it opens the source, runs the engine
// until the source fails, then reopens it. Receiver state survives across
// reconnects so the display keeps the last known fix.
func runReceiver(ctx context.Context, cfg server.GPSConfig, engine *gps.Engine) {
	for {
		var src io.ReadCloser
		err := connectWithRetry(ctx, "GPS", 10, func() error {
			var err error
			src, err = openSource(cfg)
			return err
		})
		if err != nil {
			return
		}
		if err := engine.SetSource(src); err != nil {
			log.Printf("[gps] %v", err)
			src.Close()
			return
		}
		if err := engine.Start(); err != nil {
			log.Printf("[gps] %v", err)
			src.Close()
			return
		}

		done := make(chan error, 1)
		go func() { done <- engine.Wait() }()

		select {
		case <-ctx.Done():
			engine.Stop()
			<-done
			src.Close()
			return
		case err := <-done:
			src.Close()
			if errors.Is(err, io.EOF) && cfg.Type == "replay" {
				log.Printf("[gps] replay finished")
				return
			}
			log.Printf("[gps] receiver lost: %v, reconnecting", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func runPublisher(ctx context.Context, cfg server.MQTTConfig, src publish.Source) {
	var m *publish.MQTT
	err := connectWithRetry(ctx, "MQTT", 10, func() error {
		var err error
		m, err = publish.Connect(publish.Config{
			Broker:   cfg.Broker,
			Topic:    cfg.Topic,
			ClientID: cfg.ClientID,
			Interval: time.Duration(cfg.IntervalMs) * time.Millisecond,
		})
		return err
	})
	if err != nil {
		return
	}
	defer m.Close()
	m.Run(ctx, src)
}

// connectWithRetry calls connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, logs the first maxAttempts
// failures with a counter and keeps retrying at the max interval after that.
// It only gives up when ctx is done.
func connectWithRetry(ctx context.Context, name string, maxAttempts int, connect func() error) error {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := connect()
		if err == nil {
			log.Printf("[%s] connected successfully (attempt %d)", name, attempt+1)
			return nil
		}

		attempt++
		if attempt <= maxAttempts {
			log.Printf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
				name, attempt, maxAttempts, err, delay)
		} else {
			log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
				name, attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
