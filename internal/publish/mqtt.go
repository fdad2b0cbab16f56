// Package publish pushes receiver snapshots to an MQTT broker so other
// processes can follow the fix without opening the serial port.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/shaunagostinho/pitft-gps/internal/gps"
)

var ErrPublishTimeout = errors.New("publish: broker did not acknowledge in time")

const publishTimeout = 5 * time.Second

// Source is anything that can hand out a receiver snapshot.
type Source interface {
	Snapshot() gps.Snapshot
}

// Config selects the broker and topic.
type Config struct {
	Broker   string // tcp://host:1883
	Topic    string
	ClientID string
	Interval time.Duration
}

// Message is the retained JSON document published per interval.
type Message struct {
	Time        time.Time           `json:"time"`
	Status      gps.Status          `json:"status"`
	Quality     int                 `json:"quality"`
	HasPosition bool                `json:"hasPosition"`
	Latitude    float64             `json:"latitude"`  // decimal degrees
	Longitude   float64             `json:"longitude"` // decimal degrees
	Altitude    float64             `json:"altitude"`  // meters
	HDOP        float64             `json:"hdop"`
	Speed       float64             `json:"speed"`  // knots
	Course      float64             `json:"course"` // degrees true
	InUse       int                 `json:"inUse"`
	Tracked     int                 `json:"tracked"`
	Satellites  []gps.SatelliteSlot `json:"satellites"`
}

func NewMessage(s gps.Snapshot) Message {
	m := Message{
		Time:       s.Fix.Timestamp,
		Status:     s.Fix.Status,
		Quality:    s.Fix.Quality,
		Altitude:   s.Fix.Altitude,
		HDOP:       s.Fix.HDOP,
		Speed:      s.Fix.Speed,
		Course:     s.Fix.Course,
		InUse:      s.Fix.Satellites,
		Tracked:    s.Tracking(),
		Satellites: s.Satellites,
	}
	m.Latitude, m.Longitude, m.HasPosition = s.Reference()
	return m
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes snapshots as retained JSON.
type MQTT struct {
	client   mqtt.Client
	pub      publisher
	topic    string
	interval time.Duration
}

// Connect dials the broker. Paho reconnects on its own after that.
func Connect(cfg Config) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publish: connect %s: %w", cfg.Broker, token.Error())
	}
	log.Printf("[mqtt] connected to %s, publishing on %s", cfg.Broker, cfg.Topic)

	m := newMQTT(client, cfg)
	m.client = client
	return m, nil
}

func newMQTT(p publisher, cfg Config) *MQTT {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &MQTT{pub: p, topic: cfg.Topic, interval: cfg.Interval}
}

// Publish sends one snapshot and waits for the broker.
func (m *MQTT) Publish(s gps.Snapshot) error {
	payload, err := json.Marshal(NewMessage(s))
	if err != nil {
		return err
	}
	token := m.pub.Publish(m.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Run publishes src once per interval until ctx is done. Nothing is sent
// before the receiver has produced a fix sentence.
func (m *MQTT) Run(ctx context.Context, src Source) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := src.Snapshot()
			if snap.FixUpdated.IsZero() {
				continue
			}
			if err := m.Publish(snap); err != nil {
				log.Printf("[mqtt] publish failed: %v", err)
			}
		}
	}
}

func (m *MQTT) Close() {
	if m.client != nil {
		m.client.Disconnect(250)
	}
}
