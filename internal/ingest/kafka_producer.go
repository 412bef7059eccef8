// Package ingest publishes driver telemetry to Kafka for downstream
// consumers (geo index refresh, analytics).
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-dispatch/internal/models"
)

// LocationUpdate is the wire record for a single driver position report.
type LocationUpdate struct {
	DriverID string    `json:"driver_id"`
	RideID   string    `json:"ride_id,omitempty"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	TS       time.Time `json:"ts"`
}

// Producer publishes location updates. The nil producer is a valid no-op,
// used when no brokers are configured.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Producer{writer: w}
}

func (p *Producer) PublishLocation(driverID, rideID string, pt models.TrackPoint) error {
	if p == nil || p.writer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(LocationUpdate{
		DriverID: driverID,
		RideID:   rideID,
		Lat:      pt.Lat,
		Lon:      pt.Lon,
		TS:       pt.TS,
	})
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(driverID), Value: b})
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
