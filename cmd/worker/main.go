// Worker drains canvas hub telemetry from Kafka into Loki.
// It needs KAFKA_BROKERS and LOKI_URL; TELEMETRY_KAFKA_TOPIC and KAFKA_GROUP_ID have defaults.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"project-canvas-hub/internal/config"
	"project-canvas-hub/internal/telemetry/loki"
)

const pushTimeout = 10 * time.Second

// pusher is the part of the Loki client the drain loop uses.
type pusher interface {
	PushEventJSON(ctx context.Context, raw []byte) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	client, err := loki.NewClient(cfg.LokiURL, nil)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.TelemetryKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("worker: draining %s (group %s) into %s", cfg.TelemetryKafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)
	pushed, failed := drain(ctx, reader, client)
	log.Printf("worker: stopped after %d events (%d push failures)", pushed, failed)
}

// drain copies messages from r to p until ctx is done. A failed push is logged and skipped; the offset
// still commits, so Loki may miss events but the hub never blocks on the worker.
func drain(ctx context.Context, r *kafka.Reader, p pusher) (pushed, failed int) {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return pushed, failed
			}
			log.Printf("worker: kafka read: %v", err)
			continue
		}
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		err = p.PushEventJSON(pushCtx, msg.Value)
		cancel()
		if err != nil {
			failed++
			log.Printf("worker: loki push (partition %d offset %d): %v", msg.Partition, msg.Offset, err)
			continue
		}
		pushed++
	}
}
