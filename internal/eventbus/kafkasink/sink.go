// Package kafkasink exports bus events to a Kafka topic as JSON.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"signalbot/internal/eventbus"
	logx "signalbot/pkg/logx"
)

type Config struct {
	Brokers []string
	Topic   string
}

// Writer is the subset of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Sink struct {
	w     Writer
	topic string
	log   logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafkasink: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return NewWithWriter(w, cfg.Topic, log), nil
}

func NewWithWriter(w Writer, topic string, log logx.Logger) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{w: w, topic: topic, log: log.With(logx.String("comp", "kafkasink"))}
}

// Run forwards events from bus until ctx is done. Write failures are
// logged and the event is dropped.
func (s *Sink) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.write(ctx, e); err != nil {
				s.log.Warn("event export failed", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}

func (s *Sink) write(ctx context.Context, e eventbus.Event) error {
	v, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.w.WriteMessages(wctx, kafka.Message{Key: []byte(e.Type), Value: v, Time: e.Time})
}

func (s *Sink) Close() error { return s.w.Close() }
