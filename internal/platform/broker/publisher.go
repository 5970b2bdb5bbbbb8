package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/agentbilling/pkg/config"
)

// Publisher sends JSON messages to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type AMQPPublisher struct {
	ch       channel
	exchange string
}

func NewAMQPPublisher(ch channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("broker encode: %w", err)
	}
	err = p.ch.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("broker publish %s/%s: %w", p.exchange, routingKey, err)
	}
	return nil
}

// Noop drops every message. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

func dial(url string, retries int, delay time.Duration) (*amqp.Connection, error) {
	var err error
	for range retries {
		var conn *amqp.Connection
		if conn, err = amqp.Dial(url); err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}
	return nil, fmt.Errorf("broker dial: %w", err)
}

// New returns an AMQP publisher bound to a durable topic exchange, or Noop
// when broker.url is empty.
func New(lc fx.Lifecycle, cfg *config.Config, l *zap.SugaredLogger) (Publisher, error) {
	if cfg.Broker.URL == "" {
		l.Infow("broker not configured, role change events disabled")
		return Noop{}, nil
	}
	conn, err := dial(cfg.Broker.URL, 3, time.Second)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Broker.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker exchange declare %s: %w", cfg.Broker.Exchange, err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ch.Close()
			return conn.Close()
		},
	})
	l.Infow("broker connected", "exchange", cfg.Broker.Exchange)
	return NewAMQPPublisher(ch, cfg.Broker.Exchange), nil
}

var Module = fx.Options(
	fx.Provide(New),
)
