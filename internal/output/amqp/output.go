// Package amqp relays changes to a RabbitMQ topic exchange with routing key
// "<table channel>.<method>", e.g. "events.insert".
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/output"

	amqp "github.com/rabbitmq/amqp091-go"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Output struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	cfg      config.OutputConfig
}

// Dial connects to cfg.AMQPURL and declares the durable topic exchange.
func Dial(cfg config.OutputConfig) (*Output, error) {
	conn, err := amqp.DialConfig(cfg.AMQPURL, amqp.Config{Properties: amqp.Table{
		"connection_name": "dealtrail-relay",
	}})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	o := NewOutput(ch, cfg)
	o.conn = conn
	return o, nil
}

func NewOutput(ch channel, cfg config.OutputConfig) *Output {
	return &Output{
		ch:       ch,
		exchange: cfg.Exchange,
		cfg:      cfg,
	}
}

func RoutingKey(channelName string, method domain.ChangeMethod) string {
	return channelName + "." + strings.ToLower(string(method))
}

func (o *Output) PushChange(ctx context.Context, change domain.ChangeRecord, channelName string) error {
	body, err := json.Marshal(&change)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	headers := amqp.Table{"table": change.Table}
	if agg, ok := output.AggregateOf(change); ok {
		headers["aggregate"] = agg.Key()
	}
	key := RoutingKey(output.ChannelName(o.cfg, channelName), change.Method)

	o.mu.Lock()
	defer o.mu.Unlock()
	err = o.ch.PublishWithContext(ctx, o.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%s:%d", change.Table, change.ID),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", key, err)
	}
	return nil
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.ch.Close()
	if o.conn != nil {
		if cErr := o.conn.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}
	return err
}
