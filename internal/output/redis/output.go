// Package redis relays changes over Redis pub/sub. Each change goes to the
// table channel and to a per-aggregate channel "<table channel>:<kind>:<id>"
// so a UI can follow a single transaction.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/output"

	goredis "github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Close() error
}

type Output struct {
	client publisher
	cfg    config.OutputConfig
}

func NewClient(cfg config.OutputConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
}

func NewOutput(client publisher, cfg config.OutputConfig) *Output {
	return &Output{
		client: client,
		cfg:    cfg,
	}
}

func (o *Output) PushChange(ctx context.Context, change domain.ChangeRecord, channelName string) error {
	data, err := json.Marshal(&change)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	channel := output.ChannelName(o.cfg, channelName)
	if err := o.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	if agg, ok := output.AggregateOf(change); ok {
		aggChannel := channel + ":" + agg.Key()
		if err := o.client.Publish(ctx, aggChannel, data).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", aggChannel, err)
		}
	}
	return nil
}

func (o *Output) Close() error {
	return o.client.Close()
}
