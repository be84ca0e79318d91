package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/output"
)

// Output writes each change as one JSON line.
type Output struct {
	mu  sync.Mutex
	w   io.Writer
	cfg config.OutputConfig
}

func NewOutput(cfg config.OutputConfig, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{
		w:   w,
		cfg: cfg,
	}
}

type line struct {
	Channel string              `json:"channel"`
	Change  domain.ChangeRecord `json:"change"`
}

func (o *Output) PushChange(_ context.Context, change domain.ChangeRecord, channelName string) error {
	data, err := json.Marshal(line{Channel: output.ChannelName(o.cfg, channelName), Change: change})
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := fmt.Fprintln(o.w, string(data)); err != nil {
		return fmt.Errorf("write change: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}
