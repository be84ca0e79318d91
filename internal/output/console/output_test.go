package console

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput_PushChange(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutput(config.OutputConfig{TableChannel: map[string]string{"tasks": "crm.tasks"}}, &buf)

	require.NoError(t, out.PushChange(context.Background(), domain.ChangeRecord{
		ID: 1, Table: "tasks", Method: domain.UpdateChange, Data: json.RawMessage(`{"id":"t-1"}`),
	}, "tasks"))
	require.NoError(t, out.PushChange(context.Background(), domain.ChangeRecord{
		ID: 2, Table: "events", Method: domain.InsertChange, Data: json.RawMessage(`{"id":"e-1"}`),
	}, "events"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first line
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "crm.tasks", first.Channel)
	assert.Equal(t, domain.UpdateChange, first.Change.Method)
	assert.JSONEq(t, `{"id":"t-1"}`, string(first.Change.Data))
	assert.Contains(t, lines[1], `"channel":"events"`)
	assert.NoError(t, out.Close())
}
