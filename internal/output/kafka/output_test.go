package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput_PushChange(t *testing.T) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, sc)

	change := domain.ChangeRecord{
		ID:     11,
		Table:  "events",
		Method: domain.InsertChange,
		Data:   json.RawMessage(`{"id":"e-1","transaction_id":"tx-1","type":"OfferSubmitted"}`),
	}
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got domain.ChangeRecord
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.ID != 11 || got.Table != "events" {
			return errors.New("unexpected change in message value")
		}
		return nil
	})

	out := NewOutput(producer, config.OutputConfig{TableChannel: map[string]string{"events": "crm.events"}})
	require.NoError(t, out.PushChange(context.Background(), change, "events"))
	require.NoError(t, out.Close())
}

func TestOutput_PushChangeFails(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	out := NewOutput(producer, config.OutputConfig{})
	err := out.PushChange(context.Background(), domain.ChangeRecord{Table: "tasks", Data: json.RawMessage(`{}`)}, "tasks")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, out.Close())
}
