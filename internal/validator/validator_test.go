package validator

import (
	"errors"
	"testing"

	"dealtrail/internal/domain"
	"dealtrail/internal/registry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return New(reg)
}

func TestValidate_SystemOnlyTaskCompleted(t *testing.T) {
	v := newValidator(t)
	payload := map[string]any{"taskId": uuid.NewString()}

	ev, err := v.Validate(domain.EventSystemTaskCompleted, payload, domain.RoleSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.EventSystemTaskCompleted, ev.Type)
	assert.Equal(t, payload["taskId"], ev.Payload["taskId"])

	_, err = v.Validate(domain.EventSystemTaskCompleted, payload, domain.RoleBuyer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrorRoleNotAllowed))
}

func TestValidate_OfferPriceMustBePositive(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate(domain.EventOfferSubmitted, map[string]any{
		"offerPrice": -100,
		"offerDate":  "2024-01-01",
	}, domain.RoleBuyer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrorInvalidPayload))

	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.Contains(t, rej.Reason, "offerPrice")
}

func TestValidate_UnknownType(t *testing.T) {
	v := newValidator(t)

	_, err := v.Validate("HouseSold", map[string]any{}, domain.RoleAgent)
	assert.True(t, errors.Is(err, domain.ErrorUnknownEventType))
}

func TestValidate_CheckOrder(t *testing.T) {
	v := newValidator(t)

	// role is checked before payload shape
	_, err := v.Validate(domain.EventSystemTaskCompleted, map[string]any{"taskId": "nope"}, domain.RoleAgent)
	assert.True(t, errors.Is(err, domain.ErrorRoleNotAllowed))

	_, err = v.Validate(domain.EventSystemTaskCompleted, map[string]any{"taskId": "nope"}, domain.RoleSystem)
	assert.True(t, errors.Is(err, domain.ErrorInvalidPayload))
}

func TestValidate_PayloadShape(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name      string
		eventType domain.EventType
		payload   map[string]any
		role      domain.Role
		wantErr   bool
	}{
		{
			name:      "valid offer",
			eventType: domain.EventOfferSubmitted,
			payload:   map[string]any{"offerPrice": 500000, "offerDate": "2024-01-01"},
			role:      domain.RoleBuyer,
		},
		{
			name:      "missing required field",
			eventType: domain.EventOfferSubmitted,
			payload:   map[string]any{"offerPrice": 500000},
			role:      domain.RoleBuyer,
			wantErr:   true,
		},
		{
			name:      "wrong primitive type",
			eventType: domain.EventOfferSubmitted,
			payload:   map[string]any{"offerPrice": "lots", "offerDate": "2024-01-01"},
			role:      domain.RoleBuyer,
			wantErr:   true,
		},
		{
			name:      "bad date format",
			eventType: domain.EventOfferSubmitted,
			payload:   map[string]any{"offerPrice": 1, "offerDate": "yesterday"},
			role:      domain.RoleBuyer,
			wantErr:   true,
		},
		{
			name:      "enum outside declared values",
			eventType: domain.EventTaskStatusChanged,
			payload:   map[string]any{"taskId": uuid.NewString(), "status": "blocked"},
			role:      domain.RoleAgent,
			wantErr:   true,
		},
		{
			name:      "empty required string",
			eventType: domain.EventTaskCreated,
			payload:   map[string]any{"taskId": uuid.NewString(), "title": ""},
			role:      domain.RoleAgent,
			wantErr:   true,
		},
		{
			name:      "nil payload with no required fields",
			eventType: domain.EventOfferRejected,
			payload:   nil,
			role:      domain.RoleSeller,
		},
		{
			name:      "status change",
			eventType: domain.EventTransactionStatusChanged,
			payload:   map[string]any{"previousStatus": "Active", "newStatus": "Under Contract"},
			role:      domain.RoleAgent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.eventType, tt.payload, tt.role)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrorInvalidPayload), "got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidate_CoercesPayload(t *testing.T) {
	v := newValidator(t)

	ev, err := v.Validate(domain.EventOfferSubmitted, map[string]any{
		"offerPrice":    450000,
		"offerDate":     "2024-03-01",
		"contingencies": []any{"inspection", "financing"},
		"favoriteColor": "blue",
	}, domain.RoleAgent)
	require.NoError(t, err)

	assert.Equal(t, float64(450000), ev.Payload["offerPrice"])
	assert.Equal(t, "conventional", ev.Payload["financingType"])
	assert.Equal(t, []string{"inspection", "financing"}, ev.Payload["contingencies"])
	assert.NotContains(t, ev.Payload, "favoriteColor")
	assert.NotContains(t, ev.Payload, "earnestMoney")
}

func TestRejection_Error(t *testing.T) {
	rej := &Rejection{
		Kind:      domain.ErrorInvalidPayload,
		EventType: domain.EventOfferSubmitted,
		Reason:    "offerPrice: must be > 0",
	}
	assert.Equal(t, "OfferSubmitted: invalid event payload: offerPrice: must be > 0", rej.Error())
}
