// Package validator gatekeeps writes to the event log: registry membership,
// role permission, payload shape. It never persists anything.
package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dealtrail/internal/domain"
	"dealtrail/internal/registry"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Rejection explains why a candidate event was refused. It unwraps to one of
// domain.ErrorUnknownEventType, domain.ErrorRoleNotAllowed or
// domain.ErrorInvalidPayload.
type Rejection struct {
	Kind      error
	EventType domain.EventType
	Role      domain.Role
	Reason    string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %v: %s", r.EventType, r.Kind, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Kind
}

type Validator struct {
	registry *registry.Registry
}

func New(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

func (v *Validator) Registry() *registry.Registry {
	return v.registry
}

// Validate checks a candidate event and returns its canonical form: payload
// normalised to JSON values, extraneous fields stripped, defaults applied.
func (v *Validator) Validate(eventType domain.EventType, payload map[string]any, role domain.Role) (domain.ValidatedEvent, error) {
	def, ok := v.registry.Lookup(eventType)
	if !ok {
		return domain.ValidatedEvent{}, &Rejection{
			Kind:      domain.ErrorUnknownEventType,
			EventType: eventType,
			Role:      role,
			Reason:    fmt.Sprintf("type %q is not registered", eventType),
		}
	}
	if !def.Allows(role) {
		return domain.ValidatedEvent{}, &Rejection{
			Kind:      domain.ErrorRoleNotAllowed,
			EventType: eventType,
			Role:      role,
			Reason:    fmt.Sprintf("role %q may not emit this event", role),
		}
	}

	doc, err := toJSONValue(payload)
	if err != nil {
		return domain.ValidatedEvent{}, invalid(eventType, role, err.Error())
	}
	if err := def.Schema().Validate(doc); err != nil {
		return domain.ValidatedEvent{}, invalid(eventType, role, describe(err))
	}

	return domain.ValidatedEvent{
		Type:    eventType,
		Payload: coerce(def, doc.(map[string]any)),
	}, nil
}

func invalid(eventType domain.EventType, role domain.Role, reason string) *Rejection {
	return &Rejection{
		Kind:      domain.ErrorInvalidPayload,
		EventType: eventType,
		Role:      role,
		Reason:    reason,
	}
}

// toJSONValue round-trips the payload so the schema sees exactly what a
// decoder would produce (json.Number for numbers).
func toJSONValue(payload map[string]any) (any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payload is not JSON encodable: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

func coerce(def *registry.Definition, doc map[string]any) map[string]any {
	res := make(map[string]any, len(def.Fields))
	for _, f := range def.Fields {
		val, ok := doc[f.Name]
		if !ok || val == nil {
			if f.Default != nil {
				res[f.Name] = f.Default
			}
			continue
		}
		res[f.Name] = coerceValue(f, val)
	}
	return res
}

func coerceValue(f registry.Field, val any) any {
	switch v := val.(type) {
	case json.Number:
		if f.Kind == registry.KindInteger {
			if n, err := v.Int64(); err == nil {
				return n
			}
		}
		n, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return n
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return v
	}
}

// describe flattens a schema failure into "field: message" pairs.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				loc = "payload"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
