package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dealtrail/internal/app/dealtrail"
	"dealtrail/internal/domain"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// IFeedStatus reports relay progress per watched table.
type IFeedStatus interface {
	Tables() []string
	GetTableStats(tableName string) (uint64, uint64)
	GetLastProcessedTime(tableName string) time.Time
}

// CRMService exposes the core over HTTP/JSON for the UI shell. The caller
// identity arrives in the X-Actor-Id and X-Actor-Role headers, set by the
// authenticating proxy in front of the service.
type CRMService struct {
	svc       *dealtrail.Service
	feed      IFeedStatus
	startTime time.Time
}

func NewCRMService(svc *dealtrail.Service, feed IFeedStatus) *CRMService {
	return &CRMService{
		svc:       svc,
		feed:      feed,
		startTime: time.Now(),
	}
}

// Register mounts the routes on mux.
func (s *CRMService) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/transactions/{id}/events", s.appendEvent(domain.AggregateTransaction)},
		{http.MethodGet, "/v1/transactions/{id}/events", s.listEvents(domain.AggregateTransaction)},
		{http.MethodGet, "/v1/transactions/{id}/timeline", s.timeline(domain.AggregateTransaction)},
		{http.MethodPost, "/v1/contacts/{id}/events", s.appendEvent(domain.AggregateContact)},
		{http.MethodGet, "/v1/contacts/{id}/events", s.listEvents(domain.AggregateContact)},
		{http.MethodGet, "/v1/contacts/{id}/timeline", s.timeline(domain.AggregateContact)},
		{http.MethodGet, "/v1/transactions/{id}/tasks", s.listTasks},
		{http.MethodPost, "/v1/transactions/{id}/tasks", s.createTask},
		{http.MethodPost, "/v1/transactions/{id}/tasks/{task_id}/complete", s.completeTask},
		{http.MethodGet, "/v1/transactions/{id}/status", s.getStatus},
		{http.MethodPost, "/v1/transactions/{id}/status", s.changeStatus},
		{http.MethodGet, "/v1/transactions/{id}/actions", s.suggestedActions},
		{http.MethodGet, "/v1/transactions/{id}/empty-states/{view}", s.emptyState},
		{http.MethodGet, "/v1/templates", s.eventTemplates},
		{http.MethodGet, "/v1/feed/status", s.feedStatus},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("mux.HandlePath %s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

type appendEventRequest struct {
	Type    domain.EventType `json:"type"`
	Payload map[string]any   `json:"payload"`
}

type appendEventResponse struct {
	Event         domain.Event     `json:"event"`
	CreatedTasks  []domain.TaskRow `json:"created_tasks,omitempty"`
	CreatedEvents []domain.Event   `json:"created_events,omitempty"`
	Failures      []string         `json:"automation_failures,omitempty"`
}

func toAppendResponse(res dealtrail.AppendResult) appendEventResponse {
	out := appendEventResponse{
		Event:         res.Event,
		CreatedTasks:  res.Automation.CreatedTasks,
		CreatedEvents: res.Automation.CreatedEvents,
	}
	for _, f := range res.Automation.Failures {
		out.Failures = append(out.Failures, f.Err.Error())
	}
	return out
}

func (s *CRMService) appendEvent(kind domain.AggregateKind) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		actor, err := actorFrom(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req appendEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, status.Errorf(codes.InvalidArgument, "decode request: %v", err))
			return
		}
		agg := domain.Aggregate{Kind: kind, ID: params["id"]}
		res, err := s.svc.AppendEvent(r.Context(), agg, req.Type, req.Payload, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppendResponse(res))
	}
}

func (s *CRMService) listEvents(kind domain.AggregateKind) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		actor, err := actorFrom(r)
		if err != nil {
			writeError(w, err)
			return
		}
		events, err := s.svc.EventsFor(r.Context(), domain.Aggregate{Kind: kind, ID: params["id"]}, actor.Role)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
	}
}

func (s *CRMService) timeline(kind domain.AggregateKind) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		actor, err := actorFrom(r)
		if err != nil {
			writeError(w, err)
			return
		}
		items, err := s.svc.Timeline(r.Context(), domain.Aggregate{Kind: kind, ID: params["id"]}, actor.Role)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
	}
}

func (s *CRMService) listTasks(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if _, err := actorFrom(r); err != nil {
		writeError(w, err)
		return
	}
	tasks, err := s.svc.Tasks(r.Context(), params["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": nonNil(tasks)})
}

type createTaskRequest struct {
	Title    string              `json:"title"`
	Priority domain.TaskPriority `json:"priority"`
	DueDate  *time.Time          `json:"due_date"`
}

func (s *CRMService) createTask(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, status.Errorf(codes.InvalidArgument, "decode request: %v", err))
		return
	}
	res, err := s.svc.CreateTask(r.Context(), params["id"], req.Title, req.Priority, req.DueDate, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppendResponse(res))
}

func (s *CRMService) completeTask(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.CompleteTask(r.Context(), params["id"], params["task_id"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppendResponse(res))
}

func (s *CRMService) getStatus(w http.ResponseWriter, r *http.Request, params map[string]string) {
	if _, err := actorFrom(r); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.svc.Status(r.Context(), params["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": st,
		"phase":  domain.PhaseOf(st),
	})
}

type changeStatusRequest struct {
	Status domain.TransactionStatus `json:"status"`
}

func (s *CRMService) changeStatus(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, status.Errorf(codes.InvalidArgument, "decode request: %v", err))
		return
	}
	res, err := s.svc.ChangeStatus(r.Context(), params["id"], req.Status, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppendResponse(res))
}

func (s *CRMService) suggestedActions(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actions, err := s.svc.SuggestedActions(r.Context(), params["id"], actor.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (s *CRMService) emptyState(w http.ResponseWriter, r *http.Request, params map[string]string) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	state, ok, err := s.svc.EmptyState(r.Context(), params["id"], params["view"], actor.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, status.Errorf(codes.NotFound, "no empty state for view %q", params["view"]))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *CRMService) eventTemplates(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": nonNil(s.svc.EventTemplates(actor.Role))})
}

type tableStatus struct {
	TableName       string `json:"table_name"`
	PushedChanges   uint64 `json:"pushed_changes"`
	FailedChanges   uint64 `json:"failed_changes"`
	LastProcessedAt string `json:"last_processed_at,omitempty"`
}

// feedStatus mirrors the relay progress of every watched table.
func (s *CRMService) feedStatus(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	if s.feed == nil {
		writeError(w, status.Error(codes.Unavailable, "change feed is disabled"))
		return
	}
	tables := s.feed.Tables()
	statuses := make([]tableStatus, 0, len(tables))
	for _, table := range tables {
		pushed, failed := s.feed.GetTableStats(table)
		st := tableStatus{TableName: table, PushedChanges: pushed, FailedChanges: failed}
		if last := s.feed.GetLastProcessedTime(table); !last.IsZero() {
			st.LastProcessedAt = last.Format(time.RFC3339)
		}
		statuses = append(statuses, st)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":        statuses,
		"running_since": s.startTime.UTC().Format(time.RFC3339),
	})
}

func actorFrom(r *http.Request) (domain.Actor, error) {
	actor := domain.Actor{
		ID:   r.Header.Get(HeaderActorID),
		Role: domain.Role(r.Header.Get(HeaderActorRole)),
	}
	if actor.ID == "" || actor.Role == "" {
		return actor, status.Error(codes.Unauthenticated, "actor headers are required")
	}
	return actor, nil
}

// grpcCode maps core errors onto gRPC codes; HTTP statuses follow from
// runtime.HTTPStatusFromCode.
func grpcCode(err error) codes.Code {
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	switch {
	case errors.Is(err, domain.ErrorUnknownEventType), errors.Is(err, domain.ErrorInvalidPayload):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrorRoleNotAllowed):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrorNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrorPersistence):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

type errorBody struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := grpcCode(err)
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
	}
	writeJSON(w, runtime.HTTPStatusFromCode(code), errorBody{Code: int32(code), Message: msg})
}

func writeJSON(w http.ResponseWriter, httpStatus int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
