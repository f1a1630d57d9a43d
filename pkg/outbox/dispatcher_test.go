package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"webmail/pkg/circuitbreaker"
	"webmail/pkg/trace"
)

type fakeStore struct {
	pending []*Event
	failed  []*Event
	sent    []int64
	marked  []int64
}

func (s *fakeStore) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.pending, nil
}

func (s *fakeStore) MarkAsSent(ctx context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(ctx context.Context, id int64, maxRetries int) error {
	s.marked = append(s.marked, id)
	return nil
}

func (s *fakeStore) GetEventByID(ctx context.Context, id int64) (*Event, error) {
	for _, e := range append(s.pending, s.failed...) {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEventNotFound
}

func (s *fakeStore) GetFailedEvents(ctx context.Context, limit int) ([]*Event, error) {
	return s.failed, nil
}

type fakePublisher struct {
	err      error
	traceIDs []string
	keys     []string
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	p.keys = append(p.keys, routingKey)
	p.traceIDs = append(p.traceIDs, trace.FromContext(ctx))
	return p.err
}

func event(id int64, payload string) *Event {
	return &Event{ID: id, RoutingKey: "message.sent", Payload: json.RawMessage(payload), Status: StatusPending}
}

func TestDispatcher_ProcessPending_Success(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		event(1, `{"message_id":1,"trace_id":"t-1"}`),
		event(2, `{"message_id":2}`),
	}}
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())

	if sent := d.ProcessPending(context.Background()); sent != 2 {
		t.Fatalf("ProcessPending() = %d, want 2", sent)
	}
	if len(store.sent) != 2 || len(store.marked) != 0 {
		t.Errorf("sent=%v marked=%v", store.sent, store.marked)
	}
	if pub.traceIDs[0] != "t-1" {
		t.Errorf("trace id from payload not propagated: %q", pub.traceIDs[0])
	}
}

func TestDispatcher_ProcessPending_PublishFailure(t *testing.T) {
	store := &fakeStore{pending: []*Event{event(1, `{}`)}}
	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewDispatcher(store, pub, zap.NewNop())

	if sent := d.ProcessPending(context.Background()); sent != 0 {
		t.Fatalf("ProcessPending() = %d, want 0", sent)
	}
	if len(store.marked) != 1 || store.marked[0] != 1 {
		t.Errorf("marked = %v, want [1]", store.marked)
	}
}

func TestDispatcher_BreakerOpenDefersWithoutMarking(t *testing.T) {
	store := &fakeStore{pending: []*Event{event(1, `{}`), event(2, `{}`), event(3, `{}`)}}
	pub := &fakePublisher{err: errors.New("broker down")}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		FailureThreshold:    1,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		HalfOpenMaxRequests: 1,
	})
	d := NewDispatcher(store, pub, zap.NewNop()).WithCircuitBreaker(cb)

	d.ProcessPending(context.Background())

	if len(pub.keys) != 1 {
		t.Errorf("publish attempts = %d, want 1 before the breaker opens", len(pub.keys))
	}
	if len(store.marked) != 1 {
		t.Errorf("marked = %v, only the attempted event should consume a retry", store.marked)
	}
}

func TestReplayService_ReplayFailedEvents(t *testing.T) {
	store := &fakeStore{failed: []*Event{event(7, `{"trace_id":"t-7"}`), event(8, `{}`)}}
	pub := &fakePublisher{}
	s := NewReplayService(store, pub, zap.NewNop())

	n, err := s.ReplayFailedEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReplayFailedEvents() error = %v", err)
	}
	if n != 2 || len(store.sent) != 2 {
		t.Errorf("replayed = %d, sent = %v", n, store.sent)
	}
}

func TestReplayService_UnknownEvent(t *testing.T) {
	s := NewReplayService(&fakeStore{}, &fakePublisher{}, zap.NewNop())
	if err := s.ReplayEvent(context.Background(), 99); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("ReplayEvent() error = %v, want ErrEventNotFound", err)
	}
}
