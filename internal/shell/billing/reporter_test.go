package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/agentresourcerest/internal/core/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

type memoryStore struct {
	mu       sync.Mutex
	events   []domain.MeterEvent
	reported map[string]time.Time
	reads    int
}

func newMemoryStore(ids ...string) *memoryStore {
	s := &memoryStore{reported: map[string]time.Time{}}
	for _, id := range ids {
		s.events = append(s.events, domain.NewMeterEvent(id, "user-1", domain.EventToolInvoked, "weather_tool", domain.ResourceTool))
	}
	return s
}

func (s *memoryStore) GetUnreportedEvents(_ context.Context, limit int) ([]domain.MeterEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	var out []domain.MeterEvent
	for _, e := range s.events {
		if _, ok := s.reported[e.ID]; ok {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *memoryStore) MarkEventsReported(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.reported[id] = at
	}
	return nil
}

func (s *memoryStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *memoryStore) reportedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reported)
}

type recordingClient struct {
	mu      sync.Mutex
	batches [][]domain.MeterEvent
	err     error
}

func (c *recordingClient) MeterUsage(ctx context.Context, event domain.MeterEvent) error {
	return c.MeterUsageBatch(ctx, []domain.MeterEvent{event})
}

func (c *recordingClient) MeterUsageBatch(_ context.Context, events []domain.MeterEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.batches = append(c.batches, events)
	return nil
}

// =============================================================================
// ReportNow
// =============================================================================

func TestReporter_ReportNowMarksEvents(t *testing.T) {
	store := newMemoryStore("a", "b", "c")
	client := &recordingClient{}
	r := NewReporter(ReporterConfig{Store: store, Client: client, BatchSize: 2})

	assert.Equal(t, 2, r.ReportNow(context.Background()))
	assert.Equal(t, 1, r.ReportNow(context.Background()))
	assert.Equal(t, 0, r.ReportNow(context.Background()))

	assert.Equal(t, 3, store.reportedCount())
	require.Len(t, client.batches, 2)
	assert.Len(t, client.batches[0], 2)
}

func TestReporter_ClientErrorLeavesEventsUnreported(t *testing.T) {
	store := newMemoryStore("a")
	client := &recordingClient{err: errors.New("gateway down")}
	r := NewReporter(ReporterConfig{Store: store, Client: client})

	assert.Equal(t, 0, r.ReportNow(context.Background()))
	assert.Equal(t, 0, store.reportedCount())

	client.err = nil
	assert.Equal(t, 1, r.ReportNow(context.Background()))
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestReporter_ReportsOnStart(t *testing.T) {
	store := newMemoryStore("a", "b")
	r := NewReporter(ReporterConfig{Store: store, Client: &recordingClient{}, Interval: time.Hour})

	go r.Start(context.Background())
	assert.Eventually(t, func() bool { return store.reportedCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	r.Stop()
}

func TestReporter_StopFlushes(t *testing.T) {
	store := newMemoryStore()
	r := NewReporter(ReporterConfig{Store: store, Client: &recordingClient{}, Interval: time.Hour})

	go r.Start(context.Background())

	// Recorded after the startup cycle; only the final flush can report it.
	assert.Eventually(t, func() bool { return store.readCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	store.mu.Lock()
	store.events = append(store.events, domain.NewMeterEvent("late", "user-1", domain.EventToolInvoked, "weather_tool", domain.ResourceTool))
	store.mu.Unlock()

	r.Stop()
	assert.Equal(t, 1, store.reportedCount())

	// Stop is idempotent.
	r.Stop()
}

func TestReporter_ContextCancellation(t *testing.T) {
	r := NewReporter(ReporterConfig{Store: newMemoryStore(), Client: &recordingClient{}, Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reporter did not stop on context cancellation")
	}
}
