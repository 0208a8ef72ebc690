package store

import (
	"context"
	"time"

	"github.com/artpar/agentresourcerest/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for invocation audit records and
// usage events.
type Store interface {
	// Tool invocation audit log
	RecordInvocation(ctx context.Context, inv *domain.ToolInvocation) error
	ListInvocations(ctx context.Context, userID string, opts ListOptions) ([]domain.ToolInvocation, error)
	CountInvocations(ctx context.Context, userID string) (int, error)

	// Usage event operations (batch-reported by billing.Reporter)
	CreateMeterEvent(ctx context.Context, event *domain.MeterEvent) error
	GetUnreportedEvents(ctx context.Context, limit int) ([]domain.MeterEvent, error)
	MarkEventsReported(ctx context.Context, ids []string, reportedAt time.Time) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// AllUsers lists invocations of every user when passed as userID.
const AllUsers = ""

// =============================================================================
// Options
// =============================================================================

// MaxListLimit caps a single page of results.
const MaxListLimit = 100

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  20,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListOptions().Limit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
