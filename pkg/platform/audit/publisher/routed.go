package publisher

import (
	"context"

	audit "jornada/pkg/platform/audit"
)

// Emitter is satisfied by Publisher.
type Emitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Routed sends compliance events to a synchronous emitter, so a failed
// write reaches the caller, and operational events to a buffered one.
type Routed struct {
	compliance Emitter
	operations Emitter
}

func NewRouted(compliance, operations Emitter) *Routed {
	return &Routed{compliance: compliance, operations: operations}
}

func (r *Routed) Emit(ctx context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.Category == audit.CategoryCompliance {
		return r.compliance.Emit(ctx, event)
	}
	return r.operations.Emit(ctx, event)
}
