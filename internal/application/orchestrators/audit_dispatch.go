package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"confreg/internal/adapters/metrics"
	"confreg/internal/domain/audit"
)

// AuditStoreForDispatch defines the store interface needed by the audit dispatcher.
type AuditStoreForDispatch interface {
	Save(ctx context.Context, event audit.Event) error
}

// Auditor records admin access events without blocking the caller.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// auditTimeout bounds one detached audit write.
const auditTimeout = 5 * time.Second

// AuditDispatcher writes audit events on their own goroutine.
// Failures and panics are logged and counted, never returned.
type AuditDispatcher struct {
	store   AuditStoreForDispatch
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewAuditDispatcher creates a dispatcher over store. m may be nil.
func NewAuditDispatcher(store AuditStoreForDispatch, m *metrics.Metrics) *AuditDispatcher {
	return &AuditDispatcher{store: store, metrics: m}
}

// Record dispatches event and returns immediately.
// The write outlives ctx cancellation but keeps its values.
// PRE: event has an ID and Action
// POST: a goroutine owns the write; Wait blocks until it finishes
func (d *AuditDispatcher) Record(ctx context.Context, event audit.Event) {
	d.wg.Add(1)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.fail(event, fmt.Errorf("panic: %v", r))
			}
		}()

		wctx, cancel := context.WithTimeout(detached, auditTimeout)
		defer cancel()
		if err := d.store.Save(wctx, event); err != nil {
			d.fail(event, err)
		}
	}()
}

func (d *AuditDispatcher) fail(event audit.Event, err error) {
	d.metrics.AuditFailed()
	slog.Warn("audit_log_failed", "action", string(event.Action), "event_id", event.ID, "error", err)
}

// Wait blocks until every dispatched write has finished.
func (d *AuditDispatcher) Wait() {
	d.wg.Wait()
}

var _ Auditor = (*AuditDispatcher)(nil)
