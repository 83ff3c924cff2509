package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pabfc/membership-payments/internal/config"
	"github.com/pabfc/membership-payments/internal/models"
	"github.com/pabfc/membership-payments/internal/services"
	"github.com/pabfc/membership-payments/internal/store"
)

// PaymentLister finds work for the sweeps.
type PaymentLister interface {
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]string, error)
	ListUnsettled(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// OutcomeApplier is the callback path the sweep reuses for gateway results.
type OutcomeApplier interface {
	Apply(ctx context.Context, o models.GatewayOutcome, receipt string) (*store.TransitionResult, error)
}

// Reconciler repairs payments the callback path missed. Pending requests
// whose callback never arrived are resolved by querying the gateway, and
// completed payments whose settlement was never started are triggered again.
type Reconciler struct {
	payments  PaymentLister
	gateway   services.StatusQuerier
	callbacks OutcomeApplier
	trigger   services.SettlementTrigger

	interval    time.Duration
	staleAfter  time.Duration
	batchSize   int
	workerCount int
	now         func() time.Time
}

func NewReconciler(
	payments PaymentLister,
	gateway services.StatusQuerier,
	callbacks OutcomeApplier,
	trigger services.SettlementTrigger,
	cfg config.ReconcilerConfig,
) *Reconciler {
	r := &Reconciler{
		payments:    payments,
		gateway:     gateway,
		callbacks:   callbacks,
		trigger:     trigger,
		interval:    cfg.Interval,
		staleAfter:  cfg.StaleAfter,
		batchSize:   cfg.BatchSize,
		workerCount: cfg.WorkerCount,
		now:         time.Now,
	}
	if r.interval <= 0 {
		r.interval = 2 * time.Minute
	}
	if r.staleAfter <= 0 {
		r.staleAfter = 5 * time.Minute
	}
	if r.batchSize <= 0 {
		r.batchSize = 50
	}
	if r.workerCount <= 0 {
		r.workerCount = 5
	}
	return r
}

// Start runs a cycle immediately and then on every tick until ctx is done.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Printf("[RECONCILER] Started, polling every %s", r.interval)

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[RECONCILER] Context cancelled, stopping")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one pass of both sweeps.
func (r *Reconciler) RunOnce(ctx context.Context) {
	cutoff := r.now().Add(-r.staleAfter)

	pending, err := r.payments.ListStalePending(ctx, cutoff, r.batchSize)
	if err != nil {
		log.Printf("[RECONCILER] Listing pending requests failed: %v", err)
	} else if len(pending) > 0 {
		log.Printf("[RECONCILER] Querying %d stale pending requests", len(pending))
		r.process(ctx, pending, r.syncPending)
	}

	unsettled, err := r.payments.ListUnsettled(ctx, cutoff, r.batchSize)
	if err != nil {
		log.Printf("[RECONCILER] Listing unsettled payments failed: %v", err)
	} else if len(unsettled) > 0 {
		log.Printf("[RECONCILER] Re-triggering settlement for %d payments", len(unsettled))
		r.process(ctx, unsettled, r.retrigger)
	}
}

// process fans the ids out over the worker pool and waits for all of them.
func (r *Reconciler) process(ctx context.Context, ids []string, fn func(context.Context, string) error) {
	jobs := make(chan string, len(ids))
	var wg sync.WaitGroup
	for w := 0; w < r.workerCount; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for checkoutID := range jobs {
				if ctx.Err() != nil {
					return
				}
				if err := fn(ctx, checkoutID); err != nil {
					log.Printf("[RECONCILER] Worker %d failed on %s: %v", id, checkoutID, err)
				}
			}
		}(w)
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
}

func (r *Reconciler) syncPending(ctx context.Context, checkoutID string) error {
	q, err := r.gateway.QueryStatus(ctx, checkoutID)
	if err != nil {
		return fmt.Errorf("query status: %w", err)
	}
	if q.Pending {
		return nil
	}
	res, err := r.callbacks.Apply(ctx, models.GatewayOutcome{
		CheckoutRequestID: checkoutID,
		ResultCode:        q.ResultCode,
		ResultDesc:        q.ResultDesc,
		Payload:           q.Raw,
	}, "")
	if err != nil {
		return err
	}
	if res.Changed {
		log.Printf("[RECONCILER] %s resolved to %s", checkoutID, res.Status)
	}
	return nil
}

func (r *Reconciler) retrigger(ctx context.Context, checkoutID string) error {
	return r.trigger.TriggerSettlement(ctx, checkoutID, "")
}
