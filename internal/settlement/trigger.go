package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// Trigger starts settlement workflows on Temporal.
type Trigger struct {
	client    client.Client
	taskQueue string
}

func NewTrigger(c client.Client, taskQueue string) *Trigger {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Trigger{client: c, taskQueue: taskQueue}
}

// TriggerSettlement starts the settlement workflow for a completed payment.
// A workflow that is already running or has completed for the same payment
// is not an error. A previously failed one is started again.
func (t *Trigger) TriggerSettlement(ctx context.Context, checkoutRequestID, receipt string) error {
	opts := client.StartWorkflowOptions{
		ID:                                       WorkflowID(checkoutRequestID),
		TaskQueue:                                t.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	ev := SettlementEvent{CheckoutRequestID: checkoutRequestID, Receipt: receipt}

	run, err := t.client.ExecuteWorkflow(ctx, opts, SettlePaymentWorkflow, ev)
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		log.Printf("[SETTLEMENT] Workflow %s already started", opts.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start settlement for %s: %w", checkoutRequestID, err)
	}
	log.Printf("[SETTLEMENT] Started workflow %s run %s", run.GetID(), run.GetRunID())
	return nil
}
