/*
rules.go - Reactive rules fired by ledger writes

PURPOSE:
  The three rules that the database triggers of earlier deployments
  encoded, hoisted into explicit, testable objects. Each rule runs
  synchronously inside the same unit of work as the triggering write;
  a rule failure rolls the write back.

RULES:
  statusSynchronizer  after every payment insert, recompute PaymentStatus
  autoBillingRule     after a lab test transitions into Completed, insert
                      a fixed charge and one audit entry
  auditLogger         append-only TriggerActionLog writer with per-process
                      monotonic timestamps

ORDERING:
  The engine fires rules in a fixed order per operation (see engine.go),
  so effects of one triggering write are deterministic.
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// STATUS SYNCHRONIZER - PaymentStatus derivation after each payment
// =============================================================================

// statusSynchronizer recomputes a patient's PaymentStatus from facts.
// It fires exactly once per successful payment insert.
type statusSynchronizer struct{}

func (statusSynchronizer) apply(ctx context.Context, fs FactStore, patientID PatientID) error {
	paid, err := fs.TotalPaid(ctx, patientID)
	if err != nil {
		return fmt.Errorf("payment status rule: %w", err)
	}

	billed, err := fs.LatestBillAmount(ctx, patientID)
	if err != nil {
		return fmt.Errorf("payment status rule: %w", err)
	}
	if billed == nil {
		// Patient has never been billed: completion is indeterminate, and
		// there is no bill amount to materialize. Not an error.
		return nil
	}

	status := PaymentStatus{
		PatientID:        patientID,
		LatestBillAmount: *billed,
		PaymentComplete:  paid.AtLeast(*billed),
	}
	if err := fs.UpsertPaymentStatus(ctx, status); err != nil {
		return fmt.Errorf("payment status rule: %w", err)
	}
	return nil
}

// =============================================================================
// AUTO-BILLING RULE - Fixed charge on lab test completion
// =============================================================================

// DefaultLabTestCharge is the flat amount billed when a lab test
// completes. The charge is a constant, not derived from the test.
var DefaultLabTestCharge = MustMoney("500.00")

// autoBillingRule fires when a lab test's status transitions into
// Completed from any other value. Repeated updates that leave the status
// at Completed do not re-fire. The billing insert is visible to later
// balance queries but deliberately does NOT re-run the status
// synchronizer: PaymentStatus stays stale until the next payment event.
type autoBillingRule struct {
	charge Money
	audit  *auditLogger
	now    func() time.Time
}

func (r *autoBillingRule) apply(ctx context.Context, fs FactStore, test *LabTest, oldStatus TestStatus) error {
	if test.Status != TestCompleted || oldStatus == TestCompleted {
		return nil
	}

	billID, err := insertBillingFact(ctx, fs, test.PatientID, r.charge, dateOnly(r.now()))
	if err != nil {
		return fmt.Errorf("auto-billing rule: %w", err)
	}

	patientID := test.PatientID
	return r.audit.append(ctx, fs, AuditEntry{
		TriggerName: TriggerLabTestCharge,
		Action:      AuditInsert,
		TableName:   "Billing",
		RecordID:    int64(billID),
		NewValue:    "Lab Test Charge: $" + r.charge.String(),
		PatientID:   &patientID,
	})
}

// =============================================================================
// AUDIT LOGGER - Append-only TriggerActionLog writer
// =============================================================================

// auditLogger assigns write-time timestamps, monotonic non-decreasing
// within the process. A failed append propagates, failing the whole
// triggering operation.
type auditLogger struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (l *auditLogger) append(ctx context.Context, fs FactStore, entry AuditEntry) error {
	entry.Timestamp = l.stamp()
	if _, err := fs.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	return nil
}

func (l *auditLogger) stamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now().UTC()
	if t.Before(l.last) {
		t = l.last
	}
	l.last = t
	return t
}

// occupancyLabel keeps the log row strings stable across deployments.
func occupancyLabel(occupied bool) string {
	if occupied {
		return "Occupied"
	}
	return "Vacant"
}
