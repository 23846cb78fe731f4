/*
engine.go - Mutation entry points that fire the reactive rules

PURPOSE:
  The Engine is the only path through which billing, payments, lab test
  status changes, room occupancy flips, and prescriptions may be written.
  Each entry point performs its own insert/update and then synchronously
  invokes the relevant rules inside the same transaction, so all effects
  of one triggering write commit or roll back together.

CONTROL FLOW (per operation):
  RecordBilling        insert billing -> ensure PaymentStatus row exists
  RecordPayment        insert payment -> statusSynchronizer
  UpdateLabTestStatus  update status  -> autoBillingRule (-> auditLogger)
  SetRoomOccupancy     update room    -> auditLogger on actual flip
  AddPrescription      insert         -> auditLogger

SEE ALSO:
  - rules.go: rule implementations
  - reconcile.go: rebuilding PaymentStatus from facts
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Engine binds the store to the reactive rules.
type Engine struct {
	store Store
	log   *zap.Logger
	now   func() time.Time

	status   statusSynchronizer
	autoBill *autoBillingRule
	audit    *auditLogger
}

// New creates an engine over store. A nil logger disables logging.
func New(store Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store: store,
		log:   log,
		now:   time.Now,
	}
	e.audit = &auditLogger{now: e.clock}
	e.autoBill = &autoBillingRule{charge: DefaultLabTestCharge, audit: e.audit, now: e.clock}
	return e
}

// SetClock overrides the engine's time source. Test use.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) clock() time.Time { return e.now() }

// =============================================================================
// BILLING AND PAYMENTS
// =============================================================================

// RecordBilling appends a billing fact. The first bill for a patient also
// creates that patient's PaymentStatus row; later bills leave the row
// untouched until the next payment event recomputes it.
func (e *Engine) RecordBilling(ctx context.Context, patientID PatientID, amount Money, date time.Time) (BillID, error) {
	if err := validateAmount(amount); err != nil {
		return 0, err
	}

	var id BillID
	err := e.store.WithTx(ctx, func(fs FactStore) error {
		var err error
		id, err = insertBillingFact(ctx, fs, patientID, amount, dateOnly(date))
		return err
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("billing recorded",
		zap.Int64("patient_id", int64(patientID)),
		zap.Int64("bill_id", int64(id)),
		zap.String("amount", amount.String()))
	return id, nil
}

// RecordPayment appends a payment fact and fires the status synchronizer
// in the same transaction. A synchronizer failure rolls the payment back.
func (e *Engine) RecordPayment(ctx context.Context, patientID PatientID, amount Money, date time.Time) (PaymentID, error) {
	if err := validateAmount(amount); err != nil {
		return 0, err
	}

	var id PaymentID
	err := e.store.WithTx(ctx, func(fs FactStore) error {
		var err error
		id, err = fs.InsertPayment(ctx, patientID, amount, dateOnly(date))
		if err != nil {
			return err
		}
		return e.status.apply(ctx, fs, patientID)
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("payment recorded",
		zap.Int64("patient_id", int64(patientID)),
		zap.Int64("payment_id", int64(id)),
		zap.String("amount", amount.String()))
	return id, nil
}

// TotalBilled sums all billing facts for a patient.
func (e *Engine) TotalBilled(ctx context.Context, patientID PatientID) (Money, error) {
	return e.store.TotalBilled(ctx, patientID)
}

// TotalPaid sums all payment facts for a patient.
func (e *Engine) TotalPaid(ctx context.Context, patientID PatientID) (Money, error) {
	return e.store.TotalPaid(ctx, patientID)
}

// LatestBillAmount returns the most recent bill amount, nil if unbilled.
func (e *Engine) LatestBillAmount(ctx context.Context, patientID PatientID) (*Money, error) {
	return e.store.LatestBillAmount(ctx, patientID)
}

// PaymentStatusFor returns the derived status row, nil if absent.
func (e *Engine) PaymentStatusFor(ctx context.Context, patientID PatientID) (*PaymentStatus, error) {
	return e.store.GetPaymentStatus(ctx, patientID)
}

// =============================================================================
// LAB TESTS
// =============================================================================

// UpdateLabTestStatus transitions a lab test's status. A transition into
// Completed from any other state fires the auto-billing rule; updates
// that leave the status unchanged at Completed fire nothing.
func (e *Engine) UpdateLabTestStatus(ctx context.Context, id TestID, status TestStatus) error {
	if !ValidTestStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	err := e.store.WithTx(ctx, func(fs FactStore) error {
		test, err := fs.GetLabTest(ctx, id)
		if err != nil {
			return err
		}
		if test == nil {
			return ErrLabTestNotFound
		}

		oldStatus := test.Status
		if err := fs.SetLabTestStatus(ctx, id, status); err != nil {
			return err
		}
		test.Status = status
		return e.autoBill.apply(ctx, fs, test, oldStatus)
	})
	if err != nil {
		return err
	}

	e.log.Info("lab test status updated",
		zap.Int64("test_id", int64(id)),
		zap.String("status", string(status)))
	return nil
}

// =============================================================================
// ROOMS
// =============================================================================

// SetRoomOccupancy updates a room's occupancy and current patient. An
// actual flip of the occupancy flag appends one audit entry, associated
// with the room's current patient reference after the update. Setting
// the flag to its current value logs nothing.
func (e *Engine) SetRoomOccupancy(ctx context.Context, id RoomID, occupied bool, patientID *PatientID) error {
	return e.store.WithTx(ctx, func(fs FactStore) error {
		room, err := fs.GetRoom(ctx, id)
		if err != nil {
			return err
		}
		if room == nil {
			return ErrRoomNotFound
		}

		wasOccupied := room.IsOccupied
		if err := fs.SetRoomOccupancy(ctx, id, occupied, patientID); err != nil {
			return err
		}
		if wasOccupied == occupied {
			return nil
		}

		return e.audit.append(ctx, fs, AuditEntry{
			TriggerName: TriggerRoomOccupancy,
			Action:      AuditUpdate,
			TableName:   "Room",
			RecordID:    int64(id),
			OldValue:    occupancyLabel(wasOccupied),
			NewValue:    occupancyLabel(occupied),
			PatientID:   patientID,
		})
	})
}

// =============================================================================
// PRESCRIPTIONS
// =============================================================================

// AddPrescription appends a prescription fact; every insert produces one
// audit entry. An audit failure rolls the prescription back.
func (e *Engine) AddPrescription(ctx context.Context, p Prescription) (PrescriptionID, error) {
	var id PrescriptionID
	err := e.store.WithTx(ctx, func(fs FactStore) error {
		var err error
		id, err = fs.InsertPrescription(ctx, p)
		if err != nil {
			return err
		}

		patientID := p.PatientID
		return e.audit.append(ctx, fs, AuditEntry{
			TriggerName: TriggerPrescriptionInsert,
			Action:      AuditInsert,
			TableName:   "Prescription",
			RecordID:    int64(id),
			NewValue:    fmt.Sprintf("Medicine: %s, Dosage: %s", p.MedicineName, p.Dosage),
			PatientID:   &patientID,
		})
	})
	return id, err
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

// AuditTrail returns audit entries matching the filter, newest first.
func (e *Engine) AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	return e.store.QueryAudit(ctx, filter)
}

// PurgeAuditLog removes all audit entries. Administrative use only.
func (e *Engine) PurgeAuditLog(ctx context.Context) (int64, error) {
	n, err := e.store.PurgeAudit(ctx)
	if err != nil {
		return 0, err
	}
	e.log.Warn("audit log purged", zap.Int64("entries_removed", n))
	return n, nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// insertBillingFact is the single write path for billing, shared by
// manual entry and the auto-billing rule. The first bill for a patient
// creates the PaymentStatus row (completion false); it is recomputed
// only by the status synchronizer on the next payment.
func insertBillingFact(ctx context.Context, fs FactStore, patientID PatientID, amount Money, date time.Time) (BillID, error) {
	id, err := fs.InsertBilling(ctx, patientID, amount, date)
	if err != nil {
		return 0, err
	}

	status, err := fs.GetPaymentStatus(ctx, patientID)
	if err != nil {
		return 0, err
	}
	if status != nil {
		return id, nil
	}

	latest, err := fs.LatestBillAmount(ctx, patientID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		// The row we just inserted qualifies; only possible if the store
		// lost it mid-transaction.
		return 0, fmt.Errorf("billing fact for patient %d vanished within transaction", patientID)
	}

	err = fs.UpsertPaymentStatus(ctx, PaymentStatus{
		PatientID:        patientID,
		LatestBillAmount: *latest,
		PaymentComplete:  false,
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func validateAmount(m Money) error {
	if !m.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, m)
	}
	return nil
}

// dateOnly truncates to the calendar day; billing and payment dates have
// day granularity.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
