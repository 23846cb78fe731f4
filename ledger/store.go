/*
store.go - Persistence interfaces for facts, derived state, and the audit trail

PURPOSE:
  Defines the interface between the rule engine and the database. Facts
  (Billing, Payment, TriggerActionLog) are append-only; PaymentStatus is
  the single piece of mutable derived state.

TRANSACTIONAL CONTRACT:
  Every mutation entry point of the engine runs inside WithTx. The rules
  fired by a write execute against the same unit of work, so a rule
  failure rolls the triggering write back with it. This reproduces the
  all-or-nothing semantics of in-database triggers without depending on
  any engine-specific trigger mechanism.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite store (full hospital schema)
  - ledger/store/memory.go: in-memory store for rule tests
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// FACT STORE - Operations available inside a unit of work
// =============================================================================

// FactStore is the surface the reactive rules read and write through.
// Billing, Payment, and audit rows are append-only: no update or delete
// methods exist for them.
type FactStore interface {
	// InsertBilling appends a billing fact and returns its identifier.
	InsertBilling(ctx context.Context, patientID PatientID, amount Money, date time.Time) (BillID, error)

	// InsertPayment appends a payment fact and returns its identifier.
	InsertPayment(ctx context.Context, patientID PatientID, amount Money, date time.Time) (PaymentID, error)

	// TotalBilled sums all billing facts for a patient. Zero for a
	// patient with no history.
	TotalBilled(ctx context.Context, patientID PatientID) (Money, error)

	// TotalPaid sums all payment facts for a patient. Zero for a patient
	// with no history.
	TotalPaid(ctx context.Context, patientID PatientID) (Money, error)

	// LatestBillAmount returns the amount of the most recent billing fact
	// for a patient: latest by billing date, ties broken by highest bill
	// identifier. Nil if the patient has never been billed.
	LatestBillAmount(ctx context.Context, patientID PatientID) (*Money, error)

	// GetPaymentStatus returns the derived row, or nil if absent.
	GetPaymentStatus(ctx context.Context, patientID PatientID) (*PaymentStatus, error)

	// UpsertPaymentStatus writes the derived row keyed by PatientID.
	UpsertPaymentStatus(ctx context.Context, status PaymentStatus) error

	// BilledPatients returns every patient with at least one billing fact.
	BilledPatients(ctx context.Context) ([]PatientID, error)

	// GetLabTest returns a lab test, or nil if absent.
	GetLabTest(ctx context.Context, id TestID) (*LabTest, error)

	// SetLabTestStatus updates only the status column of a lab test.
	SetLabTestStatus(ctx context.Context, id TestID, status TestStatus) error

	// GetRoom returns a room, or nil if absent.
	GetRoom(ctx context.Context, id RoomID) (*Room, error)

	// SetRoomOccupancy updates a room's occupancy flag and current
	// patient reference.
	SetRoomOccupancy(ctx context.Context, id RoomID, occupied bool, patientID *PatientID) error

	// InsertPrescription appends a prescription and returns its identifier.
	InsertPrescription(ctx context.Context, p Prescription) (PrescriptionID, error)

	// AppendAudit appends one TriggerActionLog row.
	AppendAudit(ctx context.Context, entry AuditEntry) (LogID, error)
}

// =============================================================================
// STORE - FactStore plus transactions and audit queries
// =============================================================================

// Store is the full persistence contract the engine is built on.
type Store interface {
	FactStore

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back; otherwise it is committed. Concurrent
	// units of work are serialized so two rule firings for the same
	// patient cannot interleave their read-compute-write sequences.
	WithTx(ctx context.Context, fn func(FactStore) error) error

	// QueryAudit returns audit entries matching the filter, newest first.
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)

	// PurgeAudit removes all audit entries. Administrative use only.
	PurgeAudit(ctx context.Context) (int64, error)
}
