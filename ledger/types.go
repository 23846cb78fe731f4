/*
Package ledger provides the reactive billing core of the hospital system.

PURPOSE:
  This package contains the types and rules that keep derived financial
  state (payment completion, the audit trail) consistent with base
  transactional writes. Billing and Payment rows are immutable facts;
  PaymentStatus is a materialized view over them; the TriggerActionLog
  is an append-only record of every rule firing.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: exact fixed-point amount with two fraction digits
  - Billing/Payment: immutable facts ("patient X was charged/paid A on D")
  - PaymentStatus: derived state, one row per patient
  - LabTest/Room/Prescription: the entities whose writes fire rules
  - AuditEntry: one TriggerActionLog row per rule firing

DESIGN PRINCIPLES:
  1. Facts are never updated; derived state is always reconstructible
  2. Precision: decimal.Decimal everywhere, never binary floating point
  3. Type safety: distinct integer ID types per entity

SEE ALSO:
  - engine.go: mutation entry points that fire the rules
  - rules.go: the rules themselves
  - store.go: persistence interfaces
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact fixed-point amount, two fraction digits
// =============================================================================

// Money is a monetary amount. The zero value is 0.00.
type Money struct {
	Value decimal.Decimal
}

// NewMoney parses a decimal string like "500.00". Amounts with more than
// two fraction digits are rejected.
func NewMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.Exponent() < -2 {
		return Money{}, fmt.Errorf("%w: %q has more than two fraction digits", ErrInvalidAmount, s)
	}
	return Money{Value: d}, nil
}

// MustMoney is NewMoney for constants in code and tests.
func MustMoney(s string) Money {
	m, err := NewMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromCents builds an amount from an integer number of cents.
func MoneyFromCents(cents int64) Money {
	return Money{Value: decimal.New(cents, -2)}
}

func (m Money) Add(o Money) Money      { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money      { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money             { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool           { return m.Value.IsZero() }
func (m Money) IsNegative() bool       { return m.Value.IsNegative() }
func (m Money) IsPositive() bool       { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool     { return m.Value.Equal(o.Value) }
func (m Money) LessThan(o Money) bool  { return m.Value.LessThan(o.Value) }
func (m Money) AtLeast(o Money) bool   { return m.Value.GreaterThanOrEqual(o.Value) }

// String renders with exactly two fraction digits ("500.00").
func (m Money) String() string { return m.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PatientID int64
type DoctorID int64
type BillID int64
type PaymentID int64
type TestID int64
type RoomID int64
type PrescriptionID int64
type LogID int64

// =============================================================================
// FACTS - Immutable once written
// =============================================================================

// Billing records "patient X was charged Amount on BillingDate".
// Created by manual entry or by the auto-billing rule. Append-only.
type Billing struct {
	ID          BillID
	PatientID   PatientID
	Amount      Money
	BillingDate time.Time
}

// Payment records "patient X paid Amount on PaymentDate". Append-only.
// Each insert is the sole trigger input for the payment status rule.
type Payment struct {
	ID          PaymentID
	PatientID   PatientID
	Amount      Money
	PaymentDate time.Time
}

// =============================================================================
// DERIVED STATE
// =============================================================================

// PaymentStatus is a materialized view, one row per patient. It is never
// a source of truth: it must be reconstructible from Billing and Payment
// facts at any time (see reconcile.go).
type PaymentStatus struct {
	PatientID        PatientID
	LatestBillAmount Money
	PaymentComplete  bool
}

// =============================================================================
// RULE-BEARING ENTITIES
// =============================================================================

type TestStatus string

const (
	TestPending   TestStatus = "Pending"
	TestCompleted TestStatus = "Completed"
	TestCancelled TestStatus = "Cancelled"
)

// ValidTestStatus reports whether s is one of the known status values.
func ValidTestStatus(s TestStatus) bool {
	switch s {
	case TestPending, TestCompleted, TestCancelled:
		return true
	}
	return false
}

// LabTest carries a status whose transition into Completed fires the
// auto-billing rule.
type LabTest struct {
	ID        TestID
	PatientID PatientID
	DoctorID  DoctorID
	TestName  string
	TestDate  time.Time
	Result    string
	Status    TestStatus
	Notes     string
}

// Room occupancy flips (either direction) fire an audit entry.
type Room struct {
	ID               RoomID
	RoomNumber       string
	RoomType         string
	Capacity         int
	IsOccupied       bool
	CurrentPatientID *PatientID
	DepartmentID     *int64
}

// Prescription inserts unconditionally fire an audit entry.
type Prescription struct {
	ID           PrescriptionID
	PatientID    PatientID
	DoctorID     DoctorID
	MedicineName string
	Dosage       string
	Frequency    string
	StartDate    time.Time
	EndDate      time.Time
	Notes        string
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

type AuditAction string

const (
	AuditInsert AuditAction = "INSERT"
	AuditUpdate AuditAction = "UPDATE"
)

// Rule names, kept byte-for-byte compatible with the stored log rows of
// earlier deployments so historical queries keep working.
const (
	TriggerPrescriptionInsert = "TR_LOG_PRESCRIPTION_INSERT"
	TriggerRoomOccupancy      = "TR_LOG_ROOM_OCCUPANCY"
	TriggerLabTestCharge      = "TR_ADD_LAB_TEST_CHARGE"
)

// AuditEntry is one TriggerActionLog row. Append-only; rows are removed
// only by an explicit administrative purge.
type AuditEntry struct {
	ID          LogID
	TriggerName string
	Action      AuditAction
	TableName   string
	RecordID    int64
	OldValue    string
	NewValue    string
	Timestamp   time.Time
	PatientID   *PatientID
}

// AuditFilter narrows audit trail queries. Zero fields match everything.
type AuditFilter struct {
	PatientID   *PatientID
	TriggerName string
	TableName   string
	Limit       int
}
