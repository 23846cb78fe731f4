// Package store provides an in-memory ledger.Store implementation.
//
// The memory store exists for rule-level tests and demos: it keeps the
// transactional contract (WithTx rolls back on error by restoring a
// snapshot) but does not enforce referential integrity; that is the
// SQLite store's job.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/medcore/hospital-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.Mutex
	st *state

	// AuditErr, when set, is returned by every AppendAudit call. Test
	// hook for rule-failure rollback behavior.
	AuditErr error
}

type state struct {
	bills         []ledger.Billing
	payments      []ledger.Payment
	status        map[ledger.PatientID]ledger.PaymentStatus
	labTests      map[ledger.TestID]ledger.LabTest
	rooms         map[ledger.RoomID]ledger.Room
	prescriptions []ledger.Prescription
	audit         []ledger.AuditEntry

	nextBill         int64
	nextPayment      int64
	nextPrescription int64
	nextLog          int64
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func newState() *state {
	return &state{
		status:   make(map[ledger.PatientID]ledger.PaymentStatus),
		labTests: make(map[ledger.TestID]ledger.LabTest),
		rooms:    make(map[ledger.RoomID]ledger.Room),
	}
}

func (s *state) clone() *state {
	c := &state{
		bills:            append([]ledger.Billing(nil), s.bills...),
		payments:         append([]ledger.Payment(nil), s.payments...),
		prescriptions:    append([]ledger.Prescription(nil), s.prescriptions...),
		audit:            append([]ledger.AuditEntry(nil), s.audit...),
		status:           make(map[ledger.PatientID]ledger.PaymentStatus, len(s.status)),
		labTests:         make(map[ledger.TestID]ledger.LabTest, len(s.labTests)),
		rooms:            make(map[ledger.RoomID]ledger.Room, len(s.rooms)),
		nextBill:         s.nextBill,
		nextPayment:      s.nextPayment,
		nextPrescription: s.nextPrescription,
		nextLog:          s.nextLog,
	}
	for k, v := range s.status {
		c.status[k] = v
	}
	for k, v := range s.labTests {
		c.labTests[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	return c
}

// =============================================================================
// TEST FIXTURES
// =============================================================================

// PutLabTest seeds a lab test row.
func (m *Memory) PutLabTest(t ledger.LabTest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.labTests[t.ID] = t
}

// PutRoom seeds a room row.
func (m *Memory) PutRoom(r ledger.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.rooms[r.ID] = r
}

// Bills returns a copy of all billing facts, insertion order.
func (m *Memory) Bills() []ledger.Billing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Billing(nil), m.st.bills...)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx serializes units of work under one mutex and restores a
// snapshot if fn fails, so rule failures roll the triggering write back.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.FactStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{m}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txView exposes FactStore against the store's live state while the
// WithTx mutex is held.
type txView struct {
	m *Memory
}

func (v *txView) InsertBilling(_ context.Context, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.BillID, error) {
	return v.m.st.insertBilling(patientID, amount, date), nil
}

func (v *txView) InsertPayment(_ context.Context, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.PaymentID, error) {
	return v.m.st.insertPayment(patientID, amount, date), nil
}

func (v *txView) TotalBilled(_ context.Context, patientID ledger.PatientID) (ledger.Money, error) {
	return v.m.st.totalBilled(patientID), nil
}

func (v *txView) TotalPaid(_ context.Context, patientID ledger.PatientID) (ledger.Money, error) {
	return v.m.st.totalPaid(patientID), nil
}

func (v *txView) LatestBillAmount(_ context.Context, patientID ledger.PatientID) (*ledger.Money, error) {
	return v.m.st.latestBillAmount(patientID), nil
}

func (v *txView) GetPaymentStatus(_ context.Context, patientID ledger.PatientID) (*ledger.PaymentStatus, error) {
	return v.m.st.getPaymentStatus(patientID), nil
}

func (v *txView) UpsertPaymentStatus(_ context.Context, status ledger.PaymentStatus) error {
	v.m.st.status[status.PatientID] = status
	return nil
}

func (v *txView) BilledPatients(_ context.Context) ([]ledger.PatientID, error) {
	return v.m.st.billedPatients(), nil
}

func (v *txView) GetLabTest(_ context.Context, id ledger.TestID) (*ledger.LabTest, error) {
	return v.m.st.getLabTest(id), nil
}

func (v *txView) SetLabTestStatus(_ context.Context, id ledger.TestID, status ledger.TestStatus) error {
	t, ok := v.m.st.labTests[id]
	if !ok {
		return ledger.ErrLabTestNotFound
	}
	t.Status = status
	v.m.st.labTests[id] = t
	return nil
}

func (v *txView) GetRoom(_ context.Context, id ledger.RoomID) (*ledger.Room, error) {
	return v.m.st.getRoom(id), nil
}

func (v *txView) SetRoomOccupancy(_ context.Context, id ledger.RoomID, occupied bool, patientID *ledger.PatientID) error {
	r, ok := v.m.st.rooms[id]
	if !ok {
		return ledger.ErrRoomNotFound
	}
	r.IsOccupied = occupied
	r.CurrentPatientID = patientID
	v.m.st.rooms[id] = r
	return nil
}

func (v *txView) InsertPrescription(_ context.Context, p ledger.Prescription) (ledger.PrescriptionID, error) {
	v.m.st.nextPrescription++
	p.ID = ledger.PrescriptionID(v.m.st.nextPrescription)
	v.m.st.prescriptions = append(v.m.st.prescriptions, p)
	return p.ID, nil
}

func (v *txView) AppendAudit(_ context.Context, entry ledger.AuditEntry) (ledger.LogID, error) {
	if v.m.AuditErr != nil {
		return 0, v.m.AuditErr
	}
	v.m.st.nextLog++
	entry.ID = ledger.LogID(v.m.st.nextLog)
	v.m.st.audit = append(v.m.st.audit, entry)
	return entry.ID, nil
}

// =============================================================================
// DIRECT (NON-TRANSACTIONAL) ACCESS
// =============================================================================

func (m *Memory) InsertBilling(_ context.Context, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.BillID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertBilling(patientID, amount, date), nil
}

func (m *Memory) InsertPayment(_ context.Context, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.PaymentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertPayment(patientID, amount, date), nil
}

func (m *Memory) TotalBilled(_ context.Context, patientID ledger.PatientID) (ledger.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.totalBilled(patientID), nil
}

func (m *Memory) TotalPaid(_ context.Context, patientID ledger.PatientID) (ledger.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.totalPaid(patientID), nil
}

func (m *Memory) LatestBillAmount(_ context.Context, patientID ledger.PatientID) (*ledger.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.latestBillAmount(patientID), nil
}

func (m *Memory) GetPaymentStatus(_ context.Context, patientID ledger.PatientID) (*ledger.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getPaymentStatus(patientID), nil
}

func (m *Memory) UpsertPaymentStatus(_ context.Context, status ledger.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.status[status.PatientID] = status
	return nil
}

func (m *Memory) BilledPatients(_ context.Context) ([]ledger.PatientID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.billedPatients(), nil
}

func (m *Memory) GetLabTest(_ context.Context, id ledger.TestID) (*ledger.LabTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getLabTest(id), nil
}

func (m *Memory) SetLabTestStatus(ctx context.Context, id ledger.TestID, status ledger.TestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txView{m}).SetLabTestStatus(ctx, id, status)
}

func (m *Memory) GetRoom(_ context.Context, id ledger.RoomID) (*ledger.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getRoom(id), nil
}

func (m *Memory) SetRoomOccupancy(ctx context.Context, id ledger.RoomID, occupied bool, patientID *ledger.PatientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txView{m}).SetRoomOccupancy(ctx, id, occupied, patientID)
}

func (m *Memory) InsertPrescription(ctx context.Context, p ledger.Prescription) (ledger.PrescriptionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txView{m}).InsertPrescription(ctx, p)
}

func (m *Memory) AppendAudit(ctx context.Context, entry ledger.AuditEntry) (ledger.LogID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txView{m}).AppendAudit(ctx, entry)
}

// QueryAudit returns matching entries, newest first.
func (m *Memory) QueryAudit(_ context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.AuditEntry
	for i := len(m.st.audit) - 1; i >= 0; i-- {
		e := m.st.audit[i]
		if filter.TriggerName != "" && e.TriggerName != filter.TriggerName {
			continue
		}
		if filter.TableName != "" && e.TableName != filter.TableName {
			continue
		}
		if filter.PatientID != nil && (e.PatientID == nil || *e.PatientID != *filter.PatientID) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) PurgeAudit(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.st.audit))
	m.st.audit = nil
	return n, nil
}

// =============================================================================
// STATE HELPERS
// =============================================================================

func (s *state) insertBilling(patientID ledger.PatientID, amount ledger.Money, date time.Time) ledger.BillID {
	s.nextBill++
	b := ledger.Billing{ID: ledger.BillID(s.nextBill), PatientID: patientID, Amount: amount, BillingDate: date}
	s.bills = append(s.bills, b)
	return b.ID
}

func (s *state) insertPayment(patientID ledger.PatientID, amount ledger.Money, date time.Time) ledger.PaymentID {
	s.nextPayment++
	p := ledger.Payment{ID: ledger.PaymentID(s.nextPayment), PatientID: patientID, Amount: amount, PaymentDate: date}
	s.payments = append(s.payments, p)
	return p.ID
}

func (s *state) totalBilled(patientID ledger.PatientID) ledger.Money {
	var total ledger.Money
	for _, b := range s.bills {
		if b.PatientID == patientID {
			total = total.Add(b.Amount)
		}
	}
	return total
}

func (s *state) totalPaid(patientID ledger.PatientID) ledger.Money {
	var total ledger.Money
	for _, p := range s.payments {
		if p.PatientID == patientID {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// latestBillAmount: latest billing date wins, ties broken by highest ID.
func (s *state) latestBillAmount(patientID ledger.PatientID) *ledger.Money {
	var best *ledger.Billing
	for i := range s.bills {
		b := &s.bills[i]
		if b.PatientID != patientID {
			continue
		}
		if best == nil || b.BillingDate.After(best.BillingDate) ||
			(b.BillingDate.Equal(best.BillingDate) && b.ID > best.ID) {
			best = b
		}
	}
	if best == nil {
		return nil
	}
	amount := best.Amount
	return &amount
}

func (s *state) getPaymentStatus(patientID ledger.PatientID) *ledger.PaymentStatus {
	st, ok := s.status[patientID]
	if !ok {
		return nil
	}
	return &st
}

func (s *state) billedPatients() []ledger.PatientID {
	seen := make(map[ledger.PatientID]bool)
	var out []ledger.PatientID
	for _, b := range s.bills {
		if !seen[b.PatientID] {
			seen[b.PatientID] = true
			out = append(out, b.PatientID)
		}
	}
	return out
}

func (s *state) getLabTest(id ledger.TestID) *ledger.LabTest {
	t, ok := s.labTests[id]
	if !ok {
		return nil
	}
	return &t
}

func (s *state) getRoom(id ledger.RoomID) *ledger.Room {
	r, ok := s.rooms[id]
	if !ok {
		return nil
	}
	return &r
}
