package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/hospital-ledger/ledger"
	"github.com/medcore/hospital-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*ledger.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	eng := ledger.New(mem, nil)
	return eng, mem
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// BILLING AND BALANCE
// =============================================================================

func TestBalance_ExactArithmetic(t *testing.T) {
	// GIVEN: a patient billed 500.00 and 0.10 who paid 0.20
	// THEN: the balance is exactly 499.90, no float drift

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(1)

	_, err := eng.RecordBilling(ctx, patient, ledger.MustMoney("500.00"), day(2025, time.March, 1))
	require.NoError(t, err)
	_, err = eng.RecordBilling(ctx, patient, ledger.MustMoney("0.10"), day(2025, time.March, 2))
	require.NoError(t, err)
	_, err = eng.RecordPayment(ctx, patient, ledger.MustMoney("0.20"), day(2025, time.March, 3))
	require.NoError(t, err)

	balance, err := eng.Balance(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, "499.90", balance.String())
}

func TestBalance_UnknownPatientIsZero(t *testing.T) {
	eng, _ := newTestEngine(t)

	balance, err := eng.Balance(context.Background(), 999)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestRecordBilling_RejectsNonPositiveAmounts(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RecordBilling(ctx, 1, ledger.MustMoney("0.00"), day(2025, time.March, 1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = eng.RecordBilling(ctx, 1, ledger.MustMoney("-10.00"), day(2025, time.March, 1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = eng.RecordPayment(ctx, 1, ledger.MustMoney("0.00"), day(2025, time.March, 1))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestRecordBilling_FirstBillCreatesStatusRow(t *testing.T) {
	// GIVEN: a never-billed patient
	// WHEN: the first bill lands
	// THEN: a status row appears with completion false

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(7)

	_, err := eng.RecordBilling(ctx, patient, ledger.MustMoney("150.00"), day(2025, time.April, 1))
	require.NoError(t, err)

	status, err := eng.PaymentStatusFor(ctx, patient)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "150.00", status.LatestBillAmount.String())
	assert.False(t, status.PaymentComplete)
}

func TestRecordBilling_LaterBillLeavesStatusStale(t *testing.T) {
	// GIVEN: a patient who fully paid their first bill
	// WHEN: a second, larger bill lands with no payment after it
	// THEN: the status row still reflects the paid first bill; the next
	// payment event recomputes it

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(2)

	_, err := eng.RecordBilling(ctx, patient, ledger.MustMoney("100.00"), day(2025, time.March, 1))
	require.NoError(t, err)
	_, err = eng.RecordPayment(ctx, patient, ledger.MustMoney("100.00"), day(2025, time.March, 2))
	require.NoError(t, err)

	_, err = eng.RecordBilling(ctx, patient, ledger.MustMoney("400.00"), day(2025, time.March, 5))
	require.NoError(t, err)

	status, err := eng.PaymentStatusFor(ctx, patient)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "100.00", status.LatestBillAmount.String())
	assert.True(t, status.PaymentComplete, "stale until the next payment event")

	// A payment of any amount recomputes against the newest bill.
	_, err = eng.RecordPayment(ctx, patient, ledger.MustMoney("50.00"), day(2025, time.March, 6))
	require.NoError(t, err)

	status, err = eng.PaymentStatusFor(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, "400.00", status.LatestBillAmount.String())
	assert.False(t, status.PaymentComplete)
}

// =============================================================================
// PAYMENT STATUS SYNCHRONIZATION
// =============================================================================

func TestRecordPayment_PartialThenFull(t *testing.T) {
	// GIVEN: John Doe billed 500.00
	// WHEN: he pays 300.00 then 200.00
	// THEN: completion flips from false to true on the second payment

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	john := ledger.PatientID(1)

	_, err := eng.RecordBilling(ctx, john, ledger.MustMoney("500.00"), day(2025, time.May, 1))
	require.NoError(t, err)

	_, err = eng.RecordPayment(ctx, john, ledger.MustMoney("300.00"), day(2025, time.May, 2))
	require.NoError(t, err)

	status, err := eng.PaymentStatusFor(ctx, john)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.False(t, status.PaymentComplete)
	assert.Equal(t, "500.00", status.LatestBillAmount.String())

	_, err = eng.RecordPayment(ctx, john, ledger.MustMoney("200.00"), day(2025, time.May, 3))
	require.NoError(t, err)

	status, err = eng.PaymentStatusFor(ctx, john)
	require.NoError(t, err)
	assert.True(t, status.PaymentComplete)
}

func TestRecordPayment_NeverBilledPatientIsNoOp(t *testing.T) {
	// GIVEN: a patient with no billing history
	// WHEN: a payment is recorded
	// THEN: the payment fact persists, no status row appears, no error

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(3)

	_, err := eng.RecordPayment(ctx, patient, ledger.MustMoney("75.00"), day(2025, time.March, 1))
	require.NoError(t, err)

	paid, err := eng.TotalPaid(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, "75.00", paid.String())

	status, err := eng.PaymentStatusFor(ctx, patient)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestRecordPayment_CompletionUsesLatestBillOnly(t *testing.T) {
	// GIVEN: two bills, 500.00 then 100.00
	// WHEN: the patient pays 100.00
	// THEN: completion is true - the rule compares total paid against the
	// LATEST bill amount, not the total billed

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(4)

	_, err := eng.RecordBilling(ctx, patient, ledger.MustMoney("500.00"), day(2025, time.March, 1))
	require.NoError(t, err)
	_, err = eng.RecordBilling(ctx, patient, ledger.MustMoney("100.00"), day(2025, time.March, 5))
	require.NoError(t, err)

	_, err = eng.RecordPayment(ctx, patient, ledger.MustMoney("100.00"), day(2025, time.March, 6))
	require.NoError(t, err)

	status, err := eng.PaymentStatusFor(ctx, patient)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "100.00", status.LatestBillAmount.String())
	assert.True(t, status.PaymentComplete)

	// Balance still reflects everything billed.
	balance, err := eng.Balance(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, "500.00", balance.String())
}

func TestLatestBillAmount_SameDayTieBreaksOnHighestID(t *testing.T) {
	// GIVEN: two bills on the same calendar day
	// THEN: the later insert (higher id) is the latest bill

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(5)
	date := day(2025, time.March, 10)

	_, err := eng.RecordBilling(ctx, patient, ledger.MustMoney("200.00"), date)
	require.NoError(t, err)
	_, err = eng.RecordBilling(ctx, patient, ledger.MustMoney("350.00"), date)
	require.NoError(t, err)

	latest, err := eng.LatestBillAmount(ctx, patient)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "350.00", latest.String())
}

// =============================================================================
// LAB TESTS AND AUTO-BILLING
// =============================================================================

func TestUpdateLabTestStatus_CompletionChargesOnce(t *testing.T) {
	// GIVEN: a pending lab test
	// WHEN: it transitions to Completed, then is set to Completed again
	// THEN: exactly one 500.00 charge and one audit entry exist

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(1)
	mem.PutLabTest(ledger.LabTest{ID: 10, PatientID: patient, DoctorID: 1, Status: ledger.TestPending})

	require.NoError(t, eng.UpdateLabTestStatus(ctx, 10, ledger.TestCompleted))
	require.NoError(t, eng.UpdateLabTestStatus(ctx, 10, ledger.TestCompleted))

	billed, err := eng.TotalBilled(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, "500.00", billed.String())

	entries, err := eng.AuditTrail(ctx, ledger.AuditFilter{TriggerName: ledger.TriggerLabTestCharge})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Lab Test Charge: $500.00", entries[0].NewValue)
	assert.Equal(t, "Billing", entries[0].TableName)
	assert.Equal(t, ledger.AuditInsert, entries[0].Action)
	require.NotNil(t, entries[0].PatientID)
	assert.Equal(t, patient, *entries[0].PatientID)
}

func TestUpdateLabTestStatus_ReenteringCompletedChargesAgain(t *testing.T) {
	// GIVEN: a test completed, reopened, completed again
	// THEN: each transition INTO Completed charges

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(1)
	mem.PutLabTest(ledger.LabTest{ID: 11, PatientID: patient, DoctorID: 1, Status: ledger.TestPending})

	require.NoError(t, eng.UpdateLabTestStatus(ctx, 11, ledger.TestCompleted))
	require.NoError(t, eng.UpdateLabTestStatus(ctx, 11, ledger.TestPending))
	require.NoError(t, eng.UpdateLabTestStatus(ctx, 11, ledger.TestCompleted))

	billed, err := eng.TotalBilled(ctx, patient)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", billed.String())
}

func TestUpdateLabTestStatus_CancellationDoesNotCharge(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	mem.PutLabTest(ledger.LabTest{ID: 12, PatientID: 1, DoctorID: 1, Status: ledger.TestPending})

	require.NoError(t, eng.UpdateLabTestStatus(ctx, 12, ledger.TestCancelled))

	billed, err := eng.TotalBilled(ctx, 1)
	require.NoError(t, err)
	assert.True(t, billed.IsZero())
}

func TestUpdateLabTestStatus_Validation(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	mem.PutLabTest(ledger.LabTest{ID: 13, PatientID: 1, DoctorID: 1, Status: ledger.TestPending})

	err := eng.UpdateLabTestStatus(ctx, 13, "Done")
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)

	err = eng.UpdateLabTestStatus(ctx, 99, ledger.TestCompleted)
	assert.ErrorIs(t, err, ledger.ErrLabTestNotFound)
}

func TestUpdateLabTestStatus_AuditFailureRollsBackCharge(t *testing.T) {
	// GIVEN: the audit log rejects writes
	// WHEN: a lab test completes
	// THEN: the status change AND the charge roll back together

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	mem.PutLabTest(ledger.LabTest{ID: 14, PatientID: 1, DoctorID: 1, Status: ledger.TestPending})
	mem.AuditErr = errors.New("log unavailable")

	err := eng.UpdateLabTestStatus(ctx, 14, ledger.TestCompleted)
	require.Error(t, err)

	billed, err := eng.TotalBilled(ctx, 1)
	require.NoError(t, err)
	assert.True(t, billed.IsZero(), "charge must roll back with the audit failure")

	test, err := mem.GetLabTest(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, ledger.TestPending, test.Status, "status change must roll back too")
}

// =============================================================================
// ROOM OCCUPANCY
// =============================================================================

func TestSetRoomOccupancy_FlipIsLogged(t *testing.T) {
	// GIVEN: a vacant room
	// WHEN: a patient is admitted and later discharged
	// THEN: each flip produces one audit entry with Occupied/Vacant labels

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(9)
	mem.PutRoom(ledger.Room{ID: 101, RoomNumber: "101", IsOccupied: false})

	require.NoError(t, eng.SetRoomOccupancy(ctx, 101, true, &patient))
	require.NoError(t, eng.SetRoomOccupancy(ctx, 101, false, nil))

	entries, err := eng.AuditTrail(ctx, ledger.AuditFilter{TriggerName: ledger.TriggerRoomOccupancy})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first: the discharge, then the admission.
	assert.Equal(t, "Occupied", entries[0].OldValue)
	assert.Equal(t, "Vacant", entries[0].NewValue)
	assert.Nil(t, entries[0].PatientID)

	assert.Equal(t, "Vacant", entries[1].OldValue)
	assert.Equal(t, "Occupied", entries[1].NewValue)
	require.NotNil(t, entries[1].PatientID)
	assert.Equal(t, patient, *entries[1].PatientID)
}

func TestSetRoomOccupancy_NoFlipNoLog(t *testing.T) {
	// Setting the flag to its current value updates the row silently.

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	a, b := ledger.PatientID(1), ledger.PatientID(2)
	mem.PutRoom(ledger.Room{ID: 102, RoomNumber: "102", IsOccupied: true, CurrentPatientID: &a})

	require.NoError(t, eng.SetRoomOccupancy(ctx, 102, true, &b))

	room, err := mem.GetRoom(ctx, 102)
	require.NoError(t, err)
	require.NotNil(t, room.CurrentPatientID)
	assert.Equal(t, b, *room.CurrentPatientID)

	entries, err := eng.AuditTrail(ctx, ledger.AuditFilter{TriggerName: ledger.TriggerRoomOccupancy})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSetRoomOccupancy_UnknownRoom(t *testing.T) {
	eng, _ := newTestEngine(t)
	err := eng.SetRoomOccupancy(context.Background(), 999, true, nil)
	assert.ErrorIs(t, err, ledger.ErrRoomNotFound)
}

// =============================================================================
// PRESCRIPTIONS
// =============================================================================

func TestAddPrescription_IsLogged(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(6)

	id, err := eng.AddPrescription(ctx, ledger.Prescription{
		PatientID:    patient,
		DoctorID:     1,
		MedicineName: "Amoxicillin",
		Dosage:       "250mg",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	entries, err := eng.AuditTrail(ctx, ledger.AuditFilter{TriggerName: ledger.TriggerPrescriptionInsert})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Medicine: Amoxicillin, Dosage: 250mg", entries[0].NewValue)
	assert.Equal(t, "Prescription", entries[0].TableName)
	assert.Equal(t, int64(id), entries[0].RecordID)
}

func TestAddPrescription_AuditFailureRollsBackInsert(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	mem.AuditErr = errors.New("log unavailable")

	_, err := eng.AddPrescription(ctx, ledger.Prescription{
		PatientID: 1, DoctorID: 1, MedicineName: "Ibuprofen", Dosage: "400mg",
	})
	require.Error(t, err)

	mem.AuditErr = nil
	id, err := eng.AddPrescription(ctx, ledger.Prescription{
		PatientID: 1, DoctorID: 1, MedicineName: "Ibuprofen", Dosage: "400mg",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.PrescriptionID(1), id, "rolled-back insert must not consume the identifier")
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestAuditTrail_MonotonicTimestamps(t *testing.T) {
	// GIVEN: a clock that steps backwards between writes
	// THEN: logged timestamps never decrease

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	times := []time.Time{
		day(2025, time.June, 2),
		day(2025, time.June, 1), // clock went backwards
		day(2025, time.June, 3),
	}
	i := 0
	eng.SetClock(func() time.Time {
		t := times[i%len(times)]
		i++
		return t
	})

	for j := 0; j < 3; j++ {
		_, err := eng.AddPrescription(ctx, ledger.Prescription{
			PatientID: 1, DoctorID: 1, MedicineName: "Test", Dosage: "1mg",
		})
		require.NoError(t, err)
	}

	entries, err := eng.AuditTrail(ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first; walking backwards gives write order.
	for j := len(entries) - 1; j > 0; j-- {
		assert.False(t, entries[j-1].Timestamp.Before(entries[j].Timestamp),
			"timestamps must be non-decreasing in write order")
	}
}

func TestAuditTrail_FiltersAndPurge(t *testing.T) {
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	alice, bob := ledger.PatientID(1), ledger.PatientID(2)
	mem.PutRoom(ledger.Room{ID: 1, RoomNumber: "1", IsOccupied: false})

	_, err := eng.AddPrescription(ctx, ledger.Prescription{PatientID: alice, DoctorID: 1, MedicineName: "A", Dosage: "1mg"})
	require.NoError(t, err)
	_, err = eng.AddPrescription(ctx, ledger.Prescription{PatientID: bob, DoctorID: 1, MedicineName: "B", Dosage: "2mg"})
	require.NoError(t, err)
	require.NoError(t, eng.SetRoomOccupancy(ctx, 1, true, &alice))

	byPatient, err := eng.AuditTrail(ctx, ledger.AuditFilter{PatientID: &alice})
	require.NoError(t, err)
	assert.Len(t, byPatient, 2)

	byTrigger, err := eng.AuditTrail(ctx, ledger.AuditFilter{TriggerName: ledger.TriggerPrescriptionInsert})
	require.NoError(t, err)
	assert.Len(t, byTrigger, 2)

	limited, err := eng.AuditTrail(ctx, ledger.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	purged, err := eng.PurgeAuditLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)

	remaining, err := eng.AuditTrail(ctx, ledger.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
