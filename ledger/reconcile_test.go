package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/hospital-ledger/ledger"
)

func TestReconcile_RebuildsDriftedStatus(t *testing.T) {
	// GIVEN: a status row seeded by hand that contradicts the facts
	// WHEN: reconciliation runs
	// THEN: the row is recomputed from the facts

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(1)

	_, err := eng.RecordBilling(ctx, patient, ledger.MustMoney("500.00"), day(2025, time.March, 1))
	require.NoError(t, err)
	_, err = eng.RecordPayment(ctx, patient, ledger.MustMoney("500.00"), day(2025, time.March, 2))
	require.NoError(t, err)

	// Corrupt the derived row.
	require.NoError(t, mem.UpsertPaymentStatus(ctx, ledger.PaymentStatus{
		PatientID:        patient,
		LatestBillAmount: ledger.MustMoney("999.00"),
		PaymentComplete:  false,
	}))

	report, err := eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Patients)
	assert.Equal(t, 1, report.Updated)

	status, err := eng.PaymentStatusFor(ctx, patient)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "500.00", status.LatestBillAmount.String())
	assert.True(t, status.PaymentComplete)
}

func TestReconcile_SecondRunChangesNothing(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	for p := ledger.PatientID(1); p <= 3; p++ {
		_, err := eng.RecordBilling(ctx, p, ledger.MustMoney("100.00"), day(2025, time.April, int(p)))
		require.NoError(t, err)
	}
	_, err := eng.RecordPayment(ctx, 2, ledger.MustMoney("100.00"), day(2025, time.April, 10))
	require.NoError(t, err)

	first, err := eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Patients)

	second, err := eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Patients)
	assert.Zero(t, second.Updated, "second pass must be a no-op")
}

func TestReconcile_CreatesMissingRows(t *testing.T) {
	// Billing facts inserted directly (bypassing the engine) leave no
	// status row; reconciliation creates it.

	eng, mem := newTestEngine(t)
	ctx := context.Background()
	patient := ledger.PatientID(4)

	_, err := mem.InsertBilling(ctx, patient, ledger.MustMoney("250.00"), day(2025, time.May, 1))
	require.NoError(t, err)

	report, err := eng.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)

	status, err := eng.PaymentStatusFor(ctx, patient)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "250.00", status.LatestBillAmount.String())
	assert.False(t, status.PaymentComplete)
}

func TestReconcile_UnpaidPatientsStayIncomplete(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.RecordBilling(ctx, 5, ledger.MustMoney("80.00"), day(2025, time.May, 2))
	require.NoError(t, err)

	_, err = eng.Reconcile(ctx)
	require.NoError(t, err)

	status, err := eng.PaymentStatusFor(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.False(t, status.PaymentComplete)
}
