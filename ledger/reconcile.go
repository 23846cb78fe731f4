/*
reconcile.go - Rebuilding PaymentStatus from facts

PURPOSE:
  PaymentStatus is a materialized view; it can drift if rows were seeded
  by hand or the schema was rebuilt. Reconcile recomputes every billed
  patient's row from Billing and Payment facts. The operation is
  idempotent: running it twice in a row produces identical rows.

  Reconciliation runs in one transaction so a partial rebuild is never
  visible. A failure is reported to the operator and is retryable;
  running instances are unaffected.
*/
package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Patients int `json:"patients"`
	Updated  int `json:"updated"`
}

// Reconcile upserts PaymentStatus for every patient with at least one
// billing fact: LatestBillAmount from the most recent bill, completion
// from the payment sum. Rows already correct are left untouched.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	err := e.store.WithTx(ctx, func(fs FactStore) error {
		patients, err := fs.BilledPatients(ctx)
		if err != nil {
			return err
		}

		for _, patientID := range patients {
			report.Patients++

			latest, err := fs.LatestBillAmount(ctx, patientID)
			if err != nil {
				return err
			}
			if latest == nil {
				return fmt.Errorf("patient %d listed as billed but has no billing facts", patientID)
			}

			paid, err := fs.TotalPaid(ctx, patientID)
			if err != nil {
				return err
			}

			want := PaymentStatus{
				PatientID:        patientID,
				LatestBillAmount: *latest,
				PaymentComplete:  paid.AtLeast(*latest),
			}

			current, err := fs.GetPaymentStatus(ctx, patientID)
			if err != nil {
				return err
			}
			if current != nil &&
				current.LatestBillAmount.Equal(want.LatestBillAmount) &&
				current.PaymentComplete == want.PaymentComplete {
				continue
			}

			if err := fs.UpsertPaymentStatus(ctx, want); err != nil {
				return err
			}
			report.Updated++
		}
		return nil
	})
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("reconciliation: %w", err)
	}

	e.log.Info("reconciliation complete",
		zap.Int("patients", report.Patients),
		zap.Int("updated", report.Updated))
	return report, nil
}
