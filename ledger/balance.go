/*
balance.go - Outstanding balance calculation

The balance is always derived on demand from facts:

  balance(patient) = sum(billing amounts) - sum(payment amounts)

It is never cached beyond the PaymentStatus materialization, and a
patient with no history has a balance of exactly 0.00 rather than an
error.
*/
package ledger

import "context"

// Balance computes a patient's outstanding balance from facts. Pure
// read; exact to two decimal places for any insert order.
func (e *Engine) Balance(ctx context.Context, patientID PatientID) (Money, error) {
	billed, err := e.store.TotalBilled(ctx, patientID)
	if err != nil {
		return Money{}, err
	}
	paid, err := e.store.TotalPaid(ctx, patientID)
	if err != nil {
		return Money{}, err
	}
	return billed.Sub(paid), nil
}
