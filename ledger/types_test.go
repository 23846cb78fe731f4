package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/hospital-ledger/ledger"
)

func TestNewMoney_Parsing(t *testing.T) {
	m, err := ledger.NewMoney("500.00")
	require.NoError(t, err)
	assert.Equal(t, "500.00", m.String())

	m, err = ledger.NewMoney("0.1")
	require.NoError(t, err)
	assert.Equal(t, "0.10", m.String(), "always rendered with two fraction digits")

	m, err = ledger.NewMoney("-25")
	require.NoError(t, err)
	assert.True(t, m.IsNegative())

	_, err = ledger.NewMoney("10.005")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "three fraction digits rejected")

	_, err = ledger.NewMoney("abc")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestMoney_Arithmetic(t *testing.T) {
	// The classic float trap: 0.1 + 0.2 must be exactly 0.30.
	sum := ledger.MustMoney("0.10").Add(ledger.MustMoney("0.20"))
	assert.Equal(t, "0.30", sum.String())
	assert.True(t, sum.Equal(ledger.MustMoney("0.3")))

	diff := ledger.MustMoney("500.00").Sub(ledger.MustMoney("300.00"))
	assert.Equal(t, "200.00", diff.String())

	assert.True(t, ledger.MustMoney("500.00").AtLeast(ledger.MustMoney("500.00")))
	assert.False(t, ledger.MustMoney("499.99").AtLeast(ledger.MustMoney("500.00")))

	assert.Equal(t, "12.34", ledger.MoneyFromCents(1234).String())

	var zero ledger.Money
	assert.True(t, zero.IsZero())
	assert.Equal(t, "0.00", zero.String())
}

func TestValidTestStatus(t *testing.T) {
	assert.True(t, ledger.ValidTestStatus(ledger.TestPending))
	assert.True(t, ledger.ValidTestStatus(ledger.TestCompleted))
	assert.True(t, ledger.ValidTestStatus(ledger.TestCancelled))
	assert.False(t, ledger.ValidTestStatus("Done"))
	assert.False(t, ledger.ValidTestStatus(""))
}
