package order

import (
	"testing"
	"time"

	"paylink/internal/domain/integration"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{StatusUnpaid, StatusPaymentPending, true},
		{StatusUnpaid, StatusPaid, true},
		{StatusUnpaid, StatusFailed, false},
		{StatusPaymentPending, StatusPaid, true},
		{StatusPaymentPending, StatusFailed, true},
		{StatusFailed, StatusPaymentPending, true},
		{StatusPaid, StatusFailed, false},
		{StatusPaid, StatusPaymentPending, false},
		{StatusPaid, StatusPaid, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	o, err := New("O1", "B1", "+972501234567", decimal.NewFromInt(120), "ils")
	require.NoError(t, err)
	assert.Equal(t, "ILS", o.Currency)

	now := time.Now()
	require.NoError(t, o.MarkPending(integration.KindTranzila, now))
	assert.True(t, o.MarkPaid(integration.KindTranzila, "T1", now))
	assert.False(t, o.MarkPaid(integration.KindTranzila, "T2", now.Add(time.Minute)))

	assert.Equal(t, StatusPaid, o.PaymentStatus)
	assert.Equal(t, "T1", o.ProviderTransactionID)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, now, *o.PaidAt)
}

func TestMarkFailedOnlyFromPending(t *testing.T) {
	o, _ := New("O1", "B1", "050", decimal.NewFromInt(1), "ILS")
	assert.False(t, o.MarkFailed("T1", time.Now()))

	require.NoError(t, o.MarkPending(integration.KindCardcom, time.Now()))
	assert.True(t, o.MarkFailed("T1", time.Now()))
	assert.Equal(t, StatusFailed, o.PaymentStatus)

	// a new link after a decline is allowed
	require.NoError(t, o.MarkPending(integration.KindCardcom, time.Now()))
	o.MarkPaid(integration.KindCardcom, "T2", time.Now())
	assert.False(t, o.MarkFailed("T3", time.Now()))
	assert.Error(t, o.MarkPending(integration.KindCardcom, time.Now()))
}

func TestNewRejectsNonPositiveAmount(t *testing.T) {
	_, err := New("O1", "B1", "050", decimal.Zero, "ILS")
	assert.Error(t, err)
	_, err = New("", "B1", "050", decimal.NewFromInt(5), "ILS")
	assert.Error(t, err)
}
