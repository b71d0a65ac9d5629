package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Payment{OrderID: "O1", TransactionID: "T1", Outcome: OutcomeCompleted}.Validate())

	err := Payment{TransactionID: "T1", Outcome: OutcomeCompleted}.Validate()
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "orderId")

	err = Payment{OrderID: "O1", TransactionID: " ", Outcome: OutcomeFailed}.Validate()
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "transactionId")

	assert.Error(t, Payment{OrderID: "O1", TransactionID: "T1", Outcome: "weird"}.Validate())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, Payment{Outcome: OutcomeCompleted}.IsTerminal())
	assert.True(t, Payment{Outcome: OutcomeFailed}.IsTerminal())
	assert.False(t, Payment{Outcome: OutcomePending}.IsTerminal())
}
