package reconcile

import (
	"context"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRequestID = "a3f1c2d4-5678-4abc-9def-0123456789ab"

func newMockReconciler(t *testing.T) (*Reconciler, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewReconciler(sqlx.NewDb(mockDB, "sqlmock"), nil, nil), mock
}

func paymentRow(txnType string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "challenge_id", "opponent_id", "phone_number",
		"amount", "transaction_type", "status", "request_id",
	}).AddRow(1, 7, nil, nil, "254712345678", 100.0, txnType, "completed", testRequestID)
}

// Applying the same success callback twice moves the payment once; the
// second application hits zero rows and comes back as a success no-op.
func TestProcessCallbackSecondApplicationIsNoOp(t *testing.T) {
	r, mock := newMockReconciler(t)

	raw := []byte(fmt.Sprintf(`{"originator_request_id": %q, "transaction_reference": "MPE777", "status": "Successful"}`, testRequestID))

	mock.ExpectQuery("UPDATE payments").WillReturnRows(paymentRow("payout"))
	mock.ExpectQuery("UPDATE payments").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	outcome, err := r.ProcessCallback(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	outcome, err = r.ProcessCallback(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownID, outcome)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// A callback for a request id we never issued is absorbed, not errored, so
// the provider never retries it.
func TestProcessCallbackUnknownIDIsNoOp(t *testing.T) {
	r, mock := newMockReconciler(t)

	mock.ExpectQuery("UPDATE payments").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	raw := []byte(fmt.Sprintf(`{"originator_request_id": %q, "status": "Failed"}`, testRequestID))
	outcome, err := r.ProcessCallback(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownID, outcome)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// Transient provider states leave the row pending and never touch the DB.
func TestProcessCallbackProcessingLeavesRowAlone(t *testing.T) {
	r, mock := newMockReconciler(t)

	raw := []byte(fmt.Sprintf(`{"originator_request_id": %q, "status": "Pending"}`, testRequestID))
	outcome, err := r.ProcessCallback(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTransient, outcome)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// No recoverable correlation id: success-with-no-op, no DB traffic.
func TestProcessCallbackNoCorrelation(t *testing.T) {
	r, mock := newMockReconciler(t)

	outcome, err := r.ProcessCallback(context.Background(), []byte(`{"message": "thanks for your payment"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCorrelation, outcome)

	outcome, err = r.ProcessCallback(context.Background(), []byte(`not json`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCorrelation, outcome)

	assert.NoError(t, mock.ExpectationsWereMet())
}
