package database

import (
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// NewMockPool returns a pgxmock pool that satisfies DBTX. The pool is closed
// when tb finishes, and any expectation left unmet fails the test.
func NewMockPool(tb testing.TB) pgxmock.PgxPoolIface {
	tb.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		tb.Fatalf("create pgx mock pool: %v", err)
	}
	tb.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			tb.Errorf("unmet database expectations: %v", err)
		}
		mock.Close()
	})
	return mock
}
