package postgres_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hr-ledger/generic"
	"github.com/warp/hr-ledger/store/postgres"
)

func TestNew_RequiresDSN(t *testing.T) {
	_, err := postgres.New(postgres.Config{})
	require.Error(t, err)
}

func TestTranslate(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03", "23505"} {
		err := fmt.Errorf("update: %w", &pgconn.PgError{Code: code, Message: "could not serialize"})
		got := postgres.Translate(err)
		assert.ErrorIs(t, got, generic.ErrConcurrencyConflict, code)
		assert.Equal(t, generic.CodeConcurrencyConflict, generic.Code(got))
	}

	fk := &pgconn.PgError{Code: "23503", Message: "foreign key violation"}
	assert.Same(t, fk, postgres.Translate(fk))

	plain := errors.New("connection refused")
	assert.Equal(t, plain, postgres.Translate(plain))
}
