package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/pocket-ledger/internal/remote"
)

func TestTranslate(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key", Detail: "Key (id)=(x) already exists.", Hint: "use another id"}
	err := translate(fmt.Errorf("exec: %w", pgErr))

	var re *remote.Error
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, &remote.Error{
		Code:    "23505",
		Message: "duplicate key",
		Details: "Key (id)=(x) already exists.",
		Hint:    "use another id",
	}, re)

	plain := errors.New("dial tcp: connection refused")
	assert.Equal(t, plain, translate(plain))
	assert.Empty(t, remote.CodeOf(translate(plain)))
}

func TestSchemaDefinesProcedures(t *testing.T) {
	schema := Schema()
	for _, proc := range []string{
		remote.ProcApplyBatch,
		remote.ProcCreateTransfer,
		remote.ProcEditTransfer,
		remote.ProcRevertTransfer,
	} {
		assert.True(t, strings.Contains(schema, "CREATE OR REPLACE FUNCTION "+proc+"("), proc)
	}
}
