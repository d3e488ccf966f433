package memerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationShape(t *testing.T) {
	err := Validation("amount", "must be positive")
	assert.Equal(t, ValidationError, err.Code)
	assert.Equal(t, "amount", err.Details["field"])
	assert.Equal(t, "must be positive", err.Details["reason"])
}

func TestLockConflictDetails(t *testing.T) {
	err := LockConflictErr("core_abc", "h1", "h2")
	assert.Equal(t, LockConflict, err.Code)
	assert.Equal(t, "core_abc", err.Details["entity_id"])
	assert.Equal(t, "h1", err.Details["expected_hash"])
	assert.Equal(t, "h2", err.Details["actual_hash"])
}

func TestInternalWrapsCauseWithoutLeakingItFromFields(t *testing.T) {
	cause := errors.New("sqlite: disk I/O error")
	err := Internal("diag-1", cause)
	assert.Equal(t, InternalError, err.Code)
	assert.Equal(t, "diag-1", err.Details["diagnostic_id"])
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestAsUnwrapsThroughFmtErrorf(t *testing.T) {
	wrapped := fmt.Errorf("edit_entity: %w", NotFoundErr("core_xyz"))
	me, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, NotFound, me.Code)
}

func TestCodeOfDefaultsToInternalForForeignErrors(t *testing.T) {
	assert.Equal(t, InternalError, CodeOf(errors.New("boom")))
	assert.Equal(t, PermissionDenied, CodeOf(PermissionDeniedErr("read_only")))
}

func TestWithCausePreservesOriginalCodeAndDetails(t *testing.T) {
	base := LockConflictErr("core_1", "h1", "h2")
	cause := errors.New("busy")
	withCause := base.WithCause(cause)
	assert.Equal(t, base.Code, withCause.Code)
	assert.Equal(t, base.Details, withCause.Details)
	require.ErrorIs(t, withCause, cause)
}
