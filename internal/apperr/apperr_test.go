package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Kind
		status   int
	}{
		{"Validation", Validation("bad input"), KindValidation, http.StatusBadRequest},
		{"Unauthorized", Unauthorized("Invalid API key"), KindUnauthorized, http.StatusUnauthorized},
		{"Forbidden", Forbidden("admins only"), KindForbidden, http.StatusForbidden},
		{"NotFound wrapped", fmt.Errorf("close: %w", NotFound("no trade")), KindNotFound, http.StatusNotFound},
		{"Conflict", Conflict("already closed"), KindConflict, http.StatusConflict},
		{"Plain error", errors.New("disk full"), KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, KindOf(tc.err))
			assert.Equal(t, tc.status, HTTPStatus(KindOf(tc.err)))
			assert.True(t, Is(tc.err, tc.expected))
		})
	}

	assert.False(t, Is(nil, KindInternal))
}

func TestInternal_Unwraps(t *testing.T) {
	cause := errors.New("database is locked")
	err := Internal("failed to close trade", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to close trade: database is locked", err.Error())
}
