package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "tradeledger/internal/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("batch: %w", apperrors.ErrInvalidOrder), 2},
		{apperrors.ErrOversell, 3},
		{apperrors.ErrMissingPrice, 3},
		{apperrors.ErrPersistence, 4},
		{apperrors.ErrConfigInvalid, 5},
		{context.Canceled, 1},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}
