package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBusinessError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"insufficient balance", ErrInsufficientBalance, true},
		{"wrapped invalid request", fmt.Errorf("%w: amount must be positive", ErrInvalidRequest), true},
		{"destination not found", ErrDestinationNotFound, true},
		{"duplicate account number", ErrDuplicateAccountNumber, true},
		{"plain driver error", errors.New("connection reset"), false},
		{"infrastructure wrapping business", fmt.Errorf("%w: %w", ErrInfrastructure, ErrAccountNotFound), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBusinessError(tt.err))
		})
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrUnauthorized, "UNAUTHORIZED"},
		{ErrForbidden, "FORBIDDEN"},
		{fmt.Errorf("%w: missing account number", ErrInvalidRequest), "INVALID_REQUEST"},
		{ErrSelfTransfer, "SELF_TRANSFER"},
		{ErrAccountNotFound, "ACCOUNT_NOT_FOUND"},
		{ErrDestinationNotFound, "DESTINATION_NOT_FOUND"},
		{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
		{ErrDuplicateAccountNumber, "DUPLICATE_ACCOUNT_NUMBER"},
		{errors.New("boom"), "INFRASTRUCTURE"},
		{fmt.Errorf("%w: deposit: %w", ErrInfrastructure, errors.New("deadlock")), "INFRASTRUCTURE"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err), "err=%v", tt.err)
	}
}
