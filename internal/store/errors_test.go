package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "generic error", err: errors.New("some error"), expected: false},
		{name: "ErrNotFound", err: ErrNotFound, expected: true},
		{name: "wrapped ErrNotFound", err: fmt.Errorf("lookup: %w", ErrNotFound), expected: true},
		{name: "ErrUserNotFound", err: ErrUserNotFound, expected: true},
		{name: "ErrTaskNotFound", err: ErrTaskNotFound, expected: true},
		{name: "wrapped ErrTokenNotFound", err: fmt.Errorf("auth: %w", ErrTokenNotFound), expected: true},
		{name: "ErrEmailExists", err: ErrEmailExists, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.expected {
				t.Errorf("IsNotFoundError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "ErrDuplicate", err: ErrDuplicate, expected: true},
		{name: "wrapped ErrEmailExists", err: fmt.Errorf("register: %w", ErrEmailExists), expected: true},
		{name: "ErrTaskNotFound", err: ErrTaskNotFound, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDuplicateError(tt.err); got != tt.expected {
				t.Errorf("IsDuplicateError() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsInternalError(t *testing.T) {
	assert.False(t, IsInternalError(nil))
	assert.False(t, IsInternalError(errors.New("x")))
	assert.True(t, IsInternalError(ErrInternal))
	assert.True(t, IsInternalError(fmt.Errorf("failed to process: %w", ErrInternal)))
}

func TestStoreError(t *testing.T) {
	originalErr := errors.New("database connection failed")
	storeErr := NewStoreError("task", "create", "database error", originalErr)

	assert.Equal(t,
		"create operation on task failed: database error: database connection failed",
		storeErr.Error())
	assert.ErrorIs(t, storeErr, originalErr)

	var target *StoreError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", storeErr), &target))
	assert.Equal(t, "task", target.Entity)

	bare := &StoreError{Entity: "user", Operation: "create", Message: "validation failed"}
	assert.Equal(t, "create operation on user failed: validation failed", bare.Error())
}

func TestEntityErrorMessages(t *testing.T) {
	assert.Equal(t, "entity not found: task", ErrTaskNotFound.Error())
	assert.Equal(t, "entity already exists: email", ErrEmailExists.Error())
}
