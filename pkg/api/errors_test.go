package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "code and message",
			err:  NewError(ErrCodeValidation, "bad filter %d", 2),
			want: "VALIDATION_ERROR: bad filter 2",
		},
		{
			name: "with entity",
			err:  &Error{Code: ErrCodeNotFound, Entity: "users", Message: "record u1 not found"},
			want: "NOT_FOUND: users: record u1 not found",
		},
		{
			name: "with entity and op",
			err:  &Error{Code: ErrCodeDriver, Entity: "users", Op: "find", Message: "boom"},
			want: "DRIVER_ERROR: find users: boom",
		},
		{
			name: "message falls back to cause",
			err:  &Error{Code: ErrCodeDriver, Err: errors.New("connection reset")},
			want: "DRIVER_ERROR: connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapDriverUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapDriver("users", "find", cause)

	assert.Equal(t, ErrCodeDriver, err.Code)
	assert.True(t, errors.Is(err, cause))
}

func TestWithContext(t *testing.T) {
	err := NewError(ErrCodeNotFound, "record u1 not found")
	out := err.WithContext("users", "findOne")

	assert.Equal(t, "users", out.Entity)
	assert.Equal(t, "findOne", out.Op)
	assert.Equal(t, ErrCodeNotFound, out.Code)

	// The original is untouched and existing context wins.
	assert.Empty(t, err.Entity)
	again := out.WithContext("other", "update")
	assert.Equal(t, "users", again.Entity)
	assert.Equal(t, "findOne", again.Op)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeValidation, CodeOf(NewError(ErrCodeValidation, "bad")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))

	// Wrapped coded errors are still recognized.
	wrapped := fmt.Errorf("outer: %w", NewError(ErrCodePermissionDenied, "no"))
	assert.Equal(t, ErrCodePermissionDenied, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, ErrCodePermissionDenied))
	assert.False(t, IsCode(wrapped, ErrCodeNotFound))
}

func TestRecordClone(t *testing.T) {
	rec := Record{"id": "u1", "name": "alice"}
	cp := rec.Clone()
	cp["name"] = "bob"
	assert.Equal(t, "alice", rec["name"])

	var nilRec Record
	assert.Nil(t, nilRec.Clone())
}

func TestRecordID(t *testing.T) {
	id, ok := Record{"id": "u1"}.ID()
	require.True(t, ok)
	assert.Equal(t, "u1", id)

	_, ok = Record{"name": "alice"}.ID()
	assert.False(t, ok)

	// A non-string identifier is not surfaced.
	_, ok = Record{"id": 42}.ID()
	assert.False(t, ok)
}
