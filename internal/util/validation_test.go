package util

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID(uuid.NewString()))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("session_abc123"))
	assert.False(t, IsValidUUID("6BA7B810-9DAD-11D1-80B4-00C04FD430C8"))
}
