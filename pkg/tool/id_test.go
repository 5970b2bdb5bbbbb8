package tool

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDV7(t *testing.T) {
	id, err := uuid.Parse(GenerateUUIDV7())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestAdvisoryLockKey(t *testing.T) {
	a := AdvisoryLockKey("user_roles", "u1")
	assert.Equal(t, a, AdvisoryLockKey("user_roles", "u1"))
	assert.NotEqual(t, a, AdvisoryLockKey("user_roles", "u2"))
	assert.NotEqual(t, AdvisoryLockKey("ab", "c"), AdvisoryLockKey("a", "bc"))
	assert.NotEqual(t, AdvisoryLockKey("user_roles", "u1"), AdvisoryLockKey("subscriptions", "u1"))
}
