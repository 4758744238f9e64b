package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("password1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"))

	assert.True(t, Verify("password1", encoded))
	assert.False(t, Verify("password2", encoded))
	assert.False(t, Verify("password1", "$argon2id$v=19$broken"))
	assert.False(t, Verify("password1", ""))
}

func TestHashIsSalted(t *testing.T) {
	a, err := Hash("password1")
	require.NoError(t, err)
	b, err := Hash("password1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate("short"), ErrTooShort)
	assert.NoError(t, Validate("12345678"))
}
