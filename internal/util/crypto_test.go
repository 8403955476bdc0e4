package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))

	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("other", hash))
	assert.False(t, CheckPasswordHash("s3cret", "not-a-hash"))
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+254712345678", "*********5678"},
		{"1234", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskPhone(tt.in))
		})
	}
}

func TestSealOpen(t *testing.T) {
	key := strings.Repeat("ab", 32)

	t.Run("round trip", func(t *testing.T) {
		sealed, err := Seal(key, "1234")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(sealed, SealedPrefix))
		assert.NotContains(t, sealed, "1234")

		plain, err := Open(key, sealed)
		require.NoError(t, err)
		assert.Equal(t, "1234", plain)
	})

	t.Run("untagged values pass through", func(t *testing.T) {
		plain, err := Open(key, "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", plain)
	})

	t.Run("bad key", func(t *testing.T) {
		_, err := Seal("abcd", "1234")
		assert.Error(t, err)
	})

	t.Run("wrong key cannot open", func(t *testing.T) {
		sealed, err := Seal(key, "1234")
		require.NoError(t, err)
		_, err = Open(strings.Repeat("cd", 32), sealed)
		assert.Error(t, err)
	})
}

func TestRequestFieldHelpers(t *testing.T) {
	assert.True(t, IsValidPhone("+254712345678"))
	assert.True(t, IsValidPhone("0712345678"))
	assert.False(t, IsValidPhone("07-12"))
	assert.False(t, IsValidPhone("abc"))

	assert.True(t, IsOneOf("completed", "END", "COMPLETED"))
	assert.False(t, IsOneOf("pending", "END", "COMPLETED"))
}
