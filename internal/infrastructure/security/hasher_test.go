package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitorIDDeterministic(t *testing.T) {
	a := VisitorID("203.0.113.7", "salt-one")
	b := VisitorID("203.0.113.7", "salt-one")

	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestVisitorIDDiffersByIP(t *testing.T) {
	a := VisitorID("203.0.113.7", "salt-one")
	b := VisitorID("203.0.113.8", "salt-one")

	assert.NotEqual(t, a, b)
}

func TestVisitorIDUnlinkableAcrossSalts(t *testing.T) {
	a := VisitorID("203.0.113.7", "salt-one")
	b := VisitorID("203.0.113.7", "salt-two")

	assert.NotEqual(t, a, b, "same IP must not be linkable across salt rotations")
}

func TestVisitorIDEmptyInputs(t *testing.T) {
	assert.Empty(t, VisitorID("", "salt"))
	assert.Empty(t, VisitorID("203.0.113.7", ""))
}

func TestVisitorIDLongSalt(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}

	a := VisitorID("203.0.113.7", string(long))
	require.NotEmpty(t, a)
	assert.Equal(t, a, VisitorID("203.0.113.7", string(long)))
}

func TestGenerateULIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateULID()
		require.Len(t, id, 26)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
