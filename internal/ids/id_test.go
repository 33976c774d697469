package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Unique(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	assert.False(t, IsNil(a))
}

func TestParse_RoundTrip(t *testing.T) {
	a := New()
	b, err := Parse(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(Nil))
	assert.True(t, IsNil(ID{}))
}
