package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionString(t *testing.T) {
	assert.Equal(t, "2.0", Version{2, 0, 0}.String())
	assert.Equal(t, "1.5.2", Version{1, 5, 2}.String())
}

func TestVersionAtLeast20(t *testing.T) {
	assert.True(t, Version20.AtLeast20())
	assert.False(t, Version152.AtLeast20())
	assert.True(t, Version{3, 0, 0}.AtLeast20())
}

func TestVersionForMagic(t *testing.T) {
	v, ok := VersionForMagic(Magic{0x87, 0xC6, 0x0D, 0x0A})
	require.True(t, ok)
	assert.Equal(t, Version20, v)

	v, ok = VersionForMagic(Magic{0x99, 0x4E, 0x0D, 0x0A})
	require.True(t, ok)
	assert.Equal(t, Version152, v)

	_, ok = VersionForMagic(Magic{0, 0, 0, 0})
	assert.False(t, ok)
}
