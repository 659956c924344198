package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "unlimited", Truncate("unlimited", 0))
	// "é" is two bytes; the cut must not land inside it.
	assert.Equal(t, "caf...", Truncate("café au lait", 4))
}
