package ordset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmpty(t *testing.T) {
	set, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestParseListAndRange(t *testing.T) {
	set, err := Parse("3,5-8,12")
	require.NoError(t, err)
	want := map[int]bool{3: true, 5: true, 6: true, 7: true, 8: true, 12: true}
	assert.Equal(t, want, set)
}

func TestParseBadTerm(t *testing.T) {
	_, err := Parse("abc")
	assert.Error(t, err)
}

func TestParseBadRange(t *testing.T) {
	_, err := Parse("3-x")
	assert.Error(t, err)
}
