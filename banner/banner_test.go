package banner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWithComment(t *testing.T) {
	b, err := Parse("SSH-2.0-OpenSSH_5.3 Trisquel-5.5\r\n")
	require.NoError(t, err)
	assert.Equal(t, "2.0", b.ProtocolVersion)
	assert.Equal(t, "OpenSSH_5.3", b.SoftwareVersion)
	assert.True(t, b.HasComment)
	assert.Equal(t, "Trisquel-5.5", b.Comment)
}

func TestParseNoComment(t *testing.T) {
	b, err := Parse("SSH-1.99-OpenSSH_5.2")
	require.NoError(t, err)
	assert.Equal(t, "1.99", b.ProtocolVersion)
	assert.Equal(t, "OpenSSH_5.2", b.SoftwareVersion)
	assert.False(t, b.HasComment)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse("garbage")
	require.Error(t, err)
	var bad *BadBanner
	require.ErrorAs(t, err, &bad)
}

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"SSH-2.0-OpenSSH_5.3 Trisquel-5.5",
		"SSH-1.99-OpenSSH_5.2",
	}
	for _, in := range cases {
		b, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, in, Format(b))
	}
}
