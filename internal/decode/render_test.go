package decode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseViewMode(t *testing.T) {
	for _, s := range []string{"text", "hex", "base64", "dump"} {
		mode, err := ParseViewMode(s)
		require.NoError(t, err)
		assert.Equal(t, ViewMode(s), mode)
	}

	mode, err := ParseViewMode("")
	require.NoError(t, err)
	assert.Equal(t, ViewText, mode, "empty mode defaults to text")

	_, err = ParseViewMode("binary")
	assert.Error(t, err)
}

func TestRenderHex(t *testing.T) {
	assert.Equal(t, "fffe", Render([]byte{0xff, 0xfe}, ViewHex))
	assert.Equal(t, "", Render(nil, ViewHex))
}

func TestRenderBase64(t *testing.T) {
	assert.Equal(t, "aGVsbG8=", Render([]byte("hello"), ViewBase64))
}

func TestRenderTextReplacesInvalidSequences(t *testing.T) {
	assert.Equal(t, "ok", Render([]byte("ok"), ViewText))
	assert.Equal(t, "ok�x", Render([]byte{'o', 'k', 0xff, 'x'}, ViewText))
}

func TestRenderDump(t *testing.T) {
	out := Render([]byte("ABCDEFGHIJKLMNOPQ"), ViewDump)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2, "17 bytes span two 16-byte rows")

	assert.True(t, strings.HasPrefix(lines[0], "0000  "))
	assert.True(t, strings.HasPrefix(lines[1], "0010  "))
	assert.Contains(t, lines[0], "|ABCDEFGHIJKLMNOP|")
	assert.Contains(t, lines[1], "|Q|")
}

func TestRenderDumpNonPrintable(t *testing.T) {
	out := Render([]byte{0x00, 'A', 0x7f}, ViewDump)
	assert.Contains(t, out, "00 41 7f")
	assert.Contains(t, out, "|.A.|", "non-printable bytes render as dots")
}
