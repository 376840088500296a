package bot

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessage(t *testing.T) {
	assert.Empty(t, splitMessage("", 10))

	chunks := splitMessage("short", 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0])

	chunks = splitMessage(strings.Repeat("a", 25), 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("a", 10), chunks[0])
	assert.Equal(t, strings.Repeat("a", 5), chunks[2])
}

func TestSplitMessage_CountsCharactersNotBytes(t *testing.T) {
	// "طلا" is 3 characters but 6 bytes; a byte-offset cut would land mid-rune.
	text := strings.Repeat("طلا", 4)
	chunks := splitMessage(text, 5)

	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk split inside a rune")
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 5)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}
