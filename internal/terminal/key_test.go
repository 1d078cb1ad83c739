package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func types(keys []Key) []KeyType {
	out := make([]KeyType, len(keys))
	for i, k := range keys {
		out[i] = k.Type
	}
	return out
}

func TestDecoderControlKeys(t *testing.T) {
	var d Decoder
	keys := d.Feed([]byte{'\r', 0x7f, 0x08, '\t', 0x03, 0x04, 0x0c, 0x15, 0x01, 0x05})
	assert.Equal(t, []KeyType{
		KeyEnter, KeyBackspace, KeyBackspace, KeyTab, KeyCtrlC, KeyCtrlD,
		KeyCtrlL, KeyKillLine, KeyHome, KeyEnd,
	}, types(keys))
}

func TestDecoderCRLF(t *testing.T) {
	var d Decoder
	assert.Equal(t, []KeyType{KeyEnter}, types(d.Feed([]byte("\r\n"))))
	assert.Equal(t, []KeyType{KeyEnter}, types(d.Feed([]byte("\n"))))

	// Split across reads.
	assert.Equal(t, []KeyType{KeyEnter}, types(d.Feed([]byte("\r"))))
	assert.Empty(t, d.Feed([]byte("\n")))
}

func TestDecoderRunes(t *testing.T) {
	var d Decoder
	keys := d.Feed([]byte("hé"))
	assert.Equal(t, []Key{{Type: KeyRune, Rune: 'h'}, {Type: KeyRune, Rune: 'é'}}, keys)

	euro := []byte("€")
	assert.Empty(t, d.Feed(euro[:1]))
	assert.Empty(t, d.Feed(euro[1:2]))
	assert.Equal(t, []Key{{Type: KeyRune, Rune: '€'}}, d.Feed(euro[2:]))
}

func TestDecoderEscapeSequences(t *testing.T) {
	var d Decoder
	keys := d.Feed([]byte("\x1b[A\x1b[B\x1b[C\x1b[D\x1b[3~\x1b[H\x1b[F\x1b[1~\x1b[4~\x1bOA"))
	assert.Equal(t, []KeyType{
		KeyUp, KeyDown, KeyRight, KeyLeft, KeyDelete, KeyHome, KeyEnd, KeyHome, KeyEnd, KeyUp,
	}, types(keys))
}

func TestDecoderSplitEscape(t *testing.T) {
	var d Decoder
	assert.Empty(t, d.Feed([]byte("\x1b")))
	assert.Empty(t, d.Feed([]byte("[")))
	assert.Equal(t, []KeyType{KeyLeft}, types(d.Feed([]byte("Dx"))[:1]))
}

func TestDecoderIgnoresUnknownSequences(t *testing.T) {
	var d Decoder
	keys := d.Feed([]byte("\x1b[1;5Ca\x1b[200~b"))
	assert.Equal(t, []Key{{Type: KeyRune, Rune: 'a'}, {Type: KeyRune, Rune: 'b'}}, keys)
}
