// Package terminal implements the line editor and ANSI rendering used by
// interactive SSH sessions.
package terminal

import (
	"strings"
	"unicode/utf8"
)

// KeyType identifies a decoded key.
type KeyType int

const (
	KeyRune KeyType = iota
	KeyEnter
	KeyBackspace
	KeyDelete
	KeyTab
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyCtrlC
	KeyCtrlD
	KeyCtrlL
	KeyKillLine
)

// Key is a single decoded key press.
type Key struct {
	Type KeyType
	Rune rune
}

// Bytes that end a CSI escape sequence.
const csiFinal = "ABCDEFGHJKSTfmnsulh~"

// Sequences longer than this are dropped as garbage.
const maxSequence = 16

// Decoder turns raw terminal input into keys. Input may be split at any
// byte; incomplete sequences are kept until the next Feed.
type Decoder struct {
	pending []byte
	lastCR  bool
}

// Feed decodes as many keys as possible from data.
func (d *Decoder) Feed(data []byte) []Key {
	buf := append(d.pending, data...)
	d.pending = nil

	var keys []Key
	i := 0
	for i < len(buf) {
		b := buf[i]

		if b == 0x1b {
			key, n, ok := decodeEscape(buf[i:])
			if n == 0 {
				d.pending = append([]byte(nil), buf[i:]...)
				return keys
			}
			if ok {
				keys = append(keys, key)
			}
			i += n
			d.lastCR = false
			continue
		}

		if b < 0x20 || b == 0x7f {
			if key, ok := decodeControl(b, d.lastCR); ok {
				keys = append(keys, key)
			}
			d.lastCR = b == '\r'
			i++
			continue
		}
		d.lastCR = false

		if !utf8.FullRune(buf[i:]) {
			d.pending = append([]byte(nil), buf[i:]...)
			return keys
		}
		r, size := utf8.DecodeRune(buf[i:])
		if r != utf8.RuneError || size > 1 {
			keys = append(keys, Key{Type: KeyRune, Rune: r})
		}
		i += size
	}
	return keys
}

func decodeControl(b byte, afterCR bool) (Key, bool) {
	switch b {
	case '\r':
		return Key{Type: KeyEnter}, true
	case '\n':
		// "\r\n" is a single Enter.
		return Key{Type: KeyEnter}, !afterCR
	case 0x7f, 0x08:
		return Key{Type: KeyBackspace}, true
	case '\t':
		return Key{Type: KeyTab}, true
	case 0x01:
		return Key{Type: KeyHome}, true
	case 0x03:
		return Key{Type: KeyCtrlC}, true
	case 0x04:
		return Key{Type: KeyCtrlD}, true
	case 0x05:
		return Key{Type: KeyEnd}, true
	case 0x0c:
		return Key{Type: KeyCtrlL}, true
	case 0x15:
		return Key{Type: KeyKillLine}, true
	}
	return Key{}, false
}

// decodeEscape decodes an escape sequence at the start of buf. It returns
// the number of bytes consumed, 0 when more input is needed, and whether
// the sequence maps to a key.
func decodeEscape(buf []byte) (Key, int, bool) {
	if len(buf) < 2 {
		return Key{}, 0, false
	}

	switch buf[1] {
	case '[':
		end := -1
		for j := 2; j < len(buf) && j < maxSequence; j++ {
			if strings.IndexByte(csiFinal, buf[j]) >= 0 {
				end = j
				break
			}
		}
		if end < 0 {
			if len(buf) >= maxSequence {
				return Key{}, maxSequence, false
			}
			return Key{}, 0, false
		}
		key, ok := csiKey(string(buf[2 : end+1]))
		return key, end + 1, ok
	case 'O':
		if len(buf) < 3 {
			return Key{}, 0, false
		}
		key, ok := csiKey(string(buf[2:3]))
		return key, 3, ok
	}
	// Alt-modified key or a lone escape.
	return Key{}, 1, false
}

func csiKey(seq string) (Key, bool) {
	switch seq {
	case "A":
		return Key{Type: KeyUp}, true
	case "B":
		return Key{Type: KeyDown}, true
	case "C":
		return Key{Type: KeyRight}, true
	case "D":
		return Key{Type: KeyLeft}, true
	case "H", "1~", "7~":
		return Key{Type: KeyHome}, true
	case "F", "4~", "8~":
		return Key{Type: KeyEnd}, true
	case "3~":
		return Key{Type: KeyDelete}, true
	}
	return Key{}, false
}
