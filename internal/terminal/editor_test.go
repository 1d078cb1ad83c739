package terminal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func typeString(e *Editor, s string) {
	for _, r := range s {
		e.Handle(Key{Type: KeyRune, Rune: r})
	}
}

func prefixCompleter(pool ...string) Completer {
	return CompleterFunc(func(prefix string) []string {
		out := []string{prefix}
		for _, c := range pool {
			if c != prefix && strings.HasPrefix(c, prefix) {
				out = append(out, c)
			}
		}
		return out
	})
}

func TestEditorInsertAndMove(t *testing.T) {
	e := NewEditor(nil)
	typeString(e, "lst")
	e.Handle(Key{Type: KeyLeft})
	e.Handle(Key{Type: KeyLeft})
	typeString(e, "i")
	assert.Equal(t, "list", e.Line())
	assert.Equal(t, 2, e.Cursor())

	e.Handle(Key{Type: KeyHome})
	e.Handle(Key{Type: KeyDelete})
	assert.Equal(t, "ist", e.Line())

	e.Handle(Key{Type: KeyEnd})
	e.Handle(Key{Type: KeyBackspace})
	assert.Equal(t, "is", e.Line())
	assert.Equal(t, 2, e.Cursor())

	action, line := e.Handle(Key{Type: KeyEnter})
	assert.Equal(t, ActionSubmit, action)
	assert.Equal(t, "is", line)
	assert.Equal(t, "", e.Line())
}

func TestEditorCtrlC(t *testing.T) {
	e := NewEditor(nil)
	typeString(e, "stop")

	action, _ := e.Handle(Key{Type: KeyCtrlC})
	assert.Equal(t, ActionNone, action)
	assert.Equal(t, "", e.Line())

	action, _ = e.Handle(Key{Type: KeyCtrlC})
	assert.Equal(t, ActionDisconnect, action)

	action, _ = e.Handle(Key{Type: KeyCtrlD})
	assert.Equal(t, ActionDisconnect, action)

	action, _ = e.Handle(Key{Type: KeyCtrlL})
	assert.Equal(t, ActionClear, action)
}

func TestEditorSuffixCompletion(t *testing.T) {
	e := NewEditor(prefixCompleter("gamemode", "give"))
	typeString(e, "g")
	assert.Equal(t, "amemode", e.Suffix())

	e.Handle(Key{Type: KeyUp})
	assert.Equal(t, "ive", e.Suffix())
	e.Handle(Key{Type: KeyUp})
	assert.Equal(t, "ive", e.Suffix())
	e.Handle(Key{Type: KeyDown})
	assert.Equal(t, "amemode", e.Suffix())

	e.Handle(Key{Type: KeyTab})
	assert.Equal(t, "gamemode", e.Line())
	assert.Equal(t, 8, e.Cursor())
	assert.Equal(t, "", e.Suffix())
}

func TestEditorRightAcceptsAtEnd(t *testing.T) {
	e := NewEditor(prefixCompleter("kick"))
	typeString(e, "ki")
	e.Handle(Key{Type: KeyLeft})
	e.Handle(Key{Type: KeyRight})
	assert.Equal(t, "ki", e.Line())

	e.Handle(Key{Type: KeyRight})
	assert.Equal(t, "kick", e.Line())
}

func TestEditorTabWithoutCandidate(t *testing.T) {
	e := NewEditor(prefixCompleter("kick"))
	typeString(e, "zz")
	e.Handle(Key{Type: KeyTab})
	assert.Equal(t, "zz", e.Line())
	assert.Equal(t, "", e.Suffix())
}

func TestEditorHistoryWalk(t *testing.T) {
	e := NewEditor(prefixCompleter("say hi", "list"))

	e.Handle(Key{Type: KeyUp})
	assert.Equal(t, "say hi", e.Line())
	e.Handle(Key{Type: KeyUp})
	assert.Equal(t, "list", e.Line())
	e.Handle(Key{Type: KeyUp})
	assert.Equal(t, "list", e.Line())

	e.Handle(Key{Type: KeyDown})
	assert.Equal(t, "say hi", e.Line())
	e.Handle(Key{Type: KeyDown})
	assert.Equal(t, "", e.Line())
	e.Handle(Key{Type: KeyDown})
	assert.Equal(t, "", e.Line())
}
