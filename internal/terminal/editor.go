package terminal

// Completer lists completion candidates for a prefix. The first candidate
// is the prefix itself.
type Completer interface {
	Completions(prefix string) []string
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(prefix string) []string

// Completions implements Completer.
func (f CompleterFunc) Completions(prefix string) []string { return f(prefix) }

// Action tells the caller what to do after a key.
type Action int

const (
	ActionNone Action = iota
	ActionSubmit
	ActionDisconnect
	ActionClear
)

// Editor is the prompt line state.
type Editor struct {
	completer Completer

	buf       []rune
	pos       int
	filter    string
	selected  int
	suffixSel int

	cache      []string
	cacheKey   string
	cacheValid bool
}

// NewEditor creates an editor. completer may be nil.
func NewEditor(completer Completer) *Editor {
	return &Editor{completer: completer}
}

// Line returns the current buffer.
func (e *Editor) Line() string { return string(e.buf) }

// Cursor returns the cursor position in runes.
func (e *Editor) Cursor() int { return e.pos }

// Reset clears the buffer and all selection state.
func (e *Editor) Reset() {
	e.buf = nil
	e.pos = 0
	e.filter = ""
	e.selected = 0
	e.suffixSel = 0
	e.cacheValid = false
}

// Invalidate drops cached candidates, e.g. after the history changed.
func (e *Editor) Invalidate() { e.cacheValid = false }

// Handle applies a key. For ActionSubmit the entered line is returned.
func (e *Editor) Handle(k Key) (Action, string) {
	switch k.Type {
	case KeyEnter:
		line := e.Line()
		e.Reset()
		return ActionSubmit, line
	case KeyRune:
		e.buf = append(e.buf, 0)
		copy(e.buf[e.pos+1:], e.buf[e.pos:])
		e.buf[e.pos] = k.Rune
		e.pos++
		e.updateFilter()
	case KeyBackspace:
		if e.pos > 0 {
			e.buf = append(e.buf[:e.pos-1], e.buf[e.pos:]...)
			e.pos--
		}
		e.updateFilter()
	case KeyDelete:
		e.deleteAtCursor()
	case KeyCtrlD:
		if len(e.buf) == 0 {
			return ActionDisconnect, ""
		}
		e.deleteAtCursor()
	case KeyCtrlC:
		if len(e.buf) == 0 {
			return ActionDisconnect, ""
		}
		e.Reset()
	case KeyKillLine:
		e.Reset()
	case KeyCtrlL:
		return ActionClear, ""
	case KeyLeft:
		if e.pos > 0 {
			e.pos--
		}
	case KeyRight:
		if e.pos < len(e.buf) {
			e.pos++
		} else {
			e.acceptCompletion()
		}
	case KeyHome:
		e.pos = 0
	case KeyEnd:
		e.pos = len(e.buf)
	case KeyTab:
		e.acceptCompletion()
	case KeyUp:
		e.previous()
	case KeyDown:
		e.next()
	}
	return ActionNone, ""
}

func (e *Editor) deleteAtCursor() {
	if e.pos < len(e.buf) {
		e.buf = append(e.buf[:e.pos], e.buf[e.pos+1:]...)
	}
	e.updateFilter()
}

func (e *Editor) updateFilter() {
	f := e.Line()
	if f != e.filter {
		e.filter = f
		e.selected = 0
		e.suffixSel = 0
	}
}

func (e *Editor) setBuffer(s string) {
	e.buf = []rune(s)
	e.pos = len(e.buf)
}

// candidates returns the completion list for the current filter.
func (e *Editor) candidates() []string {
	if e.cacheValid && e.cacheKey == e.filter {
		return e.cache
	}
	var c []string
	if e.completer != nil {
		c = e.completer.Completions(e.filter)
	}
	if len(c) == 0 {
		c = []string{e.filter}
	}
	e.cache, e.cacheKey, e.cacheValid = c, e.filter, true
	return c
}

// suffixCandidate is the candidate offered as ghost text.
func (e *Editor) suffixCandidate() string {
	rest := e.candidates()[1:]
	if len(rest) == 0 {
		return ""
	}
	if e.suffixSel >= len(rest) {
		e.suffixSel = 0
	}
	return rest[e.suffixSel]
}

// Suffix returns the ghost completion shown after the buffer.
func (e *Editor) Suffix() string {
	if e.filter == "" {
		return ""
	}
	s := []rune(e.suffixCandidate())
	f := []rune(e.filter)
	if len(s) <= len(f) {
		return ""
	}
	return string(s[len(f):])
}

func (e *Editor) acceptCompletion() {
	s := e.suffixCandidate()
	if s == "" || e.filter == "" {
		return
	}
	e.setBuffer(s)
	e.updateFilter()
}

// previous walks back through candidates. With an empty filter it loads
// them into the buffer; otherwise it cycles the ghost suffix.
func (e *Editor) previous() {
	c := e.candidates()
	if e.filter == "" {
		if e.selected < len(c)-1 {
			e.selected++
		}
		e.setBuffer(c[e.selected])
		return
	}
	if e.suffixSel < len(c)-2 {
		e.suffixSel++
	}
}

func (e *Editor) next() {
	if e.filter == "" {
		if e.selected == 0 {
			e.buf = nil
			e.pos = 0
			return
		}
		e.selected--
		e.setBuffer(e.candidates()[e.selected])
		return
	}
	if e.suffixSel > 0 {
		e.suffixSel--
	}
}
