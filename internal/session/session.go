// Package session drives one interactive SSH console session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
	"github.com/frederikbeimgraben/mcssh/internal/hub"
	"github.com/frederikbeimgraben/mcssh/internal/service"
	"github.com/frederikbeimgraben/mcssh/internal/terminal"
)

// HistoryLimit bounds the history offered for completion.
const HistoryLimit = 100

// Default terminal size when the client sent no pty-req.
const (
	DefaultWidth  = 80
	DefaultHeight = 24
)

// Commander runs lines and serves completion data.
type Commander interface {
	Execute(ctx context.Context, user, line string) (service.Result, error)
	Highlight(buffer string) domain.Class
	Completions(ctx context.Context, prefix string, history []string) []string
	HistoryLines(ctx context.Context, user string, limit int) []string
}

// Feed is the console line source.
type Feed interface {
	Subscribe(user string) *hub.Subscription
	Unsubscribe(sub *hub.Subscription)
	Recent(n int) []string
}

// Session is a single interactive session.
type Session struct {
	user string
	rw   io.ReadWriter
	cmd  Commander
	feed Feed

	mu       sync.Mutex
	width    int
	height   int
	editor   *terminal.Editor
	renderer *terminal.Renderer
	history  []string
	ctx      context.Context
}

// New creates a session for user on rw.
func New(user string, rw io.ReadWriter, cmd Commander, feed Feed, width, height int) *Session {
	s := &Session{
		user:     user,
		rw:       rw,
		cmd:      cmd,
		feed:     feed,
		renderer: terminal.NewRenderer(rw),
		ctx:      context.Background(),
	}
	s.width, s.height = normalizeSize(width, height)
	s.editor = terminal.NewEditor(terminal.CompleterFunc(s.complete))
	return s
}

func normalizeSize(width, height int) (int, int) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return width, height
}

// Resize updates the terminal size and redraws the prompt.
func (s *Session) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = normalizeSize(width, height)
	s.drawPrompt()
}

// Size returns the current terminal size.
func (s *Session) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// complete is called by the editor with s.mu held, so Completions must
// not wait on the network.
func (s *Session) complete(prefix string) []string {
	return s.cmd.Completions(s.ctx, prefix, s.history)
}

// Run attaches the session and blocks until it ends.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := s.feed.Subscribe(s.user)
	defer s.feed.Unsubscribe(sub)

	s.mu.Lock()
	s.ctx = ctx
	s.history = s.cmd.HistoryLines(ctx, s.user, HistoryLimit)
	err := s.attach()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	inputDone := make(chan string, 1)
	outputDone := make(chan string, 1)
	go func() { inputDone <- s.readPump(ctx) }()
	go func() { outputDone <- s.writePump(ctx, sub) }()

	var reason string
	select {
	case reason = <-inputDone:
	case reason = <-outputDone:
	case <-ctx.Done():
		reason = "context cancelled"
	}
	log.Printf("[session] %s closed (%s)", sub.ID, reason)
	return nil
}

// attach clears the screen, replays scrollback and draws the prompt.
func (s *Session) attach() error {
	if _, err := io.WriteString(s.rw, terminal.ClearScreen); err != nil {
		return err
	}
	for _, line := range s.feed.Recent(s.height - 1) {
		s.write(s.renderer.ConsoleLine(line, s.width))
	}
	s.drawPrompt()
	return nil
}

// readPump decodes input and drives the editor. It returns the reason the
// session should end.
func (s *Session) readPump(ctx context.Context) string {
	var dec terminal.Decoder
	buf := make([]byte, 1024)
	for {
		n, err := s.rw.Read(buf)
		if n > 0 {
			for _, key := range dec.Feed(buf[:n]) {
				if reason, done := s.handleKey(ctx, key); done {
					return reason
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "eof"
			}
			return "read: " + err.Error()
		}
	}
}

func (s *Session) handleKey(ctx context.Context, key terminal.Key) (string, bool) {
	s.mu.Lock()
	action, line := s.editor.Handle(key)
	switch action {
	case terminal.ActionDisconnect:
		s.mu.Unlock()
		return "disconnect", true
	case terminal.ActionClear:
		s.write(terminal.ClearScreen)
	}
	s.drawPrompt()
	s.mu.Unlock()

	if action != terminal.ActionSubmit {
		return "", false
	}
	return s.submit(ctx, line)
}

func (s *Session) submit(ctx context.Context, line string) (string, bool) {
	res, err := s.cmd.Execute(ctx, s.user, line)

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, service.ErrEmpty) {
		return "", false
	}
	s.history = s.cmd.HistoryLines(ctx, s.user, HistoryLimit)
	s.editor.Invalidate()

	if err != nil {
		s.write(s.renderer.Error(err.Error()))
		s.drawPrompt()
		return "", false
	}

	switch res.Command.Kind {
	case domain.CommandKindExit:
		s.write("\r\n")
		return "exit", true
	case domain.CommandKindClear:
		s.write(terminal.ClearScreen)
	case domain.CommandKindReset:
		s.write(s.renderer.ConsoleLine(res.Message, s.width))
	}
	s.drawPrompt()
	return "", false
}

// writePump prints console lines above the prompt until the subscription
// is dropped.
func (s *Session) writePump(ctx context.Context, sub *hub.Subscription) string {
	for {
		select {
		case line, ok := <-sub.Lines:
			if !ok {
				return "hub dropped subscription"
			}
			s.mu.Lock()
			s.write(s.renderer.ConsoleLine(line, s.width))
			s.drawPrompt()
			s.mu.Unlock()
		case <-ctx.Done():
			return "context cancelled"
		}
	}
}

// drawPrompt must be called with s.mu held.
func (s *Session) drawPrompt() {
	class := s.cmd.Highlight(s.editor.Line())
	s.write(s.renderer.Prompt(s.editor, class, s.height))
}

// write must be called with s.mu held.
func (s *Session) write(data string) {
	if _, err := io.WriteString(s.rw, data); err != nil {
		log.Printf("[session] write failed for %s: %v", s.user, err)
	}
}
