// Package service dispatches entered lines and serves completion data.
package service

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
	"github.com/frederikbeimgraben/mcssh/policy"
)

// Store is the persistence the service needs.
type Store interface {
	AddCommand(ctx context.Context, name string) (bool, error)
	ListCommands(ctx context.Context) ([]string, error)
	AppendHistory(ctx context.Context, user, line string) (bool, error)
	History(ctx context.Context, user string, limit int) ([]domain.HistoryEntry, error)
	RecordAudit(ctx context.Context, entry *domain.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// Sender forwards a command to the server console.
type Sender interface {
	Send(ctx context.Context, command string) error
}

// PlayerSource lists online player names.
type PlayerSource interface {
	Players(ctx context.Context) []string
}

// Policy decides whether a command may run.
type Policy interface {
	Evaluate(ctx context.Context, input policy.Input) (domain.Decision, error)
}

// Restarter restarts the mcssh service.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Service is the command dispatcher.
type Service struct {
	store     Store
	sender    Sender
	players   PlayerSource
	policy    Policy
	restarter Restarter
	isAdmin   func(user string) bool

	mu       sync.RWMutex
	commands []string
	known    map[string]bool
}

// New creates a new Service. isAdmin may be nil, in which case every user
// is an admin.
func New(store Store, sender Sender, players PlayerSource, pol Policy, restarter Restarter, isAdmin func(string) bool) *Service {
	if isAdmin == nil {
		isAdmin = func(string) bool { return true }
	}
	return &Service{
		store:     store,
		sender:    sender,
		players:   players,
		policy:    pol,
		restarter: restarter,
		isAdmin:   isAdmin,
		known:     make(map[string]bool),
	}
}

// LoadCommands fills the known-command cache from the store.
func (s *Service) LoadCommands(ctx context.Context) error {
	names, err := s.store.ListCommands(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		if !s.known[name] {
			s.known[name] = true
			s.commands = append(s.commands, name)
		}
	}
	return nil
}

// LearnCommand records a command name discovered in the console.
func (s *Service) LearnCommand(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	s.mu.Lock()
	if s.known[name] {
		s.mu.Unlock()
		return
	}
	s.known[name] = true
	s.commands = append(s.commands, name)
	s.mu.Unlock()

	if _, err := s.store.AddCommand(ctx, name); err != nil {
		log.Printf("[service] Failed to store command %q: %v", name, err)
	}
}

// KnownCommands returns the known commands in discovery order.
func (s *Service) KnownCommands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// IsKnownCommand reports whether name, with or without a leading slash, is
// a known command.
func (s *Service) IsKnownCommand(name string) bool {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.known[name]
}

// Players returns the online player names.
func (s *Service) Players(ctx context.Context) []string {
	if s.players == nil {
		return nil
	}
	return s.players.Players(ctx)
}

// History returns a user's submitted lines, newest first.
func (s *Service) History(ctx context.Context, user string, limit int) ([]domain.HistoryEntry, error) {
	return s.store.History(ctx, user, limit)
}

// HistoryLines returns a user's submitted lines, newest first.
func (s *Service) HistoryLines(ctx context.Context, user string, limit int) []string {
	entries, err := s.store.History(ctx, user, limit)
	if err != nil {
		log.Printf("[service] Failed to load history for %s: %v", user, err)
		return nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line)
	}
	return lines
}

// Audit returns recent audit entries, newest first.
func (s *Service) Audit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	return s.store.ListAudit(ctx, limit)
}
