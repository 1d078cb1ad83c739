package service

import (
	"context"
	"strings"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
)

// Highlight classifies the first word of buffer.
func (s *Service) Highlight(buffer string) domain.Class {
	first := buffer
	if i := strings.IndexByte(first, ' '); i >= 0 {
		first = first[:i]
	}
	first = strings.TrimSpace(first)
	switch {
	case first == "":
		return domain.ClassNone
	case strings.HasPrefix(first, "!"):
		return domain.ClassBroadcast
	case isBuiltin(first):
		return domain.ClassBuiltin
	case s.IsKnownCommand(first):
		return domain.ClassKnown
	}
	return domain.ClassUnknown
}

func isBuiltin(word string) bool {
	for _, b := range Builtins {
		if b == word {
			return true
		}
	}
	return false
}

// Completions returns the candidates for prefix: the prefix itself, then
// player suggestions, the given history and the known commands that extend
// it. Each candidate appears once.
func (s *Service) Completions(ctx context.Context, prefix string, history []string) []string {
	var pool []string
	pool = append(pool, s.playerSuggestions(ctx, prefix)...)
	pool = append(pool, history...)
	pool = append(pool, s.KnownCommands()...)

	out := []string{prefix}
	seen := map[string]bool{prefix: true}
	for _, c := range pool {
		if seen[c] || !strings.HasPrefix(c, prefix) {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// playerSuggestions completes player names. A buffer that is exactly a
// known command is offered every player as its argument; otherwise the last
// word of a multi-word buffer is completed.
func (s *Service) playerSuggestions(ctx context.Context, buffer string) []string {
	words := strings.Split(buffer, " ")
	if buffer == "" || words[0] == "" {
		return nil
	}

	if len(words) == 1 {
		if !s.IsKnownCommand(buffer) {
			return nil
		}
		var out []string
		for _, p := range s.Players(ctx) {
			out = append(out, buffer+" "+p)
		}
		return out
	}

	last := words[len(words)-1]
	var out []string
	for _, p := range s.Players(ctx) {
		if strings.HasPrefix(p, last) {
			out = append(out, buffer+p[len(last):])
		}
	}
	return out
}
