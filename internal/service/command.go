package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
	"github.com/frederikbeimgraben/mcssh/policy"
)

var (
	// ErrEmpty is returned for a blank line.
	ErrEmpty = errors.New("empty command")
	// ErrForbidden is returned when the policy blocks a command.
	ErrForbidden = errors.New("command not permitted")
)

// Builtins are the commands handled without the server.
var Builtins = []string{"exit", "clear", "cls", "reload", "reset"}

// Result describes an executed command.
type Result struct {
	Command domain.Command
	// Message is a short human readable outcome.
	Message string
}

// Parse classifies an input line. It returns false for a blank line and
// for a broadcast with nothing to say.
func Parse(line string) (domain.Command, bool) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return domain.Command{}, false
	}

	cmd := domain.Command{Raw: raw}
	switch raw {
	case "exit":
		cmd.Kind = domain.CommandKindExit
	case "clear", "cls":
		cmd.Kind = domain.CommandKindClear
	case "reload":
		cmd.Kind = domain.CommandKindReload
		cmd.Payload = "reload confirm"
	case "reset":
		cmd.Kind = domain.CommandKindReset
	default:
		if strings.HasPrefix(raw, "!") {
			text := strings.TrimSpace(raw[1:])
			if text == "" {
				return domain.Command{}, false
			}
			cmd.Kind = domain.CommandKindBroadcast
			cmd.Payload = "/broadcast " + text
		} else {
			cmd.Kind = domain.CommandKindConsole
			cmd.Payload = raw
		}
	}
	return cmd, true
}

// Execute parses, authorizes and runs a line on behalf of user.
func (s *Service) Execute(ctx context.Context, user, line string) (Result, error) {
	cmd, ok := Parse(line)
	if !ok {
		return Result{}, ErrEmpty
	}
	res := Result{Command: cmd}

	if _, err := s.store.AppendHistory(ctx, user, cmd.Raw); err != nil {
		log.Printf("[service] Failed to append history: %v", err)
	}

	input := policy.Input{
		User:    user,
		Admin:   s.isAdmin(user),
		Kind:    cmd.Kind,
		Command: string(cmd.Kind),
	}
	if cmd.Kind.Forwarded() {
		input.Command = cmd.Name()
		if i := strings.IndexByte(cmd.Payload, ' '); i >= 0 {
			input.Args = strings.TrimSpace(cmd.Payload[i+1:])
		}
	}

	decision := domain.DecisionAllow
	if s.policy != nil {
		d, err := s.policy.Evaluate(ctx, input)
		if err != nil {
			log.Printf("[service] Policy evaluation failed: %v", err)
			d = domain.DecisionBlock
		}
		decision = d
	}
	if decision == domain.DecisionBlock {
		s.audit(ctx, user, cmd, decision, ErrForbidden)
		log.Printf("[service] Blocked %s for %s: %s", cmd.Kind, user, cmd.Raw)
		return res, ErrForbidden
	}

	var err error
	switch cmd.Kind {
	case domain.CommandKindExit:
		res.Message = "bye"
	case domain.CommandKindClear:
		res.Message = "cleared"
	case domain.CommandKindReset:
		if s.restarter == nil {
			err = errors.New("restart is not configured")
			break
		}
		if err = s.restarter.Restart(ctx); err == nil {
			res.Message = "restarting server"
			log.Printf("[service] Restarting server (requested by %s)", user)
		}
	default:
		if err = s.sender.Send(ctx, cmd.Payload); err == nil {
			res.Message = "sent: " + cmd.Payload
			if cmd.Kind == domain.CommandKindBroadcast {
				log.Printf("[service] Sent broadcast from %s: %s", user, cmd.Payload)
			} else {
				log.Printf("[service] Sent command from %s: %s", user, cmd.Payload)
			}
		}
	}

	s.audit(ctx, user, cmd, decision, err)
	if err != nil {
		return res, fmt.Errorf("%s failed: %w", cmd.Kind, err)
	}
	return res, nil
}

func (s *Service) audit(ctx context.Context, user string, cmd domain.Command, decision domain.Decision, cause error) {
	entry := &domain.AuditEntry{
		User:     user,
		Kind:     cmd.Kind,
		Line:     cmd.Raw,
		Decision: decision,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := s.store.RecordAudit(ctx, entry); err != nil {
		log.Printf("[service] Failed to record audit: %v", err)
	}
}
