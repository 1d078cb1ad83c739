// Package domain defines the core domain models for mcssh.
package domain

import (
	"strings"
	"time"
)

// CommandKind classifies an entered line.
type CommandKind string

const (
	CommandKindExit      CommandKind = "exit"
	CommandKindClear     CommandKind = "clear"
	CommandKindReload    CommandKind = "reload"
	CommandKindReset     CommandKind = "reset"
	CommandKindBroadcast CommandKind = "broadcast"
	CommandKindConsole   CommandKind = "console"
)

// Forwarded reports whether the command is sent to the server console.
func (k CommandKind) Forwarded() bool {
	switch k {
	case CommandKindReload, CommandKindBroadcast, CommandKindConsole:
		return true
	}
	return false
}

// Decision is the policy outcome for a command.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
)

// Command is a parsed input line.
type Command struct {
	Raw  string
	Kind CommandKind
	// Payload is what goes to the console for forwarded kinds.
	Payload string
}

// Name returns the command label of the payload the way the server
// resolves it: lowercase, without a leading slash or namespace prefix.
// "/Minecraft:Stop now" is "stop".
func (c Command) Name() string {
	name := strings.ToLower(FirstWord(c.Payload))
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// HistoryEntry is a line a user submitted.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records the outcome of a dispatched command.
type AuditEntry struct {
	ID        int64       `json:"id"`
	User      string      `json:"user"`
	Kind      CommandKind `json:"kind"`
	Line      string      `json:"line"`
	Decision  Decision    `json:"decision"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ConsoleRecord is a console message as stored.
type ConsoleRecord struct {
	Fingerprint     string `json:"fingerprint"`
	TimestampMillis int64  `json:"timestamp_millis"`
	Level           string `json:"level"`
	Message         string `json:"message"`
}
