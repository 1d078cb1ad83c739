// Package protocol defines the ServerTap wire types used by mcssh.
package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ServerTap endpoints
const (
	PathConsole = "/v1/ws/console"
	PathPlayers = "/v1/players"
	PathExec    = "/v1/server/exec"
)

// ServerTap authentication
const (
	CookieKey = "x-servertap-key"
	HeaderKey = "key"
)

// TimeLayout is the timestamp layout of formatted console lines.
const TimeLayout = "2006-01-02 15:04:05"

// ConsoleMessage is a single line pushed by the console WebSocket.
type ConsoleMessage struct {
	Message         string `json:"message"`
	TimestampMillis int64  `json:"timestampMillis"`
	Level           string `json:"level"`
}

// Player is an entry of GET /v1/players.
type Player struct {
	UUID        string  `json:"uuid"`
	DisplayName string  `json:"displayName"`
	Address     string  `json:"address,omitempty"`
	Port        int     `json:"port,omitempty"`
	Health      float64 `json:"health,omitempty"`
	Dimension   string  `json:"dimension,omitempty"`
}

// ErrNoTimestamp is returned for console payloads without a timestamp.
var ErrNoTimestamp = errors.New("console message has no timestamp")

// ParseConsoleMessage decodes a console frame.
func ParseConsoleMessage(data []byte) (ConsoleMessage, error) {
	var msg ConsoleMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ConsoleMessage{}, fmt.Errorf("invalid console message: %w", err)
	}
	if msg.TimestampMillis == 0 {
		return ConsoleMessage{}, ErrNoTimestamp
	}
	return msg, nil
}

// Time returns the message timestamp.
func (m ConsoleMessage) Time() time.Time {
	return time.UnixMilli(m.TimestampMillis)
}

// Format renders a console message as "YYYY-MM-DD HH:MM:SS LEVEL : message".
// A nil location means local time.
func Format(m ConsoleMessage, loc *time.Location) string {
	ts := m.Time()
	if loc != nil {
		ts = ts.In(loc)
	}
	return fmt.Sprintf("%s %s : %s", ts.Format(TimeLayout), m.Level, m.Message)
}

// The server answers an incomplete command with its usage, "/name: ...".
var commandUsage = regexp.MustCompile(`^/([^\s]+):`)

// CommandName extracts the command name from a usage line.
func CommandName(message string) (string, bool) {
	match := commandUsage.FindStringSubmatch(message)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Fingerprint identifies a raw console frame for de-duplication.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
