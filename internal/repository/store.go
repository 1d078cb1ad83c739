// Package store defines the storage interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Console message operations
	SeenMessage(ctx context.Context, fingerprint string) (bool, error)
	SaveMessage(ctx context.Context, record *domain.ConsoleRecord) error
	RecentMessages(ctx context.Context, limit int) ([]domain.ConsoleRecord, error)
	LatestTimestamp(ctx context.Context) (int64, error)

	// Known command operations
	AddCommand(ctx context.Context, name string) (bool, error)
	ListCommands(ctx context.Context) ([]string, error)

	// History operations
	AppendHistory(ctx context.Context, user, line string) (bool, error)
	History(ctx context.Context, user string, limit int) ([]domain.HistoryEntry, error)

	// Audit operations
	RecordAudit(ctx context.Context, entry *domain.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error)

	Close() error
}
