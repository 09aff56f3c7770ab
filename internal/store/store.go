package store

import (
	"context"
	"time"

	"github.com/hansonkim/consensus-code-review/internal/models"
)

// Store defines the persistence interface for review sessions.
type Store interface {
	CreateSession(ctx context.Context, s *models.ReviewSession) error
	// GetSession loads the full aggregate: session fields plus all
	// submissions and progress entries.
	GetSession(ctx context.Context, id string) (*models.ReviewSession, error)
	// ListSessions returns session rows newest first, without loading
	// submissions or progress. limit <= 0 means no limit.
	ListSessions(ctx context.Context, limit int) ([]*models.ReviewSession, error)
	UpdateSession(ctx context.Context, s *models.ReviewSession) error
	// PutSubmission upserts an agent's review text for a round.
	PutSubmission(ctx context.Context, sessionID, agent string, round int, content string) error
	AppendProgress(ctx context.Context, sessionID, agent, message string) error
	// PruneSessions deletes sessions last updated before the cutoff and
	// returns how many were removed.
	PruneSessions(ctx context.Context, olderThan time.Time) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
