// Package sessions persists screening conversation state between turns.
// Two backends exist: Redis with a TTL (the default) and Postgres for
// deployments that want durable transcripts.
package sessions

import (
	"context"
	"errors"
	"time"

	"intake_backend/internal/intake/engine"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Session is one stored screening conversation.
type Session struct {
	ID        string       `json:"id"`
	StudyID   string       `json:"study_id"`
	State     engine.State `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Store is the persistence contract for sessions.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}
