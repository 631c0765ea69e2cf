package storage

import (
	"context"
	"fmt"
)

// SessionStore persists session records keyed by verified email.
//
// Every mutation is a read-modify-write of a single record. There is no
// cross-record transaction and no conflict detection: two concurrent
// writers for the same email are last-write-wins.
type SessionStore interface {
	// Get returns the record for email, creating an empty one on first access.
	Get(ctx context.Context, email string) (*Session, error)
	// ToggleFavorite flips membership of repoFullName in the favorites.
	ToggleFavorite(ctx context.Context, email, repoFullName string) (*Session, error)
	// AddRecent moves repoFullName to the front of the recents.
	AddRecent(ctx context.Context, email, repoFullName string) (*Session, error)
	Close() error
}

// Open returns the session store backend named by driver.
func Open(driver, path string) (SessionStore, error) {
	switch driver {
	case "sqlite", "":
		db, err := NewDatabase(path)
		if err != nil {
			return nil, err
		}
		return NewSQLSessionStore(db), nil
	case "bolt":
		return NewBoltSessionStore(path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
