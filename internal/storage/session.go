package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// sessionRow is the sqlite representation of a Session; the lists are JSON
// arrays stored in TEXT columns.
type sessionRow struct {
	Email     string    `db:"email"`
	Favorites string    `db:"favorites"`
	Recents   string    `db:"recents"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *sessionRow) session() (*Session, error) {
	s := &Session{Email: r.Email, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	if err := json.Unmarshal([]byte(r.Favorites), &s.Favorites); err != nil {
		return nil, fmt.Errorf("failed to unmarshal favorites: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Recents), &s.Recents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recents: %w", err)
	}
	s.normalize()
	return s, nil
}

// SQLSessionStore handles session records in sqlite.
type SQLSessionStore struct {
	db *Database
}

// NewSQLSessionStore creates a new sqlite-backed session store.
func NewSQLSessionStore(db *Database) *SQLSessionStore {
	return &SQLSessionStore{db: db}
}

// Get returns the session for email, inserting an empty one if missing.
func (s *SQLSessionStore) Get(ctx context.Context, email string) (*Session, error) {
	var sess *Session
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		sess, err = s.load(ctx, tx, email)
		return err
	})
	return sess, err
}

// ToggleFavorite adds or removes repoFullName from the favorites.
func (s *SQLSessionStore) ToggleFavorite(ctx context.Context, email, repoFullName string) (*Session, error) {
	return s.mutate(ctx, email, func(cur *Session) *Session {
		return cur.ToggleFavorite(repoFullName)
	})
}

// AddRecent pushes repoFullName to the front of the recents.
func (s *SQLSessionStore) AddRecent(ctx context.Context, email, repoFullName string) (*Session, error) {
	return s.mutate(ctx, email, func(cur *Session) *Session {
		return cur.AddRecent(repoFullName)
	})
}

// Close closes the underlying database.
func (s *SQLSessionStore) Close() error {
	return s.db.Close()
}

// mutate is unexported so callers only reach the named transitions above.
func (s *SQLSessionStore) mutate(ctx context.Context, email string, apply func(*Session) *Session) (*Session, error) {
	var next *Session
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.load(ctx, tx, email)
		if err != nil {
			return err
		}
		next = apply(cur)
		return s.save(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *SQLSessionStore) load(ctx context.Context, tx *sqlx.Tx, email string) (*Session, error) {
	var row sessionRow
	query := `SELECT email, favorites, recents, created_at, updated_at FROM sessions WHERE email = ?`
	err := tx.GetContext(ctx, &row, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		sess := NewSession(email)
		if err := s.insert(ctx, tx, sess); err != nil {
			return nil, err
		}
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return row.session()
}

func (s *SQLSessionStore) insert(ctx context.Context, tx *sqlx.Tx, sess *Session) error {
	query := `
		INSERT OR IGNORE INTO sessions (email, favorites, recents, created_at, updated_at)
		VALUES (?, '[]', '[]', ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, sess.Email, sess.CreatedAt, sess.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLSessionStore) save(ctx context.Context, tx *sqlx.Tx, sess *Session) error {
	favorites, err := json.Marshal(sess.Favorites)
	if err != nil {
		return fmt.Errorf("failed to marshal favorites: %w", err)
	}
	recents, err := json.Marshal(sess.Recents)
	if err != nil {
		return fmt.Errorf("failed to marshal recents: %w", err)
	}

	query := `
		INSERT INTO sessions (email, favorites, recents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			favorites = excluded.favorites,
			recents = excluded.recents,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query, sess.Email, string(favorites), string(recents), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLSessionStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
