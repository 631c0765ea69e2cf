package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const boltBucketSessions = "sessions" // key: email -> Session JSON

// boltRecord carries the timestamps that Session hides from API JSON.
type boltRecord struct {
	Session
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BoltSessionStore keeps session records in a bbolt file.
type BoltSessionStore struct {
	db *bbolt.DB
}

// NewBoltSessionStore opens (or creates) the bbolt file at path.
func NewBoltSessionStore(path string) (*BoltSessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucketSessions))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltSessionStore{db: db}, nil
}

// Get returns the session for email, creating an empty one if missing.
func (b *BoltSessionStore) Get(_ context.Context, email string) (*Session, error) {
	var sess *Session
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucketSessions))
		cur, found, err := boltLoad(bucket, email)
		if err != nil {
			return err
		}
		sess = cur
		if found {
			return nil
		}
		return boltSave(bucket, cur)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ToggleFavorite adds or removes repoFullName from the favorites.
func (b *BoltSessionStore) ToggleFavorite(_ context.Context, email, repoFullName string) (*Session, error) {
	return b.mutate(email, func(cur *Session) *Session {
		return cur.ToggleFavorite(repoFullName)
	})
}

// AddRecent pushes repoFullName to the front of the recents.
func (b *BoltSessionStore) AddRecent(_ context.Context, email, repoFullName string) (*Session, error) {
	return b.mutate(email, func(cur *Session) *Session {
		return cur.AddRecent(repoFullName)
	})
}

// Close closes the database.
func (b *BoltSessionStore) Close() error {
	return b.db.Close()
}

func (b *BoltSessionStore) mutate(email string, apply func(*Session) *Session) (*Session, error) {
	var next *Session
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucketSessions))
		cur, _, err := boltLoad(bucket, email)
		if err != nil {
			return err
		}
		next = apply(cur)
		return boltSave(bucket, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func boltLoad(bucket *bbolt.Bucket, email string) (*Session, bool, error) {
	data := bucket.Get([]byte(email))
	if data == nil {
		return NewSession(email), false, nil
	}

	var rec boltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	sess := rec.Session
	sess.CreatedAt = rec.CreatedAt
	sess.UpdatedAt = rec.UpdatedAt
	sess.normalize()
	return &sess, true, nil
}

func boltSave(bucket *bbolt.Bucket, sess *Session) error {
	data, err := json.Marshal(boltRecord{
		Session:   *sess,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return bucket.Put([]byte(sess.Email), data)
}
