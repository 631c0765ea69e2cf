// Package storage provides persistence for per-identity session records.
package storage

import "time"

// MaxRecents is the number of recently viewed repositories kept per session.
const MaxRecents = 10

// Session is the persisted favorites/recents state of one verified identity.
// Repositories are addressed by their "owner/repo" full name.
type Session struct {
	Email     string   `json:"email"`
	Favorites []string `json:"favorites"`
	Recents   []string `json:"recents"` // most recent first

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// NewSession returns an empty session for email.
func NewSession(email string) *Session {
	now := time.Now().UTC()
	return &Session{
		Email:     email,
		Favorites: []string{},
		Recents:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsFavorite reports whether repoFullName is in the favorites list.
func (s *Session) IsFavorite(repoFullName string) bool {
	for _, fav := range s.Favorites {
		if fav == repoFullName {
			return true
		}
	}
	return false
}

// ToggleFavorite returns a copy of s with repoFullName removed from the
// favorites when present, or appended otherwise.
func (s *Session) ToggleFavorite(repoFullName string) *Session {
	next := s.clone()
	if s.IsFavorite(repoFullName) {
		next.Favorites = without(s.Favorites, repoFullName)
	} else {
		next.Favorites = append(next.Favorites, repoFullName)
	}
	next.UpdatedAt = time.Now().UTC()
	return next
}

// AddRecent returns a copy of s with repoFullName moved to the front of the
// recents list, which is then truncated to MaxRecents entries.
func (s *Session) AddRecent(repoFullName string) *Session {
	next := s.clone()
	recents := make([]string, 0, len(s.Recents)+1)
	recents = append(recents, repoFullName)
	recents = append(recents, without(s.Recents, repoFullName)...)
	if len(recents) > MaxRecents {
		recents = recents[:MaxRecents]
	}
	next.Recents = recents
	next.UpdatedAt = time.Now().UTC()
	return next
}

func (s *Session) clone() *Session {
	c := *s
	c.Favorites = append([]string{}, s.Favorites...)
	c.Recents = append([]string{}, s.Recents...)
	return &c
}

// normalize replaces nil lists so the record always encodes as arrays.
func (s *Session) normalize() {
	if s.Favorites == nil {
		s.Favorites = []string{}
	}
	if s.Recents == nil {
		s.Recents = []string{}
	}
}

func without(list []string, item string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}
