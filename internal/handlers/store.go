package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrProfileNotFound is returned when no profile has the requested id
	ErrProfileNotFound = errors.New("profile not found")

	// ErrDuplicateEmail is returned when another profile already uses the email
	ErrDuplicateEmail = errors.New("email already exists")
)

// Profile is the resource served by the sample API
type Profile struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Age       int64     `json:"age,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileStore persists profiles for the lifetime of the execution
// environment
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	now      func() time.Time
}

// NewProfileStore creates an empty store
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: map[string]*Profile{},
		now:      time.Now,
	}
}

// Create assigns an id and stores p
func (s *ProfileStore) Create(_ context.Context, p *Profile) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEmail(p.Email, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stored := *p
	stored.ID = uuid.New().String()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.profiles[stored.ID] = &stored

	out := stored
	return &out, nil
}

// Get returns the profile with id
func (s *ProfileStore) Get(_ context.Context, id string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	out := *p
	return &out, nil
}

// List returns up to limit profiles ordered by creation time, optionally
// filtered by tag
func (s *ProfileStore) List(_ context.Context, tag string, limit int) []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if tag != "" && !hasTag(p.Tags, tag) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Update applies fn to the stored profile with id
func (s *ProfileStore) Update(_ context.Context, id string, fn func(p *Profile)) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	updated := *p
	fn(&updated)
	if err := s.checkEmail(updated.Email, id); err != nil {
		return nil, err
	}
	updated.ID = id
	updated.CreatedAt = p.CreatedAt
	updated.UpdatedAt = s.now().UTC()
	s.profiles[id] = &updated

	out := updated
	return &out, nil
}

// Delete removes the profile with id
func (s *ProfileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	delete(s.profiles, id)
	return nil
}

// checkEmail must be called with the write lock held
func (s *ProfileStore) checkEmail(email, exceptID string) error {
	for id, p := range s.profiles {
		if id != exceptID && strings.EqualFold(p.Email, email) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
	}
	return nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
