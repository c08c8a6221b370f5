// Package session tracks server-side sessions so a signed token can be
// revoked before it expires.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned for ids that are absent, expired or revoked.
	ErrNotFound = errors.New("session not found")
	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("session already exists")
	// ErrInvalid is returned by Create for records without an owner or with
	// an expiry in the past.
	ErrInvalid = errors.New("invalid session record")
)

// Device describes the client a session was created from.
type Device struct {
	Type      string `json:"type"`
	Browser   string `json:"browser"`
	UserAgent string `json:"user_agent"`
}

// Record is one server-side session.
type Record struct {
	ID             string    `json:"id"`
	OwnerSubjectID string    `json:"owner_subject_id"`
	Device         Device    `json:"device"`
	IPAddress      string    `json:"ip_address"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsedAt     time.Time `json:"last_used_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Registry stores session records. Implementations must be safe for
// concurrent use; a revoked id never becomes valid again.
type Registry interface {
	Create(ctx context.Context, rec *Record) (string, error)
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, owner string) ([]Record, error)
	Touch(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	RevokeAllExcept(ctx context.Context, owner, keep string) error
	Prune(ctx context.Context) (int64, error)
}

// Active reports whether id is live and belongs to owner.
func Active(ctx context.Context, reg Registry, id, owner string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	rec, err := reg.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.OwnerSubjectID == owner, nil
}

// prepare validates rec and fills defaults before a backend stores it.
func prepare(rec *Record, now time.Time, newID func() string) error {
	if rec == nil || strings.TrimSpace(rec.OwnerSubjectID) == "" {
		return ErrInvalid
	}
	if !rec.ExpiresAt.After(now) {
		return ErrInvalid
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastUsedAt.IsZero() {
		rec.LastUsedAt = rec.CreatedAt
	}
	rec.Device.UserAgent = strings.TrimSpace(rec.Device.UserAgent)
	rec.IPAddress = strings.TrimSpace(rec.IPAddress)
	return nil
}
