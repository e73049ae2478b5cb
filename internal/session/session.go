// Package session tracks each user's active document and current page.
//
// State is read, mutated in memory and written back whole; two concurrent
// writers for the same user race and the last write wins. Callers needing
// stronger guarantees must serialize per user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsturgis0/zoti/pkg/domain"
	"github.com/bsturgis0/zoti/pkg/kv"
)

// Sessions expire 24h after the last write.
const sessionTTL = 24 * time.Hour

// Manager stores per-user navigation state with TTL refresh on every write.
type Manager struct {
	kv *kv.Store
}

// NewManager builds a session manager over the key-value backend.
func NewManager(kvStore *kv.Store) *Manager {
	return &Manager{kv: kvStore}
}

// SetActiveDocument makes documentID the user's active document and resets
// the current page to 1. Switching documents always restarts at the front.
func (m *Manager) SetActiveDocument(ctx context.Context, userID, documentID string) error {
	page := 1
	return m.write(ctx, userID, domain.SessionState{
		DocumentID: &documentID,
		PageNumber: &page,
	})
}

// SetCurrentPage updates only the page position, keeping the active document.
func (m *Manager) SetCurrentPage(ctx context.Context, userID string, pageNumber int) error {
	state, err := m.Get(ctx, userID)
	if err != nil {
		return err
	}
	state.PageNumber = &pageNumber
	return m.write(ctx, userID, state)
}

// Get returns the user's state. A missing or expired session reads as the
// empty state rather than an error.
func (m *Manager) Get(ctx context.Context, userID string) (domain.SessionState, error) {
	raw, err := m.kv.Get(ctx, kv.Key(kv.KeyUserSession, userID))
	if errors.Is(err, kv.ErrNotFound) {
		return domain.SessionState{}, nil
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("get session: %w", err)
	}
	var state domain.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	return state, nil
}

// Clear resets the state to empty while keeping the session key alive.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	return m.write(ctx, userID, domain.SessionState{})
}

// Delete removes the session key entirely.
func (m *Manager) Delete(ctx context.Context, userID string) error {
	if err := m.kv.Delete(ctx, kv.Key(kv.KeyUserSession, userID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Manager) write(ctx context.Context, userID string, state domain.SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.kv.Set(ctx, kv.Key(kv.KeyUserSession, userID), string(payload), sessionTTL); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}
