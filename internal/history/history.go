// Package history is the append-only per-user message log.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bsturgis0/zoti/internal/util"
	"github.com/bsturgis0/zoti/pkg/domain"
	"github.com/bsturgis0/zoti/pkg/kv"
)

const (
	historyTTL       = 30 * 24 * time.Hour
	fetchConcurrency = 8

	// DefaultFetchLimit caps how many message IDs a fetch resolves.
	DefaultFetchLimit = 100
)

const welcomeContent = "# Welcome to Zoti School Slides Teacher\n\n" +
	"I'm here to help you learn from your educational materials. You can:\n\n" +
	"- **Upload PDF slides** using the paperclip button\n" +
	"- **Ask questions** about the content\n" +
	"- **Request explanations** of complex concepts\n\n" +
	"Let's start learning together! What would you like to explore today?"

// Store persists chat messages and the per-user ordered ID list.
type Store struct {
	kv *kv.Store
}

// NewStore builds a chat history store over the key-value backend.
func NewStore(kvStore *kv.Store) *Store {
	return &Store{kv: kvStore}
}

// Save writes the message record and prepends its ID to the user's history
// list, refreshing the list TTL.
func (s *Store) Save(ctx context.Context, userID string, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.kv.Set(ctx, messageKey(userID, msg.ID), string(payload), historyTTL); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	listKey := kv.Key(kv.KeyChatHistory, userID)
	if err := s.kv.PushFront(ctx, listKey, msg.ID); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if err := s.kv.Expire(ctx, listKey, historyTTL); err != nil {
		return fmt.Errorf("refresh history ttl: %w", err)
	}
	return nil
}

// Fetch resolves up to limit most-recent messages and returns them in
// chronological order. IDs whose record has expired are dropped.
func (s *Store) Fetch(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	ids, err := s.kv.ListRange(ctx, kv.Key(kv.KeyChatHistory, userID), 0, int64(limit)-1)
	if err != nil {
		return nil, fmt.Errorf("read history list: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		messages []domain.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			raw, err := s.kv.Get(gctx, messageKey(userID, id))
			if errors.Is(err, kv.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var msg domain.Message
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				return nil
			}
			mu.Lock()
			messages = append(messages, msg)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve messages: %w", err)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// FetchOrWelcome fetches history and, when it is empty, materializes and
// persists a welcome message first. This is the one read path that writes.
func (s *Store) FetchOrWelcome(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	messages, err := s.Fetch(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return messages, nil
	}
	welcome := domain.Message{
		ID:        util.NewID(),
		Role:      domain.RoleAssistant,
		Content:   welcomeContent,
		Timestamp: time.Now().UTC(),
	}
	if err := s.Save(ctx, userID, welcome); err != nil {
		return nil, fmt.Errorf("seed welcome message: %w", err)
	}
	return []domain.Message{welcome}, nil
}

// Clear deletes every resolvable message record, then the list itself.
// Already-expired messages are tolerated.
func (s *Store) Clear(ctx context.Context, userID string) error {
	listKey := kv.Key(kv.KeyChatHistory, userID)
	ids, err := s.kv.ListRange(ctx, listKey, 0, -1)
	if err != nil {
		return fmt.Errorf("read history list: %w", err)
	}
	if len(ids) > 0 {
		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, messageKey(userID, id))
		}
		if err := s.kv.Delete(ctx, keys...); err != nil {
			util.LoggerFromContext(ctx).Warn("failed to delete some messages during clear",
				"user_id", userID, "err", err)
		}
	}
	if err := s.kv.Delete(ctx, listKey); err != nil {
		return fmt.Errorf("delete history list: %w", err)
	}
	return nil
}

// Export renders the chronological history as a plain-text transcript.
func (s *Store) Export(ctx context.Context, userID string) (string, error) {
	messages, err := s.Fetch(ctx, userID, DefaultFetchLimit)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "No chat history found.", nil
	}
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		label := "Zoti"
		if msg.Role == domain.RoleUser {
			label = "You"
		}
		blocks = append(blocks, fmt.Sprintf("%s (%s):\n%s\n\n",
			label, msg.Timestamp.Local().Format("1/2/2006, 3:04:05 PM"), msg.Content))
	}
	return strings.Join(blocks, "---\n\n"), nil
}

func messageKey(userID, messageID string) string {
	return kv.Key(kv.KeyChatMessage, userID+":"+messageID)
}
