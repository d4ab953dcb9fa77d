// Package chat maintains per-team messaging: one group channel per team and
// one direct channel per pair of members, persisted as store sub-collections.
// Writes are append-only or in-place by message id; the data layer gives no
// ordering guarantee, readers sort by timestamp at render time.
package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/store"
)

// Service is the chat fan-out over the document store.
type Service struct {
	store store.Client

	// Now is the message timestamp clock.
	Now func() time.Time

	// seen-tracking happens on render, which can repeat before the store
	// round-trip propagates; requested is the local de-duplication guard
	// against redundant writes.
	mu        sync.Mutex
	requested map[string]map[string]struct{} // message id -> user emails
}

func NewService(st store.Client) *Service {
	return &Service{
		store:     st,
		Now:       time.Now,
		requested: make(map[string]map[string]struct{}),
	}
}

// GroupCollection names the team's group channel sub-collection.
func GroupCollection(teamID string) string {
	return "chats/" + teamID + "/group"
}

// DirectCollection names the channel shared by two members, independent of
// argument order.
func DirectCollection(teamID, a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)

	return "chats/" + teamID + "/" + strings.Join(pair, "|")
}

// SendGroup appends a message to the team's group channel.
func (s *Service) SendGroup(ctx context.Context, teamID, author, text string) (models.ChatMessage, error) {
	return s.send(ctx, GroupCollection(teamID), author, text)
}

// SendDirect appends a message to the channel shared with the partner.
func (s *Service) SendDirect(ctx context.Context, teamID, author, partner, text string) (models.ChatMessage, error) {
	return s.send(ctx, DirectCollection(teamID, author, partner), author, text)
}

func (s *Service) send(ctx context.Context, collection, author, text string) (models.ChatMessage, error) {
	msg := models.ChatMessage{
		Text:      text,
		Author:    author,
		Timestamp: s.Now(),
		SeenBy:    []string{author},
	}

	id, err := s.store.Add(ctx, collection, msg)
	if err != nil {
		return models.ChatMessage{}, err
	}
	msg.ID = id

	return msg, nil
}

// Edit replaces a message's text in place. Racing editors are resolved
// last-write-wins by the store.
func (s *Service) Edit(ctx context.Context, collection, messageID, text string) error {
	return s.store.Update(ctx, collection, messageID, store.Set("text", text))
}

// Delete removes a message from its channel.
func (s *Service) Delete(ctx context.Context, collection, messageID string) error {
	return s.store.Delete(ctx, collection, messageID)
}

// MarkSeen appends the viewer to the message's seen-set the first time the
// message is rendered to them. Repeated renders before the subscription
// catches up are swallowed locally instead of issuing redundant writes.
func (s *Service) MarkSeen(ctx context.Context, collection, messageID, viewer string) error {
	s.mu.Lock()
	users, ok := s.requested[messageID]
	if !ok {
		users = make(map[string]struct{})
		s.requested[messageID] = users
	}
	if _, done := users[viewer]; done {
		s.mu.Unlock()
		return nil
	}
	users[viewer] = struct{}{}
	s.mu.Unlock()

	return s.store.Update(ctx, collection, messageID, store.ArrayAdd("seen_by", viewer))
}

// Messages returns the channel's messages in chronological render order,
// regardless of the order they were written in.
func (s *Service) Messages(ctx context.Context, collection string) ([]models.ChatMessage, error) {
	docs, err := s.store.List(ctx, collection, nil)
	if err != nil {
		return nil, err
	}

	msgs := make([]models.ChatMessage, 0, len(docs))
	for _, d := range docs {
		var m models.ChatMessage
		if err := d.Decode(&m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	SortByTimestamp(msgs)

	return msgs, nil
}

// Subscribe opens a live subscription on a chat channel.
func (s *Service) Subscribe(ctx context.Context, collection string) (*store.Subscription, error) {
	return s.store.Subscribe(ctx, collection, nil)
}

// SortByTimestamp orders messages chronologically, stable for equal
// timestamps.
func SortByTimestamp(msgs []models.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
