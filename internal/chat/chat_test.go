package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/store"
)

func newFixture() (*Service, *store.Memory) {
	st := store.NewMemory()
	svc := NewService(st)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	return svc, st
}

func TestDirectCollectionIsOrderIndependent(t *testing.T) {
	a := DirectCollection("team-1", "bob@x.org", "alice@x.org")
	b := DirectCollection("team-1", "alice@x.org", "bob@x.org")
	if a != b {
		t.Fatalf("collections differ: %q vs %q", a, b)
	}
	if a != "chats/team-1/alice@x.org|bob@x.org" {
		t.Fatalf("collection = %q", a)
	}
}

func TestSendStartsSeenSetWithAuthor(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	msg, err := svc.SendGroup(ctx, "team-1", "alice@x.org", "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("message id was not assigned")
	}
	if len(msg.SeenBy) != 1 || msg.SeenBy[0] != "alice@x.org" {
		t.Fatalf("seen-set = %v, want author only", msg.SeenBy)
	}
}

func TestMessagesSortedByTimestampNotWriteOrder(t *testing.T) {
	svc, st := newFixture()
	ctx := context.Background()
	coll := GroupCollection("team-1")

	// write newest-first, straight into the store
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 3; i >= 1; i-- {
		m := models.ChatMessage{
			Text:      []string{"", "first", "second", "third"}[i],
			Author:    "alice@x.org",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			SeenBy:    []string{"alice@x.org"},
		}
		if _, err := st.Add(ctx, coll, m); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	msgs, err := svc.Messages(ctx, coll)
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	var got []string
	for _, m := range msgs {
		got = append(got, m.Text)
	}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("render order = %v, want %v", got, want)
		}
	}
}

func TestMarkSeenAppendsViewerOnce(t *testing.T) {
	svc, st := newFixture()
	ctx := context.Background()
	coll := GroupCollection("team-1")

	msg, err := svc.SendGroup(ctx, "team-1", "alice@x.org", "hello")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// repeated renders before the store round-trip must stay one write
	for i := 0; i < 3; i++ {
		if err := svc.MarkSeen(ctx, coll, msg.ID, "bob@x.org"); err != nil {
			t.Fatalf("mark seen failed: %v", err)
		}
	}

	doc, err := st.Get(ctx, coll, msg.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var stored models.ChatMessage
	if err := doc.Decode(&stored); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(stored.SeenBy) != 2 {
		t.Fatalf("seen-set = %v, want author + viewer", stored.SeenBy)
	}
	if !stored.SeenByUser("bob@x.org") {
		t.Fatalf("viewer missing from seen-set: %v", stored.SeenBy)
	}
}

func TestEditReplacesTextInPlace(t *testing.T) {
	svc, st := newFixture()
	ctx := context.Background()
	coll := DirectCollection("team-1", "alice@x.org", "bob@x.org")

	msg, err := svc.SendDirect(ctx, "team-1", "alice@x.org", "bob@x.org", "helo")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := svc.Edit(ctx, coll, msg.ID, "hello"); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	doc, err := st.Get(ctx, coll, msg.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var stored models.ChatMessage
	if err := doc.Decode(&stored); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stored.Text != "hello" {
		t.Fatalf("text = %q, want %q", stored.Text, "hello")
	}
	if !stored.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("edit moved the timestamp")
	}
}

func TestDeleteRemovesMessage(t *testing.T) {
	svc, st := newFixture()
	ctx := context.Background()
	coll := GroupCollection("team-1")

	msg, err := svc.SendGroup(ctx, "team-1", "alice@x.org", "oops")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := svc.Delete(ctx, coll, msg.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := st.Get(ctx, coll, msg.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get after delete returned %v, want ErrNotFound", err)
	}
}

func TestSubscribeDeliversNewMessages(t *testing.T) {
	svc, _ := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coll := GroupCollection("team-1")

	sub, err := svc.Subscribe(ctx, coll)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Cancel()

	// initial snapshot is empty
	select {
	case docs := <-sub.C:
		if len(docs) != 0 {
			t.Fatalf("initial snapshot has %d docs, want 0", len(docs))
		}
	case <-time.After(time.Second):
		t.Fatalf("no initial snapshot")
	}

	if _, err := svc.SendGroup(ctx, "team-1", "alice@x.org", "hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case docs := <-sub.C:
		if len(docs) != 1 {
			t.Fatalf("update has %d docs, want 1", len(docs))
		}
	case <-time.After(time.Second):
		t.Fatalf("no update after send")
	}
}
