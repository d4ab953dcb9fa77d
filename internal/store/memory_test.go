package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type widget struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Owner string   `json:"owner"`
	Tags  []string `json:"tags"`
	Count int      `json:"count"`
}

func TestAddGetRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Add(ctx, "widgets", widget{Name: "gear", Owner: "alice"})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if id == "" {
		t.Fatalf("no id assigned")
	}

	doc, err := m.Get(ctx, "widgets", id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var w widget
	if err := doc.Decode(&w); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if w.Name != "gear" {
		t.Fatalf("name = %q", w.Name)
	}
	if w.ID != id {
		t.Fatalf("stored body carries id %q, want %q", w.ID, id)
	}
}

func TestGetMissingIsErrNotFound(t *testing.T) {
	m := NewMemory()

	if _, err := m.Get(context.Background(), "widgets", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := m.Update(context.Background(), "widgets", "nope", Set("name", "x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update got %v, want ErrNotFound", err)
	}
	if err := m.Delete(context.Background(), "widgets", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete got %v, want ErrNotFound", err)
	}
}

func TestListFiltersByEquality(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i, owner := range []string{"alice", "bob", "alice"} {
		if _, err := m.Add(ctx, "widgets", widget{Name: fmt.Sprintf("w%d", i), Owner: owner, Count: i}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	docs, err := m.List(ctx, "widgets", Query{"owner": "alice"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	// int query values must compare equal to decoded JSON numbers
	docs, err = m.List(ctx, "widgets", Query{"count": 1})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}

	docs, err = m.List(ctx, "widgets", nil)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("nil query returned %d docs, want all 3", len(docs))
	}
}

func TestUpdateFieldOps(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Add(ctx, "widgets", widget{Name: "gear", Tags: []string{"red"}})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	err = m.Update(ctx, "widgets", id,
		Set("name", "cog"),
		ArrayAdd("tags", "blue"),
		ArrayAdd("tags", "red"), // already present, set semantics
		ArrayRemove("tags", "red"))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	doc, _ := m.Get(ctx, "widgets", id)
	var w widget
	if err := doc.Decode(&w); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if w.Name != "cog" {
		t.Fatalf("name = %q, want %q", w.Name, "cog")
	}
	if len(w.Tags) != 1 || w.Tags[0] != "blue" {
		t.Fatalf("tags = %v, want [blue]", w.Tags)
	}
}

func TestArrayAddOnMissingFieldCreatesIt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Add(ctx, "widgets", map[string]any{"name": "bare"})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := m.Update(ctx, "widgets", id, ArrayAdd("tags", "new")); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	doc, _ := m.Get(ctx, "widgets", id)
	var w widget
	if err := doc.Decode(&w); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(w.Tags) != 1 || w.Tags[0] != "new" {
		t.Fatalf("tags = %v, want [new]", w.Tags)
	}
}

func TestUpdateMultiOpAllOrNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Add(ctx, "widgets", widget{Name: "gear", Tags: []string{"red"}})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// second op targets a non-array field and must fail the whole update
	err = m.Update(ctx, "widgets", id,
		Set("name", "cog"),
		ArrayAdd("name", "boom"))
	if err == nil {
		t.Fatalf("update with a bad op succeeded")
	}

	doc, _ := m.Get(ctx, "widgets", id)
	var w widget
	if err := doc.Decode(&w); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if w.Name != "gear" {
		t.Fatalf("first op landed despite the failure: name = %q", w.Name)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Add(ctx, "widgets", widget{Name: "staged"}); err != nil {
			return err
		}

		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction returned %v, want the body's error", err)
	}

	docs, _ := m.List(ctx, "widgets", nil)
	if len(docs) != 0 {
		t.Fatalf("staged write survived a failed transaction")
	}
}

func TestTransactionCommitsAsAWhole(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var id string
	err := m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		id, err = tx.Add(ctx, "widgets", widget{Name: "gear"})
		if err != nil {
			return err
		}

		return tx.Set(ctx, "owners", "alice", map[string]any{"widget": id})
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	if _, err := m.Get(ctx, "widgets", id); err != nil {
		t.Fatalf("first write missing: %v", err)
	}
	if _, err := m.Get(ctx, "owners", "alice"); err != nil {
		t.Fatalf("second write missing: %v", err)
	}
}

func TestSubscribePushesSnapshotsOnChange(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := m.Subscribe(ctx, "widgets", Query{"owner": "alice"})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Cancel()

	if docs := <-sub.C; len(docs) != 0 {
		t.Fatalf("initial snapshot has %d docs, want 0", len(docs))
	}

	if _, err := m.Add(ctx, "widgets", widget{Name: "hers", Owner: "alice"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	select {
	case docs := <-sub.C:
		if len(docs) != 1 {
			t.Fatalf("snapshot has %d docs, want 1", len(docs))
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot after matching write")
	}
}

func TestSubscribeSlowConsumerSeesLatestOnly(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, "widgets", nil)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Cancel()
	<-sub.C // drain the initial snapshot

	// three writes with no reads in between: only the final state matters
	for i := 0; i < 3; i++ {
		if _, err := m.Add(ctx, "widgets", widget{Name: fmt.Sprintf("w%d", i)}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	select {
	case docs := <-sub.C:
		if len(docs) != 3 {
			t.Fatalf("snapshot has %d docs, want the latest state with 3", len(docs))
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot delivered")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	m := NewMemory()

	sub, err := m.Subscribe(context.Background(), "widgets", nil)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	<-sub.C
	sub.Cancel()
	sub.Cancel() // second cancel is a no-op

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatalf("channel delivered after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestSetOverwritesDocument(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "widgets", "w1", widget{Name: "gear", Tags: []string{"red"}}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := m.Set(ctx, "widgets", "w1", widget{Name: "cog"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	doc, err := m.Get(ctx, "widgets", "w1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var w widget
	if err := doc.Decode(&w); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if w.Name != "cog" || len(w.Tags) != 0 {
		t.Fatalf("set did not fully replace the document: %+v", w)
	}
}
