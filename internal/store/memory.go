package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Client used by tests and local development. It
// implements the same contract as the Postgres store, including live
// subscriptions and serialized transactions.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]map[string][]byte // collection -> id -> raw doc
	subs    map[int]*memSub
	nextSub int
}

type memSub struct {
	collection string
	query      Query
	ch         chan []Document
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string][]byte),
		subs: make(map[int]*memSub),
	}
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}

	return Document{ID: id, Data: cloneBytes(raw)}, nil
}

func (m *Memory) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return snapshot(m.data, collection, q), nil
}

func (m *Memory) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	raw, err := encode(doc, id)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(collection, id, raw)
	m.notifyLocked(collection)

	return id, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := encode(doc, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(collection, id, raw)
	m.notifyLocked(collection)

	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, ops ...FieldOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}

	updated, err := applyOps(raw, ops)
	if err != nil {
		return err
	}
	m.put(collection, id, updated)
	m.notifyLocked(collection)

	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.data[collection], id)
	m.notifyLocked(collection)

	return nil
}

// RunTransaction stages every operation on a copy of the data and commits it
// as a whole. Transactions are serialized: the store lock is held for the
// duration of the body.
func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		data:    cloneData(m.data),
		touched: make(map[string]struct{}),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.data = tx.data
	for collection := range tx.touched {
		m.notifyLocked(collection)
	}

	return nil
}

func (m *Memory) Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error) {
	sub := &memSub{
		collection: collection,
		query:      q,
		ch:         make(chan []Document, 1),
	}

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = sub
	sub.ch <- snapshot(m.data, collection, q)
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(sub.ch)
		})
	}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return &Subscription{C: sub.ch, cancel: cancel}, nil
}

func (m *Memory) put(collection, id string, raw []byte) {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string][]byte)
	}
	m.data[collection][id] = raw
}

// notifyLocked pushes fresh snapshots to every subscriber of the collection,
// replacing any undelivered one. Callers hold m.mu.
func (m *Memory) notifyLocked(collection string) {
	for _, sub := range m.subs {
		if sub.collection != collection {
			continue
		}
		snap := snapshot(m.data, collection, sub.query)
		select {
		case sub.ch <- snap:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snap
		}
	}
}

type memTx struct {
	data    map[string]map[string][]byte
	touched map[string]struct{}
}

func (tx *memTx) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, ok := tx.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}

	return Document{ID: id, Data: cloneBytes(raw)}, nil
}

func (tx *memTx) Add(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.NewString()
	raw, err := encode(doc, id)
	if err != nil {
		return "", err
	}
	tx.put(collection, id, raw)

	return id, nil
}

func (tx *memTx) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := encode(doc, id)
	if err != nil {
		return err
	}
	tx.put(collection, id, raw)

	return nil
}

func (tx *memTx) Update(ctx context.Context, collection, id string, ops ...FieldOp) error {
	raw, ok := tx.data[collection][id]
	if !ok {
		return ErrNotFound
	}

	updated, err := applyOps(raw, ops)
	if err != nil {
		return err
	}
	tx.put(collection, id, updated)

	return nil
}

func (tx *memTx) Delete(ctx context.Context, collection, id string) error {
	if _, ok := tx.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(tx.data[collection], id)
	tx.touched[collection] = struct{}{}

	return nil
}

func (tx *memTx) put(collection, id string, raw []byte) {
	if tx.data[collection] == nil {
		tx.data[collection] = make(map[string][]byte)
	}
	tx.data[collection][id] = raw
	tx.touched[collection] = struct{}{}
}

// --- helpers ---

func snapshot(data map[string]map[string][]byte, collection string, q Query) []Document {
	out := make([]Document, 0, len(data[collection]))
	for id, raw := range data[collection] {
		if !matches(raw, q) {
			continue
		}
		out = append(out, Document{ID: id, Data: cloneBytes(raw)})
	}

	return out
}

func matches(raw []byte, q Query) bool {
	if len(q) == 0 {
		return true
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	for field, want := range q {
		got, ok := m[field]
		if !ok || !reflect.DeepEqual(got, normalize(want)) {
			return false
		}
	}

	return true
}

// normalize round-trips a value through JSON so query values compare equal
// to decoded document fields (ints become float64 and so on).
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}

	return out
}

func applyOps(raw []byte, ops []FieldOp) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	for _, op := range ops {
		switch op.Op {
		case OpSet:
			m[op.Field] = normalize(op.Value)
		case OpArrayAdd:
			arr, err := arrayField(m, op.Field)
			if err != nil {
				return nil, err
			}
			v := normalize(op.Value)
			present := false
			for _, e := range arr {
				if reflect.DeepEqual(e, v) {
					present = true
					break
				}
			}
			if !present {
				arr = append(arr, v)
			}
			m[op.Field] = arr
		case OpArrayRemove:
			arr, err := arrayField(m, op.Field)
			if err != nil {
				return nil, err
			}
			v := normalize(op.Value)
			kept := make([]any, 0, len(arr))
			for _, e := range arr {
				if !reflect.DeepEqual(e, v) {
					kept = append(kept, e)
				}
			}
			m[op.Field] = kept
		default:
			return nil, fmt.Errorf("unknown field op %d", op.Op)
		}
	}

	return json.Marshal(m)
}

func arrayField(m map[string]any, field string) ([]any, error) {
	switch v := m[field].(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("field %q is not an array", field)
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	return out
}

func cloneData(data map[string]map[string][]byte) map[string]map[string][]byte {
	out := make(map[string]map[string][]byte, len(data))
	for collection, docs := range data {
		c := make(map[string][]byte, len(docs))
		for id, raw := range docs {
			c[id] = raw
		}
		out[collection] = c
	}

	return out
}
