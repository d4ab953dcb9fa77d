// Package store provides the document client the rest of the system is built
// on: per-collection CRUD, multi-document transactions and live query
// subscriptions that push the full matching set whenever a matching document
// changes. Two implementations exist, Postgres (JSONB + LISTEN/NOTIFY) for
// production and Memory for tests.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned for lookups of documents that do not exist.
// Callers standardize on this instead of dereferencing missing records.
var ErrNotFound = errors.New("document not found")

// Document is one stored record: its id plus the raw JSON body.
type Document struct {
	ID   string
	Data []byte
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Query matches documents whose top-level fields equal the given values.
// A nil or empty query matches every document in the collection.
type Query map[string]any

// Op is the kind of a partial-update field operation.
type Op int

const (
	OpSet Op = iota
	OpArrayAdd
	OpArrayRemove
)

// FieldOp is one field operation of a partial update. Array operations have
// set semantics: add skips values already present, remove drops every equal
// element.
type FieldOp struct {
	Field string
	Op    Op
	Value any
}

func Set(field string, value any) FieldOp {
	return FieldOp{Field: field, Op: OpSet, Value: value}
}

func ArrayAdd(field string, value any) FieldOp {
	return FieldOp{Field: field, Op: OpArrayAdd, Value: value}
}

func ArrayRemove(field string, value any) FieldOp {
	return FieldOp{Field: field, Op: OpArrayRemove, Value: value}
}

// Tx is the handle passed to a transaction body. Every operation applies
// atomically with the rest of the transaction or not at all.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Add(ctx context.Context, collection string, doc any) (string, error)
	Set(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, ops ...FieldOp) error
	Delete(ctx context.Context, collection, id string) error
}

// Subscription is a live query handle. C delivers the full matching set
// after every relevant change; slow consumers only ever see the latest
// snapshot. Cancel tears the subscription down and closes C.
type Subscription struct {
	C      <-chan []Document
	cancel func()
}

func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Client is the document store contract the application consumes.
type Client interface {
	Tx

	List(ctx context.Context, collection string, q Query) ([]Document, error)
	Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// encode marshals a document body and stamps the generated id into it, so
// the stored JSON always carries its own identifier.
func encode(doc any, id string) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	m["id"] = id

	return json.Marshal(m)
}
