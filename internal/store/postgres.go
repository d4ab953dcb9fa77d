package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// notifyChannel is the LISTEN/NOTIFY channel the documents trigger fires on.
const notifyChannel = "workstream_documents"

const initSQL = `
CREATE TABLE IF NOT EXISTS documents (
    collection  text NOT NULL,
    id          text NOT NULL,
    doc         jsonb NOT NULL,
    updated_at  timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS documents_doc_idx ON documents USING gin (doc jsonb_path_ops);

CREATE OR REPLACE FUNCTION documents_notify() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('workstream_documents', COALESCE(NEW.collection, OLD.collection));
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS documents_notify ON documents;
CREATE TRIGGER documents_notify
    AFTER INSERT OR UPDATE OR DELETE ON documents
    FOR EACH ROW EXECUTE FUNCTION documents_notify();
`

// pgExec is the slice of the pgx API shared by the pool and a transaction,
// so the same statements serve both paths.
type pgExec interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores every collection as JSONB rows in a single documents table
// and serves live subscriptions off a LISTEN/NOTIFY trigger: any change to a
// collection re-queries and re-delivers each subscription on it.
type Postgres struct {
	pool       *pgxpool.Pool
	connString string

	mu      sync.Mutex
	subs    map[int]*pgSub
	nextSub int

	stopListener context.CancelFunc
}

type pgSub struct {
	collection string
	query      Query
	ch         chan []Document
}

// NewPostgres connects, applies the schema and starts the notification
// listener.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("could not connect to the database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping the db: %w", err)
	}
	if _, err := pool.Exec(ctx, initSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to execute init sql: %w", err)
	}

	listenerCtx, stop := context.WithCancel(context.Background())
	p := &Postgres{
		pool:         pool,
		connString:   connString,
		subs:         make(map[int]*pgSub),
		stopListener: stop,
	}
	go p.listen(listenerCtx)

	return p, nil
}

// Close tears down the listener, every open subscription and the pool.
func (p *Postgres) Close() {
	p.stopListener()

	p.mu.Lock()
	for id, sub := range p.subs {
		delete(p.subs, id)
		close(sub.ch)
	}
	p.mu.Unlock()

	p.pool.Close()
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	return pgGet(ctx, p.pool, collection, id)
}

func (p *Postgres) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	return pgList(ctx, p.pool, collection, q)
}

func (p *Postgres) Add(ctx context.Context, collection string, doc any) (string, error) {
	return pgAdd(ctx, p.pool, collection, doc)
}

func (p *Postgres) Set(ctx context.Context, collection, id string, doc any) error {
	return pgSet(ctx, p.pool, collection, id, doc)
}

// Update applies the ops atomically: a multi-op update runs in its own
// transaction so a failure mid-way leaves the document untouched, matching
// the Memory implementation.
func (p *Postgres) Update(ctx context.Context, collection, id string, ops ...FieldOp) error {
	if len(ops) <= 1 {
		return pgUpdate(ctx, p.pool, collection, id, ops)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := pgUpdate(ctx, tx, collection, id, ops); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	return pgDelete(ctx, p.pool, collection, id)
}

func (p *Postgres) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error) {
	initial, err := p.List(ctx, collection, q)
	if err != nil {
		return nil, err
	}

	sub := &pgSub{
		collection: collection,
		query:      q,
		ch:         make(chan []Document, 1),
	}
	sub.ch <- initial

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = sub
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			if _, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(sub.ch)
			}
			p.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return &Subscription{C: sub.ch, cancel: cancel}, nil
}

// listen holds a dedicated connection on the notify channel and fans changes
// out to subscriptions. Reconnects with a short backoff on failure.
func (p *Postgres) listen(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := pgx.Connect(ctx, p.connString)
		if err != nil {
			log.Printf("store: listener connect failed: %v", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
			log.Printf("store: LISTEN failed: %v", err)
			_ = conn.Close(ctx)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("store: notification wait failed, reconnecting: %v", err)
				}
				break
			}
			p.broadcast(ctx, n.Payload)
		}
		_ = conn.Close(context.Background())
	}
}

// broadcast re-queries and re-delivers every subscription on the changed
// collection, replacing any undelivered snapshot.
func (p *Postgres) broadcast(ctx context.Context, collection string) {
	p.mu.Lock()
	targets := make(map[int]*pgSub)
	for id, sub := range p.subs {
		if sub.collection == collection {
			targets[id] = sub
		}
	}
	p.mu.Unlock()

	for id, sub := range targets {
		snap, err := p.List(ctx, collection, sub.query)
		if err != nil {
			log.Printf("store: subscription requery failed: %v", err)
			continue
		}

		p.mu.Lock()
		if _, ok := p.subs[id]; ok {
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
		p.mu.Unlock()
	}
}

// pgTx adapts a pgx transaction to the Tx contract.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Get(ctx context.Context, collection, id string) (Document, error) {
	return pgGet(ctx, t.tx, collection, id)
}

func (t *pgTx) Add(ctx context.Context, collection string, doc any) (string, error) {
	return pgAdd(ctx, t.tx, collection, doc)
}

func (t *pgTx) Set(ctx context.Context, collection, id string, doc any) error {
	return pgSet(ctx, t.tx, collection, id, doc)
}

func (t *pgTx) Update(ctx context.Context, collection, id string, ops ...FieldOp) error {
	return pgUpdate(ctx, t.tx, collection, id, ops)
}

func (t *pgTx) Delete(ctx context.Context, collection, id string) error {
	return pgDelete(ctx, t.tx, collection, id)
}

// --- shared statements ---

func pgGet(ctx context.Context, db pgExec, collection, id string) (Document, error) {
	var raw []byte
	err := db.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}

	return Document{ID: id, Data: raw}, nil
}

func pgList(ctx context.Context, db pgExec, collection string, q Query) ([]Document, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(q) == 0 {
		rows, err = db.Query(ctx,
			`SELECT id, doc FROM documents WHERE collection = $1 ORDER BY updated_at ASC`,
			collection,
		)
	} else {
		filter, merr := json.Marshal(q)
		if merr != nil {
			return nil, merr
		}
		rows, err = db.Query(ctx,
			`SELECT id, doc FROM documents WHERE collection = $1 AND doc @> $2::jsonb ORDER BY updated_at ASC`,
			collection, filter,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Data); err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	return out, rows.Err()
}

func pgAdd(ctx context.Context, db pgExec, collection string, doc any) (string, error) {
	id := uuid.NewString()
	raw, err := encode(doc, id)
	if err != nil {
		return "", err
	}

	_, err = db.Exec(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)`,
		collection, id, raw,
	)

	return id, err
}

func pgSet(ctx context.Context, db pgExec, collection, id string, doc any) error {
	raw, err := encode(doc, id)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, collection, id, raw)

	return err
}

func pgUpdate(ctx context.Context, db pgExec, collection, id string, ops []FieldOp) error {
	if len(ops) == 0 {
		return fmt.Errorf("no fields to update")
	}

	for _, op := range ops {
		path := []string{op.Field}

		var (
			ct  pgconn.CommandTag
			err error
		)
		switch op.Op {
		case OpSet:
			value, merr := json.Marshal(op.Value)
			if merr != nil {
				return merr
			}
			ct, err = db.Exec(ctx, `
				UPDATE documents
				SET doc = jsonb_set(doc, $3, $4::jsonb, true), updated_at = now()
				WHERE collection = $1 AND id = $2
			`, collection, id, path, value)
		case OpArrayAdd:
			// wrapped as a one-element array: containment checks presence,
			// concatenation appends
			element, merr := json.Marshal([]any{op.Value})
			if merr != nil {
				return merr
			}
			ct, err = db.Exec(ctx, `
				UPDATE documents
				SET doc = jsonb_set(doc, $3,
					CASE WHEN COALESCE(doc#>$3, '[]'::jsonb) @> $4::jsonb
					     THEN COALESCE(doc#>$3, '[]'::jsonb)
					     ELSE COALESCE(doc#>$3, '[]'::jsonb) || $4::jsonb
					END, true),
				    updated_at = now()
				WHERE collection = $1 AND id = $2
			`, collection, id, path, element)
		case OpArrayRemove:
			value, merr := json.Marshal(op.Value)
			if merr != nil {
				return merr
			}
			ct, err = db.Exec(ctx, `
				UPDATE documents
				SET doc = jsonb_set(doc, $3,
					COALESCE((
						SELECT jsonb_agg(e)
						FROM jsonb_array_elements(COALESCE(doc#>$3, '[]'::jsonb)) e
						WHERE e <> $4::jsonb
					), '[]'::jsonb), true),
				    updated_at = now()
				WHERE collection = $1 AND id = $2
			`, collection, id, path, value)
		default:
			return fmt.Errorf("unknown field op %d", op.Op)
		}
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
	}

	return nil
}

func pgDelete(ctx context.Context, db pgExec, collection, id string) error {
	ct, err := db.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
