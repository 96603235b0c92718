package borrow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"lendingapi/internal/availability"
)

// memStore is an in-memory Store. InTx holds one mutex for the whole
// transaction and works on copies, so a failed fn leaves nothing behind.
type memStore struct {
	mu       sync.Mutex
	requests map[string]Request
	stock    map[string]availability.Stock
	seq      int

	// failCommit, when set, makes InTx drop the transaction after fn ran.
	failCommit error
}

func newMemStore() *memStore {
	return &memStore{
		requests: map[string]Request{},
		stock:    map[string]availability.Stock{},
	}
}

func (m *memStore) putBook(id string, total, available int) {
	s, err := availability.Restore(total, available)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	m.stock[id] = s
	m.mu.Unlock()
}

func (m *memStore) putRequest(r Request) {
	m.mu.Lock()
	m.requests[r.ID] = r
	m.mu.Unlock()
}

func (m *memStore) bookStock(id string) availability.Stock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[id]
}

func (m *memStore) request(id string) Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		requests: make(map[string]Request, len(m.requests)),
		stock:    make(map[string]availability.Stock, len(m.stock)),
		seq:      m.seq,
	}
	for k, v := range m.requests {
		tx.requests[k] = v
	}
	for k, v := range m.stock {
		tx.stock[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}
	if m.failCommit != nil {
		return m.failCommit
	}
	m.requests, m.stock, m.seq = tx.requests, tx.stock, tx.seq
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}

func (m *memStore) List(ctx context.Context, q Query) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Request
	for _, r := range m.requests {
		if q.UserID != "" && r.UserID != q.UserID {
			continue
		}
		if q.BookID != "" && r.BookID != q.BookID {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.ActiveOnly && !r.Status.IsActive() {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(r.BookTitle), strings.ToLower(q.Search)) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if !q.After.IsZero() {
		at, err := q.After.Time()
		if err != nil {
			return nil, err
		}
		i := 0
		for i < len(out) && (out[i].CreatedAt.After(at) || (out[i].CreatedAt.Equal(at) && out[i].ID >= q.After.AfterID)) {
			i++
		}
		out = out[i:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type memTx struct {
	requests map[string]Request
	stock    map[string]availability.Stock
	seq      int
}

func (t *memTx) LockRequest(ctx context.Context, id string) (Request, error) {
	r, ok := t.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}

func (t *memTx) LockActive(ctx context.Context, bookID, userID string) (Request, error) {
	for _, r := range t.requests {
		if r.BookID == bookID && r.UserID == userID && r.Status.IsActive() {
			return r, nil
		}
	}
	return Request{}, ErrNotFound
}

func (t *memTx) LockStock(ctx context.Context, bookID string) (availability.Stock, error) {
	s, ok := t.stock[bookID]
	if !ok {
		return availability.Stock{}, ErrBookNotFound
	}
	return s, nil
}

func (t *memTx) SaveStock(ctx context.Context, bookID string, s availability.Stock) error {
	if _, ok := t.stock[bookID]; !ok {
		return ErrBookNotFound
	}
	t.stock[bookID] = s
	return nil
}

func (t *memTx) InsertRequest(ctx context.Context, r *Request) error {
	t.seq++
	r.ID = fmt.Sprintf("req-%03d", t.seq)
	t.requests[r.ID] = *r
	return nil
}

func (t *memTx) UpdateRequest(ctx context.Context, r *Request) error {
	if _, ok := t.requests[r.ID]; !ok {
		return ErrNotFound
	}
	t.requests[r.ID] = *r
	return nil
}

// stepClock hands out strictly increasing times.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}
