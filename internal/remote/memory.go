package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/models"

	"github.com/google/uuid"
)

type row = map[string]any

// tracksUpdates lists the tables with an updated_at column.
var tracksUpdates = map[string]bool{
	models.TableItems:   true,
	models.TableAbout:   true,
	models.TableAppInfo: true,
}

// Memory is an in-process Source. Writes fan out change events to subscribers
// synchronously, after the write is committed and the lock released.
type Memory struct {
	mu       sync.Mutex
	tables   map[string][]row
	subs     map[string]map[uint64]domain.ChangeHandler
	nextSub  uint64
	failures map[string]error
	clock    func() time.Time
	last     time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tables:   make(map[string][]row),
		subs:     make(map[string]map[uint64]domain.ChangeHandler),
		failures: make(map[string]error),
		clock:    time.Now,
	}
}

// FailSelect makes every Select on table fail with err until cleared with nil.
func (m *Memory) FailSelect(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, table)
		return
	}
	m.failures[table] = err
}

// Seed stores rows without emitting change events. Rows are taken as oldest first.
func (m *Memory) Seed(table string, rows ...map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		stored, err := toRow(r)
		if err != nil {
			return fmt.Errorf("seed %s: %w", table, err)
		}
		m.stamp(table, stored, true)
		m.tables[table] = append(m.tables[table], stored)
	}
	return nil
}

func (m *Memory) Select(ctx context.Context, table string, q domain.Query, out any) error {
	if err := ctx.Err(); err != nil {
		return domain.Remote("select", table, err)
	}

	m.mu.Lock()
	if err := m.failures[table]; err != nil {
		m.mu.Unlock()
		return domain.Remote("select", table, err)
	}
	src := m.tables[table]
	matched := make([]row, 0, len(src))
	// newest insert first, then a stable sort keeps that order for equal timestamps
	for i := len(src) - 1; i >= 0; i-- {
		if matches(src[i], q.Filters) {
			matched = append(matched, src[i])
		}
	}
	m.mu.Unlock()

	if !q.Unordered {
		sort.SliceStable(matched, func(i, j int) bool {
			return createdAt(matched[i]).After(createdAt(matched[j]))
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	raw, err := json.Marshal(matched)
	if err != nil {
		return domain.Remote("select", table, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.Remote("select", table, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func (m *Memory) Insert(ctx context.Context, table string, record any, out any) error {
	if err := ctx.Err(); err != nil {
		return domain.Remote("insert", table, err)
	}
	stored, err := toRow(record)
	if err != nil {
		return domain.Remote("insert", table, err)
	}

	m.mu.Lock()
	if id, _ := stored["id"].(string); id != "" && m.indexOf(table, id) >= 0 {
		m.mu.Unlock()
		return domain.Remote("insert", table, fmt.Errorf("duplicate id %s", id))
	}
	m.stamp(table, stored, true)
	m.tables[table] = append(m.tables[table], stored)
	raw, err := json.Marshal(stored)
	m.mu.Unlock()
	if err != nil {
		return domain.Remote("insert", table, err)
	}

	m.emit(domain.Change{Table: table, Kind: domain.ChangeInsert, New: raw})
	return decodeInto(raw, out)
}

func (m *Memory) Update(ctx context.Context, table, id string, patch any, out any) error {
	if err := ctx.Err(); err != nil {
		return domain.Remote("update", table, err)
	}
	fields, err := toRow(patch)
	if err != nil {
		return domain.Remote("update", table, err)
	}

	m.mu.Lock()
	idx := m.indexOf(table, id)
	if idx < 0 {
		m.mu.Unlock()
		return domain.NotFound(table, id)
	}
	old, _ := json.Marshal(m.tables[table][idx])
	merged := make(row, len(m.tables[table][idx])+len(fields))
	for k, v := range m.tables[table][idx] {
		merged[k] = v
	}
	for k, v := range fields {
		if k == "id" || k == "created_at" {
			continue
		}
		merged[k] = v
	}
	m.stamp(table, merged, false)
	m.tables[table][idx] = merged
	raw, err := json.Marshal(merged)
	m.mu.Unlock()
	if err != nil {
		return domain.Remote("update", table, err)
	}

	m.emit(domain.Change{Table: table, Kind: domain.ChangeUpdate, New: raw, Old: old})
	return decodeInto(raw, out)
}

func (m *Memory) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return domain.Remote("delete", table, err)
	}

	m.mu.Lock()
	idx := m.indexOf(table, id)
	if idx < 0 {
		m.mu.Unlock()
		return domain.NotFound(table, id)
	}
	old, _ := json.Marshal(m.tables[table][idx])
	rows := m.tables[table]
	m.tables[table] = append(rows[:idx:idx], rows[idx+1:]...)
	m.mu.Unlock()

	m.emit(domain.Change{Table: table, Kind: domain.ChangeDelete, Old: old})
	return nil
}

func (m *Memory) Subscribe(_ context.Context, table string, handler domain.ChangeHandler) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	if m.subs[table] == nil {
		m.subs[table] = make(map[uint64]domain.ChangeHandler)
	}
	m.subs[table][id] = handler

	return &memorySubscription{memory: m, table: table, id: id}, nil
}

// Subscribers returns how many live subscriptions a table has.
func (m *Memory) Subscribers(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[table])
}

func (m *Memory) emit(change domain.Change) {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.subs[change.Table]))
	for id := range m.subs[change.Table] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]domain.ChangeHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, m.subs[change.Table][id])
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(change)
	}
}

func (m *Memory) indexOf(table, id string) int {
	for i, r := range m.tables[table] {
		if rid, _ := r["id"].(string); rid == id {
			return i
		}
	}
	return -1
}

// stamp assigns ids and timestamps. Timestamps are strictly increasing so
// newest-first ordering is deterministic. updated_at is only kept on tables
// that have the column.
func (m *Memory) stamp(table string, r row, insert bool) {
	now := m.clock().UTC()
	if !now.After(m.last) {
		now = m.last.Add(time.Microsecond)
	}
	m.last = now
	ts := now.Format(time.RFC3339Nano)

	if insert {
		if id, _ := r["id"].(string); id == "" {
			r["id"] = uuid.NewString()
		}
		if _, ok := r["created_at"]; !ok {
			r["created_at"] = ts
		}
	}
	if tracksUpdates[table] {
		r["updated_at"] = ts
	}
}

type memorySubscription struct {
	memory *Memory
	table  string
	id     uint64
	once   sync.Once
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.memory.mu.Lock()
		delete(s.memory.subs[s.table], s.id)
		s.memory.mu.Unlock()
	})
	return nil
}

func toRow(v any) (row, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	r := make(row)
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	return r, nil
}

func matches(r row, filters []domain.Filter) bool {
	for _, f := range filters {
		v, ok := r[f.Column]
		if !ok || v == nil || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func createdAt(r row) time.Time {
	s, _ := r["created_at"].(string)
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func decodeInto(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
