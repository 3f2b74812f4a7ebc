package internal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lychee-technology/eav"
)

type memoryState struct {
	entities map[int64]string
	// values is keyed by value table name, then entity id, then attribute name.
	values map[string]map[int64]map[string]any
}

func newMemoryState() memoryState {
	return memoryState{
		entities: make(map[int64]string),
		values:   make(map[string]map[int64]map[string]any),
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		entities: make(map[int64]string, len(s.entities)),
		values:   make(map[string]map[int64]map[string]any, len(s.values)),
	}
	for id, schema := range s.entities {
		out.entities[id] = schema
	}
	for table, rows := range s.values {
		cloned := make(map[int64]map[string]any, len(rows))
		for id, row := range rows {
			r := make(map[string]any, len(row))
			for name, value := range row {
				r[name] = value
			}
			cloned[id] = r
		}
		out.values[table] = cloned
	}
	return out
}

func (s memoryState) putEntity(id int64, schema string) {
	s.entities[id] = schema
}

func (s memoryState) removeEntity(id int64, tables []string) {
	for _, table := range tables {
		delete(s.values[table], id)
	}
	delete(s.entities, id)
}

func (s memoryState) putValue(table string, id int64, name string, value any) {
	rows, ok := s.values[table]
	if !ok {
		rows = make(map[int64]map[string]any)
		s.values[table] = rows
	}
	row, ok := rows[id]
	if !ok {
		row = make(map[string]any)
		rows[id] = row
	}
	row[name] = value
}

func (s memoryState) removeValue(table string, id int64, name string) {
	rows := s.values[table]
	if row, ok := rows[id]; ok {
		delete(row, name)
		if len(row) == 0 {
			delete(rows, id)
		}
	}
}

// MemoryStorage is a process-local eav.Storage. Each transaction reads a
// snapshot taken at Begin and logs its writes; Commit replays the log onto
// the committed state, so concurrent writers to the same row are
// last-commit-wins.
type MemoryStorage struct {
	mu     sync.RWMutex
	state  memoryState
	ready  bool
	nextID atomic.Int64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{state: newMemoryState()}
}

func (s *MemoryStorage) CreateEntityTable(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

func (s *MemoryStorage) CreateValueTable(_ context.Context, table *eav.ValueTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return fmt.Errorf("create value table %s: entity table does not exist", table.Name)
	}
	if _, ok := s.state.values[table.Name]; !ok {
		s.state.values[table.Name] = make(map[int64]map[string]any)
	}
	return nil
}

func (s *MemoryStorage) Begin(_ context.Context) (eav.Tx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, fmt.Errorf("begin transaction: storage is not bootstrapped")
	}
	return &memoryTx{store: s, state: s.state.clone()}, nil
}

// Len reports the number of committed entities.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.entities)
}

// RowCount reports the number of committed rows in a value table.
func (s *MemoryStorage) RowCount(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, row := range s.state.values[table] {
		n += len(row)
	}
	return n
}

type memoryTx struct {
	store *MemoryStorage
	state memoryState
	// writes are applied to state immediately and replayed onto the store at Commit.
	writes []func(memoryState)
	done   bool
}

func (t *memoryTx) write(op func(memoryState)) {
	op(t.state)
	t.writes = append(t.writes, op)
}

func (t *memoryTx) check() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	return nil
}

func (t *memoryTx) rows(table *eav.ValueTable) (map[int64]map[string]any, error) {
	rows, ok := t.state.values[table.Name]
	if !ok {
		return nil, fmt.Errorf("value table %s does not exist", table.Name)
	}
	return rows, nil
}

func (t *memoryTx) InsertEntity(_ context.Context, schema string) (int64, error) {
	if err := t.check(); err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	id := t.store.nextID.Add(1)
	t.write(func(s memoryState) { s.putEntity(id, schema) })
	return id, nil
}

func (t *memoryTx) LoadEntity(_ context.Context, id int64) (string, bool, error) {
	if err := t.check(); err != nil {
		return "", false, fmt.Errorf("load entity: %w", err)
	}
	schema, ok := t.state.entities[id]
	return schema, ok, nil
}

func (t *memoryTx) DeleteEntity(_ context.Context, id int64, tables []*eav.ValueTable) error {
	if err := t.check(); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	names := make([]string, len(tables))
	for i, table := range tables {
		if _, err := t.rows(table); err != nil {
			return fmt.Errorf("delete values: %w", err)
		}
		names[i] = table.Name
	}
	t.write(func(s memoryState) { s.removeEntity(id, names) })
	return nil
}

func (t *memoryTx) LoadValues(_ context.Context, table *eav.ValueTable, entityID int64) (map[string]any, error) {
	if err := t.check(); err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	rows, err := t.rows(table)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	values := make(map[string]any, len(rows[entityID]))
	for name, value := range rows[entityID] {
		values[name] = value
	}
	return values, nil
}

func (t *memoryTx) UpsertValue(_ context.Context, table *eav.ValueTable, entityID int64, name string, value any) error {
	if err := t.check(); err != nil {
		return fmt.Errorf("upsert value: %w", err)
	}
	if _, ok := t.state.entities[entityID]; !ok {
		return fmt.Errorf("upsert value into %s: entity %d does not exist", table.Name, entityID)
	}
	if _, err := t.rows(table); err != nil {
		return fmt.Errorf("upsert value: %w", err)
	}
	t.write(func(s memoryState) { s.putValue(table.Name, entityID, name, value) })
	return nil
}

func (t *memoryTx) DeleteValue(_ context.Context, table *eav.ValueTable, entityID int64, name string) error {
	if err := t.check(); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	if _, err := t.rows(table); err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	t.write(func(s memoryState) { s.removeValue(table.Name, entityID, name) })
	return nil
}

func (t *memoryTx) Commit(_ context.Context) error {
	if err := t.check(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.writes {
		op(t.store.state)
	}
	t.writes = nil
	return nil
}

func (t *memoryTx) Rollback(_ context.Context) error {
	t.done = true
	t.writes = nil
	return nil
}
