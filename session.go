package eav

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Session is a unit of work over a Storage. It tracks new, modified and
// deleted entities and writes them in one storage transaction on Commit.
// A Session must not be used from more than one goroutine at a time.
type Session struct {
	registry *Registry
	storage  Storage
	tx       Tx

	identity map[int64]*Entity
	pending  []*Entity
	deleted  []*Entity

	// undo reverts the bookkeeping of flushed changes if the transaction
	// does not commit.
	undo   []func()
	closed bool
}

// NewSession starts a unit of work. The storage transaction begins on the
// first operation that needs it.
func NewSession(registry *Registry, storage Storage) *Session {
	return &Session{
		registry: registry,
		storage:  storage,
		identity: make(map[int64]*Entity),
	}
}

func (s *Session) begin(ctx context.Context) (Tx, error) {
	if s.closed {
		return nil, NewError(ErrorTypeInternal, ErrCodeSessionClosed, "session is closed")
	}
	if s.tx != nil {
		return s.tx, nil
	}
	if s.storage == nil {
		return nil, NewError(ErrorTypeInternal, ErrCodeStorageRequired, "session has no storage")
	}
	tx, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *Session) own(e *Entity) error {
	if e == nil {
		return NewError(ErrorTypeInternal, ErrCodeUnsavedEntity, "entity is nil")
	}
	if s.closed {
		return NewError(ErrorTypeInternal, ErrCodeSessionClosed, "session is closed")
	}
	if e.session != nil && e.session != s {
		return NewError(ErrorTypeInternal, ErrCodeForeignEntity, "entity belongs to another session").
			WithSchema(e.schema.name)
	}
	return nil
}

// Add schedules a new entity for insertion. Adding an entity that is already
// tracked is a no-op; adding one marked for deletion cancels the deletion.
// A persistent entity detached by Close is attached to s, and its pending
// changes are written by the next flush.
func (s *Session) Add(e *Entity) error {
	if err := s.own(e); err != nil {
		return err
	}
	switch e.state {
	case stateTransient:
		e.state = statePending
		e.session = s
		s.pending = append(s.pending, e)
	case statePersistent:
		if e.session == s {
			return nil
		}
		if tracked, ok := s.identity[e.id]; ok && tracked != e {
			return NewError(ErrorTypeInternal, ErrCodeIdentityConflict,
				fmt.Sprintf("session already tracks another instance of entity %d", e.id)).
				WithSchema(e.schema.name)
		}
		e.session = s
		s.identity[e.id] = e
	case stateDeleted:
		if idx := indexOf(s.deleted, e); idx >= 0 {
			s.deleted = append(s.deleted[:idx], s.deleted[idx+1:]...)
			e.state = statePersistent
			return nil
		}
		return NewEntityNotFoundError(e.id).WithDetail("reason", "entity was deleted")
	}
	return nil
}

// Delete schedules e for deletion. Deleting a pending entity just forgets it.
func (s *Session) Delete(e *Entity) error {
	if err := s.own(e); err != nil {
		return err
	}
	switch e.state {
	case statePending:
		if idx := indexOf(s.pending, e); idx >= 0 {
			s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		}
		e.state = stateTransient
		e.session = nil
	case statePersistent:
		e.state = stateDeleted
		s.deleted = append(s.deleted, e)
	case stateTransient:
		return NewError(ErrorTypeInternal, ErrCodeUnsavedEntity, "entity was never added to a session").
			WithSchema(e.schema.name)
	}
	return nil
}

// Get loads the entity of the given schema with the given id. Entities
// already tracked by the session are returned as-is.
func (s *Session) Get(ctx context.Context, schema *Schema, id int64) (*Entity, error) {
	if schema == nil {
		return nil, NewValidationError("", ErrCodeSchemaNotFound, "schema is nil")
	}
	if e, ok := s.identity[id]; ok {
		if e.state == stateDeleted || e.schema != schema {
			return nil, NewEntityNotFoundError(id).WithSchema(schema.name)
		}
		return e, nil
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	name, found, err := tx.LoadEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found || name != schema.name {
		return nil, NewEntityNotFoundError(id).WithSchema(schema.name)
	}
	return s.hydrate(ctx, tx, schema, id)
}

// Load loads an entity by id whatever its schema, resolving the
// discriminator through the registry.
func (s *Session) Load(ctx context.Context, id int64) (*Entity, error) {
	if e, ok := s.identity[id]; ok {
		if e.state == stateDeleted {
			return nil, NewEntityNotFoundError(id)
		}
		return e, nil
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	name, found, err := tx.LoadEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NewEntityNotFoundError(id)
	}
	schema, ok := s.registry.Schema(name)
	if !ok {
		return nil, NewSchemaNotFoundError(name).WithDetail("entityId", id)
	}
	return s.hydrate(ctx, tx, schema, id)
}

func (s *Session) hydrate(ctx context.Context, tx Tx, schema *Schema, id int64) (*Entity, error) {
	e := newEntity(schema)
	e.id = id
	e.state = statePersistent
	e.session = s

	for _, table := range schema.Tables() {
		values, err := tx.LoadValues(ctx, table, id)
		if err != nil {
			return nil, err
		}
		coll := e.Collection(table.Relationship)
		for name, value := range values {
			desc, ok := schema.byName[name]
			if !ok || desc.table != table {
				continue
			}
			coll.entries[name] = &AttributeValue{Name: name, Value: value, persisted: true}
		}
	}

	s.identity[id] = e
	return e, nil
}

// Flush writes pending changes inside the session's transaction without
// committing it. On failure the transaction is rolled back.
func (s *Session) Flush(ctx context.Context) error {
	if s.closed {
		return NewError(ErrorTypeInternal, ErrCodeSessionClosed, "session is closed")
	}
	if !s.hasChanges() {
		return nil
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	if err := s.flush(ctx, tx); err != nil {
		if rbErr := s.Rollback(ctx); rbErr != nil {
			zap.S().Warnw("rollback after failed flush", "err", rbErr)
		}
		return err
	}
	return nil
}

func (s *Session) hasChanges() bool {
	if len(s.pending) > 0 || len(s.deleted) > 0 {
		return true
	}
	for _, e := range s.identity {
		if e.state == statePersistent && e.IsDirty() {
			return true
		}
	}
	return false
}

func (s *Session) flush(ctx context.Context, tx Tx) error {
	var inserted, upserted, removed, deleted int

	pending := s.pending
	for _, e := range pending {
		id, err := tx.InsertEntity(ctx, e.schema.name)
		if err != nil {
			return err
		}
		e.id = id
		e.state = statePersistent
		s.identity[id] = e
		s.undo = append(s.undo, func() {
			delete(s.identity, e.id)
			e.id = 0
			e.state = statePending
		})
		inserted++
	}
	s.pending = nil
	s.undo = append(s.undo, func() { s.pending = pending })

	for _, e := range s.orderedIdentity() {
		if e.state != statePersistent {
			continue
		}
		for _, relName := range sortedKeys(e.collections) {
			coll := e.collections[relName]
			table := coll.rel.Target
			for _, entry := range coll.dirtyEntries() {
				if err := tx.UpsertValue(ctx, table, e.id, entry.Name, entry.Value); err != nil {
					return err
				}
				wasPersisted := entry.persisted
				entry.dirty = false
				entry.persisted = true
				s.undo = append(s.undo, func() {
					entry.dirty = true
					entry.persisted = wasPersisted
				})
				upserted++
			}
			for _, name := range coll.orphanNames() {
				if err := tx.DeleteValue(ctx, table, e.id, name); err != nil {
					return err
				}
				orphan := coll.orphans[name]
				delete(coll.orphans, name)
				s.undo = append(s.undo, func() { coll.orphans[orphan.Name] = orphan })
				removed++
			}
		}
	}

	tables := s.registry.Tables()
	doomed := s.deleted
	for _, e := range doomed {
		if err := tx.DeleteEntity(ctx, e.id, tables); err != nil {
			return err
		}
		delete(s.identity, e.id)
		s.undo = append(s.undo, func() { s.identity[e.id] = e })
		deleted++
	}
	s.deleted = nil
	s.undo = append(s.undo, func() { s.deleted = doomed })

	zap.S().Debugw("session flushed",
		"inserted", inserted, "upserted", upserted, "removed", removed, "deleted", deleted)
	emitFlushRows(ctx, "insert", inserted)
	emitFlushRows(ctx, "upsert", upserted)
	emitFlushRows(ctx, "orphan", removed)
	emitFlushRows(ctx, "delete", deleted)
	return nil
}

func (s *Session) orderedIdentity() []*Entity {
	ids := make([]int64, 0, len(s.identity))
	for id := range s.identity {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*Entity, len(ids))
	for i, id := range ids {
		out[i] = s.identity[id]
	}
	return out
}

// Commit flushes pending changes and commits the transaction.
func (s *Session) Commit(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		emitCommitLatency(ctx, outcome, time.Since(start).Milliseconds())
	}()

	if err := s.Flush(ctx); err != nil {
		return err
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		s.revert()
		return fmt.Errorf("commit unit of work: %w", err)
	}
	s.undo = nil
	return nil
}

// Rollback aborts the transaction. Changes that were flushed become pending
// again, so a later Commit retries them.
func (s *Session) Rollback(ctx context.Context) error {
	s.revert()
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback unit of work: %w", err)
	}
	return nil
}

func (s *Session) revert() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}

// Close rolls back any open transaction and releases tracked entities.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	err := s.Rollback(ctx)
	for _, e := range s.identity {
		e.session = nil
	}
	for _, e := range s.pending {
		e.session = nil
		e.state = stateTransient
	}
	s.identity = make(map[int64]*Entity)
	s.pending = nil
	s.deleted = nil
	s.closed = true
	return err
}

func indexOf(list []*Entity, e *Entity) int {
	for i, item := range list {
		if item == e {
			return i
		}
	}
	return -1
}
