// Package memory provides an in-process ledger store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/wekeepgrowing/academy-payments/internal/domain/errors"
	"github.com/wekeepgrowing/academy-payments/internal/domain/model"
	"github.com/wekeepgrowing/academy-payments/internal/domain/repository"
)

// LedgerStore keeps entries and processed-event markers in maps. Transactions
// are serialized by one mutex and applied to a copy that replaces the live
// state on commit.
type LedgerStore struct {
	mu     sync.Mutex
	state  *state
	failTx error
}

type state struct {
	entries    map[uuid.UUID]model.LedgerEntry
	byExternal map[string]uuid.UUID
	events     map[string]model.ProcessedEvent
}

// NewLedgerStore creates an empty store
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{state: &state{
		entries:    make(map[uuid.UUID]model.LedgerEntry),
		byExternal: make(map[string]uuid.UUID),
		events:     make(map[string]model.ProcessedEvent),
	}}
}

var _ repository.LedgerStore = (*LedgerStore)(nil)

// FailTransactions makes every following RunInTx return err before running fn.
// Passing nil restores normal behavior.
func (s *LedgerStore) FailTransactions(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTx = err
}

// ProcessedEvents returns a snapshot of all markers.
func (s *LedgerStore) ProcessedEvents() []model.ProcessedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ProcessedEvent, 0, len(s.state.events))
	for _, e := range s.state.events {
		out = append(out, e)
	}
	return out
}

func (s *LedgerStore) Create(ctx context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.create(entry)
}

func (s *LedgerStore) GetByID(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.get(id)
}

func (s *LedgerStore) GetByExternalID(ctx context.Context, externalID string) (*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getByExternal(externalID)
}

func (s *LedgerStore) List(ctx context.Context, query repository.LedgerQuery) ([]*model.LedgerEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*model.LedgerEntry
	for _, e := range s.state.entries {
		if query.BeneficiaryID != "" && e.BeneficiaryID != query.BeneficiaryID {
			continue
		}
		if query.Status != "" && e.Status != query.Status {
			continue
		}
		e := e
		matched = append(matched, &e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	} else if limit > 100 {
		limit = 100
	}
	if query.Offset >= len(matched) {
		return []*model.LedgerEntry{}, total, nil
	}
	matched = matched[query.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *LedgerStore) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*model.LedgerEntry
	for _, e := range s.state.entries {
		if e.Status == model.LedgerStatusPending && e.CreatedAt.Before(createdBefore) {
			e := e
			stale = append(stale, &e)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (s *LedgerStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.events[eventID]
	return ok, nil
}

func (s *LedgerStore) EvictProcessedEvents(ctx context.Context, processedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.state.events {
		if e.ProcessedAt.Before(processedBefore) {
			delete(s.state.events, id)
			n++
		}
	}
	return n, nil
}

func (s *LedgerStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failTx != nil {
		return s.failTx
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged := s.state.clone()
	if err := fn(ctx, staged); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (st *state) clone() *state {
	c := &state{
		entries:    make(map[uuid.UUID]model.LedgerEntry, len(st.entries)),
		byExternal: make(map[string]uuid.UUID, len(st.byExternal)),
		events:     make(map[string]model.ProcessedEvent, len(st.events)),
	}
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.byExternal {
		c.byExternal[k] = v
	}
	for k, v := range st.events {
		c.events[k] = v
	}
	return c
}

func (st *state) create(entry *model.LedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if _, ok := st.entries[entry.ID]; ok {
		return repository.ErrDuplicateKey
	}
	if ext := entry.ExternalID(); ext != "" {
		if _, ok := st.byExternal[ext]; ok {
			return repository.ErrDuplicateKey
		}
		st.byExternal[ext] = entry.ID
	}
	st.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (st *state) get(id uuid.UUID) (*model.LedgerEntry, error) {
	e, ok := st.entries[id]
	if !ok {
		return nil, domainErrors.ErrLedgerEntryNotFound
	}
	out := copyEntry(&e)
	return &out, nil
}

func (st *state) getByExternal(externalID string) (*model.LedgerEntry, error) {
	id, ok := st.byExternal[externalID]
	if !ok {
		return nil, domainErrors.ErrLedgerEntryNotFound
	}
	return st.get(id)
}

func (st *state) save(entry *model.LedgerEntry) error {
	current, ok := st.entries[entry.ID]
	if !ok {
		return domainErrors.ErrLedgerEntryNotFound
	}
	oldExt, newExt := current.ExternalID(), entry.ExternalID()
	if newExt != oldExt {
		if owner, taken := st.byExternal[newExt]; newExt != "" && taken && owner != entry.ID {
			return repository.ErrDuplicateKey
		}
		delete(st.byExternal, oldExt)
		if newExt != "" {
			st.byExternal[newExt] = entry.ID
		}
	}
	st.entries[entry.ID] = copyEntry(entry)
	return nil
}

// state doubles as the transactional view; the store mutex is already held.

func (st *state) MarkEventProcessed(ctx context.Context, event *model.ProcessedEvent) (bool, error) {
	if _, ok := st.events[event.EventID]; ok {
		return false, nil
	}
	st.events[event.EventID] = *event
	return true, nil
}

func (st *state) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.LedgerEntry, error) {
	return st.get(id)
}

func (st *state) GetByExternalIDForUpdate(ctx context.Context, externalID string) (*model.LedgerEntry, error) {
	return st.getByExternal(externalID)
}

func (st *state) Create(ctx context.Context, entry *model.LedgerEntry) error {
	return st.create(entry)
}

func (st *state) Save(ctx context.Context, entry *model.LedgerEntry) error {
	return st.save(entry)
}

// copyEntry detaches pointer fields so callers cannot mutate stored state.
func copyEntry(e *model.LedgerEntry) model.LedgerEntry {
	out := *e
	if e.ExternalTransactionID != nil {
		v := *e.ExternalTransactionID
		out.ExternalTransactionID = &v
	}
	if e.Reference != nil {
		v := *e.Reference
		out.Reference = &v
	}
	if e.FailureReason != nil {
		v := *e.FailureReason
		out.FailureReason = &v
	}
	return out
}
