package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/services/installer"
)

// Call records one UpdateRules invocation.
type Call struct {
	Add       []domain.CompiledRule
	RemoveIDs []int
}

// Engine is an in-process rule table with the same update semantics as the
// bbolt engine. It records every call and can be told to fail.
type Engine struct {
	mu         sync.Mutex
	rules      map[int]domain.CompiledRule
	maxRules   int
	generation uint64
	calls      []Call
	failNext   error
}

// New returns an empty engine. maxRules <= 0 disables the quota.
func New(maxRules int) *Engine {
	return &Engine{rules: make(map[int]domain.CompiledRule), maxRules: maxRules}
}

// FailNext makes the next UpdateRules call return err without changing state.
func (e *Engine) FailNext(err error) {
	e.mu.Lock()
	e.failNext = err
	e.mu.Unlock()
}

func (e *Engine) UpdateRules(ctx context.Context, add []domain.CompiledRule, removeIDs []int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, Call{Add: append([]domain.CompiledRule(nil), add...), RemoveIDs: append([]int(nil), removeIDs...)})
	if err := e.failNext; err != nil {
		e.failNext = nil
		return err
	}
	if err := domain.ValidateBatch(add); err != nil {
		return err
	}

	next := make(map[int]domain.CompiledRule, len(e.rules)+len(add))
	for id, r := range e.rules {
		next[id] = r
	}
	for _, id := range removeIDs {
		delete(next, id)
	}
	for _, r := range add {
		if _, ok := next[r.ID]; ok {
			return fmt.Errorf("%w: rule id %d is already installed", domain.ErrInvalidRule, r.ID)
		}
		next[r.ID] = r
	}
	if e.maxRules > 0 && len(next) > e.maxRules {
		return fmt.Errorf("%w: %d rules exceeds limit %d", domain.ErrQuotaExceeded, len(next), e.maxRules)
	}
	e.rules = next
	e.generation++
	return nil
}

// Rules returns installed rules ordered by id.
func (e *Engine) Rules(ctx context.Context) ([]domain.CompiledRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.CompiledRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Generation returns the number of successful writes.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Calls returns a copy of the recorded UpdateRules calls.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

var _ installer.Engine = (*Engine)(nil)
