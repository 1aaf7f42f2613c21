package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
)

// ErrInjected is returned by FaultyUnitOfWork when it trips
var ErrInjected = errors.New("injected failure")

// FaultPlan decides which staged write fails. It is shared across the units of work a
// factory hands out so retries observe the remaining budget.
type FaultPlan struct {
	mu sync.Mutex

	// FailWrite is the Write.Name to fail; empty fails nothing at stage time.
	FailWrite string
	// FailCommit makes Commit fail instead of a staged write.
	FailCommit bool
	// Times is how many failures to inject; 0 means always.
	Times int
	// Err is returned on failure; defaults to ErrInjected.
	Err error
	// OnStage, when set, is called after each write is staged and before any failure is
	// injected for it.
	OnStage func(name string)

	injected int
	begins   int
}

func (p *FaultPlan) trip(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name != p.FailWrite {
		return nil
	}
	if p.Times > 0 && p.injected >= p.Times {
		return nil
	}
	p.injected++
	if p.Err != nil {
		return p.Err
	}
	return ErrInjected
}

// Injected returns how many failures were injected.
func (p *FaultPlan) Injected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.injected
}

// Begins returns how many transactions were opened.
func (p *FaultPlan) Begins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.begins
}

// FaultyUnitOfWork wraps a real unit of work and fails according to its plan
type FaultyUnitOfWork struct {
	inner repositories.UnitOfWork
	plan  *FaultPlan
}

// NewFaultyFactory returns a factory whose units of work share plan.
func NewFaultyFactory(next repositories.UnitOfWorkFactory, plan *FaultPlan) repositories.UnitOfWorkFactory {
	return func() repositories.UnitOfWork {
		return &FaultyUnitOfWork{inner: next(), plan: plan}
	}
}

func (u *FaultyUnitOfWork) Begin(ctx context.Context) error {
	u.plan.mu.Lock()
	u.plan.begins++
	u.plan.mu.Unlock()
	return u.inner.Begin(ctx)
}

func (u *FaultyUnitOfWork) Stage(ctx context.Context, w repositories.Write) error {
	if err := u.inner.Stage(ctx, w); err != nil {
		return err
	}
	if u.plan.OnStage != nil {
		u.plan.OnStage(w.Name)
	}
	if err := u.plan.trip(w.Name); err != nil {
		return &repositories.StageError{Write: w.Name, RecordID: w.RecordID, Err: err}
	}
	return nil
}

func (u *FaultyUnitOfWork) Commit() error {
	if u.plan.FailCommit {
		if err := u.plan.trip(u.plan.FailWrite); err != nil {
			u.inner.Rollback()
			return err
		}
	}
	return u.inner.Commit()
}

func (u *FaultyUnitOfWork) Rollback() error {
	return u.inner.Rollback()
}

func (u *FaultyUnitOfWork) State() models.BatchState {
	return u.inner.State()
}
