package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

// Write is one statement group staged inside a unit of work.
type Write struct {
	Name     string
	RecordID uuid.UUID
	Apply    func(ctx context.Context, tx sqlx.ExtContext) error
}

// UnitOfWork groups staged writes into a single all-or-nothing transaction.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Stage(ctx context.Context, w Write) error
	Commit() error
	Rollback() error
	State() models.BatchState
}

// UnitOfWorkFactory opens a fresh unit of work per transaction attempt.
type UnitOfWorkFactory func() UnitOfWork

// StageError carries the record a failed write was staged for.
type StageError struct {
	Write    string
	RecordID uuid.UUID
	Err      error
}

func (e *StageError) Error() string {
	if e.RecordID == uuid.Nil {
		return "stage " + e.Write + ": " + e.Err.Error()
	}
	return "stage " + e.Write + " for " + e.RecordID.String() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type sqlxUnitOfWork struct {
	db     *sqlx.DB
	tx     *sqlx.Tx
	state  models.BatchState
	staged int
}

// NewUnitOfWork returns a pending unit of work on db.
func NewUnitOfWork(db *sqlx.DB) UnitOfWork {
	return &sqlxUnitOfWork{db: db, state: models.BatchStatePending}
}

func (u *sqlxUnitOfWork) Begin(ctx context.Context) error {
	if u.state != models.BatchStatePending {
		return eris.Errorf("repositories: begin in state %s", u.state)
	}
	tx, err := u.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return eris.Wrap(err, "repositories: begin transaction")
	}
	u.tx = tx
	u.state = models.BatchStateWriting
	return nil
}

func (u *sqlxUnitOfWork) Stage(ctx context.Context, w Write) error {
	if u.state != models.BatchStateWriting {
		return eris.Errorf("repositories: stage %s in state %s", w.Name, u.state)
	}
	if err := w.Apply(ctx, u.tx); err != nil {
		return &StageError{Write: w.Name, RecordID: w.RecordID, Err: err}
	}
	u.staged++
	return nil
}

func (u *sqlxUnitOfWork) Commit() error {
	if u.state != models.BatchStateWriting {
		return eris.Errorf("repositories: commit in state %s", u.state)
	}
	if err := u.tx.Commit(); err != nil {
		u.state = models.BatchStateRolledBack
		return eris.Wrap(err, "repositories: commit transaction")
	}
	u.state = models.BatchStateCommitted
	return nil
}

// Rollback is a no-op once the unit of work has committed or rolled back.
func (u *sqlxUnitOfWork) Rollback() error {
	switch u.state {
	case models.BatchStateCommitted, models.BatchStateRolledBack:
		return nil
	case models.BatchStatePending:
		u.state = models.BatchStateRolledBack
		return nil
	}
	u.state = models.BatchStateRolledBack
	if err := u.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return eris.Wrap(err, "repositories: rollback transaction")
	}
	return nil
}

func (u *sqlxUnitOfWork) State() models.BatchState {
	return u.state
}
