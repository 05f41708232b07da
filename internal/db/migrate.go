package db

import (
	"context"
	"errors"
	"fmt"
	"io"

	"station-records/internal/observability"
)

// Step moves the schema from Version-1 to Version. Apply must be safe to run
// again on a store where it already ran, because the version is only
// recorded after every pending step succeeds.
type Step struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx DBTX) error
}

type Store interface {
	CurrentVersion(ctx context.Context) (int, error)
	ApplyStep(ctx context.Context, step Step) error
	SetVersion(ctx context.Context, version int) error
}

// Locker is implemented by stores that can give one migration run exclusive
// access to the schema. The engine holds the lock for the whole run.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

type StepError struct {
	Version int
	Name    string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("migration step %d (%s): %v", e.Version, e.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

var ErrInvalidSteps = errors.New("invalid migration steps")

type Engine struct {
	store  Store
	steps  []Step
	logger *observability.Logger
}

// NewEngine requires steps numbered 1..n without gaps.
func NewEngine(store Store, steps []Step, logger *observability.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidSteps)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps defined", ErrInvalidSteps)
	}
	for i, step := range steps {
		if step.Version != i+1 {
			return nil, fmt.Errorf("%w: step %q has version %d, want %d", ErrInvalidSteps, step.Name, step.Version, i+1)
		}
		if step.Apply == nil {
			return nil, fmt.Errorf("%w: step %d has no apply func", ErrInvalidSteps, step.Version)
		}
	}
	if logger == nil {
		logger = observability.NewLoggerWithWriter(io.Discard)
	}

	return &Engine{
		store:  store,
		steps:  append([]Step(nil), steps...),
		logger: logger,
	}, nil
}

// Latest is the highest version this binary knows about.
func (e *Engine) Latest() int {
	return e.steps[len(e.steps)-1].Version
}

// Status reports the stored version without changing anything.
func (e *Engine) Status(ctx context.Context) (current int, latest int, err error) {
	current, err = e.store.CurrentVersion(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read schema version: %w", err)
	}
	return current, e.Latest(), nil
}

// Upgrade applies every step above the stored version and then records the
// latest version. It returns the version the store is at afterwards. A step
// failure returns a *StepError and leaves the stored version as it was.
func (e *Engine) Upgrade(ctx context.Context) (int, error) {
	if locker, ok := e.store.(Locker); ok {
		unlock, err := locker.Lock(ctx)
		if err != nil {
			return 0, fmt.Errorf("acquire migration lock: %w", err)
		}
		defer unlock()
	}

	current, err := e.store.CurrentVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if current < 0 {
		return 0, fmt.Errorf("read schema version: negative version %d", current)
	}

	latest := e.Latest()
	if current > latest {
		e.logger.Warn("schema_version_ahead", map[string]any{
			"stored": current,
			"latest": latest,
		})
		return current, nil
	}
	if current == latest {
		e.logger.Info("schema_up_to_date", map[string]any{"version": current})
		return current, nil
	}

	for _, step := range e.steps[current:] {
		if err := e.store.ApplyStep(ctx, step); err != nil {
			e.logger.Error("migration_step_failed", map[string]any{
				"version": step.Version,
				"name":    step.Name,
				"error":   err.Error(),
			})
			return current, &StepError{Version: step.Version, Name: step.Name, Err: err}
		}
		e.logger.Info("migration_step_applied", map[string]any{
			"version": step.Version,
			"name":    step.Name,
		})
	}

	if err := e.store.SetVersion(ctx, latest); err != nil {
		return current, fmt.Errorf("record schema version: %w", err)
	}

	e.logger.Info("schema_upgraded", map[string]any{"from": current, "to": latest})
	return latest, nil
}
