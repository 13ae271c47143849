package kernel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bgwatch/pkg/bgservice"
)

// ModelFactory builds the per-connection model bound to backend and publisher.
type ModelFactory func(backend bgservice.Backend, publisher bgservice.Publisher) (bgservice.Model, error)

// Target is one attached backend connection and the state it exclusively owns.
type Target struct {
	// ID is the registry-assigned connection identifier.
	ID string
	// Model buffers pushed events for this connection.
	Model bgservice.Model
	// Notifier fans model notifications out to subscribers.
	Notifier *Notifier
}

// Targets owns one model per attached backend connection.
type Targets struct {
	factory ModelFactory
	cfg     config

	mu      sync.RWMutex
	closed  bool
	targets map[string]*Target
}

// NewTargets creates an empty target registry.
func NewTargets(factory ModelFactory, options ...Option) (*Targets, error) {
	if factory == nil {
		return nil, fmt.Errorf("new targets: nil model factory")
	}

	return &Targets{
		factory: factory,
		cfg:     applyOptions(options),
		targets: make(map[string]*Target),
	}, nil
}

// Attach creates a fresh model and notifier for backend.
func (r *Targets) Attach(ctx context.Context, backend bgservice.Backend) (*Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("attach target: %w", err)
	}
	if backend == nil {
		return nil, fmt.Errorf("attach target: nil backend")
	}

	notifier := NewNotifier()
	model, err := r.factory(backend, notifier)
	if err != nil {
		_ = notifier.Close(ctx)
		return nil, fmt.Errorf("attach target: build model: %w", err)
	}
	if model == nil {
		_ = notifier.Close(ctx)
		return nil, fmt.Errorf("attach target: factory returned nil model")
	}

	target := &Target{
		ID:       uuid.NewString(),
		Model:    model,
		Notifier: notifier,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = notifier.Close(ctx)
		return nil, fmt.Errorf("attach target: registry closed")
	}
	r.targets[target.ID] = target
	r.mu.Unlock()

	r.cfg.logger.InfoContext(ctx, "target attached", "target_id", target.ID)

	return target, nil
}

// Get returns an attached target by id.
func (r *Targets) Get(id string) (*Target, error) {
	if id == "" {
		return nil, fmt.Errorf("get target: empty id")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	target, exists := r.targets[id]
	if !exists {
		return nil, fmt.Errorf("get target %s: %w", id, bgservice.ErrTargetNotFound)
	}

	return target, nil
}

// IDs returns attached target ids in sorted order.
func (r *Targets) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.targets))
	for id := range r.targets {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)

	return ids
}

// Detach destroys the model and subscriptions owned by target id.
func (r *Targets) Detach(ctx context.Context, id string) error {
	r.mu.Lock()
	target, exists := r.targets[id]
	if exists {
		delete(r.targets, id)
	}
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("detach target %s: %w", id, bgservice.ErrTargetNotFound)
	}

	if err := destroyTarget(ctx, target); err != nil {
		return fmt.Errorf("detach target %s: %w", id, err)
	}

	r.cfg.logger.InfoContext(ctx, "target detached", "target_id", id)

	return nil
}

// Close detaches every target and rejects further attaches.
func (r *Targets) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	targets := make([]*Target, 0, len(r.targets))
	for _, target := range r.targets {
		targets = append(targets, target)
	}
	r.targets = make(map[string]*Target)
	r.mu.Unlock()

	var closeErrs []error
	for _, target := range targets {
		if err := destroyTarget(ctx, target); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("target %s: %w", target.ID, err))
		}
	}

	if len(closeErrs) > 0 {
		return fmt.Errorf("close targets: %w", errors.Join(closeErrs...))
	}

	return nil
}

func destroyTarget(ctx context.Context, target *Target) error {
	var errs []error
	if err := target.Model.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close model: %w", err))
	}
	if err := target.Notifier.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close notifier: %w", err))
	}

	return errors.Join(errs...)
}
