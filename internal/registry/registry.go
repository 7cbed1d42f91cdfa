// Package registry implements element CRUD — create, read, update,
// soft/hard delete, list — against a store.Store.
//
// It plays the role the teacher's dolt.DoltStore.CreateIssue/UpdateIssue
// play for issues: assign an ID if the caller didn't supply one, validate,
// persist inside a transaction, and append an audit event alongside the
// write so the change is visible to both internal/query and any poller
// watching internal/eventlog.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/stoneforge-ai/stoneforge/internal/eventlog"
	"github.com/stoneforge-ai/stoneforge/internal/ids"
	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// StatusChangeHook is invoked after a transaction that changed a task's
// status commits. Registered by the engine so internal/blockedcache can
// re-evaluate dependents without the registry importing it directly.
type StatusChangeHook func(ctx context.Context, elementID string, old, new model.Status)

// DeletionHook is invoked after a transaction that deleted an element
// commits, for the same reason StatusChangeHook exists.
type DeletionHook func(ctx context.Context, elementID string)

// Registry implements element CRUD on top of a store.Store.
type Registry struct {
	store          store.Store
	clock          Clock
	idMinLen       int
	idMaxLen       int

	OnStatusChanged  StatusChangeHook
	OnElementDeleted DeletionHook
}

// New builds a Registry. A nil clock defaults to time.Now. Generated IDs
// use ids.MinLen/MaxLen until SetIDBounds overrides them.
func New(s store.Store, clock Clock) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{store: s, clock: clock}
}

// SetIDBounds overrides the truncation range Create uses for generated
// IDs, matching idGenerator.minLen/maxLen (spec.md §6). Zero values
// restore the package defaults.
func (r *Registry) SetIDBounds(minLen, maxLen int) {
	r.idMinLen = minLen
	r.idMaxLen = maxLen
}

// CreateOptions customizes Create beyond the required fields.
type CreateOptions struct {
	// ID, if set, is used verbatim instead of generating a content
	// addressed one.
	ID       string
	Tags     []string
	Metadata map[string]any
}

// Create validates payload, assigns an ID if needed, and persists a new
// element, appending a "created" event in the same transaction.
func (r *Registry) Create(ctx context.Context, elementType model.ElementType, payload model.Payload, createdBy string, opts CreateOptions) (*model.Element, error) {
	if payload.ElementType() != elementType {
		return nil, &model.ValidationError{Field: "type", Message: "payload type does not match element type"}
	}

	now := r.clock().UTC()
	elem := &model.Element{
		Type:      elementType,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: createdBy,
		Tags:      model.NormalizeTags(opts.Tags),
		Metadata:  opts.Metadata,
		Payload:   payload,
	}

	encodedMeta, err := model.EncodeMetadata(opts.Metadata)
	if err != nil {
		return nil, fmt.Errorf("registry: encode metadata: %w", err)
	}
	if err := elem.Validate(len(encodedMeta)); err != nil {
		return nil, err
	}

	id := opts.ID
	if id == "" {
		id, err = ids.GenerateUniqueWithBounds(identifierFor(payload), createdBy, r.idMinLen, r.idMaxLen, func(candidate string) (bool, error) {
			return r.store.ElementExists(ctx, candidate)
		})
		if err != nil {
			return nil, fmt.Errorf("registry: generate id: %w", err)
		}
	}
	elem.ID = id

	err = r.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.CreateElement(ctx, elem); err != nil {
			return err
		}
		_, err := eventlog.Append(ctx, tx, elem.ID, model.EventCreated, createdBy, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("registry: create %s: %w", id, err)
	}
	return elem, nil
}

// identifierFor picks the human-meaningful string fed into content-addressed
// ID generation, matching whichever field a reader would recognize the
// element by.
func identifierFor(p model.Payload) string {
	switch v := p.(type) {
	case *model.Task:
		return v.Title
	case *model.Plan:
		return v.Title
	case *model.Document:
		return v.Title
	case *model.Channel:
		return v.Name
	case *model.Entity:
		return v.Name
	case *model.Message:
		return v.Body
	default:
		return fmt.Sprintf("%T", p)
	}
}

// Get returns a single element by ID.
func (r *Registry) Get(ctx context.Context, id string) (*model.Element, error) {
	return r.store.GetElement(ctx, id)
}

// List returns elements matching filter.
func (r *Registry) List(ctx context.Context, filter store.ElementFilter) ([]*model.Element, error) {
	return r.store.ListElements(ctx, filter)
}

// Mutation is applied to an element's payload inside Update's transaction.
type Mutation func(e *model.Element) error

// Update loads the element, applies mutate, re-validates, and persists the
// result, recording an "updated" event and — when the payload is a Task
// whose Status changed — a dedicated "status_changed" event too. On commit,
// if the status changed, OnStatusChanged runs with the transaction already
// closed, since blocked-cache invalidation crosses more elements than this
// one row and should not hold the write lock that produced it.
func (r *Registry) Update(ctx context.Context, id string, actor string, mutate Mutation) (*model.Element, error) {
	var result *model.Element
	var statusBefore, statusAfter model.Status
	var statusChanged bool

	err := r.store.RunInTransaction(ctx, func(tx store.Tx) error {
		before, err := tx.GetElement(ctx, id)
		if err != nil {
			return err
		}
		if task, ok := before.Payload.(*model.Task); ok {
			statusBefore = task.Status
		}

		updated, err := tx.UpdateElement(ctx, id, func(e *model.Element) error {
			if err := mutate(e); err != nil {
				return err
			}
			e.UpdatedAt = r.clock().UTC()
			return nil
		})
		if err != nil {
			return err
		}

		encodedMeta, err := model.EncodeMetadata(updated.Metadata)
		if err != nil {
			return fmt.Errorf("registry: encode metadata: %w", err)
		}
		if err := updated.Validate(len(encodedMeta)); err != nil {
			return err
		}

		if task, ok := updated.Payload.(*model.Task); ok {
			statusAfter = task.Status
			statusChanged = statusAfter != statusBefore
		}

		if _, err := eventlog.Append(ctx, tx, id, model.EventUpdated, actor, nil); err != nil {
			return err
		}
		if statusChanged {
			if _, err := eventlog.AppendStatusChange(ctx, tx, id, actor, statusBefore, statusAfter); err != nil {
				return err
			}
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: update %s: %w", id, err)
	}

	if statusChanged && r.OnStatusChanged != nil {
		r.OnStatusChanged(ctx, id, statusBefore, statusAfter)
	}
	return result, nil
}

// Delete soft- or hard-deletes an element and records a "deleted" event.
// On commit, OnElementDeleted runs outside the transaction for the same
// reason Update's OnStatusChanged does.
func (r *Registry) Delete(ctx context.Context, id string, actor string, tombstone bool) error {
	when := r.clock().UTC()
	err := r.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if existing, err := tx.GetElement(ctx, id); err == nil && existing.Payload != nil && existing.Payload.Immutable() {
			return fmt.Errorf("registry: element %s is immutable: %w", id, store.ErrConflict)
		}
		if err := tx.DeleteElement(ctx, id, tombstone, when); err != nil {
			return err
		}
		_, err := eventlog.Append(ctx, tx, id, model.EventDeleted, actor, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("registry: delete %s: %w", id, err)
	}
	if r.OnElementDeleted != nil {
		r.OnElementDeleted(ctx, id)
	}
	return nil
}
