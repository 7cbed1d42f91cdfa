// Package gate mutates awaits-edge metadata: recording and removing
// approvals, flipping external/webhook satisfaction, and parsing the
// human-entered text a timer gate's waitUntil comes from.
//
// Every mutation here runs inside its own transaction and ends by calling
// blockedcache's onDependencyUpdated so the cache never drifts from the
// gate state it's supposed to mirror (spec.md §4.5's closing sentence).
package gate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/stoneforge-ai/stoneforge/internal/blockedcache"
	"github.com/stoneforge-ai/stoneforge/internal/eventlog"
	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// ErrNotAwaitsEdge is returned when blockedID/blockerID don't name an
// awaits dependency.
var ErrNotAwaitsEdge = errors.New("gate: not an awaits dependency")

// ErrWrongGateType is returned when a mutation targets a gate kind it
// doesn't apply to (recording an approval on a timer gate, say).
var ErrWrongGateType = errors.New("gate: wrong gate type for this operation")

// Clock abstracts time.Now for deterministic gate evaluation and
// satisfiedAt stamping.
type Clock func() time.Time

// Engine mutates awaits edges and keeps the blocked cache informed.
type Engine struct {
	store store.Store
	cache *blockedcache.Cache
	clock Clock
}

// New builds an Engine. A nil clock defaults to time.Now.
func New(s store.Store, cache *blockedcache.Cache, clock Clock) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: s, cache: cache, clock: clock}
}

func findAwaitsEdge(ctx context.Context, tx store.Tx, blockedID, blockerID string) (*model.Dependency, *model.AwaitsMetadata, error) {
	deps, err := tx.GetDependencies(ctx, blockedID)
	if err != nil {
		return nil, nil, fmt.Errorf("gate: get dependencies of %s: %w", blockedID, err)
	}
	for _, d := range deps {
		if d.Type == model.DepAwaits && d.BlockerID == blockerID {
			meta, err := model.AwaitsMetadataFromMap(d.Metadata)
			if err != nil {
				return nil, nil, fmt.Errorf("gate: decode awaits metadata for %s -> %s: %w", blockedID, blockerID, err)
			}
			return d, meta, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s -> %s", ErrNotAwaitsEdge, blockedID, blockerID)
}

// Satisfied reports whether the named awaits edge is currently satisfied,
// without mutating anything.
func (e *Engine) Satisfied(ctx context.Context, blockedID, blockerID string) (bool, error) {
	_, meta, err := findAwaitsEdge(ctx, e.store, blockedID, blockerID)
	if err != nil {
		return false, err
	}
	return blockedcache.GateSatisfied(meta, e.clock()), nil
}

// RecordApproval adds approver to the gate's currentApprovers iff they
// appear in requiredApprovers and aren't already recorded. Either
// condition failing is a silent no-op rather than an error, matching
// spec.md §4.5's "idempotent" wording; an approval_added event is only
// appended when the set actually changes.
func (e *Engine) RecordApproval(ctx context.Context, blockedID, blockerID, approver, actor string) error {
	return e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		_, meta, err := findAwaitsEdge(ctx, tx, blockedID, blockerID)
		if err != nil {
			return err
		}
		if meta.GateType != model.GateApproval {
			return fmt.Errorf("%w: %s -> %s is a %s gate", ErrWrongGateType, blockedID, blockerID, meta.GateType)
		}

		eligible := false
		for _, a := range meta.RequiredApprovers {
			if a == approver {
				eligible = true
				break
			}
		}
		if !eligible {
			return nil
		}
		for _, a := range meta.CurrentApprovers {
			if a == approver {
				return nil
			}
		}

		meta.CurrentApprovers = append(append([]string{}, meta.CurrentApprovers...), approver)
		if err := tx.UpdateDependencyMetadata(ctx, blockedID, blockerID, model.DepAwaits, meta.ToMap()); err != nil {
			return fmt.Errorf("gate: update approval metadata: %w", err)
		}
		if _, err := eventlog.Append(ctx, tx, blockedID, model.EventApprovalAdded, actor, func() (old, new []byte) {
			return nil, []byte(approver)
		}); err != nil {
			return err
		}
		return e.cache.OnDependencyUpdated(ctx, tx, blockedID)
	})
}

// RemoveApproval is RecordApproval's inverse: removing an approver who
// isn't currently recorded is a no-op.
func (e *Engine) RemoveApproval(ctx context.Context, blockedID, blockerID, approver, actor string) error {
	return e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		_, meta, err := findAwaitsEdge(ctx, tx, blockedID, blockerID)
		if err != nil {
			return err
		}
		if meta.GateType != model.GateApproval {
			return fmt.Errorf("%w: %s -> %s is a %s gate", ErrWrongGateType, blockedID, blockerID, meta.GateType)
		}

		idx := -1
		for i, a := range meta.CurrentApprovers {
			if a == approver {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil
		}

		meta.CurrentApprovers = append(append([]string{}, meta.CurrentApprovers[:idx]...), meta.CurrentApprovers[idx+1:]...)
		if err := tx.UpdateDependencyMetadata(ctx, blockedID, blockerID, model.DepAwaits, meta.ToMap()); err != nil {
			return fmt.Errorf("gate: update approval metadata: %w", err)
		}
		if _, err := eventlog.Append(ctx, tx, blockedID, model.EventApprovalRemoved, actor, func() (old, new []byte) {
			return []byte(approver), nil
		}); err != nil {
			return err
		}
		return e.cache.OnDependencyUpdated(ctx, tx, blockedID)
	})
}

// SatisfyGate flips an external or webhook gate's satisfied flag. It is a
// no-op if the gate is already satisfied (spec.md §4.5).
func (e *Engine) SatisfyGate(ctx context.Context, blockedID, blockerID, actor string) error {
	return e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		_, meta, err := findAwaitsEdge(ctx, tx, blockedID, blockerID)
		if err != nil {
			return err
		}
		if meta.GateType != model.GateExternal && meta.GateType != model.GateWebhook {
			return fmt.Errorf("%w: %s -> %s is a %s gate", ErrWrongGateType, blockedID, blockerID, meta.GateType)
		}
		if meta.Satisfied {
			return nil
		}

		now := e.clock()
		meta.Satisfied = true
		meta.SatisfiedAt = &now
		meta.SatisfiedBy = actor
		if err := tx.UpdateDependencyMetadata(ctx, blockedID, blockerID, model.DepAwaits, meta.ToMap()); err != nil {
			return fmt.Errorf("gate: update satisfaction metadata: %w", err)
		}
		if _, err := eventlog.Append(ctx, tx, blockedID, model.EventGateSatisfied, actor, func() (old, new []byte) {
			return []byte("false"), []byte("true")
		}); err != nil {
			return err
		}
		return e.cache.OnDependencyUpdated(ctx, tx, blockedID)
	})
}

var compactDurationPattern = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseWaitUntil resolves user-entered timer text — a compact duration
// like "+6h"/"2w", a bare date, or natural language like "next monday at
// 2pm" — into an absolute time relative to now. The boundary is the only
// place free-form text is accepted; once resolved, waitUntil is always
// stored as an absolute timestamp.
func ParseWaitUntil(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("gate: waitUntil text is empty")
	}

	if t, ok, err := parseCompactDuration(text, now); err != nil {
		return time.Time{}, err
	} else if ok {
		return t, nil
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("gate: parse waitUntil %q: %w", text, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("gate: could not parse waitUntil %q", text)
	}
	return result.Time, nil
}

// parseCompactDuration handles the "+6h", "1d", "-2w" shorthand. ok is
// false (with a nil error) when text isn't in this shorthand at all, so
// the caller can fall through to the other parsers.
func parseCompactDuration(text string, now time.Time) (time.Time, bool, error) {
	m := compactDurationPattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false, nil
	}

	amount, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false, fmt.Errorf("gate: invalid duration amount in %q", text)
	}
	if m[1] == "-" {
		amount = -amount
	}

	switch m[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), true, nil
	case "d":
		return now.AddDate(0, 0, amount), true, nil
	case "w":
		return now.AddDate(0, 0, amount*7), true, nil
	case "m":
		return now.AddDate(0, amount, 0), true, nil
	case "y":
		return now.AddDate(amount, 0, 0), true, nil
	default:
		return time.Time{}, false, nil
	}
}
