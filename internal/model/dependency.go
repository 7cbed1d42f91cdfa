package model

import (
	"fmt"
	"time"
)

// DependencyType is the discriminant of a graph edge (spec.md §4.3).
type DependencyType string

const (
	// DepBlocks means Blocked cannot proceed until Blocker reaches a
	// terminal status.
	DepBlocks DependencyType = "blocks"
	// DepParentChild means Blocked is a subtask of Blocker. The child is
	// blocked while its parent is itself blocked or is a task that has not
	// reached a terminal status; a plan parent alone does not block it. An
	// open child does not stop its parent from closing.
	DepParentChild DependencyType = "parent-child"
	// DepAwaits means Blocked is gated on a condition described by
	// AwaitsMetadata rather than on another element's status.
	DepAwaits DependencyType = "awaits"
	// DepRelatesTo is a non-gating, informational link.
	DepRelatesTo DependencyType = "relates-to"
)

// ScanOrder is the deterministic order dependency types are checked in
// when reporting the first blocking reason for an element (spec.md §9
// Open Question: "blocks, then parent-child, then awaits").
var ScanOrder = []DependencyType{DepBlocks, DepParentChild, DepAwaits}

func (t DependencyType) valid() bool {
	switch t {
	case DepBlocks, DepParentChild, DepAwaits, DepRelatesTo:
		return true
	default:
		return false
	}
}

// Gating reports whether edges of this type can put the blocked element
// into a blocked state. relates-to never gates.
func (t DependencyType) Gating() bool {
	return t == DepBlocks || t == DepParentChild || t == DepAwaits
}

// SameTypeCyclable reports whether cycle detection applies to this edge
// type. Cycle checks run per relation type (spec.md §4.3): a blocks cycle
// and a parent-child cycle are independent conditions.
func (t DependencyType) SameTypeCyclable() bool {
	return t == DepBlocks || t == DepParentChild
}

// Dependency is a directed edge: Blocked depends on / is gated by Blocker.
type Dependency struct {
	BlockedID string
	BlockerID string
	Type      DependencyType
	Metadata  map[string]any
	CreatedAt time.Time
	CreatedBy string

	// ThreadID optionally groups related-to edges into a conversation
	// thread (SPEC_FULL.md "Supplemented features"). Only meaningful on
	// relates-to edges; nil otherwise.
	ThreadID *string
}

func (d *Dependency) Validate() error {
	if d.BlockedID == "" {
		return fieldErr("blockedId", "blockedId is required")
	}
	if d.BlockerID == "" {
		return fieldErr("blockerId", "blockerId is required")
	}
	if d.BlockedID == d.BlockerID {
		return fieldErr("blockerId", "an element cannot depend on itself")
	}
	if !d.Type.valid() {
		return fieldErr("type", fmt.Sprintf("invalid dependency type %q", d.Type))
	}
	if d.CreatedBy == "" {
		return fieldErr("createdBy", "createdBy is required")
	}
	if d.ThreadID != nil && d.Type != DepRelatesTo {
		return fieldErr("threadId", "threadId is only valid on relates-to dependencies")
	}
	if d.Type == DepAwaits {
		meta, err := AwaitsMetadataFromMap(d.Metadata)
		if err != nil {
			return err
		}
		if err := meta.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GateType enumerates the awaits-edge conditions (spec.md §4.5).
type GateType string

const (
	GateTimer    GateType = "timer"
	GateApproval GateType = "approval"
	GateExternal GateType = "external"
	GateWebhook  GateType = "webhook"
)

func (g GateType) valid() bool {
	switch g {
	case GateTimer, GateApproval, GateExternal, GateWebhook:
		return true
	default:
		return false
	}
}

// AwaitsMetadata is the typed view of a DepAwaits edge's Metadata map. Gate
// kinds share one map shape in storage; fields unrelated to GateType are
// left zero-valued.
type AwaitsMetadata struct {
	GateType GateType

	// Timer gates.
	WaitUntil time.Time

	// Approval gates.
	RequiredApprovers []string
	ApprovalCount     int
	CurrentApprovers  []string

	// External / webhook gates.
	ExternalKey string

	Satisfied   bool
	SatisfiedAt *time.Time
	SatisfiedBy string
}

// Validate enforces the per-gate-kind required fields (spec.md §4.5).
func (m *AwaitsMetadata) Validate() error {
	if !m.GateType.valid() {
		return fieldErr("gateType", fmt.Sprintf("invalid gate type %q", m.GateType))
	}
	switch m.GateType {
	case GateTimer:
		if m.WaitUntil.IsZero() {
			return fieldErr("waitUntil", "timer gates require waitUntil")
		}
	case GateApproval:
		if len(m.RequiredApprovers) == 0 && m.ApprovalCount <= 0 {
			return fieldErr("requiredApprovers", "approval gates require requiredApprovers or a positive approvalCount")
		}
	case GateExternal, GateWebhook:
		// spec.md §4.5 defines external/webhook gates purely in terms of
		// satisfied/satisfiedAt/satisfiedBy; there is no required field
		// here beyond a valid gate type.
	}
	return nil
}

// ToMap serializes AwaitsMetadata into the Dependency.Metadata shape
// persisted in the store's JSON column.
func (m *AwaitsMetadata) ToMap() map[string]any {
	out := map[string]any{
		"gateType":  string(m.GateType),
		"satisfied": m.Satisfied,
	}
	if !m.WaitUntil.IsZero() {
		out["waitUntil"] = m.WaitUntil.Format(time.RFC3339)
	}
	if len(m.RequiredApprovers) > 0 {
		out["requiredApprovers"] = m.RequiredApprovers
	}
	if m.ApprovalCount > 0 {
		out["approvalCount"] = m.ApprovalCount
	}
	if len(m.CurrentApprovers) > 0 {
		out["currentApprovers"] = m.CurrentApprovers
	}
	if m.ExternalKey != "" {
		out["externalKey"] = m.ExternalKey
	}
	if m.SatisfiedAt != nil {
		out["satisfiedAt"] = m.SatisfiedAt.Format(time.RFC3339)
	}
	if m.SatisfiedBy != "" {
		out["satisfiedBy"] = m.SatisfiedBy
	}
	return out
}

// AwaitsMetadataFromMap reconstructs AwaitsMetadata from a decoded JSON
// metadata map, as read back from the store.
func AwaitsMetadataFromMap(raw map[string]any) (*AwaitsMetadata, error) {
	m := &AwaitsMetadata{}

	gt, _ := raw["gateType"].(string)
	m.GateType = GateType(gt)

	if sat, ok := raw["satisfied"].(bool); ok {
		m.Satisfied = sat
	}
	if wu, ok := raw["waitUntil"].(string); ok && wu != "" {
		t, err := time.Parse(time.RFC3339, wu)
		if err != nil {
			return nil, fieldErr("waitUntil", "waitUntil must be RFC3339")
		}
		m.WaitUntil = t
	}
	if ra, ok := raw["requiredApprovers"].([]any); ok {
		m.RequiredApprovers = toStringSlice(ra)
	}
	if ac, ok := raw["approvalCount"].(float64); ok {
		m.ApprovalCount = int(ac)
	}
	if ca, ok := raw["currentApprovers"].([]any); ok {
		m.CurrentApprovers = toStringSlice(ca)
	}
	if ek, ok := raw["externalKey"].(string); ok {
		m.ExternalKey = ek
	}
	if sb, ok := raw["satisfiedBy"].(string); ok {
		m.SatisfiedBy = sb
	}
	if sa, ok := raw["satisfiedAt"].(string); ok && sa != "" {
		t, err := time.Parse(time.RFC3339, sa)
		if err != nil {
			return nil, fieldErr("satisfiedAt", "satisfiedAt must be RFC3339")
		}
		m.SatisfiedAt = &t
	}
	return m, nil
}

func toStringSlice(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
