package model

import "fmt"

const (
	maxPlanTitleLen = 200
	minPlanTitleLen = 1
)

// PlanStatus is a plan's own lifecycle state. It has no blocked state: the
// blocked cache never drives status transitions on plans.
type PlanStatus string

const (
	PlanStatusDraft    PlanStatus = "draft"
	PlanStatusActive   PlanStatus = "active"
	PlanStatusComplete PlanStatus = "complete"
	PlanStatusArchived PlanStatus = "archived"
)

func (s PlanStatus) valid() bool {
	switch s {
	case PlanStatusDraft, PlanStatusActive, PlanStatusComplete, PlanStatusArchived:
		return true
	default:
		return false
	}
}

// Plan groups related tasks under a shared objective. As the parent side
// of a parent-child dependency, an unblocked plan does not block its
// children. Plans are not rejected on either side of a blocks edge; the
// blocked cache does not read PlanStatus, so a plan on the blocker side of
// a blocks edge blocks for as long as it exists and is not deleted.
type Plan struct {
	Title       string
	Description string
	PlanStatus  PlanStatus
}

func (p *Plan) ElementType() ElementType { return ElementPlan }
func (p *Plan) Immutable() bool          { return false }

func (p *Plan) Validate() error {
	if len(p.Title) < minPlanTitleLen || len(p.Title) > maxPlanTitleLen {
		return fieldErr("title", fmt.Sprintf("title must be between %d and %d characters", minPlanTitleLen, maxPlanTitleLen))
	}
	if !p.PlanStatus.valid() {
		return fieldErr("planStatus", fmt.Sprintf("invalid plan status %q", p.PlanStatus))
	}
	return nil
}
