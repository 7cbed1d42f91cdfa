package model

import "fmt"

// EntityKind classifies what an Entity element represents in the outside
// world (spec.md §3: "a person, team, service, or external resource the
// graph needs to reference but does not manage the lifecycle of").
type EntityKind string

const (
	EntityKindPerson   EntityKind = "person"
	EntityKindTeam     EntityKind = "team"
	EntityKindService  EntityKind = "service"
	EntityKindResource EntityKind = "resource"
)

func (k EntityKind) valid() bool {
	switch k {
	case EntityKindPerson, EntityKindTeam, EntityKindService, EntityKindResource:
		return true
	default:
		return false
	}
}

const (
	maxEntityNameLen = 200
	minEntityNameLen = 1
)

// Entity references something the graph does not own the lifecycle of.
type Entity struct {
	Name       string
	Kind       EntityKind
	ExternalID string
}

func (e *Entity) ElementType() ElementType { return ElementEntity }
func (e *Entity) Immutable() bool          { return false }

func (e *Entity) Validate() error {
	if len(e.Name) < minEntityNameLen || len(e.Name) > maxEntityNameLen {
		return fieldErr("name", fmt.Sprintf("name must be between %d and %d characters", minEntityNameLen, maxEntityNameLen))
	}
	if !e.Kind.valid() {
		return fieldErr("kind", fmt.Sprintf("invalid entity kind %q", e.Kind))
	}
	return nil
}
