package model

import "fmt"

const (
	maxChannelNameLen = 100
	minChannelNameLen = 1
)

// ChannelKind distinguishes a channel's membership model.
type ChannelKind string

const (
	ChannelKindDirect ChannelKind = "direct"
	ChannelKindGroup  ChannelKind = "group"
	ChannelKindBroadcast ChannelKind = "broadcast"
)

func (k ChannelKind) valid() bool {
	switch k {
	case ChannelKindDirect, ChannelKindGroup, ChannelKindBroadcast:
		return true
	default:
		return false
	}
}

// Channel is a container for Message elements (spec.md §3): agent-to-agent
// or agent-to-human coordination threads.
type Channel struct {
	Name    string
	Kind    ChannelKind
	Members []string
}

func (c *Channel) ElementType() ElementType { return ElementChannel }
func (c *Channel) Immutable() bool          { return false }

func (c *Channel) Validate() error {
	if len(c.Name) < minChannelNameLen || len(c.Name) > maxChannelNameLen {
		return fieldErr("name", fmt.Sprintf("name must be between %d and %d characters", minChannelNameLen, maxChannelNameLen))
	}
	if !c.Kind.valid() {
		return fieldErr("kind", fmt.Sprintf("invalid channel kind %q", c.Kind))
	}
	if c.Kind == ChannelKindDirect && len(c.Members) != 2 {
		return fieldErr("members", "direct channels must have exactly 2 members")
	}
	if len(c.Members) == 0 {
		return fieldErr("members", "members is required")
	}
	return nil
}
