package model

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a Payload for the store's JSON `data` column.
// Plain encoding/json is used rather than a query-oriented JSON library
// (gjson/sjson elsewhere in the corpus are for reading arbitrary external
// blobs, not for marshaling known Go structs).
func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload reconstructs the typed Payload for elementType from its
// stored JSON representation.
func DecodePayload(elementType ElementType, data []byte) (Payload, error) {
	switch elementType {
	case ElementTask:
		var t Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode task payload: %w", err)
		}
		return &t, nil
	case ElementPlan:
		var p Plan
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode plan payload: %w", err)
		}
		return &p, nil
	case ElementDocument:
		var d Document
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode document payload: %w", err)
		}
		return &d, nil
	case ElementChannel:
		var c Channel
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode channel payload: %w", err)
		}
		return &c, nil
	case ElementMessage:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode message payload: %w", err)
		}
		return &m, nil
	case ElementEntity:
		var e Entity
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode entity payload: %w", err)
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("decode payload: unknown element type %q", elementType)
	}
}

// EncodeMetadata serializes an element's free-form metadata map.
func EncodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

// DecodeMetadata parses a stored metadata JSON blob.
func DecodeMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// ProjectedStatus and ProjectedPriority extract the index columns the
// store projects out of an element's JSON body (spec.md §9's design
// note). Only Task payloads carry status/priority/assignee; every other
// element type projects zero values.
func ProjectedStatus(p Payload) string {
	if t, ok := p.(*Task); ok {
		return string(t.Status)
	}
	return ""
}

func ProjectedPriority(p Payload) int {
	if t, ok := p.(*Task); ok {
		return int(t.Priority)
	}
	return 0
}

func ProjectedAssignee(p Payload) string {
	if t, ok := p.(*Task); ok && t.Assignee != nil {
		return *t.Assignee
	}
	return ""
}
