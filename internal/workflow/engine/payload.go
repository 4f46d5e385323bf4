package engine

import "strings"

// Control keys read from the payload. Every other key is data for node
// filters.
const (
	KeyDecision      = "decision"
	KeyCurrentNodeID = "currentNodeId"
	KeyForceNextNode = "forceNextNode"
)

// Payload is the caller-supplied runtime data for one run.
type Payload map[string]any

// Decision returns the human decision, if any.
func (p Payload) Decision() string {
	return p.str(KeyDecision)
}

// CurrentNodeID names the action node the caller is resuming from.
func (p Payload) CurrentNodeID() string {
	return p.str(KeyCurrentNodeID)
}

// ForceNextNode names a node to jump to regardless of position.
func (p Payload) ForceNextNode() string {
	return p.str(KeyForceNextNode)
}

// Clone returns a shallow copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for key, value := range p {
		out[key] = value
	}
	return out
}

func (p Payload) str(key string) string {
	value, ok := p[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
