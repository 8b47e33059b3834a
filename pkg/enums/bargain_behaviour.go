package enums

import (
	"fmt"
	"strings"
)

// BargainBehaviour tunes how aggressively a negotiation concedes toward the floor price.
type BargainBehaviour string

const (
	BargainBehaviourLow    BargainBehaviour = "low"
	BargainBehaviourNormal BargainBehaviour = "normal"
	BargainBehaviourHigh   BargainBehaviour = "high"
)

var validBargainBehaviours = []BargainBehaviour{
	BargainBehaviourLow,
	BargainBehaviourNormal,
	BargainBehaviourHigh,
}

// String implements fmt.Stringer.
func (b BargainBehaviour) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BargainBehaviour.
func (b BargainBehaviour) IsValid() bool {
	for _, candidate := range validBargainBehaviours {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBargainBehaviour converts raw input into a BargainBehaviour. Matching is
// case-insensitive and blank input yields the normal behaviour.
func ParseBargainBehaviour(value string) (BargainBehaviour, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return BargainBehaviourNormal, nil
	}
	for _, candidate := range validBargainBehaviours {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bargain behaviour %q", value)
}
