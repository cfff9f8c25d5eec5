package explorer

import (
	"strings"

	"yetifarm/core/events"
)

// EventLabel returns the explorer label for a farm event.
func EventLabel(eventType, amount, asset string) string {
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" {
		normalized = "?"
	}
	if strings.TrimSpace(amount) == "" {
		amount = "0"
	}
	switch eventType {
	case events.TypeFarmStaked:
		return "Staked " + amount + " " + normalized
	case events.TypeFarmWithdrawn:
		return "Withdrew " + amount + " " + normalized
	case events.TypeFarmRewardPaid:
		return "Claimed " + amount + " " + normalized
	case events.TypeFarmRewardAdded:
		return "Funded " + amount + " " + normalized
	default:
		return eventType
	}
}
