package automation

import (
	"context"

	"civic-automation/internal/domain"
	"civic-automation/internal/service/notification"
)

// Notifier is the part of the fan-out engine the sweeps need.
type Notifier interface {
	Notify(ctx context.Context, event notification.Event, resolve notification.RecipientResolver) (*notification.Dispatch, error)
}

// ThresholdCrossed applies the configured non-conformity rule to a tally.
// A zero percent threshold or a zero floor leaves that criterion unset.
func ThresholdCrossed(tally domain.EvaluationTally, settings domain.WorkflowAutomationSettings) bool {
	if tally.Total == 0 {
		return false
	}

	percentSet := settings.NonConformityPercentThreshold > 0
	floorSet := settings.NonConformityAbsoluteFloor > 0
	meetsPercent := percentSet && tally.Percent() >= settings.NonConformityPercentThreshold
	meetsFloor := floorSet && tally.NonCompliant >= settings.NonConformityAbsoluteFloor

	switch settings.NonConformityCombination {
	case domain.CombineAll:
		if !percentSet && !floorSet {
			return false
		}
		return (!percentSet || meetsPercent) && (!floorSet || meetsFloor)
	case domain.CombinePercent:
		return meetsPercent
	case domain.CombineCount:
		return meetsFloor
	default:
		return meetsPercent || meetsFloor
	}
}
