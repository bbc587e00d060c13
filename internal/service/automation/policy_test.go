package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"civic-automation/internal/domain"
)

func TestThresholdCrossed(t *testing.T) {
	settings := func(combination domain.NonConformityCombination, percent float64, floor int) domain.WorkflowAutomationSettings {
		return domain.WorkflowAutomationSettings{
			NonConformityCombination:      combination,
			NonConformityPercentThreshold: percent,
			NonConformityAbsoluteFloor:    floor,
		}
	}

	tests := []struct {
		name     string
		tally    domain.EvaluationTally
		settings domain.WorkflowAutomationSettings
		want     bool
	}{
		{"No evaluations never cross", domain.EvaluationTally{}, settings(domain.CombineAny, 1, 1), false},
		{"Any: percent alone", domain.EvaluationTally{Total: 4, NonCompliant: 2}, settings(domain.CombineAny, 50, 5), true},
		{"Any: floor alone", domain.EvaluationTally{Total: 10, NonCompliant: 3}, settings(domain.CombineAny, 50, 3), true},
		{"Any: neither", domain.EvaluationTally{Total: 10, NonCompliant: 2}, settings(domain.CombineAny, 50, 3), false},
		{"All: both required", domain.EvaluationTally{Total: 10, NonCompliant: 3}, settings(domain.CombineAll, 50, 3), false},
		{"All: both met", domain.EvaluationTally{Total: 4, NonCompliant: 3}, settings(domain.CombineAll, 50, 3), true},
		{"All: unset floor is ignored", domain.EvaluationTally{Total: 4, NonCompliant: 2}, settings(domain.CombineAll, 50, 0), true},
		{"All: nothing configured", domain.EvaluationTally{Total: 4, NonCompliant: 4}, settings(domain.CombineAll, 0, 0), false},
		{"Percent only ignores floor", domain.EvaluationTally{Total: 10, NonCompliant: 9}, settings(domain.CombinePercent, 95, 1), false},
		{"Count only ignores percent", domain.EvaluationTally{Total: 100, NonCompliant: 2}, settings(domain.CombineCount, 90, 2), true},
		{"Percent boundary is inclusive", domain.EvaluationTally{Total: 3, NonCompliant: 1}, settings(domain.CombinePercent, 100.0/3, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ThresholdCrossed(tt.tally, tt.settings))
		})
	}
}
