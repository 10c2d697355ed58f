package core

import (
	"context"
	"fmt"

	"stitchcore/pkg/domain"
)

// NewNeedleRangeRule returns the rule rejecting needle numbers outside the
// machine's 1-based slot range. Unassigned colors carry nil and always pass.
func NewNeedleRangeRule() domain.Rule {
	return needleRangeRule{}
}

type needleRangeRule struct{}

func (needleRangeRule) Name() string { return "needle_range" }

func (needleRangeRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, session := range view.ListSessions() {
		for _, color := range session.Colors {
			if color.NeedleNumber == nil {
				continue
			}
			if n := *color.NeedleNumber; n < 1 || n > domain.NeedleCount {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "needle_range",
					Severity: domain.SeverityBlock,
					Message: fmt.Sprintf("color %d (code %s) carries needle %d outside 1..%d",
						color.Sequence, color.Code, n, domain.NeedleCount),
					Entity:   domain.EntityColor,
					EntityID: color.ID,
				})
			}
		}
	}
	return res, nil
}
