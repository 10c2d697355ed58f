package core

import (
	"context"
	"fmt"

	"stitchcore/pkg/domain"
)

// NewSlotCoherenceRule returns the in-transaction rule enforcing the dual
// representation contract: an occupied slot's thread code appears exactly on
// the colors whose needle number equals the slot's 1-based position, and no
// two occupied slots hold the same code.
func NewSlotCoherenceRule() domain.Rule {
	return slotCoherenceRule{}
}

type slotCoherenceRule struct{}

func (slotCoherenceRule) Name() string { return "slot_coherence" }

func (slotCoherenceRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, session := range view.ListSessions() {
		codeSlots := make(map[string]int, domain.NeedleCount)
		for i, binding := range session.Slots {
			if binding == nil {
				continue
			}
			if prev, ok := codeSlots[binding.Code]; ok {
				res.Violations = append(res.Violations, violation(session.ID,
					fmt.Sprintf("code %s bound to needles %d and %d", binding.Code, prev+1, i+1)))
				continue
			}
			codeSlots[binding.Code] = i
		}
		for _, color := range session.Colors {
			slot, bound := codeSlots[color.Code]
			switch {
			case bound && (color.NeedleNumber == nil || *color.NeedleNumber != slot+1):
				res.Violations = append(res.Violations, violation(session.ID,
					fmt.Sprintf("color %d (code %s) should carry needle %d, has %s",
						color.Sequence, color.Code, slot+1, formatNeedle(color.NeedleNumber))))
			case !bound && color.NeedleNumber != nil:
				res.Violations = append(res.Violations, violation(session.ID,
					fmt.Sprintf("color %d (code %s) carries needle %d but no slot holds the code",
						color.Sequence, color.Code, *color.NeedleNumber)))
			}
		}
	}
	return res, nil
}

func violation(sessionID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "slot_coherence",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityDesignSession,
		EntityID: sessionID,
	}
}

func formatNeedle(n *int) string {
	if n == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *n)
}
