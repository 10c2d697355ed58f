package core

import (
	"context"
	"strings"
	"testing"

	"stitchcore/pkg/domain"
)

type stubView struct {
	sessions []domain.DesignSession
}

func (v stubView) ListSessions() []domain.DesignSession { return v.sessions }

func (v stubView) FindSession(id string) (domain.DesignSession, bool) {
	for _, s := range v.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return domain.DesignSession{}, false
}

func coherentSession() domain.DesignSession {
	five := 5
	session := domain.DesignSession{
		Base: domain.Base{ID: "sess-1"},
		Colors: []domain.Color{
			{ID: "c1", Sequence: 1, Code: "137", Name: "Black", RGB: "1A1A1A", NeedleNumber: &five},
			{ID: "c2", Sequence: 2, Code: "135", Name: "White", RGB: "FAFAFA"},
		},
	}
	session.Slots[4] = &domain.NeedleBinding{Code: "137", Name: "Black", RGB: "1A1A1A"}
	return session
}

func TestSlotCoherencePassesOnConsistentState(t *testing.T) {
	res, err := NewSlotCoherenceRule().Evaluate(context.Background(), stubView{[]domain.DesignSession{coherentSession()}}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("violations = %+v, want none", res.Violations)
	}
}

func TestSlotCoherenceRejectsDuplicateCodeAcrossSlots(t *testing.T) {
	session := coherentSession()
	session.Slots[9] = &domain.NeedleBinding{Code: "137", Name: "Black", RGB: "1A1A1A"}

	res, err := NewSlotCoherenceRule().Evaluate(context.Background(), stubView{[]domain.DesignSession{session}}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("duplicate code should block, got %+v", res.Violations)
	}
	if !strings.Contains(res.Violations[0].Message, "needles 5 and 10") {
		t.Fatalf("message = %q", res.Violations[0].Message)
	}
}

func TestSlotCoherenceRejectsStaleNeedleNumber(t *testing.T) {
	session := coherentSession()
	two := 2
	session.Colors[0].NeedleNumber = &two

	res, err := NewSlotCoherenceRule().Evaluate(context.Background(), stubView{[]domain.DesignSession{session}}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("violations = %+v, want exactly one", res.Violations)
	}
	if !strings.Contains(res.Violations[0].Message, "should carry needle 5, has 2") {
		t.Fatalf("message = %q", res.Violations[0].Message)
	}
}

func TestSlotCoherenceRejectsMissingNeedleNumber(t *testing.T) {
	session := coherentSession()
	session.Colors[0].NeedleNumber = nil

	res, err := NewSlotCoherenceRule().Evaluate(context.Background(), stubView{[]domain.DesignSession{session}}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || !strings.Contains(res.Violations[0].Message, "has none") {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestSlotCoherenceRejectsNumberWithoutSlot(t *testing.T) {
	session := coherentSession()
	three := 3
	session.Colors[1].NeedleNumber = &three

	res, err := NewSlotCoherenceRule().Evaluate(context.Background(), stubView{[]domain.DesignSession{session}}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("violations = %+v, want exactly one", res.Violations)
	}
	v := res.Violations[0]
	if v.Entity != domain.EntityDesignSession || v.EntityID != "sess-1" {
		t.Fatalf("violation target = %s/%s", v.Entity, v.EntityID)
	}
	if !strings.Contains(v.Message, "no slot holds the code") {
		t.Fatalf("message = %q", v.Message)
	}
}

func TestNeedleRangeRejectsOutOfRangeNumbers(t *testing.T) {
	zero, thirteen := 0, domain.NeedleCount+1
	session := domain.DesignSession{
		Base: domain.Base{ID: "sess-1"},
		Colors: []domain.Color{
			{ID: "c1", Sequence: 1, Code: "137", NeedleNumber: &zero},
			{ID: "c2", Sequence: 2, Code: "135", NeedleNumber: &thirteen},
			{ID: "c3", Sequence: 3, Code: "700"},
		},
	}

	res, err := NewNeedleRangeRule().Evaluate(context.Background(), stubView{[]domain.DesignSession{session}}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("violations = %+v, want two", res.Violations)
	}
	for _, v := range res.Violations {
		if v.Entity != domain.EntityColor {
			t.Fatalf("violation entity = %s, want color", v.Entity)
		}
		if v.Severity != domain.SeverityBlock {
			t.Fatalf("violation severity = %s, want block", v.Severity)
		}
	}
}

func TestNeedleRangeAcceptsFullSlotRange(t *testing.T) {
	session := domain.DesignSession{Base: domain.Base{ID: "sess-1"}}
	for n := 1; n <= domain.NeedleCount; n++ {
		needle := n
		session.Colors = append(session.Colors, domain.Color{
			ID: "c", Sequence: n, Code: "700", NeedleNumber: &needle,
		})
	}
	res, err := NewNeedleRangeRule().Evaluate(context.Background(), stubView{[]domain.DesignSession{session}}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("violations = %+v, want none", res.Violations)
	}
}

func TestDefaultRulesEngineAggregatesViolations(t *testing.T) {
	forty := 40
	session := coherentSession()
	session.Colors[1].NeedleNumber = &forty

	res, err := NewDefaultRulesEngine().Evaluate(context.Background(), stubView{[]domain.DesignSession{session}}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// Both the coherence rule and the range rule flag the stray number.
	if len(res.Violations) != 2 || !res.HasBlocking() {
		t.Fatalf("violations = %+v, want two blocking entries", res.Violations)
	}
}
