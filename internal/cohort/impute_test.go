package cohort

import (
	"testing"

	"github.com/gyeh/icustats/internal/model"
)

func TestLOCF_CarriesForward(t *testing.T) {
	recs := []model.DailyRecord{
		{Pt: 1, Day: 1, Fluids: fp(1.5), Severity: fp(7)},
		{Pt: 1, Day: 2},
		{Pt: 1, Day: 3, Severity: fp(5)},
	}
	out := LOCF{}.Apply(recs)

	if *out[1].Fluids != 1.5 || *out[2].Fluids != 1.5 {
		t.Errorf("fluids not carried forward: %v, %v", out[1].Fluids, out[2].Fluids)
	}
	if *out[1].Severity != 7 {
		t.Errorf("severity day 2 = %v, want carried 7", out[1].Severity)
	}
	if *out[2].Severity != 5 {
		t.Errorf("severity day 3 = %v, want observed 5", out[2].Severity)
	}
	// Input untouched.
	if recs[1].Fluids != nil {
		t.Error("LOCF mutated its input")
	}
}

func TestLOCF_BackfillsLeadingGap(t *testing.T) {
	recs := []model.DailyRecord{
		{Pt: 1, Day: 1},
		{Pt: 1, Day: 2, Fluids: fp(2), Severity: fp(3)},
	}
	out := LOCF{}.Apply(recs)
	if out[0].Fluids == nil || *out[0].Fluids != 2 {
		t.Errorf("leading fluids gap = %v, want backfilled 2", out[0].Fluids)
	}
	if out[0].Severity == nil || *out[0].Severity != 3 {
		t.Errorf("leading severity gap = %v, want backfilled 3", out[0].Severity)
	}
}

func TestLOCF_InterleavedSubjects(t *testing.T) {
	recs := []model.DailyRecord{
		{Pt: 1, Day: 1, Fluids: fp(4), Severity: fp(7)},
		{Pt: 2, Day: 1, Fluids: fp(2), Severity: fp(3)},
		{Pt: 1, Day: 2},
		{Pt: 2, Day: 2},
	}
	out := LOCF{}.Apply(recs)
	if out[2].Fluids == nil || *out[2].Fluids != 4 || *out[2].Severity != 7 {
		t.Errorf("subject 1 day 2 = (%v, %v), want carried (4, 7)", out[2].Fluids, out[2].Severity)
	}
	if out[3].Fluids == nil || *out[3].Fluids != 2 || *out[3].Severity != 3 {
		t.Errorf("subject 2 day 2 = (%v, %v), want carried (2, 3)", out[3].Fluids, out[3].Severity)
	}
}

func TestLOCF_DoesNotCrossSubjects(t *testing.T) {
	recs := []model.DailyRecord{
		{Pt: 1, Day: 1, Fluids: fp(9), Severity: fp(9)},
		{Pt: 2, Day: 1},
	}
	out := LOCF{}.Apply(recs)
	if out[1].Fluids != nil {
		t.Errorf("subject 2 fluids = %v, want nil (no carry across subjects)", out[1].Fluids)
	}
}
