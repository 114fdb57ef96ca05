package cohort

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gyeh/icustats/internal/model"
)

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }

// day builds one daily record with observed covariates.
func day(pt int64, d int, fluids, severity float64) model.DailyRecord {
	return model.DailyRecord{Pt: pt, Day: d, Fluids: fp(fluids), Severity: fp(severity)}
}

func withDeath(r model.DailyRecord) model.DailyRecord {
	r.Death = bp(true)
	r.Discharge = bp(false)
	return r
}

func withDischarge(r model.DailyRecord) model.DailyRecord {
	r.Death = bp(false)
	r.Discharge = bp(true)
	return r
}

// threeSubjectCohort is the reference scenario: A dies on day 2, B is
// discharged on day 2, C dies on day 3.
func threeSubjectCohort() []model.DailyRecord {
	return []model.DailyRecord{
		day(1, 1, 1, 5),
		withDeath(day(1, 2, 1, 5)),
		day(2, 1, 2, 3),
		withDischarge(day(2, 2, 2, 3)),
		day(3, 1, 1, 4),
		day(3, 2, 1, 4),
		withDeath(day(3, 3, 1, 4)),
	}
}

func TestBuild_ThreeSubjectScenario(t *testing.T) {
	c, err := Build(threeSubjectCohort())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(c.Intervals) != 5 {
		t.Fatalf("expected 5 intervals, got %d", len(c.Intervals))
	}

	byPt := make(map[int64][]model.Interval)
	for _, iv := range c.Intervals {
		byPt[iv.Pt] = append(byPt[iv.Pt], iv)
	}

	if got := byPt[1][len(byPt[1])-1].Event; got != model.Death {
		t.Errorf("subject A final event = %v, want death", got)
	}
	if got := byPt[2][len(byPt[2])-1].Event; got != model.Discharge {
		t.Errorf("subject B final event = %v, want discharge", got)
	}
	cIvs := byPt[3]
	if len(cIvs) != 3 {
		t.Fatalf("subject C should have 3 intervals, got %d", len(cIvs))
	}
	for _, iv := range cIvs[:2] {
		if iv.Event != model.Censored {
			t.Errorf("subject C interval (%g,%g] event = %v, want censored", iv.Start, iv.Stop, iv.Event)
		}
	}
	if cIvs[2].Event != model.Death {
		t.Errorf("subject C final event = %v, want death", cIvs[2].Event)
	}
}

func TestBuild_IntervalBounds(t *testing.T) {
	c, err := Build(threeSubjectCohort())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, iv := range c.Intervals {
		if iv.Stop <= iv.Start {
			t.Errorf("interval (%g,%g] is empty", iv.Start, iv.Stop)
		}
	}
	// First interval of every subject starts at 0; later ones are contiguous.
	seen := make(map[int64]float64)
	for _, iv := range c.Intervals {
		prev, ok := seen[iv.Pt]
		if !ok {
			if iv.Start != 0 {
				t.Errorf("subject %d first interval starts at %g, want 0", iv.Pt, iv.Start)
			}
		} else if iv.Start != prev {
			t.Errorf("subject %d interval starts at %g, want contiguous with %g", iv.Pt, iv.Start, prev)
		}
		seen[iv.Pt] = iv.Stop
	}
}

// TestBuild_Idempotent rebuilds the cohort from its own intervals, reading
// stop back as the day, and expects identical intervals.
func TestBuild_Idempotent(t *testing.T) {
	c, err := Build(threeSubjectCohort())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var daily []model.DailyRecord
	for _, iv := range c.Intervals {
		r := model.DailyRecord{
			Pt:        iv.Pt,
			Day:       int(iv.Stop),
			Fluids:    fp(iv.Fluids),
			Severity:  fp(iv.Severity),
			Death:     bp(iv.Event == model.Death),
			Discharge: bp(iv.Event == model.Discharge),
		}
		daily = append(daily, r)
	}

	c2, err := Build(daily)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if !reflect.DeepEqual(c.Intervals, c2.Intervals) {
		t.Errorf("rebuilding from own output changed intervals:\nfirst:  %+v\nsecond: %+v", c.Intervals, c2.Intervals)
	}
}

func TestBuild_DropsUninformativeSubjects(t *testing.T) {
	recs := []model.DailyRecord{
		day(1, 1, 1, 5), // never any death/discharge indicator
		day(1, 2, 1, 5),
		withDeath(day(2, 1, 2, 3)),
	}
	c, err := Build(recs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.SubjectsDropped != 1 {
		t.Errorf("SubjectsDropped = %d, want 1", c.SubjectsDropped)
	}
	if len(c.Subjects) != 1 || c.Subjects[0].Pt != 2 {
		t.Errorf("expected only subject 2 to survive, got %+v", c.Subjects)
	}
}

func TestBuild_AdministrativeCensoring(t *testing.T) {
	recs := []model.DailyRecord{
		{Pt: 9, Day: 1, Fluids: fp(1), Severity: fp(2), Death: bp(false), Discharge: bp(false)},
		{Pt: 9, Day: 2, Fluids: fp(1), Severity: fp(2), Death: bp(false), Discharge: bp(false)},
	}
	c, err := Build(recs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	last := c.Intervals[len(c.Intervals)-1]
	if last.Event != model.Censored {
		t.Errorf("event = %v, want censored", last.Event)
	}
	if c.Subjects[0].Event != model.Censored {
		t.Errorf("collapse event = %v, want censored", c.Subjects[0].Event)
	}
}

func TestBuild_MalformedCohort(t *testing.T) {
	t.Run("duplicate day", func(t *testing.T) {
		recs := []model.DailyRecord{
			withDeath(day(1, 2, 1, 5)),
			day(1, 2, 1, 5),
		}
		_, err := Build(recs)
		if !errors.Is(err, model.ErrMalformedCohort) {
			t.Fatalf("err = %v, want ErrMalformedCohort", err)
		}
	})

	t.Run("out-of-order days", func(t *testing.T) {
		recs := []model.DailyRecord{
			withDeath(day(1, 2, 1, 5)),
			day(1, 1, 1, 5),
		}
		_, err := Build(recs)
		if !errors.Is(err, model.ErrMalformedCohort) {
			t.Fatalf("err = %v, want ErrMalformedCohort", err)
		}
	})

	t.Run("out-of-order days after imputation", func(t *testing.T) {
		// Reversed input must error out of Build, never yield intervals with
		// covariates carried in the wrong direction.
		recs := []model.DailyRecord{
			withDeath(model.DailyRecord{Pt: 1, Day: 2, Fluids: fp(5), Severity: fp(2)}),
			{Pt: 1, Day: 1, Fluids: fp(1), Severity: fp(9)},
		}
		_, err := Build(LOCF{}.Apply(recs))
		if !errors.Is(err, model.ErrMalformedCohort) {
			t.Fatalf("err = %v, want ErrMalformedCohort", err)
		}
	})

	t.Run("simultaneous death and discharge", func(t *testing.T) {
		r := day(1, 1, 1, 5)
		r.Death = bp(true)
		r.Discharge = bp(true)
		_, err := Build([]model.DailyRecord{r})
		if !errors.Is(err, model.ErrMalformedCohort) {
			t.Fatalf("err = %v, want ErrMalformedCohort", err)
		}
	})
}

// TestBuild_InterleavedSubjects feeds two subjects' days interleaved in file
// order, with a covariate gap that only imputation can fill, and expects the
// carried value on the resulting interval rather than a zero.
func TestBuild_InterleavedSubjects(t *testing.T) {
	recs := []model.DailyRecord{
		{Pt: 1, Day: 1, Fluids: fp(4), Severity: fp(7)},
		{Pt: 2, Day: 1, Fluids: fp(2), Severity: fp(3)},
		withDeath(model.DailyRecord{Pt: 1, Day: 2}), // fluids/severity missing
		withDischarge(model.DailyRecord{Pt: 2, Day: 2, Fluids: fp(2), Severity: fp(3)}),
	}
	c, err := Build(LOCF{}.Apply(recs))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(c.Intervals) != 4 {
		t.Fatalf("expected 4 intervals, got %d", len(c.Intervals))
	}
	for _, iv := range c.Intervals {
		if iv.Pt == 1 && iv.Stop == 2 {
			if iv.Fluids != 4 || iv.Severity != 7 {
				t.Errorf("subject 1 day 2 covariates = (%g, %g), want carried (4, 7)", iv.Fluids, iv.Severity)
			}
		}
	}
}

func TestBuild_Collapse(t *testing.T) {
	c, err := Build(threeSubjectCohort())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var subC model.SubjectRecord
	for _, s := range c.Subjects {
		if s.Pt == 3 {
			subC = s
		}
	}
	if subC.Time != 3 {
		t.Errorf("subject C time = %g, want 3", subC.Time)
	}
	if subC.Event != model.Death {
		t.Errorf("subject C event = %v, want death", subC.Event)
	}
	if subC.SeverityBaseline != 4 {
		t.Errorf("subject C baseline severity = %g, want 4", subC.SeverityBaseline)
	}
}
