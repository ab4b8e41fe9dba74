package internment

import (
	"errors"
	"testing"
	"time"

	"github.com/hospital/internment/pkg/dates"
)

func day(s string) time.Time {
	t, err := dates.Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestClassify_48hBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		lastAudit string
		want      ReviewStatus
	}{
		{"audited yesterday", "2025-08-10", ReviewCompliant},
		{"audited two days ago", "2025-08-09", ReviewDue},
		{"audited three days ago", "2025-08-08", ReviewOverdue},
		{"audited today", "2025-08-11", ReviewCompliant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Patient{
				AdmissionDate: "2025-08-01",
				Criticality:   Criticality48h,
				BedAudits:     []BedAudit{{ID: 1, Date: tt.lastAudit, BedType: BedWard}},
			}
			got, err := Classify(p, day("2025-08-11"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_72hNeverAudited(t *testing.T) {
	p := &Patient{AdmissionDate: "2025-08-11", Criticality: Criticality72h}
	got, err := Classify(p, day("2025-08-15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ReviewOverdue {
		t.Errorf("got %s, want overdue", got)
	}

	p.BedAudits = []BedAudit{{ID: 1, Date: "2025-08-13", BedType: BedWard}}
	got, err = Classify(p, day("2025-08-15"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ReviewCompliant {
		t.Errorf("got %s, want compliant", got)
	}
}

func TestClassify_UsesLatestAuditRegardlessOfOrder(t *testing.T) {
	p := &Patient{
		AdmissionDate: "2025-08-01",
		Criticality:   Criticality24h,
		BedAudits: []BedAudit{
			{ID: 2, Date: "2025-08-11", BedType: BedWard},
			{ID: 1, Date: "2025-08-02", BedType: BedWard},
		},
	}
	got, _ := Classify(p, day("2025-08-11"))
	if got != ReviewCompliant {
		t.Errorf("got %s, want compliant", got)
	}
}

func TestClassify_IgnoresFutureAudits(t *testing.T) {
	p := &Patient{
		AdmissionDate: "2025-08-01",
		Criticality:   Criticality24h,
		BedAudits: []BedAudit{
			{ID: 1, Date: "2025-08-09", BedType: BedWard},
			{ID: 2, Date: "2025-08-20", BedType: BedWard},
		},
	}
	got, _ := Classify(p, day("2025-08-11"))
	if got != ReviewOverdue {
		t.Errorf("got %s, want overdue", got)
	}
}

func TestClassify_StandardTier(t *testing.T) {
	p := &Patient{AdmissionDate: "2025-01-01", Criticality: CriticalityStandard}
	got, _ := Classify(p, day("2025-08-11"))
	if got != ReviewDue {
		t.Errorf("never audited: got %s, want due", got)
	}

	p.BedAudits = []BedAudit{{ID: 1, Date: "2025-08-11", BedType: BedRoom}}
	got, _ = Classify(p, day("2025-08-11"))
	if got != ReviewCompliant {
		t.Errorf("audited today: got %s, want compliant", got)
	}

	p.BedAudits = []BedAudit{{ID: 1, Date: "2025-08-10", BedType: BedRoom}}
	got, _ = Classify(p, day("2025-08-11"))
	if got != ReviewDue {
		t.Errorf("audited yesterday: got %s, want due", got)
	}
}

func TestClassify_Discharged(t *testing.T) {
	p := &Patient{
		AdmissionDate: "2025-08-01",
		Criticality:   Criticality24h,
		DischargeDate: strPtr("2025-08-05"),
	}
	got, err := Classify(p, day("2025-08-11"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ReviewNotApplicable {
		t.Errorf("got %s, want not_applicable", got)
	}
}

func TestClassify_UnknownCriticality(t *testing.T) {
	p := &Patient{AdmissionDate: "2025-08-01", Criticality: "96h"}
	_, err := Classify(p, day("2025-08-11"))
	if !errors.Is(err, ErrUnknownCriticality) {
		t.Errorf("expected ErrUnknownCriticality, got %v", err)
	}
}

func TestClassify_NilPatient(t *testing.T) {
	if _, err := Classify(nil, day("2025-08-11")); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestClassify_MalformedDates(t *testing.T) {
	p := &Patient{AdmissionDate: "11/08/2025", Criticality: Criticality48h}
	if _, err := Classify(p, day("2025-08-11")); !errors.Is(err, dates.ErrInvalidDate) {
		t.Errorf("admission: expected ErrInvalidDate, got %v", err)
	}

	p = &Patient{
		AdmissionDate: "2025-08-01",
		Criticality:   Criticality48h,
		BedAudits:     []BedAudit{{ID: 1, Date: "bad", BedType: BedWard}},
	}
	if _, err := Classify(p, day("2025-08-11")); !errors.Is(err, dates.ErrInvalidDate) {
		t.Errorf("audit: expected ErrInvalidDate, got %v", err)
	}
}

func TestClassify_TodayTimeOfDayIgnored(t *testing.T) {
	p := &Patient{
		AdmissionDate: "2025-08-01",
		Criticality:   Criticality48h,
		BedAudits:     []BedAudit{{ID: 1, Date: "2025-08-09", BedType: BedWard}},
	}
	late := time.Date(2025, 8, 11, 23, 59, 0, 0, time.UTC)
	got, _ := Classify(p, late)
	if got != ReviewDue {
		t.Errorf("got %s, want due", got)
	}
}

func TestWaitDurations(t *testing.T) {
	p := &Patient{
		Waits:            WaitFlags{Surgery: true, Exam: true, Opinion: false},
		SurgeryType:      strPtr("Artroplastia"),
		SurgeryWaitSince: strPtr("2025-08-01"),
		ExamWaitReason:   strPtr("Ressonância"),
		OpinionWaitSince: strPtr("2025-08-05"),
	}
	got := WaitDurations(p, day("2025-08-11"))
	if len(got) != 2 {
		t.Fatalf("expected 2 active waits, got %d", len(got))
	}
	if got[0].Label != "Aguardando Cirurgia" || got[0].Days == nil || *got[0].Days != 10 {
		t.Errorf("unexpected surgery wait: %+v", got[0])
	}
	if got[1].Label != "Aguardando Exame" || got[1].Days != nil {
		t.Errorf("exam wait without a start date should have no days: %+v", got[1])
	}
}

func TestWaitDurations_FutureStartClampsToZero(t *testing.T) {
	p := &Patient{
		Waits:                  WaitFlags{DischargePrep: true},
		DischargePrepWaitSince: strPtr("2025-08-20"),
	}
	got := WaitDurations(p, day("2025-08-11"))
	if len(got) != 1 || got[0].Days == nil || *got[0].Days != 0 {
		t.Errorf("expected a zero-day wait, got %+v", got)
	}
}
