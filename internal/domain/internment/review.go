package internment

import (
	"fmt"
	"time"

	"github.com/hospital/internment/pkg/dates"
)

// ReviewStatus is the live compliance badge of an admitted patient.
type ReviewStatus string

const (
	ReviewCompliant     ReviewStatus = "compliant"
	ReviewDue           ReviewStatus = "due"
	ReviewOverdue       ReviewStatus = "overdue"
	ReviewNotApplicable ReviewStatus = "not_applicable"
)

// Classify computes whether the patient's bed audits keep up with its
// criticality tier as of today. Discharged patients are not tracked.
//
// Standard-tier patients are compliant only when audited today and are
// otherwise due; they never become overdue. Timed tiers compare the days
// elapsed since the latest audit (or admission, when never audited) with
// the tier limit. Audits dated after today are ignored.
//
// An unknown tier returns ErrUnknownCriticality; malformed dates return
// dates.ErrInvalidDate.
func Classify(p *Patient, today time.Time) (ReviewStatus, error) {
	if p == nil {
		return "", fmt.Errorf("%w: no patient to classify", ErrValidation)
	}
	if p.Discharged() {
		return ReviewNotApplicable, nil
	}

	maxDays, finite, err := p.Criticality.MaxDays()
	if err != nil {
		return "", fmt.Errorf("patient %d: %w", p.ID, err)
	}
	today = dates.CalendarDay(today)

	if !finite {
		for _, a := range p.BedAudits {
			d, err := dates.Parse(a.Date)
			if err != nil {
				return "", fmt.Errorf("patient %d bed audit %d: %w", p.ID, a.ID, err)
			}
			if d.Equal(today) {
				return ReviewCompliant, nil
			}
		}
		return ReviewDue, nil
	}

	last, err := lastAuditDate(p, today)
	if err != nil {
		return "", err
	}
	elapsed := dates.ElapsedCalendarDays(last, today)
	switch {
	case elapsed < maxDays:
		return ReviewCompliant, nil
	case elapsed == maxDays:
		return ReviewDue, nil
	default:
		return ReviewOverdue, nil
	}
}

// lastAuditDate returns the most recent audit date not after today, falling
// back to the admission date.
func lastAuditDate(p *Patient, today time.Time) (time.Time, error) {
	var last time.Time
	found := false
	for _, a := range p.BedAudits {
		d, err := dates.Parse(a.Date)
		if err != nil {
			return time.Time{}, fmt.Errorf("patient %d bed audit %d: %w", p.ID, a.ID, err)
		}
		if d.After(today) {
			continue
		}
		if !found || d.After(last) {
			last, found = d, true
		}
	}
	if found {
		return last, nil
	}
	admitted, err := dates.Parse(p.AdmissionDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("patient %d admission date: %w", p.ID, err)
	}
	return admitted, nil
}

// WaitDuration reports how long an active wait flag has been pending.
type WaitDuration struct {
	Label  string  `json:"label"`
	Reason *string `json:"reason,omitempty"`
	Since  *string `json:"since,omitempty"`
	Days   *int    `json:"days,omitempty"`
}

// WaitDurations lists the active wait flags with the days waited so far.
// Days is nil when the flag has no valid start date.
func WaitDurations(p *Patient, today time.Time) []WaitDuration {
	rows := []struct {
		active bool
		label  string
		reason *string
		since  *string
	}{
		{p.Waits.Surgery, waitFlags[0].label, p.SurgeryType, p.SurgeryWaitSince},
		{p.Waits.Exam, waitFlags[1].label, p.ExamWaitReason, p.ExamWaitSince},
		{p.Waits.Opinion, waitFlags[2].label, p.OpinionWaitReason, p.OpinionWaitSince},
		{p.Waits.DischargePrep, waitFlags[3].label, p.DischargePrepWaitReason, p.DischargePrepWaitSince},
	}

	out := []WaitDuration{}
	for _, r := range rows {
		if !r.active {
			continue
		}
		w := WaitDuration{Label: r.label, Reason: r.reason, Since: r.since}
		if n, err := dates.DaysSince(strPtrVal(r.since), today); err == nil {
			w.Days = &n
		}
		out = append(out, w)
	}
	return out
}
