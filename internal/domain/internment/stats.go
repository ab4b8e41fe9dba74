package internment

import (
	"errors"
	"time"

	"github.com/hospital/internment/pkg/dates"
)

// TierStats counts review outcomes for one criticality tier.
// Total is always Compliant + Due + Overdue. Flagged counts patients with a
// discharge replan date and is independent of the status.
type TierStats struct {
	Total     int `json:"total"`
	Compliant int `json:"compliant"`
	Due       int `json:"due"`
	Overdue   int `json:"overdue"`
	Flagged   int `json:"flagged"`
}

func (t *TierStats) add(status ReviewStatus, flagged bool) {
	switch status {
	case ReviewCompliant:
		t.Compliant++
	case ReviewDue:
		t.Due++
	case ReviewOverdue:
		t.Overdue++
	default:
		return
	}
	t.Total++
	if flagged {
		t.Flagged++
	}
}

// ReviewStats is the dashboard rollup of review statuses.
type ReviewStats struct {
	Date         string                     `json:"date"`
	ByTier       map[Criticality]*TierStats `json:"by_tier"`
	Overall      TierStats                  `json:"overall"`
	Unclassified []int64                    `json:"unclassified,omitempty"`
}

// Aggregate classifies every admitted patient and groups the outcomes by
// tier. Patients whose dates are malformed are listed in Unclassified
// instead of being counted. An unknown tier aborts the rollup.
func Aggregate(patients []*Patient, today time.Time) (*ReviewStats, error) {
	stats := &ReviewStats{
		Date:   dates.Format(dates.CalendarDay(today)),
		ByTier: make(map[Criticality]*TierStats, len(Criticalities)),
	}
	for _, c := range Criticalities {
		stats.ByTier[c] = &TierStats{}
	}

	for _, p := range patients {
		if p == nil || p.Discharged() {
			continue
		}
		status, err := Classify(p, today)
		if err != nil {
			if errors.Is(err, dates.ErrInvalidDate) {
				stats.Unclassified = append(stats.Unclassified, p.ID)
				continue
			}
			return nil, err
		}
		if status == ReviewNotApplicable {
			continue
		}
		flagged := p.DischargeReplanDate != nil && *p.DischargeReplanDate != ""
		stats.ByTier[p.Criticality].add(status, flagged)
		stats.Overall.add(status, flagged)
	}
	return stats, nil
}
