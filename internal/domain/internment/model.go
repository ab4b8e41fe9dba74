package internment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Criticality is the review cadence assigned to an admitted patient.
type Criticality string

const (
	CriticalityStandard Criticality = "padrao"
	Criticality24h      Criticality = "24h"
	Criticality48h      Criticality = "48h"
	Criticality72h      Criticality = "72h"
)

// Criticalities lists the known tiers in dashboard order.
var Criticalities = []Criticality{CriticalityStandard, Criticality24h, Criticality48h, Criticality72h}

// MaxDays returns the maximum number of days allowed between bed audits.
// finite is false for the standard tier, which has no numeric deadline.
func (c Criticality) MaxDays() (days int, finite bool, err error) {
	switch c {
	case CriticalityStandard:
		return 0, false, nil
	case Criticality24h:
		return 1, true, nil
	case Criticality48h:
		return 2, true, nil
	case Criticality72h:
		return 3, true, nil
	}
	return 0, false, fmt.Errorf("%w: %q", ErrUnknownCriticality, string(c))
}

func (c Criticality) Valid() bool {
	_, _, err := c.MaxDays()
	return err == nil
}

// BedType is the bed category recorded by a bed audit.
type BedType string

const (
	BedWard       BedType = "enfermaria"
	BedRoom       BedType = "apartamento"
	BedSemiICU    BedType = "semi-uti"
	BedICU        BedType = "uti"
	BedDischarged BedType = "alta"
)

var validBedTypes = map[BedType]bool{
	BedWard:       true,
	BedRoom:       true,
	BedSemiICU:    true,
	BedICU:        true,
	BedDischarged: true,
}

func (b BedType) Valid() bool { return validBedTypes[b] }

// BedAudit is one operator confirmation of the bed a patient occupied on a date.
type BedAudit struct {
	ID      int64   `db:"id" json:"id"`
	Date    string  `db:"audit_date" json:"date"`
	BedType BedType `db:"bed_type" json:"bed_type"`
}

// HistoryKind separates engine-generated change logs from free-text notes.
type HistoryKind string

const (
	HistoryChange     HistoryKind = "change"
	HistoryAnnotation HistoryKind = "annotation"
)

// HistoryEntry is one append-only line of a patient's change history.
type HistoryEntry struct {
	ID     uuid.UUID   `db:"id" json:"id"`
	Date   time.Time   `db:"entry_date" json:"date"`
	Author string      `db:"author" json:"author"`
	Text   string      `db:"text" json:"text"`
	Kind   HistoryKind `db:"kind" json:"kind"`
}

// WaitFlags are the four independent pendency indicators.
type WaitFlags struct {
	Surgery       bool `db:"wait_surgery" json:"surgery"`
	Exam          bool `db:"wait_exam" json:"exam"`
	Opinion       bool `db:"wait_opinion" json:"opinion"`
	DischargePrep bool `db:"wait_discharge_prep" json:"discharge_prep"`
}

// Patient maps to the internment_patient table together with its bed audits
// and change history. Optional dates are YYYY-MM-DD strings.
type Patient struct {
	ID   int64   `db:"id" json:"id"`
	CPF  string  `db:"cpf" json:"cpf"`
	Name *string `db:"name" json:"name,omitempty"`

	AdmissionDate       string  `db:"admission_date" json:"admission_date"`
	AdmissionType       *string `db:"admission_type" json:"admission_type,omitempty"`
	Nature              *string `db:"nature" json:"nature,omitempty"`
	DestinationHospital *string `db:"destination_hospital" json:"destination_hospital,omitempty"`
	Program             *string `db:"program" json:"program,omitempty"`
	Product             *string `db:"product" json:"product,omitempty"`
	Diagnoses           *string `db:"diagnoses" json:"diagnoses,omitempty"`
	ClinicalEvent       *string `db:"clinical_event" json:"clinical_event,omitempty"`

	Criticality Criticality `db:"criticality" json:"criticality"`

	AdmissionBedType *string `db:"admission_bed_type" json:"admission_bed_type,omitempty"`
	AuditedBedType   *string `db:"audited_bed_type" json:"audited_bed_type,omitempty"`
	TodayBedType     *string `db:"today_bed_type" json:"today_bed_type,omitempty"`

	Readmission       bool    `db:"readmission" json:"readmission"`
	ReadmissionType   *string `db:"readmission_type" json:"readmission_type,omitempty"`
	CourtOrder        bool    `db:"court_order" json:"court_order"`
	Fraud             bool    `db:"fraud" json:"fraud"`
	RectificationSent bool    `db:"rectification_sent" json:"rectification_sent"`
	GracePeriod       bool    `db:"grace_period" json:"grace_period"`
	CPT               bool    `db:"cpt" json:"cpt"`

	EntryCID     *string `db:"entry_cid" json:"entry_cid,omitempty"`
	EvolvingCID  *string `db:"evolving_cid" json:"evolving_cid,omitempty"`
	DischargeCID *string `db:"discharge_cid" json:"discharge_cid,omitempty"`

	PhysicianName   *string `db:"physician_name" json:"physician_name,omitempty"`
	Phone           *string `db:"phone" json:"phone,omitempty"`
	LastConsultDate *string `db:"last_consult_date" json:"last_consult_date,omitempty"`
	RegulationNotes *string `db:"regulation_notes" json:"regulation_notes,omitempty"`

	SurgeryType             *string `db:"surgery_type" json:"surgery_type,omitempty"`
	SurgeryWaitSince        *string `db:"surgery_wait_since" json:"surgery_wait_since,omitempty"`
	ExamWaitReason          *string `db:"exam_wait_reason" json:"exam_wait_reason,omitempty"`
	ExamWaitSince           *string `db:"exam_wait_since" json:"exam_wait_since,omitempty"`
	OpinionWaitReason       *string `db:"opinion_wait_reason" json:"opinion_wait_reason,omitempty"`
	OpinionWaitSince        *string `db:"opinion_wait_since" json:"opinion_wait_since,omitempty"`
	DischargePrepWaitReason *string `db:"discharge_prep_wait_reason" json:"discharge_prep_wait_reason,omitempty"`
	DischargePrepWaitSince  *string `db:"discharge_prep_wait_since" json:"discharge_prep_wait_since,omitempty"`

	DischargeDate       *string `db:"discharge_date" json:"discharge_date,omitempty"`
	DischargeReason     *string `db:"discharge_reason" json:"discharge_reason,omitempty"`
	DischargeReplanDate *string `db:"discharge_replan_date" json:"discharge_replan_date,omitempty"`

	Waits     WaitFlags      `json:"waits"`
	BedAudits []BedAudit     `json:"bed_audits"`
	History   []HistoryEntry `json:"history,omitempty"`

	VersionID int       `db:"version_id" json:"version_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Discharged reports whether the patient has a discharge date set.
func (p *Patient) Discharged() bool {
	return p.DischargeDate != nil && *p.DischargeDate != ""
}

// Clone returns a deep copy, so an edited snapshot never aliases the
// original's slices or pointers.
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	c := *p
	for _, sp := range c.stringFields() {
		if *sp != nil {
			v := **sp
			*sp = &v
		}
	}
	if p.BedAudits != nil {
		c.BedAudits = append([]BedAudit(nil), p.BedAudits...)
	}
	if p.History != nil {
		c.History = append([]HistoryEntry(nil), p.History...)
	}
	return &c
}

// FindBedAudit returns the index of the audit with the given id, or -1.
func (p *Patient) FindBedAudit(id int64) int {
	for i, a := range p.BedAudits {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (p *Patient) stringFields() []**string {
	return []**string{
		&p.Name, &p.AdmissionType, &p.Nature, &p.DestinationHospital, &p.Program, &p.Product,
		&p.Diagnoses, &p.ClinicalEvent, &p.AdmissionBedType, &p.AuditedBedType, &p.TodayBedType,
		&p.ReadmissionType, &p.EntryCID, &p.EvolvingCID, &p.DischargeCID, &p.PhysicianName,
		&p.Phone, &p.LastConsultDate, &p.RegulationNotes, &p.SurgeryType, &p.SurgeryWaitSince,
		&p.ExamWaitReason, &p.ExamWaitSince, &p.OpinionWaitReason, &p.OpinionWaitSince,
		&p.DischargePrepWaitReason, &p.DischargePrepWaitSince, &p.DischargeDate,
		&p.DischargeReason, &p.DischargeReplanDate,
	}
}

func strPtrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }
