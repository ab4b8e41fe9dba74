package internment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospital/internment/internal/platform/metrics"
	"github.com/hospital/internment/pkg/dates"
)

type Service struct {
	repo   Repository
	clock  dates.Clock
	logger zerolog.Logger
}

func NewService(repo Repository, clock dates.Clock) *Service {
	return &Service{repo: repo, clock: clock, logger: zerolog.Nop()}
}

// SetLogger attaches a logger; the default discards everything.
func (s *Service) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "internment").Logger()
}

// Today is the clock's current calendar day.
func (s *Service) Today() time.Time {
	return dates.Today(s.clock)
}

func (s *Service) Admit(ctx context.Context, p *Patient, author string) error {
	if p.Criticality == "" {
		p.Criticality = CriticalityStandard
	}
	assignBedAuditIDs(p, 0)
	if err := validate(p); err != nil {
		return err
	}
	p.History = []HistoryEntry{{
		Date:   s.clock.Now(),
		Author: author,
		Text:   fmt.Sprintf("Log de Alteração: Internação registrada com data de %s.", dates.FormatDisplay(p.AdmissionDate)),
		Kind:   HistoryChange,
	}}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	metrics.RecordHistoryEntries(string(HistoryChange), len(p.History))
	s.logger.Info().Int64("patient_id", p.ID).Str("criticality", string(p.Criticality)).Msg("internment admitted")
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

// ListByCPF returns every admission of the same person, newest first.
func (s *Service) ListByCPF(ctx context.Context, cpf string) ([]*Patient, error) {
	cpf = normalizeCPF(cpf)
	if cpf == "" {
		return nil, fmt.Errorf("%w: cpf is required", ErrValidation)
	}
	return s.repo.ListByCPF(ctx, cpf)
}

// Save replaces the editable state of a patient with updated, appends the
// change log produced by Diff and returns the stored record together with
// the new entries. Bed audits without an id are treated as new.
//
// The person and the admission day identify the internment and are kept
// from the stored record. An existing bed audit may change its bed type
// but not its date.
func (s *Service) Save(ctx context.Context, id int64, updated *Patient, author string) (*Patient, []HistoryEntry, error) {
	if updated == nil {
		return nil, nil, fmt.Errorf("%w: record is required", ErrValidation)
	}
	return s.mutate(ctx, id, author, func(current, next *Patient) error {
		*next = *updated.Clone()
		next.CPF = current.CPF
		next.Name = current.Name
		next.AdmissionDate = current.AdmissionDate
		if err := checkBedAuditDates(current, next); err != nil {
			return err
		}
		assignBedAuditIDs(next, maxBedAuditID(current))
		return nil
	})
}

func checkBedAuditDates(current, next *Patient) error {
	for _, a := range next.BedAudits {
		if a.ID == 0 {
			continue
		}
		i := current.FindBedAudit(a.ID)
		if i < 0 {
			continue
		}
		if was := current.BedAudits[i].Date; a.Date != was {
			return fmt.Errorf("%w: bed audit %d is dated %s and cannot be moved to %s", ErrValidation, a.ID, was, a.Date)
		}
	}
	return nil
}

func (s *Service) Discharge(ctx context.Context, id int64, date, reason, author string) (*Patient, []HistoryEntry, error) {
	if strings.TrimSpace(date) == "" {
		return nil, nil, fmt.Errorf("%w: discharge date is required", ErrValidation)
	}
	return s.mutate(ctx, id, author, func(_, next *Patient) error {
		if next.Discharged() {
			return fmt.Errorf("%w: patient already discharged on %s", ErrValidation, *next.DischargeDate)
		}
		next.DischargeDate = &date
		if reason != "" {
			next.DischargeReason = &reason
		}
		return nil
	})
}

func (s *Service) AddBedAudit(ctx context.Context, id int64, audit BedAudit, author string) (*Patient, []HistoryEntry, error) {
	return s.mutate(ctx, id, author, func(current, next *Patient) error {
		audit.ID = maxBedAuditID(current) + 1
		next.BedAudits = append(next.BedAudits, audit)
		return nil
	})
}

// UpdateBedAudit changes the bed type of an existing audit; its date is fixed.
func (s *Service) UpdateBedAudit(ctx context.Context, id, auditID int64, bedType BedType, author string) (*Patient, []HistoryEntry, error) {
	return s.mutate(ctx, id, author, func(_, next *Patient) error {
		i := next.FindBedAudit(auditID)
		if i < 0 {
			return fmt.Errorf("bed audit %d: %w", auditID, ErrNotFound)
		}
		next.BedAudits[i].BedType = bedType
		return nil
	})
}

func (s *Service) DeleteBedAudit(ctx context.Context, id, auditID int64, author string) (*Patient, []HistoryEntry, error) {
	return s.mutate(ctx, id, author, func(_, next *Patient) error {
		i := next.FindBedAudit(auditID)
		if i < 0 {
			return fmt.Errorf("bed audit %d: %w", auditID, ErrNotFound)
		}
		next.BedAudits = append(next.BedAudits[:i], next.BedAudits[i+1:]...)
		return nil
	})
}

// mutate runs edit on a copy of the locked current record, validates the
// result and persists it with the entries Diff produces. An edit that
// changes nothing is still written but appends no history.
func (s *Service) mutate(ctx context.Context, id int64, author string, edit func(current, next *Patient) error) (*Patient, []HistoryEntry, error) {
	if strings.TrimSpace(author) == "" {
		return nil, nil, fmt.Errorf("%w: author is required", ErrValidation)
	}
	var entries []HistoryEntry
	saved, err := s.repo.Update(ctx, id, func(current *Patient) (*Patient, []HistoryEntry, error) {
		next := current.Clone()
		if err := edit(current, next); err != nil {
			return nil, nil, err
		}
		next.ID = current.ID
		next.VersionID = current.VersionID
		next.CreatedAt = current.CreatedAt
		next.History = current.History
		if err := validate(next); err != nil {
			return nil, nil, err
		}
		entries = Diff(current, next, author, s.clock.Now())
		return next, entries, nil
	})
	if err != nil {
		return nil, nil, err
	}
	metrics.RecordHistoryEntries(string(HistoryChange), len(entries))
	s.logger.Info().Int64("patient_id", id).Int("entries", len(entries)).Str("author", author).Msg("internment saved")
	return saved, entries, nil
}

// Annotate appends a free-text note, such as a transcribed voice memo, to
// the patient's history.
func (s *Service) Annotate(ctx context.Context, id int64, author, text string) (*HistoryEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}
	if strings.TrimSpace(author) == "" {
		return nil, fmt.Errorf("%w: author is required", ErrValidation)
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	entry := HistoryEntry{Date: s.clock.Now(), Author: author, Text: text, Kind: HistoryAnnotation}
	entries := []HistoryEntry{entry}
	if err := s.repo.AppendHistory(ctx, id, entries); err != nil {
		return nil, err
	}
	metrics.RecordHistoryEntries(string(HistoryAnnotation), 1)
	return &entries[0], nil
}

// History returns the patient's history newest first.
func (s *Service) History(ctx context.Context, id int64) ([]HistoryEntry, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.repo.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})
	return entries, nil
}

// ReviewItem is one row of the review board.
type ReviewItem struct {
	Patient *Patient       `json:"patient"`
	Status  ReviewStatus   `json:"status"`
	Waits   []WaitDuration `json:"waits"`
}

// ReviewBoard classifies every admitted patient as of today. Patients with
// malformed dates are listed without a status.
func (s *Service) ReviewBoard(ctx context.Context) ([]ReviewItem, error) {
	patients, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	items := make([]ReviewItem, 0, len(patients))
	for _, p := range patients {
		status, err := Classify(p, today)
		if err != nil {
			if !errors.Is(err, dates.ErrInvalidDate) {
				return nil, err
			}
			s.logger.Warn().Err(err).Int64("patient_id", p.ID).Msg("cannot classify internment")
			status = ""
		}
		items = append(items, ReviewItem{Patient: p, Status: status, Waits: WaitDurations(p, today)})
	}
	return items, nil
}

// ReviewStats aggregates the review board by criticality tier.
func (s *Service) ReviewStats(ctx context.Context) (*ReviewStats, error) {
	return s.ReviewStatsAt(ctx, s.Today())
}

// ReviewStatsAt aggregates the review board as of the given day.
func (s *Service) ReviewStatsAt(ctx context.Context, today time.Time) (*ReviewStats, error) {
	patients, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := Aggregate(patients, today)
	if err != nil {
		return nil, err
	}
	if len(stats.Unclassified) > 0 {
		s.logger.Warn().Interface("patient_ids", stats.Unclassified).Msg("internments skipped from review stats")
	}
	for tier, t := range stats.ByTier {
		metrics.SetReviewStatus(string(tier), string(ReviewCompliant), t.Compliant)
		metrics.SetReviewStatus(string(tier), string(ReviewDue), t.Due)
		metrics.SetReviewStatus(string(tier), string(ReviewOverdue), t.Overdue)
	}
	return stats, nil
}

// Waits lists the active wait flags of a patient with days waited so far.
func (s *Service) Waits(ctx context.Context, id int64) ([]WaitDuration, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return WaitDurations(p, s.Today()), nil
}

// validate enforces the boundary rules: well-formed dates, a known tier,
// known bed types and at most one bed audit per day. Blank optional dates
// are cleared to nil.
func validate(p *Patient) error {
	p.CPF = normalizeCPF(p.CPF)
	if p.CPF == "" {
		return fmt.Errorf("%w: cpf is required", ErrValidation)
	}
	if _, err := dates.Parse(p.AdmissionDate); err != nil {
		return fmt.Errorf("%w: admission_date: %w", ErrValidation, err)
	}
	if _, _, err := p.Criticality.MaxDays(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	optional := []struct {
		name string
		v    **string
	}{
		{"discharge_date", &p.DischargeDate},
		{"discharge_replan_date", &p.DischargeReplanDate},
		{"last_consult_date", &p.LastConsultDate},
		{"surgery_wait_since", &p.SurgeryWaitSince},
		{"exam_wait_since", &p.ExamWaitSince},
		{"opinion_wait_since", &p.OpinionWaitSince},
		{"discharge_prep_wait_since", &p.DischargePrepWaitSince},
	}
	for _, f := range optional {
		if *f.v == nil {
			continue
		}
		if strings.TrimSpace(**f.v) == "" {
			*f.v = nil
			continue
		}
		if _, err := dates.Parse(**f.v); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrValidation, f.name, err)
		}
	}
	if p.Discharged() {
		if _, err := dates.DaysBetween(p.AdmissionDate, *p.DischargeDate); err != nil {
			return fmt.Errorf("%w: discharge_date: %w", ErrValidation, err)
		}
	}

	ids := make(map[int64]bool, len(p.BedAudits))
	days := make(map[string]bool, len(p.BedAudits))
	for _, a := range p.BedAudits {
		if _, err := dates.Parse(a.Date); err != nil {
			return fmt.Errorf("%w: bed audit date: %w", ErrValidation, err)
		}
		if !a.BedType.Valid() {
			return fmt.Errorf("%w: unknown bed type %q", ErrValidation, a.BedType)
		}
		if ids[a.ID] {
			return fmt.Errorf("%w: duplicate bed audit id %d", ErrValidation, a.ID)
		}
		if days[a.Date] {
			return fmt.Errorf("%w: %s", ErrDuplicateAuditDate, a.Date)
		}
		ids[a.ID] = true
		days[a.Date] = true
	}
	return nil
}

func maxBedAuditID(p *Patient) int64 {
	var top int64
	for _, a := range p.BedAudits {
		if a.ID > top {
			top = a.ID
		}
	}
	return top
}

// assignBedAuditIDs numbers audits that have no id yet, after both floor
// and the highest id already in p.
func assignBedAuditIDs(p *Patient, floor int64) {
	next := maxBedAuditID(p)
	if floor > next {
		next = floor
	}
	for i := range p.BedAudits {
		if p.BedAudits[i].ID == 0 {
			next++
			p.BedAudits[i].ID = next
		}
	}
}

func normalizeCPF(cpf string) string {
	var b strings.Builder
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
