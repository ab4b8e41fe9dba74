package internment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/internment/pkg/dates"
)

// -- Mock Repository --

type mockRepo struct {
	mu       sync.Mutex
	patients map[int64]*Patient
	history  map[int64][]HistoryEntry
	nextID   int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[int64]*Patient),
		history:  make(map[int64][]HistoryEntry),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	p.VersionID = 1
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	for i := range p.History {
		if p.History[i].ID == uuid.Nil {
			p.History[i].ID = uuid.New()
		}
	}
	m.history[p.ID] = append([]HistoryEntry(nil), p.History...)
	m.patients[p.ID] = p.Clone()
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.sorted() {
		if v, ok := params["cpf"]; ok && p.CPF != v {
			continue
		}
		if v, ok := params["criticality"]; ok && string(p.Criticality) != v {
			continue
		}
		if v, ok := params["active"]; ok && (v == "true") == p.Discharged() {
			continue
		}
		out = append(out, p.Clone())
	}
	total := len(out)
	if offset >= total {
		return []*Patient{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRepo) ListActive(_ context.Context) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.sorted() {
		if !p.Discharged() {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *mockRepo) ListByCPF(_ context.Context, cpf string) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.sorted() {
		if p.CPF == cpf {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, id int64, fn UpdateFunc) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, entries, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	next.VersionID = current.VersionID + 1
	next.UpdatedAt = time.Now()
	for i := range entries {
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
	}
	m.history[id] = append(m.history[id], entries...)
	m.patients[id] = next.Clone()
	return next, nil
}

func (m *mockRepo) AppendHistory(_ context.Context, patientID int64, entries []HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[patientID]; !ok {
		return ErrNotFound
	}
	for i := range entries {
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
	}
	m.history[patientID] = append(m.history[patientID], entries...)
	return nil
}

func (m *mockRepo) GetHistory(_ context.Context, patientID int64) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry(nil), m.history[patientID]...), nil
}

func (m *mockRepo) sorted() []*Patient {
	out := make([]*Patient, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// -- Tests --

var serviceNow = time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC)

func newTestService() *Service {
	return NewService(newMockRepo(), dates.FixedClock(serviceNow))
}

func admit(t *testing.T, svc *Service, p *Patient) *Patient {
	t.Helper()
	if err := svc.Admit(context.Background(), p, "ana"); err != nil {
		t.Fatalf("admit: %v", err)
	}
	return p
}

func TestService_Admit(t *testing.T) {
	svc := newTestService()
	p := admit(t, svc, &Patient{CPF: "123.456.789-00", AdmissionDate: "2025-08-01"})

	if p.ID == 0 {
		t.Error("expected ID to be set")
	}
	if p.CPF != "12345678900" {
		t.Errorf("expected normalized cpf, got %s", p.CPF)
	}
	if p.Criticality != CriticalityStandard {
		t.Errorf("expected default criticality, got %s", p.Criticality)
	}
	hist, err := svc.History(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || !strings.Contains(hist[0].Text, "01/08/25") {
		t.Errorf("expected one admission entry, got %+v", hist)
	}
}

func TestService_Admit_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name string
		p    *Patient
		want error
	}{
		{"missing cpf", &Patient{AdmissionDate: "2025-08-01"}, ErrValidation},
		{"bad admission date", &Patient{CPF: "1", AdmissionDate: "01/08/2025"}, ErrValidation},
		{"unknown tier", &Patient{CPF: "1", AdmissionDate: "2025-08-01", Criticality: "96h"}, ErrUnknownCriticality},
		{"discharge before admission", &Patient{CPF: "1", AdmissionDate: "2025-08-05", DischargeDate: strPtr("2025-08-01")}, dates.ErrInvertedInterval},
		{"bad bed type", &Patient{CPF: "1", AdmissionDate: "2025-08-01", BedAudits: []BedAudit{{Date: "2025-08-02", BedType: "cama"}}}, ErrValidation},
		{"duplicate audit date", &Patient{CPF: "1", AdmissionDate: "2025-08-01", BedAudits: []BedAudit{
			{Date: "2025-08-02", BedType: BedWard},
			{Date: "2025-08-02", BedType: BedICU},
		}}, ErrDuplicateAuditDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Admit(context.Background(), tt.p, "ana")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_Save_AppendsDiff(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01", Criticality: Criticality48h})

	upd, _ := svc.Get(ctx, p.ID)
	upd.Program = strPtr("Oncologia")
	upd.Waits.Exam = true
	upd.BedAudits = append(upd.BedAudits, BedAudit{Date: "2025-08-10", BedType: BedICU})

	saved, entries, err := svc.Save(ctx, p.ID, upd, "bruno")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(entries), texts(entries))
	}
	if saved.BedAudits[0].ID != 1 {
		t.Errorf("expected new audit to get id 1, got %d", saved.BedAudits[0].ID)
	}
	if saved.VersionID != 2 {
		t.Errorf("expected version 2, got %d", saved.VersionID)
	}
	for _, e := range entries {
		if e.Author != "bruno" || !e.Date.Equal(serviceNow) {
			t.Errorf("unexpected entry metadata: %+v", e)
		}
	}

	hist, _ := svc.History(ctx, p.ID)
	if len(hist) != 4 {
		t.Errorf("expected 4 history entries, got %d", len(hist))
	}
}

func TestService_Save_NoChangeAppendsNothing(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01"})

	same, _ := svc.Get(ctx, p.ID)
	_, entries, err := svc.Save(ctx, p.ID, same, "bruno")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", texts(entries))
	}
}

func TestService_Save_RequiresAuthor(t *testing.T) {
	svc := newTestService()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01"})
	if _, _, err := svc.Save(context.Background(), p.ID, p, " "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestService_Save_NotFound(t *testing.T) {
	svc := newTestService()
	_, _, err := svc.Save(context.Background(), 99, &Patient{CPF: "1", AdmissionDate: "2025-08-01"}, "ana")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Save_RejectsInvalidWithoutWriting(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01"})

	bad, _ := svc.Get(ctx, p.ID)
	bad.LastConsultDate = strPtr("ontem")
	if _, _, err := svc.Save(ctx, p.ID, bad, "ana"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	stored, _ := svc.Get(ctx, p.ID)
	if stored.LastConsultDate != nil || stored.VersionID != 1 {
		t.Errorf("record should be unchanged: %+v", stored)
	}
}

func TestService_Save_KeepsIdentityFields(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "111", Name: strPtr("Maria"), AdmissionDate: "2025-08-01", Criticality: Criticality72h})

	upd, _ := svc.Get(ctx, p.ID)
	upd.CPF = "999"
	upd.Name = strPtr("Outra Pessoa")
	upd.AdmissionDate = "2025-08-09"

	saved, entries, err := svc.Save(ctx, p.ID, upd, "bruno")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", texts(entries))
	}
	if saved.CPF != "111" || strPtrVal(saved.Name) != "Maria" || saved.AdmissionDate != "2025-08-01" {
		t.Errorf("identity fields changed: cpf=%s name=%s admission=%s", saved.CPF, strPtrVal(saved.Name), saved.AdmissionDate)
	}
	if status, _ := Classify(saved, serviceNow); status != ReviewOverdue {
		t.Errorf("expected overdue from the original admission date, got %s", status)
	}
}

func TestService_Save_RejectsMovedBedAudit(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{
		CPF:           "1",
		AdmissionDate: "2025-08-01",
		Criticality:   Criticality72h,
		BedAudits:     []BedAudit{{Date: "2025-08-05", BedType: BedWard}},
	})

	moved, _ := svc.Get(ctx, p.ID)
	moved.BedAudits[0].Date = "2025-08-10"
	if _, _, err := svc.Save(ctx, p.ID, moved, "bruno"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	stored, _ := svc.Get(ctx, p.ID)
	if stored.BedAudits[0].Date != "2025-08-05" || stored.VersionID != 1 {
		t.Errorf("record should be unchanged: %+v", stored.BedAudits)
	}
	if status, _ := Classify(stored, serviceNow); status != ReviewOverdue {
		t.Errorf("expected overdue, got %s", status)
	}

	retyped, _ := svc.Get(ctx, p.ID)
	retyped.BedAudits[0].BedType = BedICU
	_, entries, err := svc.Save(ctx, p.ID, retyped, "bruno")
	if err != nil {
		t.Fatalf("bed type change: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected one entry for the bed type change, got %v", texts(entries))
	}
}

func TestService_BlankOptionalDatesBecomeNil(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{
		CPF:             "1",
		AdmissionDate:   "2025-08-01",
		DischargeDate:   strPtr(""),
		LastConsultDate: strPtr("  "),
	})
	if p.DischargeDate != nil || p.LastConsultDate != nil {
		t.Errorf("expected blank dates cleared, got %v %v", p.DischargeDate, p.LastConsultDate)
	}
	if p.Discharged() {
		t.Error("blank discharge date must not discharge")
	}

	upd, _ := svc.Get(ctx, p.ID)
	upd.ExamWaitSince = strPtr("")
	saved, entries, err := svc.Save(ctx, p.ID, upd, "bruno")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.ExamWaitSince != nil || len(entries) != 0 {
		t.Errorf("expected nil wait date and no entries, got %v %v", saved.ExamWaitSince, texts(entries))
	}
}

func TestService_RejectsPaddedDates(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	err := svc.Admit(ctx, &Patient{CPF: "1", AdmissionDate: " 2025-08-01"}, "ana")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("admission: expected ErrValidation, got %v", err)
	}

	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01"})
	if _, _, err := svc.AddBedAudit(ctx, p.ID, BedAudit{Date: "2025-08-10 ", BedType: BedWard}, "ana"); !errors.Is(err, ErrValidation) {
		t.Errorf("bed audit: expected ErrValidation, got %v", err)
	}
	upd, _ := svc.Get(ctx, p.ID)
	upd.SurgeryWaitSince = strPtr("2025-08-05\n")
	if _, _, err := svc.Save(ctx, p.ID, upd, "ana"); !errors.Is(err, ErrValidation) {
		t.Errorf("wait date: expected ErrValidation, got %v", err)
	}
	if _, _, err := svc.Discharge(ctx, p.ID, " ", "", "ana"); !errors.Is(err, ErrValidation) {
		t.Errorf("discharge: expected ErrValidation, got %v", err)
	}
}

func TestValidate_ReportsFirstBadFieldInOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		p := &Patient{
			CPF:                    "1",
			AdmissionDate:          "2025-08-01",
			Criticality:            CriticalityStandard,
			DischargeDate:          strPtr("x"),
			LastConsultDate:        strPtr("y"),
			DischargePrepWaitSince: strPtr("z"),
		}
		err := validate(p)
		if err == nil || !strings.Contains(err.Error(), "discharge_date:") {
			t.Fatalf("run %d: expected discharge_date error, got %v", i, err)
		}
	}
}

func TestService_BedAuditLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01", Criticality: Criticality24h})

	saved, entries, err := svc.AddBedAudit(ctx, p.ID, BedAudit{Date: "2025-08-10", BedType: BedWard}, "ana")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(saved.BedAudits) != 1 || saved.BedAudits[0].ID != 1 || len(entries) != 1 {
		t.Fatalf("unexpected add result: %+v %v", saved.BedAudits, texts(entries))
	}

	if _, _, err := svc.AddBedAudit(ctx, p.ID, BedAudit{Date: "2025-08-10", BedType: BedICU}, "ana"); !errors.Is(err, ErrDuplicateAuditDate) {
		t.Errorf("expected ErrDuplicateAuditDate, got %v", err)
	}

	saved, entries, err = svc.UpdateBedAudit(ctx, p.ID, 1, BedICU, "ana")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.BedAudits[0].BedType != BedICU || len(entries) != 1 ||
		!strings.Contains(entries[0].Text, "alterado de 'enfermaria' para 'uti'") {
		t.Errorf("unexpected update result: %v", texts(entries))
	}

	if _, _, err := svc.UpdateBedAudit(ctx, p.ID, 42, BedICU, "ana"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	saved, entries, err = svc.DeleteBedAudit(ctx, p.ID, 1, "ana")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(saved.BedAudits) != 0 || len(entries) != 1 || !strings.Contains(entries[0].Text, "removido") {
		t.Errorf("unexpected delete result: %v", texts(entries))
	}

}

func TestService_Discharge(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01"})

	saved, entries, err := svc.Discharge(ctx, p.ID, "2025-08-11", "Melhora clínica", "ana")
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if !saved.Discharged() || len(entries) != 2 {
		t.Errorf("unexpected discharge result: %v", texts(entries))
	}
	if _, _, err := svc.Discharge(ctx, p.ID, "2025-08-12", "", "ana"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation on second discharge, got %v", err)
	}

	board, _ := svc.ReviewBoard(ctx)
	if len(board) != 0 {
		t.Errorf("discharged patients must leave the review board, got %d", len(board))
	}
}

func TestService_Annotate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01"})

	entry, err := svc.Annotate(ctx, p.ID, "ana", "  Família solicitou contato.  ")
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if entry.Kind != HistoryAnnotation || entry.Text != "Família solicitou contato." {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if _, err := svc.Annotate(ctx, p.ID, "ana", "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for blank text, got %v", err)
	}
	if _, err := svc.Annotate(ctx, 99, "ana", "texto"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_History_NewestFirst(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-01"})

	svc.clock = dates.FixedClock(serviceNow.Add(time.Hour))
	if _, err := svc.Annotate(ctx, p.ID, "ana", "segunda"); err != nil {
		t.Fatalf("annotate: %v", err)
	}

	hist, err := svc.History(ctx, p.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].Text != "segunda" {
		t.Errorf("expected newest entry first, got %+v", hist)
	}
}

func TestService_ListByCPF(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	admit(t, svc, &Patient{CPF: "111.111.111-11", AdmissionDate: "2025-06-01", DischargeDate: strPtr("2025-06-10")})
	admit(t, svc, &Patient{CPF: "11111111111", AdmissionDate: "2025-08-01"})
	admit(t, svc, &Patient{CPF: "22222222222", AdmissionDate: "2025-08-01"})

	got, err := svc.ListByCPF(ctx, "111.111.111-11")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 admissions, got %d", len(got))
	}
	if _, err := svc.ListByCPF(ctx, "---"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestService_ReviewBoardAndStats(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-08-10", Criticality: Criticality48h})
	admit(t, svc, &Patient{CPF: "2", AdmissionDate: "2025-08-01", Criticality: Criticality48h,
		Waits: WaitFlags{Surgery: true}, SurgeryWaitSince: strPtr("2025-08-04")})

	board, err := svc.ReviewBoard(ctx)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 items, got %d", len(board))
	}
	if board[0].Status != ReviewCompliant || board[1].Status != ReviewOverdue {
		t.Errorf("unexpected statuses: %s, %s", board[0].Status, board[1].Status)
	}
	if len(board[1].Waits) != 1 || *board[1].Waits[0].Days != 7 {
		t.Errorf("unexpected waits: %+v", board[1].Waits)
	}

	stats, err := svc.ReviewStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Date != "2025-08-11" || stats.ByTier[Criticality48h].Total != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestService_ConcurrentSavesKeepEveryEntry(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := admit(t, svc, &Patient{CPF: "1", AdmissionDate: "2025-07-01"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			audit := BedAudit{Date: dates.Format(day("2025-08-01").AddDate(0, 0, i)), BedType: BedWard}
			if _, _, err := svc.AddBedAudit(ctx, p.ID, audit, "ana"); err != nil {
				t.Errorf("add %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stored, _ := svc.Get(ctx, p.ID)
	if len(stored.BedAudits) != 10 {
		t.Errorf("expected 10 audits, got %d", len(stored.BedAudits))
	}
	ids := map[int64]bool{}
	for _, a := range stored.BedAudits {
		ids[a.ID] = true
	}
	if len(ids) != 10 {
		t.Errorf("expected unique ids, got %v", stored.BedAudits)
	}
	hist, _ := svc.History(ctx, p.ID)
	if len(hist) != 11 {
		t.Errorf("expected 11 history entries, got %d", len(hist))
	}
}
