package internment

import (
	"strings"
	"testing"
	"time"
)

var diffNow = time.Date(2025, 8, 11, 14, 30, 0, 0, time.UTC)

func basePatient() *Patient {
	return &Patient{
		ID:            1,
		CPF:           "12345678900",
		Name:          strPtr("Maria"),
		AdmissionDate: "2025-08-01",
		Criticality:   Criticality48h,
		Program:       strPtr("Programa A"),
		BedAudits: []BedAudit{
			{ID: 1, Date: "2025-08-05", BedType: BedWard},
			{ID: 2, Date: "2025-08-07", BedType: BedICU},
		},
	}
}

func texts(entries []HistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestDiff_NoChanges(t *testing.T) {
	p := basePatient()
	if got := Diff(p, p.Clone(), "ana", diffNow); len(got) != 0 {
		t.Errorf("expected no entries, got %v", texts(got))
	}
}

func TestDiff_SingleTextField(t *testing.T) {
	orig := basePatient()
	upd := orig.Clone()
	upd.Program = strPtr("Programa B")

	got := Diff(orig, upd, "ana", diffNow)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d: %v", len(got), texts(got))
	}
	want := "Log de Alteração: O campo 'Programa' foi alterado de 'Programa A' para 'Programa B'."
	if got[0].Text != want {
		t.Errorf("got %q, want %q", got[0].Text, want)
	}
	if got[0].Author != "ana" || !got[0].Date.Equal(diffNow) || got[0].Kind != HistoryChange {
		t.Errorf("unexpected entry metadata: %+v", got[0])
	}
}

func TestDiff_IsSymmetric(t *testing.T) {
	orig := basePatient()
	upd := orig.Clone()
	upd.Program = strPtr("Programa B")

	forward := Diff(orig, upd, "ana", diffNow)
	backward := Diff(upd, orig, "ana", diffNow)
	if len(forward) != 1 || len(backward) != 1 {
		t.Fatalf("expected one entry each way, got %d and %d", len(forward), len(backward))
	}
	if !strings.Contains(backward[0].Text, "de 'Programa B' para 'Programa A'") {
		t.Errorf("unexpected reverse entry: %q", backward[0].Text)
	}
}

func TestDiff_EmptyAndUnsetAreEquivalent(t *testing.T) {
	orig := basePatient()
	orig.Nature = nil
	orig.LastConsultDate = nil
	upd := orig.Clone()
	upd.Nature = strPtr("")
	upd.LastConsultDate = strPtr("")

	if got := Diff(orig, upd, "ana", diffNow); len(got) != 0 {
		t.Errorf("expected no entries, got %v", texts(got))
	}
}

func TestDiff_DateAndFlagFormatting(t *testing.T) {
	orig := basePatient()
	upd := orig.Clone()
	upd.DischargeReplanDate = strPtr("2025-08-20")
	upd.CourtOrder = true

	got := texts(Diff(orig, upd, "ana", diffNow))
	want := []string{
		"Log de Alteração: O campo 'Liminar' foi alterado de 'Não' para 'Sim'.",
		"Log de Alteração: O campo 'Data de Replanejamento da Alta' foi alterado de 'não definida' para '20/08/25'.",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiff_ClearedTextFieldShowsEmpty(t *testing.T) {
	orig := basePatient()
	upd := orig.Clone()
	upd.Program = nil

	got := Diff(orig, upd, "ana", diffNow)
	if len(got) != 1 || !strings.HasSuffix(got[0].Text, "de 'Programa A' para 'vazio'.") {
		t.Errorf("unexpected entries: %v", texts(got))
	}
}

func TestDiff_WaitFlags(t *testing.T) {
	orig := basePatient()
	orig.Waits.Exam = true
	upd := orig.Clone()
	upd.Waits.Surgery = true
	upd.Waits.Exam = false

	got := texts(Diff(orig, upd, "ana", diffNow))
	want := []string{
		"A pendência 'Aguardando Cirurgia' foi ativada.",
		"A pendência 'Aguardando Exame' foi desativada.",
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiff_BedAuditsAddedChangedRemoved(t *testing.T) {
	orig := basePatient()
	upd := orig.Clone()
	upd.BedAudits = []BedAudit{
		{ID: 1, Date: "2025-08-05", BedType: BedSemiICU},
		{ID: 3, Date: "2025-08-09", BedType: BedRoom},
	}

	got := texts(Diff(orig, upd, "ana", diffNow))
	want := []string{
		"Log de Auditoria de Leito: O tipo de leito de 05/08/25 foi alterado de 'enfermaria' para 'semi-uti'.",
		"Log de Auditoria de Leito: Registro de 09/08/25 adicionado com o tipo de leito 'apartamento'.",
		"Log de Auditoria de Leito: Registro de 07/08/25 removido (tipo de leito 'uti').",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDiff_OrderScalarsThenFlagsThenAudits(t *testing.T) {
	orig := basePatient()
	upd := orig.Clone()
	upd.BedAudits = upd.BedAudits[:1]
	upd.Waits.Opinion = true
	upd.DischargeReplanDate = strPtr("2025-08-15")
	upd.AdmissionType = strPtr("Eletiva")

	got := texts(Diff(orig, upd, "ana", diffNow))
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %v", got)
	}
	prefixes := []string{
		"Log de Alteração: O campo 'Tipo de Internação'",
		"Log de Alteração: O campo 'Data de Replanejamento da Alta'",
		"A pendência 'Aguardando Parecer'",
		"Log de Auditoria de Leito: Registro de 07/08/25 removido",
	}
	for i, p := range prefixes {
		if !strings.HasPrefix(got[i], p) {
			t.Errorf("entry %d: got %q, want prefix %q", i, got[i], p)
		}
	}
}

func TestDiff_DoesNotModifyInputs(t *testing.T) {
	orig := basePatient()
	upd := orig.Clone()
	upd.BedAudits = append(upd.BedAudits, BedAudit{ID: 3, Date: "2025-08-10", BedType: BedRoom})
	snapshot := orig.Clone()

	Diff(orig, upd, "ana", diffNow)
	if len(orig.BedAudits) != len(snapshot.BedAudits) || *orig.Program != *snapshot.Program {
		t.Error("Diff modified the original snapshot")
	}
	if len(orig.History) != 0 || len(upd.History) != 0 {
		t.Error("Diff must not append to history")
	}
}

func TestDiff_NilSnapshots(t *testing.T) {
	upd := basePatient()
	got := Diff(nil, upd, "ana", diffNow)
	if len(got) == 0 {
		t.Fatal("expected entries when diffing against nil")
	}
	if got := Diff(nil, nil, "ana", diffNow); len(got) != 0 {
		t.Errorf("expected no entries for two nil snapshots, got %v", texts(got))
	}
}
