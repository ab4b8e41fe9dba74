package internment

import (
	"fmt"
	"time"

	"github.com/hospital/internment/pkg/dates"
)

const (
	emptyText = "vazio"
	unsetDate = "não definida"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindDate
	kindFlag
)

// trackedField is one row of the scalar change registry.
type trackedField struct {
	label string
	kind  fieldKind
	get   func(*Patient) interface{}
}

// trackedFields is walked in order; history entries come out in this order.
var trackedFields = []trackedField{
	{"Tipo de Internação", kindText, func(p *Patient) interface{} { return p.AdmissionType }},
	{"Natureza", kindText, func(p *Patient) interface{} { return p.Nature }},
	{"Data da Alta", kindDate, func(p *Patient) interface{} { return p.DischargeDate }},
	{"Motivo da Alta", kindText, func(p *Patient) interface{} { return p.DischargeReason }},
	{"Criticidade", kindText, func(p *Patient) interface{} { return string(p.Criticality) }},
	{"Programa", kindText, func(p *Patient) interface{} { return p.Program }},
	{"Hospital de Destino", kindText, func(p *Patient) interface{} { return p.DestinationHospital }},
	{"Tipo de Leito na Internação", kindText, func(p *Patient) interface{} { return p.AdmissionBedType }},
	{"Tipo de Leito Auditado", kindText, func(p *Patient) interface{} { return p.AuditedBedType }},
	{"Tipo de Leito Hoje", kindText, func(p *Patient) interface{} { return p.TodayBedType }},
	{"Evento Clínico", kindText, func(p *Patient) interface{} { return p.ClinicalEvent }},
	{"Reinternação", kindFlag, func(p *Patient) interface{} { return p.Readmission }},
	{"Liminar", kindFlag, func(p *Patient) interface{} { return p.CourtOrder }},
	{"Fraude", kindFlag, func(p *Patient) interface{} { return p.Fraud }},
	{"Retificação Enviada", kindFlag, func(p *Patient) interface{} { return p.RectificationSent }},
	{"Tipo de Reinternação", kindText, func(p *Patient) interface{} { return p.ReadmissionType }},
	{"Diagnósticos", kindText, func(p *Patient) interface{} { return p.Diagnoses }},
	{"Produto", kindText, func(p *Patient) interface{} { return p.Product }},
	{"Carência", kindFlag, func(p *Patient) interface{} { return p.GracePeriod }},
	{"CPT", kindFlag, func(p *Patient) interface{} { return p.CPT }},
	{"CID de Entrada", kindText, func(p *Patient) interface{} { return p.EntryCID }},
	{"CID Evolutivo", kindText, func(p *Patient) interface{} { return p.EvolvingCID }},
	{"CID de Alta", kindText, func(p *Patient) interface{} { return p.DischargeCID }},
	{"Médico Assistente", kindText, func(p *Patient) interface{} { return p.PhysicianName }},
	{"Telefone", kindText, func(p *Patient) interface{} { return p.Phone }},
	{"Data da Última Consulta", kindDate, func(p *Patient) interface{} { return p.LastConsultDate }},
	{"Observações da Regulação", kindText, func(p *Patient) interface{} { return p.RegulationNotes }},
	{"Tipo de Cirurgia", kindText, func(p *Patient) interface{} { return p.SurgeryType }},
	{"Aguardando Cirurgia Desde", kindDate, func(p *Patient) interface{} { return p.SurgeryWaitSince }},
	{"Motivo Aguardando Exame", kindText, func(p *Patient) interface{} { return p.ExamWaitReason }},
	{"Aguardando Exame Desde", kindDate, func(p *Patient) interface{} { return p.ExamWaitSince }},
	{"Motivo Aguardando Parecer", kindText, func(p *Patient) interface{} { return p.OpinionWaitReason }},
	{"Aguardando Parecer Desde", kindDate, func(p *Patient) interface{} { return p.OpinionWaitSince }},
	{"Motivo Aguardando Desospitalização", kindText, func(p *Patient) interface{} { return p.DischargePrepWaitReason }},
	{"Aguardando Desospitalização Desde", kindDate, func(p *Patient) interface{} { return p.DischargePrepWaitSince }},
	{"Data de Replanejamento da Alta", kindDate, func(p *Patient) interface{} { return p.DischargeReplanDate }},
}

// waitFlag labels follow the WaitFlags field order.
var waitFlags = []struct {
	label string
	get   func(WaitFlags) bool
}{
	{"Aguardando Cirurgia", func(w WaitFlags) bool { return w.Surgery }},
	{"Aguardando Exame", func(w WaitFlags) bool { return w.Exam }},
	{"Aguardando Parecer", func(w WaitFlags) bool { return w.Opinion }},
	{"Aguardando Desospitalização", func(w WaitFlags) bool { return w.DischargePrep }},
}

// Diff compares two snapshots of the same patient and returns the history
// entries describing what changed: scalar fields first, then wait flags,
// then bed audits added or changed, then bed audits removed. Identical
// snapshots produce no entries. Neither snapshot is modified.
func Diff(original, updated *Patient, author string, now time.Time) []HistoryEntry {
	if original == nil {
		original = &Patient{}
	}
	if updated == nil {
		updated = &Patient{}
	}

	var entries []HistoryEntry
	emit := func(text string) {
		entries = append(entries, HistoryEntry{
			Date:   now,
			Author: author,
			Text:   text,
			Kind:   HistoryChange,
		})
	}

	for _, f := range trackedFields {
		fromText, toText := f.format(f.get(original)), f.format(f.get(updated))
		if fromText == toText {
			continue
		}
		emit(fmt.Sprintf("Log de Alteração: O campo '%s' foi alterado de '%s' para '%s'.", f.label, fromText, toText))
	}

	for _, w := range waitFlags {
		was, is := w.get(original.Waits), w.get(updated.Waits)
		if was == is {
			continue
		}
		state := "desativada"
		if is {
			state = "ativada"
		}
		emit(fmt.Sprintf("A pendência '%s' foi %s.", w.label, state))
	}

	before := make(map[int64]BedAudit, len(original.BedAudits))
	for _, a := range original.BedAudits {
		before[a.ID] = a
	}
	after := make(map[int64]bool, len(updated.BedAudits))
	for _, a := range updated.BedAudits {
		after[a.ID] = true
		old, ok := before[a.ID]
		switch {
		case !ok:
			emit(fmt.Sprintf("Log de Auditoria de Leito: Registro de %s adicionado com o tipo de leito '%s'.",
				auditDate(a.Date), bedTypeText(a.BedType)))
		case old.BedType != a.BedType:
			emit(fmt.Sprintf("Log de Auditoria de Leito: O tipo de leito de %s foi alterado de '%s' para '%s'.",
				auditDate(a.Date), bedTypeText(old.BedType), bedTypeText(a.BedType)))
		}
	}
	for _, a := range original.BedAudits {
		if after[a.ID] {
			continue
		}
		emit(fmt.Sprintf("Log de Auditoria de Leito: Registro de %s removido (tipo de leito '%s').",
			auditDate(a.Date), bedTypeText(a.BedType)))
	}

	return entries
}

func (f trackedField) format(v interface{}) string {
	switch f.kind {
	case kindDate:
		return dates.FormatDisplayOr(textValue(v), unsetDate)
	case kindFlag:
		if b, _ := v.(bool); b {
			return "Sim"
		}
		return "Não"
	}
	if s := textValue(v); s != "" {
		return s
	}
	return emptyText
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		return strPtrVal(t)
	}
	return ""
}

func auditDate(s string) string {
	return dates.FormatDisplayOr(s, unsetDate)
}

func bedTypeText(b BedType) string {
	if b == "" {
		return emptyText
	}
	return string(b)
}
