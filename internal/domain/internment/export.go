package internment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hospital/internment/pkg/dates"
)

const (
	boardSheet = "Auditoria"
	statsSheet = "Resumo"
)

var boardHeader = []string{
	"ID", "CPF", "Nome", "Internação", "Hospital", "Criticidade",
	"Última Auditoria", "Tipo de Leito", "Status", "Pendências", "Reprogramação de Alta",
}

var boardColumnWidths = []float64{8, 14, 30, 12, 30, 12, 16, 16, 14, 40, 20}

var statsHeader = []string{"Criticidade", "Total", "Em dia", "Vence hoje", "Atrasado", "Reprogramação"}

var statusLabels = map[ReviewStatus]string{
	ReviewCompliant:     "Em dia",
	ReviewDue:           "Vence hoje",
	ReviewOverdue:       "Atrasado",
	ReviewNotApplicable: "N/A",
}

// ExportReviewBoard renders the review board and its rollup as an XLSX
// workbook with one sheet per view.
func ExportReviewBoard(items []ReviewItem, stats *ReviewStats) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(boardSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(statsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, boardSheet, 1, toCells(boardHeader), headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	for i, item := range items {
		if err := writeRow(f, boardSheet, i+2, boardRow(item), 0); err != nil {
			f.Close()
			return nil, err
		}
	}
	for i, w := range boardColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(boardSheet, col, col, w); err != nil {
			f.Close()
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetPanes(boardSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	if stats != nil {
		if err := writeStatsSheet(f, stats, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeStatsSheet(f *excelize.File, stats *ReviewStats, headerStyle int) error {
	if err := f.SetCellValue(statsSheet, "A1", "Data"); err != nil {
		return fmt.Errorf("set cell: %w", err)
	}
	if err := f.SetCellValue(statsSheet, "B1", dates.FormatDisplay(stats.Date)); err != nil {
		return fmt.Errorf("set cell: %w", err)
	}
	if err := writeRow(f, statsSheet, 3, toCells(statsHeader), headerStyle); err != nil {
		return err
	}
	row := 4
	for _, c := range Criticalities {
		t := stats.ByTier[c]
		if t == nil {
			t = &TierStats{}
		}
		if err := writeRow(f, statsSheet, row, tierCells(string(c), t), 0); err != nil {
			return err
		}
		row++
	}
	return writeRow(f, statsSheet, row, tierCells("Total", &stats.Overall), headerStyle)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}, style int) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
		if style != 0 {
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return fmt.Errorf("set cell style %s: %w", cell, err)
			}
		}
	}
	return nil
}

func boardRow(item ReviewItem) []interface{} {
	p := item.Patient
	lastAudit, lastBed := dates.NotAvailable, ""
	for _, a := range p.BedAudits {
		if lastAudit == dates.NotAvailable || a.Date > lastAudit {
			lastAudit, lastBed = a.Date, string(a.BedType)
		}
	}
	if lastAudit != dates.NotAvailable {
		lastAudit = dates.FormatDisplay(lastAudit)
	}

	waits := make([]string, 0, len(item.Waits))
	for _, w := range item.Waits {
		if w.Days != nil {
			waits = append(waits, fmt.Sprintf("%s (%d dias)", w.Label, *w.Days))
		} else {
			waits = append(waits, w.Label)
		}
	}

	status := statusLabels[item.Status]
	if status == "" {
		status = dates.NotAvailable
	}

	return []interface{}{
		p.ID,
		p.CPF,
		strPtrVal(p.Name),
		dates.FormatDisplay(p.AdmissionDate),
		strPtrVal(p.DestinationHospital),
		string(p.Criticality),
		lastAudit,
		lastBed,
		status,
		strings.Join(waits, "; "),
		dates.FormatDisplayOr(strPtrVal(p.DischargeReplanDate), ""),
	}
}

func tierCells(label string, t *TierStats) []interface{} {
	return []interface{}{label, t.Total, t.Compliant, t.Due, t.Overdue, t.Flagged}
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
