package internment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/internment/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// patientCols excludes id; selects prepend it.
const patientCols = `cpf, name, admission_date, admission_type, nature, destination_hospital,
	program, product, diagnoses, clinical_event, criticality,
	admission_bed_type, audited_bed_type, today_bed_type,
	readmission, readmission_type, court_order, fraud, rectification_sent, grace_period, cpt,
	entry_cid, evolving_cid, discharge_cid,
	physician_name, phone, last_consult_date, regulation_notes,
	surgery_type, surgery_wait_since, exam_wait_reason, exam_wait_since,
	opinion_wait_reason, opinion_wait_since, discharge_prep_wait_reason, discharge_prep_wait_since,
	discharge_date, discharge_reason, discharge_replan_date,
	wait_surgery, wait_exam, wait_opinion, wait_discharge_prep`

const selectPatient = `SELECT id, ` + patientCols + `, version_id, created_at, updated_at FROM internment_patient`

func patientArgs(p *Patient) []interface{} {
	return []interface{}{
		p.CPF, p.Name, p.AdmissionDate, p.AdmissionType, p.Nature, p.DestinationHospital,
		p.Program, p.Product, p.Diagnoses, p.ClinicalEvent, string(p.Criticality),
		p.AdmissionBedType, p.AuditedBedType, p.TodayBedType,
		p.Readmission, p.ReadmissionType, p.CourtOrder, p.Fraud, p.RectificationSent, p.GracePeriod, p.CPT,
		p.EntryCID, p.EvolvingCID, p.DischargeCID,
		p.PhysicianName, p.Phone, p.LastConsultDate, p.RegulationNotes,
		p.SurgeryType, p.SurgeryWaitSince, p.ExamWaitReason, p.ExamWaitSince,
		p.OpinionWaitReason, p.OpinionWaitSince, p.DischargePrepWaitReason, p.DischargePrepWaitSince,
		p.DischargeDate, p.DischargeReason, p.DischargeReplanDate,
		p.Waits.Surgery, p.Waits.Exam, p.Waits.Opinion, p.Waits.DischargePrep,
	}
}

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ",")
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		args := patientArgs(p)
		err := r.conn(ctx).QueryRow(ctx,
			`INSERT INTO internment_patient (`+patientCols+`) VALUES (`+placeholders(1, len(args))+`)
			RETURNING id, version_id, created_at, updated_at`, args...,
		).Scan(&p.ID, &p.VersionID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert internment: %w", err)
		}
		if err := r.replaceBedAudits(ctx, p.ID, p.BedAudits); err != nil {
			return err
		}
		return r.AppendHistory(ctx, p.ID, p.History)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return r.load(ctx, id, false)
}

func (r *repoPG) load(ctx context.Context, id int64, forUpdate bool) (*Patient, error) {
	q := selectPatient + ` WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.BedAudits, err = r.getBedAudits(ctx, id); err != nil {
		return nil, err
	}
	if p.History, err = r.GetHistory(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

// searchColumns maps accepted query parameters to their filter clause.
var searchColumns = map[string]string{
	"cpf":         "cpf = $%d",
	"criticality": "criticality = $%d",
	"hospital":    "destination_hospital ILIKE '%%' || $%d || '%%'",
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	var where []string
	var args []interface{}
	for _, key := range []string{"cpf", "criticality", "hospital"} {
		if v := params[key]; v != "" {
			args = append(args, v)
			where = append(where, fmt.Sprintf(searchColumns[key], len(args)))
		}
	}
	switch params["active"] {
	case "true":
		where = append(where, "discharge_date IS NULL")
	case "false":
		where = append(where, "discharge_date IS NOT NULL")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM internment_patient`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		selectPatient+clause+fmt.Sprintf(` ORDER BY admission_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	patients, err := r.collect(ctx, rows)
	return patients, total, err
}

func (r *repoPG) ListActive(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, selectPatient+` WHERE discharge_date IS NULL ORDER BY admission_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(ctx, rows)
}

func (r *repoPG) ListByCPF(ctx context.Context, cpf string) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, selectPatient+` WHERE cpf = $1 ORDER BY admission_date DESC, id DESC`, cpf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(ctx, rows)
}

func (r *repoPG) Update(ctx context.Context, id int64, fn UpdateFunc) (*Patient, error) {
	var saved *Patient
	err := db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		current, err := r.load(ctx, id, true)
		if err != nil {
			return err
		}
		next, entries, err := fn(current)
		if err != nil {
			return err
		}
		args := append([]interface{}{id}, patientArgs(next)...)
		sets := strings.Split(patientCols, ",")
		for i := range sets {
			sets[i] = fmt.Sprintf("%s=$%d", strings.TrimSpace(sets[i]), i+2)
		}
		err = r.conn(ctx).QueryRow(ctx,
			`UPDATE internment_patient SET `+strings.Join(sets, ", ")+`,
				version_id = version_id + 1, updated_at = NOW()
			WHERE id = $1 RETURNING version_id, updated_at`, args...,
		).Scan(&next.VersionID, &next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update internment %d: %w", id, err)
		}
		if err := r.replaceBedAudits(ctx, id, next.BedAudits); err != nil {
			return err
		}
		if err := r.AppendHistory(ctx, id, entries); err != nil {
			return err
		}
		next.ID = id
		next.CreatedAt = current.CreatedAt
		next.History = append(current.History, entries...)
		saved = next
		return nil
	})
	return saved, err
}

// Bed audits

func (r *repoPG) getBedAudits(ctx context.Context, patientID int64) ([]BedAudit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, audit_date, bed_type
		FROM internment_bed_audit WHERE patient_id = $1 ORDER BY audit_date, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	audits := []BedAudit{}
	for rows.Next() {
		var a BedAudit
		if err := rows.Scan(&a.ID, &a.Date, &a.BedType); err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

func (r *repoPG) replaceBedAudits(ctx context.Context, patientID int64, audits []BedAudit) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM internment_bed_audit WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("clear bed audits: %w", err)
	}
	for _, a := range audits {
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO internment_bed_audit (patient_id, id, audit_date, bed_type)
			VALUES ($1, $2, $3, $4)`,
			patientID, a.ID, a.Date, string(a.BedType))
		if err != nil {
			return fmt.Errorf("insert bed audit %d: %w", a.ID, err)
		}
	}
	return nil
}

// History

func (r *repoPG) AppendHistory(ctx context.Context, patientID int64, entries []HistoryEntry) error {
	for i := range entries {
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
		e := entries[i]
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO internment_history (id, patient_id, entry_date, author, text, kind)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, patientID, e.Date, e.Author, e.Text, string(e.Kind))
		if err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	return nil
}

func (r *repoPG) GetHistory(ctx context.Context, patientID int64) ([]HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, entry_date, author, text, kind
		FROM internment_history WHERE patient_id = $1 ORDER BY seq`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Author, &e.Text, &e.Kind); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repoPG) collect(ctx context.Context, rows pgx.Rows) ([]*Patient, error) {
	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, p := range patients {
		var err error
		if p.BedAudits, err = r.getBedAudits(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return patients, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	var p Patient
	var criticality string
	err := row.Scan(&p.ID,
		&p.CPF, &p.Name, &p.AdmissionDate, &p.AdmissionType, &p.Nature, &p.DestinationHospital,
		&p.Program, &p.Product, &p.Diagnoses, &p.ClinicalEvent, &criticality,
		&p.AdmissionBedType, &p.AuditedBedType, &p.TodayBedType,
		&p.Readmission, &p.ReadmissionType, &p.CourtOrder, &p.Fraud, &p.RectificationSent, &p.GracePeriod, &p.CPT,
		&p.EntryCID, &p.EvolvingCID, &p.DischargeCID,
		&p.PhysicianName, &p.Phone, &p.LastConsultDate, &p.RegulationNotes,
		&p.SurgeryType, &p.SurgeryWaitSince, &p.ExamWaitReason, &p.ExamWaitSince,
		&p.OpinionWaitReason, &p.OpinionWaitSince, &p.DischargePrepWaitReason, &p.DischargePrepWaitSince,
		&p.DischargeDate, &p.DischargeReason, &p.DischargeReplanDate,
		&p.Waits.Surgery, &p.Waits.Exam, &p.Waits.Opinion, &p.Waits.DischargePrep,
		&p.VersionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Criticality = Criticality(criticality)
	return &p, nil
}
