package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"curabot/internal/domain"
)

func (s Scoped) InsertPatient(ctx context.Context, p domain.Patient) error {
	_, err := s.r.DB.ExecContext(ctx, `INSERT INTO patients(id,user_id,name,phone,age,emergency_contact,emergency_phone,medical_conditions,notes,status,adherence_rate,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, s.UserID, p.Name, p.Phone, p.Age, nullable(p.EmergencyContact), nullable(p.EmergencyPhone),
		nullable(p.MedicalConditions), nullable(p.Notes), p.Status, p.AdherenceRate, p.CreatedAt, p.UpdatedAt)
	return err
}

func scanPatient(scan func(dest ...any) error) (domain.Patient, error) {
	var p domain.Patient
	var emergencyContact, emergencyPhone, conditions, notes sql.NullString
	err := scan(&p.ID, &p.UserID, &p.Name, &p.Phone, &p.Age, &emergencyContact, &emergencyPhone, &conditions, &notes, &p.Status, &p.AdherenceRate, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if emergencyContact.Valid {
		p.EmergencyContact = emergencyContact.String
	}
	if emergencyPhone.Valid {
		p.EmergencyPhone = emergencyPhone.String
	}
	if conditions.Valid {
		p.MedicalConditions = conditions.String
	}
	if notes.Valid {
		p.Notes = notes.String
	}
	return p, nil
}

const patientCols = `id,user_id,name,phone,age,emergency_contact,emergency_phone,medical_conditions,notes,status,adherence_rate,created_at,updated_at`

func (s Scoped) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	row := s.r.DB.QueryRowContext(ctx, `SELECT `+patientCols+` FROM patients WHERE id=? AND user_id=?`, id, s.UserID)
	p, err := scanPatient(row.Scan)
	if err != nil {
		return p, err
	}
	meds, err := s.r.listMedications(ctx, p.ID, true)
	if err != nil {
		return p, err
	}
	p.Medications = meds
	logs, err := s.r.listCallLogsForPatient(ctx, p.ID)
	if err != nil {
		return p, err
	}
	p.CallLogs = logs
	records, err := s.r.listMedicalRecords(ctx, p.ID)
	if err != nil {
		return p, err
	}
	p.MedicalRecords = records
	return p, nil
}

func (s Scoped) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	rows, err := s.r.DB.QueryContext(ctx, `SELECT `+patientCols+` FROM patients WHERE user_id=? ORDER BY name ASC, id ASC`, s.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Patient
	for rows.Next() {
		p, err := scanPatient(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		meds, err := s.r.listMedications(ctx, res[i].ID, true)
		if err != nil {
			return nil, err
		}
		res[i].Medications = meds
	}
	return res, nil
}

// PatientFields is a partial update of a patient record. Nil fields are
// left untouched.
type PatientFields struct {
	Name              *string
	Phone             *string
	Age               *int
	EmergencyContact  *string
	EmergencyPhone    *string
	MedicalConditions *string
	Notes             *string
	Status            *string
	AdherenceRate     *float64
}

func (s Scoped) UpdatePatient(ctx context.Context, id string, f PatientFields) error {
	var (
		fields []string
		args   []any
	)
	if f.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *f.Name)
	}
	if f.Phone != nil {
		fields = append(fields, "phone=?")
		args = append(args, *f.Phone)
	}
	if f.Age != nil {
		fields = append(fields, "age=?")
		args = append(args, *f.Age)
	}
	if f.EmergencyContact != nil {
		fields = append(fields, "emergency_contact=?")
		args = append(args, nullable(*f.EmergencyContact))
	}
	if f.EmergencyPhone != nil {
		fields = append(fields, "emergency_phone=?")
		args = append(args, nullable(*f.EmergencyPhone))
	}
	if f.MedicalConditions != nil {
		fields = append(fields, "medical_conditions=?")
		args = append(args, nullable(*f.MedicalConditions))
	}
	if f.Notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, nullable(*f.Notes))
	}
	if f.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *f.Status)
	}
	if f.AdherenceRate != nil {
		fields = append(fields, "adherence_rate=?")
		args = append(args, *f.AdherenceRate)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	args = append(args, id, s.UserID)
	res, err := s.r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE patients SET %s WHERE id=? AND user_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Scoped) DeletePatient(ctx context.Context, id string) error {
	res, err := s.r.DB.ExecContext(ctx, `DELETE FROM patients WHERE id=? AND user_id=?`, id, s.UserID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ownsPatient reports whether the patient exists under this owner. Child
// tables carry no user_id of their own, so every child write goes through
// this check first.
func (s Scoped) ownsPatient(ctx context.Context, patientID string) error {
	var one int
	err := s.r.DB.QueryRowContext(ctx, `SELECT 1 FROM patients WHERE id=? AND user_id=?`, patientID, s.UserID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

func (s Scoped) AddMedication(ctx context.Context, m domain.Medication) error {
	if err := s.ownsPatient(ctx, m.PatientID); err != nil {
		return err
	}
	_, err := s.r.DB.ExecContext(ctx, `INSERT INTO medications(id,patient_id,name,dosage,time,frequency,active,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.PatientID, m.Name, m.Dosage, m.Time, m.Frequency, m.Active, m.CreatedAt)
	return err
}

// RemoveMedication deactivates the medication rather than deleting the
// row, so call history keeps pointing at a real record.
func (s Scoped) RemoveMedication(ctx context.Context, patientID, medicationID string) error {
	if err := s.ownsPatient(ctx, patientID); err != nil {
		return err
	}
	res, err := s.r.DB.ExecContext(ctx, `UPDATE medications SET active=0 WHERE id=? AND patient_id=?`, medicationID, patientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) listMedications(ctx context.Context, patientID string, activeOnly bool) ([]domain.Medication, error) {
	query := `SELECT id,patient_id,name,dosage,time,frequency,active,created_at FROM medications WHERE patient_id=?`
	if activeOnly {
		query += ` AND active=1`
	}
	query += ` ORDER BY time ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Medication
	for rows.Next() {
		var m domain.Medication
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Name, &m.Dosage, &m.Time, &m.Frequency, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (s Scoped) InsertCallLog(ctx context.Context, c domain.CallLog) error {
	if err := s.ownsPatient(ctx, c.PatientID); err != nil {
		return err
	}
	var medsJSON any
	if c.Medications != nil {
		b, err := json.Marshal(c.Medications)
		if err != nil {
			return err
		}
		medsJSON = string(b)
	}
	_, err := s.r.DB.ExecContext(ctx, `INSERT INTO call_logs(id,patient_id,scheduled_at,started_at,ended_at,duration,status,medications_json,notes,transcript,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.PatientID, c.ScheduledAt, nullableStringPtr(c.StartedAt), nullableStringPtr(c.EndedAt), c.Duration,
		c.Status, medsJSON, nullable(c.Notes), nullable(c.Transcript), c.CreatedAt)
	return err
}

// CallLogFilters narrows the caregiver-wide call log listing.
type CallLogFilters struct {
	PatientID string
	Status    string
	Since     string
	Limit     int
}

func (s Scoped) ListCallLogs(ctx context.Context, f CallLogFilters) ([]domain.CallLog, error) {
	clauses := []string{"p.user_id=?"}
	args := []any{s.UserID}
	if f.PatientID != "" {
		clauses = append(clauses, "c.patient_id=?")
		args = append(args, f.PatientID)
	}
	if f.Status != "" {
		clauses = append(clauses, "c.status=?")
		args = append(args, f.Status)
	}
	if f.Since != "" {
		clauses = append(clauses, "c.scheduled_at >= ?")
		args = append(args, f.Since)
	}
	query := `SELECT c.id,c.patient_id,p.name,c.scheduled_at,c.started_at,c.ended_at,c.duration,c.status,c.medications_json,c.notes,c.transcript,c.created_at
FROM call_logs c JOIN patients p ON p.id=c.patient_id
WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY c.scheduled_at DESC, c.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := s.r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CallLog
	for rows.Next() {
		c, err := scanCallLog(rows.Scan, true)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) listCallLogsForPatient(ctx context.Context, patientID string) ([]domain.CallLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,patient_id,scheduled_at,started_at,ended_at,duration,status,medications_json,notes,transcript,created_at
FROM call_logs WHERE patient_id=? ORDER BY scheduled_at DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CallLog
	for rows.Next() {
		c, err := scanCallLog(rows.Scan, false)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func scanCallLog(scan func(dest ...any) error, withName bool) (domain.CallLog, error) {
	var c domain.CallLog
	var startedAt, endedAt, medsJSON, notes, transcript sql.NullString
	var err error
	if withName {
		err = scan(&c.ID, &c.PatientID, &c.PatientName, &c.ScheduledAt, &startedAt, &endedAt, &c.Duration, &c.Status, &medsJSON, &notes, &transcript, &c.CreatedAt)
	} else {
		err = scan(&c.ID, &c.PatientID, &c.ScheduledAt, &startedAt, &endedAt, &c.Duration, &c.Status, &medsJSON, &notes, &transcript, &c.CreatedAt)
	}
	if err != nil {
		return c, err
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.String
	}
	if endedAt.Valid {
		c.EndedAt = &endedAt.String
	}
	if medsJSON.Valid {
		if err := json.Unmarshal([]byte(medsJSON.String), &c.Medications); err != nil {
			return c, fmt.Errorf("call log %s medications payload: %w", c.ID, err)
		}
	}
	if c.Medications == nil {
		c.Medications = []string{}
	}
	if notes.Valid {
		c.Notes = notes.String
	}
	if transcript.Valid {
		c.Transcript = transcript.String
	}
	return c, nil
}

func (s Scoped) AddMedicalRecord(ctx context.Context, rec domain.MedicalRecord) error {
	if err := s.ownsPatient(ctx, rec.PatientID); err != nil {
		return err
	}
	_, err := s.r.DB.ExecContext(ctx, `INSERT INTO medical_records(id,patient_id,type,title,description,file_url,file_name,file_type,record_date,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.PatientID, rec.Type, rec.Title, nullable(rec.Description), nullable(rec.FileURL),
		nullable(rec.FileName), nullable(rec.FileType), rec.RecordDate, rec.CreatedAt)
	return err
}

func (r Repo) listMedicalRecords(ctx context.Context, patientID string) ([]domain.MedicalRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,patient_id,type,title,description,file_url,file_name,file_type,record_date,created_at
FROM medical_records WHERE patient_id=? ORDER BY record_date DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MedicalRecord
	for rows.Next() {
		var rec domain.MedicalRecord
		var description, fileURL, fileName, fileType sql.NullString
		if err := rows.Scan(&rec.ID, &rec.PatientID, &rec.Type, &rec.Title, &description, &fileURL, &fileName, &fileType, &rec.RecordDate, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			rec.Description = description.String
		}
		if fileURL.Valid {
			rec.FileURL = fileURL.String
		}
		if fileName.Valid {
			rec.FileName = fileName.String
		}
		if fileType.Valid {
			rec.FileType = fileType.String
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s Scoped) ListMedicalRecords(ctx context.Context, patientID string) ([]domain.MedicalRecord, error) {
	if err := s.ownsPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.r.listMedicalRecords(ctx, patientID)
}

func (s Scoped) DeleteMedicalRecord(ctx context.Context, patientID, recordID string) error {
	if err := s.ownsPatient(ctx, patientID); err != nil {
		return err
	}
	res, err := s.r.DB.ExecContext(ctx, `DELETE FROM medical_records WHERE id=? AND patient_id=?`, recordID, patientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s Scoped) AddTimelineEvent(ctx context.Context, ev domain.TimelineEvent) error {
	if err := s.ownsPatient(ctx, ev.PatientID); err != nil {
		return err
	}
	return s.r.insertTimelineEvent(ctx, s.r.DB, ev)
}

// RecordTimelineEvent writes without an ownership check. The voice and
// billing paths use it after they have already resolved the patient.
func (r Repo) RecordTimelineEvent(ctx context.Context, ev domain.TimelineEvent) error {
	return r.insertTimelineEvent(ctx, r.DB, ev)
}

func (r Repo) insertTimelineEvent(ctx context.Context, ex execer, ev domain.TimelineEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	var metaJSON any
	if ev.Metadata != nil {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		metaJSON = string(b)
	}
	_, err := ex.ExecContext(ctx, `INSERT INTO timeline_events(id,patient_id,type,title,description,metadata_json,event_date,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		ev.ID, ev.PatientID, ev.Type, ev.Title, nullable(ev.Description), metaJSON, ev.EventDate, ev.CreatedAt)
	return err
}

func (s Scoped) ListTimeline(ctx context.Context, patientID string, limit int) ([]domain.TimelineEvent, error) {
	if err := s.ownsPatient(ctx, patientID); err != nil {
		return nil, err
	}
	query := `SELECT id,patient_id,type,title,description,metadata_json,event_date,created_at
FROM timeline_events WHERE patient_id=? ORDER BY event_date DESC, id DESC`
	args := []any{patientID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimelineEvent
	for rows.Next() {
		var ev domain.TimelineEvent
		var description, metaJSON sql.NullString
		if err := rows.Scan(&ev.ID, &ev.PatientID, &ev.Type, &ev.Title, &description, &metaJSON, &ev.EventDate, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			ev.Description = description.String
		}
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("timeline event %s metadata payload: %w", ev.ID, err)
			}
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s Scoped) PatientStats(ctx context.Context) (domain.PatientStats, error) {
	var st domain.PatientStats
	err := s.r.DB.QueryRowContext(ctx, `SELECT count(*), COALESCE(SUM(CASE WHEN status='active' THEN 1 ELSE 0 END),0), COALESCE(AVG(adherence_rate),0)
FROM patients WHERE user_id=?`, s.UserID).Scan(&st.Total, &st.Active, &st.AverageAdherence)
	if err != nil {
		return st, err
	}
	today := time.Now().UTC().Format("2006-01-02")
	err = s.r.DB.QueryRowContext(ctx, `SELECT count(*) FROM call_logs c JOIN patients p ON p.id=c.patient_id
WHERE p.user_id=? AND c.scheduled_at >= ?`, s.UserID, today).Scan(&st.CallsToday)
	return st, err
}
