package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

const (
	activeSlotConstraint = "appointment_active_slot_key"
	patientFKConstraint  = "appointment_patient_id_fkey"
	doctorFKConstraint   = "appointment_doctor_id_fkey"
)

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepo(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const apptCols = `id, patient_id, doctor_id, appointment_date, appointment_time, department,
	reason, notes, status, created_at, updated_at`

func translateWriteErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, activeSlotConstraint):
		return ErrConflict
	case db.IsForeignKeyViolation(err, patientFKConstraint):
		return invalid("patient_id", "patient does not exist")
	case db.IsForeignKeyViolation(err, doctorFKConstraint):
		return invalid("doctor_id", "doctor does not exist")
	}
	return fmt.Errorf("appointment %s: %w", op, err)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (`+apptCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.PatientID, a.DoctorID, a.Date, string(a.Time), a.Department,
		a.Reason, a.Notes, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	return translateWriteErr("create", err)
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment
		SET appointment_date = $2, appointment_time = $3, status = $4, notes = $5, updated_at = $6
		WHERE id = $1`,
		a.ID, a.Date, string(a.Time), string(a.Status), a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return translateWriteErr("update", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.getOne(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id)
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.getOne(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id)
}

func (r *appointmentRepoPG) getOne(ctx context.Context, sql string, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, sql, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointment get: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Find(ctx context.Context, f AppointmentFilter) ([]*Appointment, error) {
	where, args := buildWhere(f)
	order := "appointment_date, appointment_time, created_at"
	if f.Order == OrderNewestFirst {
		order = "appointment_date DESC, appointment_time DESC, created_at DESC"
	}
	sql := `SELECT ` + apptCols + ` FROM appointment` + where + ` ORDER BY ` + order
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("appointment find: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointment scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) Count(ctx context.Context, f AppointmentFilter) (int, error) {
	where, args := buildWhere(f)
	var n int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("appointment count: %w", err)
	}
	return n, nil
}

func (r *appointmentRepoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM appointment GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("appointment count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("appointment count scan: %w", err)
		}
		counts[Status(s)] = n
	}
	return counts, rows.Err()
}

// buildWhere renders f as a WHERE clause with positional arguments.
func buildWhere(f AppointmentFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ID != nil {
		add("id = $%d", *f.ID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Date != nil {
		add("appointment_date = $%d", DateOf(*f.Date))
	}
	if f.Time != "" {
		add("appointment_time = $%d", string(f.Time))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if len(f.ExcludeStatuses) > 0 {
		add("NOT (status = ANY($%d))", statusStrings(f.ExcludeStatuses))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func statusStrings(list []Status) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var label, status string
	var updated *time.Time
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &label, &a.Department,
		&a.Reason, &a.Notes, &status, &a.CreatedAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	a.Time = TimeLabel(label)
	a.Status = Status(status)
	a.UpdatedAt = updated
	return &a, nil
}
