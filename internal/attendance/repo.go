package attendance

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Repository persists roster and attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// batchTx is the transactional surface a batch save drives: resolve a name
// to a student id (creating the student when absent), upsert one row per
// (alumno, fecha), then commit or roll everything back as a unit.
type batchTx interface {
	ResolveStudent(ctx context.Context, nombre string) (string, error)
	UpsertRecord(ctx context.Context, fecha time.Time, alumnoID string, o Observation) error
	Commit() error
	Rollback() error
}

// SaveDay applies the whole batch in one transaction. Any failure rolls the
// batch back, tentative students included.
func (r *Repository) SaveDay(ctx context.Context, fecha time.Time, obs []Observation) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	return saveDay(ctx, &sqlBatchTx{tx: tx}, fecha, obs)
}

// saveDay runs the resolve-then-upsert steps over an open transaction. The
// deferred rollback is a no-op once Commit succeeds.
func saveDay(ctx context.Context, tx batchTx, fecha time.Time, obs []Observation) (int, error) {
	defer tx.Rollback()

	ids := make(map[string]string, len(obs))
	for _, o := range obs {
		if _, seen := ids[o.Nombre]; seen {
			continue
		}
		id, err := tx.ResolveStudent(ctx, o.Nombre)
		if err != nil {
			return 0, err
		}
		ids[o.Nombre] = id
	}

	saved := 0
	for _, o := range obs {
		if err := tx.UpsertRecord(ctx, fecha, ids[o.Nombre], o); err != nil {
			return 0, err
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return saved, nil
}

// sqlBatchTx implements batchTx over *sql.Tx.
type sqlBatchTx struct {
	tx *sql.Tx
}

// ResolveStudent creates the student for unknown names. The on-conflict
// no-op update makes RETURNING yield the surviving row's id on both paths,
// so concurrent first-time submissions of the same name converge on one
// identity.
func (s *sqlBatchTx) ResolveStudent(ctx context.Context, nombre string) (string, error) {
	var id string
	err := s.tx.QueryRowContext(ctx, `
		INSERT INTO alumnos (id, nombre)
		VALUES ($1, $2)
		ON CONFLICT (nombre) DO UPDATE SET nombre = EXCLUDED.nombre
		RETURNING id
	`, uuid.NewString(), nombre).Scan(&id)
	return id, err
}

// UpsertRecord inserts or fully overwrites the row for (alumno, fecha).
func (s *sqlBatchTx) UpsertRecord(ctx context.Context, fecha time.Time, alumnoID string, o Observation) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO asistencias (
			id, alumno_id, profesor_id, fecha, presente,
			uniforme_ok, camisa_ok, pantalon_ok, zapatos_ok, motivo
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (alumno_id, fecha) DO UPDATE SET
			profesor_id = EXCLUDED.profesor_id,
			presente    = EXCLUDED.presente,
			uniforme_ok = EXCLUDED.uniforme_ok,
			camisa_ok   = EXCLUDED.camisa_ok,
			pantalon_ok = EXCLUDED.pantalon_ok,
			zapatos_ok  = EXCLUDED.zapatos_ok,
			motivo      = EXCLUDED.motivo
	`, uuid.NewString(), alumnoID, o.ProfesorID, fecha,
		bool(o.Presente), bool(o.UniformeOK), bool(o.CamisaOK),
		bool(o.PantalonOK), bool(o.ZapatosOK), o.Motivo)
	return err
}

func (s *sqlBatchTx) Commit() error   { return s.tx.Commit() }
func (s *sqlBatchTx) Rollback() error { return s.tx.Rollback() }

// ListStudents returns the full roster ordered by name.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, nombre, apellido, correo, grado_id, created_at
		FROM alumnos
		ORDER BY nombre
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Nombre, &s.Apellido, &s.Correo, &s.GradoID, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// CreateStudent inserts an explicit roster entry.
func (r *Repository) CreateStudent(ctx context.Context, s Student) (Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO alumnos (id, nombre, apellido, correo, grado_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, s.ID, s.Nombre, s.Apellido, s.Correo, s.GradoID)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Student{}, err
	}
	return s, nil
}

// ListByDate returns the attendance rows for one calendar day, joined with
// student names.
func (r *Repository) ListByDate(ctx context.Context, fecha time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.alumno_id, al.nombre, a.profesor_id, a.fecha, a.presente,
		       a.uniforme_ok, a.camisa_ok, a.pantalon_ok, a.zapatos_ok, a.motivo, a.created_at
		FROM asistencias a
		JOIN alumnos al ON al.id = a.alumno_id
		WHERE a.fecha = $1
		ORDER BY al.nombre
	`, fecha)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.AlumnoID, &rec.Alumno, &rec.ProfesorID, &rec.Fecha,
			&rec.Presente, &rec.UniformeOK, &rec.CamisaOK, &rec.PantalonOK, &rec.ZapatosOK,
			&rec.Motivo, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
