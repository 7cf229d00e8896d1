package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/elmojondesatan/backend-asist/internal/metrics"
)

// Flag is a boolean that also accepts the 0/1 integers the original clients
// send for presence and uniform checks.
type Flag bool

// UnmarshalJSON accepts true/false as well as numeric 0/1.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*f = true
	case "false", "null":
		*f = false
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid flag value %s", data)
		}
		*f = n != 0
	}
	return nil
}

// MarshalJSON keeps flags as plain JSON booleans.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

// Observation is one submitted attendance entry for a student, identified by
// name. ProfesorID may be empty when the authenticated teacher is implied.
type Observation struct {
	Nombre     string  `json:"nombre"`
	ProfesorID string  `json:"profesor_id"`
	Presente   Flag    `json:"presente"`
	UniformeOK Flag    `json:"uniforme_ok"`
	CamisaOK   Flag    `json:"camisa_ok"`
	PantalonOK Flag    `json:"pantalon_ok"`
	ZapatosOK  Flag    `json:"zapatos_ok"`
	Motivo     *string `json:"motivo,omitempty"`
}

// Student is a roster entry. Nombre is the reconciliation key and unique at
// the storage level.
type Student struct {
	ID        string    `json:"id"`
	Nombre    string    `json:"nombre"`
	Apellido  *string   `json:"apellido,omitempty"`
	Correo    *string   `json:"correo,omitempty"`
	GradoID   *string   `json:"grado_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Record is a persisted attendance row, at most one per (alumno, fecha).
type Record struct {
	ID         string    `json:"id"`
	AlumnoID   string    `json:"alumno_id"`
	Alumno     string    `json:"alumno"`
	ProfesorID string    `json:"profesor_id"`
	Fecha      time.Time `json:"fecha"`
	Presente   Flag      `json:"presente"`
	UniformeOK Flag      `json:"uniforme_ok"`
	CamisaOK   Flag      `json:"camisa_ok"`
	PantalonOK Flag      `json:"pantalon_ok"`
	ZapatosOK  Flag      `json:"zapatos_ok"`
	Motivo     *string   `json:"motivo,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Rejected describes an observation dropped before the transaction began.
type Rejected struct {
	Indice int    `json:"indice"`
	Nombre string `json:"nombre,omitempty"`
	Motivo string `json:"motivo"`
}

// ErrEmptyBatch signals that no observation in the batch survived validation.
var ErrEmptyBatch = errors.New("no valid observations in batch")

// Store is the persistence surface the service needs. SaveDay must apply the
// whole batch in one transaction: resolve names to student ids (creating
// missing students) and upsert one row per (alumno, fecha), or roll
// everything back.
type Store interface {
	SaveDay(ctx context.Context, fecha time.Time, obs []Observation) (int, error)
	ListStudents(ctx context.Context) ([]Student, error)
	CreateStudent(ctx context.Context, s Student) (Student, error)
	ListByDate(ctx context.Context, fecha time.Time) ([]Record, error)
}

// Service validates and persists attendance batches.
type Service struct {
	store   Store
	timeout time.Duration
}

// NewService creates a service. timeout bounds a whole batch save and
// defaults to ten seconds.
func NewService(store Store, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{store: store, timeout: timeout}
}

// SaveBatch runs the two-phase pipeline: a pure filter/collapse phase over
// the submitted observations, then one atomic transaction for the survivors.
// fallbackProfesor fills observations that omit profesor_id, normally the
// authenticated user. Returned Rejected entries describe the skipped items;
// they do not fail the batch.
func (s *Service) SaveBatch(ctx context.Context, fallbackProfesor string, obs []Observation) (int, []Rejected, error) {
	valid, rejected := filterObservations(obs, fallbackProfesor)
	for _, r := range rejected {
		log.Printf("asistencia: skipping observation %d (%q): %s", r.Indice, r.Nombre, r.Motivo)
	}
	metrics.ObservationsSkipped.Add(float64(len(rejected)))

	if len(valid) == 0 {
		metrics.Batches.WithLabelValues("empty").Inc()
		return 0, rejected, ErrEmptyBatch
	}

	clean := collapseLastWins(valid)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	saved, err := s.store.SaveDay(ctx, today(), clean)
	if err != nil {
		metrics.Batches.WithLabelValues("error").Inc()
		return 0, rejected, err
	}
	metrics.Batches.WithLabelValues("ok").Inc()
	return saved, rejected, nil
}

// Students returns the full roster.
func (s *Service) Students(ctx context.Context) ([]Student, error) {
	return s.store.ListStudents(ctx)
}

// AddStudent creates a roster entry explicitly.
func (s *Service) AddStudent(ctx context.Context, st Student) (Student, error) {
	if st.Nombre == "" {
		return Student{}, errors.New("nombre required")
	}
	return s.store.CreateStudent(ctx, st)
}

// RecordsFor lists the attendance rows for a calendar day.
func (s *Service) RecordsFor(ctx context.Context, fecha time.Time) ([]Record, error) {
	return s.store.ListByDate(ctx, fecha)
}

// filterObservations drops entries missing a name or a resolvable teacher id
// and reports each drop. Valid entries get the fallback teacher applied.
func filterObservations(obs []Observation, fallbackProfesor string) ([]Observation, []Rejected) {
	var valid []Observation
	var rejected []Rejected
	for i, o := range obs {
		if o.Nombre == "" {
			rejected = append(rejected, Rejected{Indice: i, Motivo: "nombre missing"})
			continue
		}
		if o.ProfesorID == "" {
			if fallbackProfesor == "" {
				rejected = append(rejected, Rejected{Indice: i, Nombre: o.Nombre, Motivo: "profesor_id missing"})
				continue
			}
			o.ProfesorID = fallbackProfesor
		}
		valid = append(valid, o)
	}
	return valid, rejected
}

// collapseLastWins keeps one observation per name, the last submitted, so a
// batch never carries two rows for the same (alumno, fecha) key into the
// transaction. First-seen order is preserved.
func collapseLastWins(obs []Observation) []Observation {
	index := make(map[string]int, len(obs))
	var out []Observation
	for _, o := range obs {
		if at, seen := index[o.Nombre]; seen {
			out[at] = o
			continue
		}
		index[o.Nombre] = len(out)
		out = append(out, o)
	}
	return out
}

// today returns the current calendar day in UTC, no time component.
func today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
