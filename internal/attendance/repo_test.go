package attendance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type rowKey struct {
	alumnoID string
	fecha    string
}

// fakeLedger is the committed state shared across fake transactions.
type fakeLedger struct {
	students map[string]string
	rows     map[rowKey]Observation
	nextID   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		students: make(map[string]string),
		rows:     make(map[rowKey]Observation),
	}
}

func (l *fakeLedger) begin() *fakeBatchTx {
	return &fakeBatchTx{
		ledger:         l,
		stagedStudents: make(map[string]string),
		stagedRows:     make(map[rowKey]Observation),
	}
}

// fakeBatchTx stages writes and only publishes them to the ledger on Commit,
// mirroring the transaction SaveDay runs in Postgres.
type fakeBatchTx struct {
	ledger         *fakeLedger
	stagedStudents map[string]string
	stagedRows     map[rowKey]Observation
	failOnUpsert   int // fail the nth upsert, 0 = never
	upserts        int
	resolves       int
	committed      bool
	rolledBack     bool
}

func (f *fakeBatchTx) ResolveStudent(_ context.Context, nombre string) (string, error) {
	f.resolves++
	if id, ok := f.ledger.students[nombre]; ok {
		return id, nil
	}
	if id, ok := f.stagedStudents[nombre]; ok {
		return id, nil
	}
	f.ledger.nextID++
	id := fmt.Sprintf("al-%d", f.ledger.nextID)
	f.stagedStudents[nombre] = id
	return id, nil
}

func (f *fakeBatchTx) UpsertRecord(_ context.Context, fecha time.Time, alumnoID string, o Observation) error {
	f.upserts++
	if f.failOnUpsert > 0 && f.upserts == f.failOnUpsert {
		return errors.New("deadlock")
	}
	f.stagedRows[rowKey{alumnoID: alumnoID, fecha: fecha.Format("2006-01-02")}] = o
	return nil
}

func (f *fakeBatchTx) Commit() error {
	f.committed = true
	for nombre, id := range f.stagedStudents {
		f.ledger.students[nombre] = id
	}
	for key, o := range f.stagedRows {
		f.ledger.rows[key] = o
	}
	return nil
}

func (f *fakeBatchTx) Rollback() error {
	if f.committed {
		return nil
	}
	f.rolledBack = true
	return nil
}

func sampleDay() time.Time {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
}

func TestSaveDayRollsBackWhenUpsertFails(t *testing.T) {
	ledger := newFakeLedger()
	tx := ledger.begin()
	tx.failOnUpsert = 2

	_, err := saveDay(context.Background(), tx, sampleDay(), []Observation{
		{Nombre: "Ana", ProfesorID: "prof-1", Presente: true},
		{Nombre: "Luis", ProfesorID: "prof-1", Presente: true},
	})
	if err == nil {
		t.Fatal("expected the upsert failure to surface")
	}
	if tx.committed {
		t.Error("a failed batch must not commit")
	}
	if !tx.rolledBack {
		t.Error("a failed batch must roll back")
	}
	if len(ledger.students) != 0 {
		t.Errorf("tentative students must not persist after rollback, found %d", len(ledger.students))
	}
	if len(ledger.rows) != 0 {
		t.Errorf("no attendance rows may persist after rollback, found %d", len(ledger.rows))
	}
}

func TestSaveDaySequentialBatchesKeepOneRow(t *testing.T) {
	ledger := newFakeLedger()
	day := sampleDay()

	saved, err := saveDay(context.Background(), ledger.begin(), day, []Observation{
		{Nombre: "Ana", ProfesorID: "prof-1", Presente: true},
	})
	if err != nil || saved != 1 {
		t.Fatalf("first batch failed: saved=%d err=%v", saved, err)
	}

	saved, err = saveDay(context.Background(), ledger.begin(), day, []Observation{
		{Nombre: "Ana", ProfesorID: "prof-2", Presente: false},
	})
	if err != nil || saved != 1 {
		t.Fatalf("second batch failed: saved=%d err=%v", saved, err)
	}

	if len(ledger.students) != 1 {
		t.Fatalf("the same name must resolve to one student, found %d", len(ledger.students))
	}
	if len(ledger.rows) != 1 {
		t.Fatalf("expected exactly one row for (Ana, day), found %d", len(ledger.rows))
	}
	for _, row := range ledger.rows {
		if row.Presente || row.ProfesorID != "prof-2" {
			t.Errorf("the last submission must fully supersede, got %+v", row)
		}
	}
}

func TestSaveDayResolvesEachNameOnce(t *testing.T) {
	ledger := newFakeLedger()
	tx := ledger.begin()

	_, err := saveDay(context.Background(), tx, sampleDay(), []Observation{
		{Nombre: "Ana", ProfesorID: "prof-1", Presente: true},
		{Nombre: "Ana", ProfesorID: "prof-1", Presente: false},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if tx.resolves != 1 {
		t.Errorf("duplicate names must resolve once per batch, resolved %d times", tx.resolves)
	}
	if len(ledger.rows) != 1 {
		t.Errorf("duplicate names must land on one row, found %d", len(ledger.rows))
	}
}
