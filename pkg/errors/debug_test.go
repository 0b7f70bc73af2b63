package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ratings_pkey",
		TableName:      "ratings",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeStateConflict, fmt.Errorf("insert rating: %w", pgErr), "submit rating")

	d := Dump(err)
	if d.Code != CodeStateConflict {
		t.Fatalf("unexpected code %s", d.Code)
	}
	if d.PG == nil || d.PG.Class != "23" || d.PG.Constraint != "ratings_pkey" {
		t.Fatalf("unexpected pg info %+v", d.PG)
	}
	if len(d.Chain) < 3 {
		t.Fatalf("expected every wrapped layer in the chain, got %v", d.Chain)
	}

	fields := d.Fields()
	if fields["pg_code"] != "23505" || fields["pg_table"] != "ratings" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg fields should be omitted: %v", fields)
	}
}

func TestDumpReadsLibPQErrors(t *testing.T) {
	err := fmt.Errorf("lock escrow: %w", &pq.Error{Code: "40001", Table: "transactions", Message: "could not serialize access"})
	d := Dump(err)
	if d.PG == nil || d.PG.Code != "40001" || d.PG.Class != "40" || d.PG.Table != "transactions" {
		t.Fatalf("unexpected pg info %+v", d.PG)
	}
}

func TestDumpPlainError(t *testing.T) {
	d := Dump(fmt.Errorf("boom"))
	if d.PG != nil || d.Code != "" {
		t.Fatalf("plain errors carry no typed data: %+v", d)
	}
	fields := d.Fields()
	if fields["error"] != "boom" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["error_code"]; ok {
		t.Fatalf("error_code should be absent for untyped errors")
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("nil error should dump empty")
	}
}
