package testutil

import (
	"context"
	"database/sql/driver"
	"io"
	"testing"
)

func TestStubDBStoresAndQueriesBuckets(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	_, err := conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload", []driver.NamedValue{
		{Value: "sessions"},
		{Value: []byte(`[{"id":"s-1"}]`)},
	})
	if err != nil {
		t.Fatalf("ExecContext upsert: %v", err)
	}
	if string(conn.Buckets["sessions"]) != `[{"id":"s-1"}]` {
		t.Fatalf("bucket payload = %s", conn.Buckets["sessions"])
	}

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer func() { _ = rows.Close() }()

	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "sessions" {
		t.Fatalf("bucket = %v", dest[0])
	}
	if err := rows.Next(dest); err != io.EOF {
		t.Fatalf("expected EOF after single row, got %v", err)
	}
}

func TestStubDBFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	conn.FailPing = true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailPing = false

	conn.FailExec = true
	if _, err := conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2)", nil); err == nil {
		t.Fatalf("expected exec failure")
	}
	conn.FailExec = false

	conn.FailQuery = true
	if _, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil); err == nil {
		t.Fatalf("expected query failure")
	}
}
