package account

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPgUnavailableClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"nil", nil, false},
		{"network", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"cancelled", context.Canceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := pgUnavailable(tc.err)
			if errors.Is(got, ErrStoreUnavailable) != tc.unavailable {
				t.Fatalf("pgUnavailable(%v) = %v", tc.err, got)
			}
			if tc.err != nil && !errors.Is(got, tc.err) {
				t.Fatalf("driver error dropped from chain: %v", got)
			}
		})
	}
}

func TestPgSerializationErrorStillRetriedWhenWrapped(t *testing.T) {
	err := unavailable(&pgconn.PgError{Code: "40001"})
	if !isSerializationError(err) {
		t.Fatalf("wrapped serialization error not recognised: %v", err)
	}
}

func TestPostgresEntriesOrderedBySequence(t *testing.T) {
	schema := strings.Join(PostgresMigrations(), "\n")
	if !strings.Contains(schema, "seq        BIGSERIAL") || !strings.Contains(schema, "(account_id, seq DESC)") {
		t.Fatalf("coin_entries lacks a monotonic sequence:\n%s", schema)
	}
}
