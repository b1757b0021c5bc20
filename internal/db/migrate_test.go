package db

import "testing"

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"postgres://u:p@localhost:5432/claims?sslmode=disable", "pgx5://u:p@localhost:5432/claims?sslmode=disable"},
		{"postgresql://u:p@db/claims", "pgx5://u:p@db/claims"},
		{"pgx5://u:p@db/claims", "pgx5://u:p@db/claims"},
	}

	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.expected {
			t.Errorf("migrateURL(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}
