package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@localhost:5432/store?sslmode=disable", "pgx5://u:p@localhost:5432/store?sslmode=disable"},
		{"postgresql://localhost/store", "pgx5://localhost/store"},
		{"pgx5://localhost/store", "pgx5://localhost/store"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, migrateURL(tt.in))
	}
}
