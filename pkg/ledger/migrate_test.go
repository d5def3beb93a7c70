package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMigrationRace(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "sqlite index exists",
			err:  errors.New("SQL logic error: index idx_appended_batches_store_path already exists (1)"),
			want: true,
		},
		{
			name: "sqlite table exists",
			err:  errors.New("SQL logic error: table `store_versions` already exists (1)"),
			want: true,
		},
		{
			name: "sqlite busy",
			err:  errors.New("database is locked (5) (SQLITE_BUSY)"),
			want: true,
		},
		{
			name: "postgres concurrent create",
			err:  errors.New(`ERROR: duplicate key value violates unique constraint "pg_type_typname_nsp_index" (SQLSTATE 23505)`),
			want: true,
		},
		{
			name: "permission denied",
			err:  errors.New("unable to open database file: permission denied"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isMigrationRace(tt.err))
		})
	}
}
