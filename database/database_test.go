package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	for _, url := range []string{"sqlite://:memory:", ":memory:"} {
		t.Run(url, func(t *testing.T) {
			db, err := Open(url, false, nil)
			require.NoError(t, err)
			sqlDB, err := db.DB()
			require.NoError(t, err)
			sqlDB.SetMaxOpenConns(1)
			t.Cleanup(func() { _ = sqlDB.Close() })

			require.NoError(t, Migrate(db))
			for _, table := range []any{&User{}, &Note{}, &NoteEntry{}, &Collaborator{}, &ContentVersion{}} {
				assert.True(t, db.Migrator().HasTable(table))
			}
		})
	}
}

func TestOpenRedisDisabled(t *testing.T) {
	assert.Nil(t, OpenRedis(context.Background(), "", "", 0, nil))
}
