package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	db, err := Open("sqlite::memory:")
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpen_Rejects(t *testing.T) {
	for _, dsn := range []string{"", "mysql://localhost/db", "sqlite:"} {
		_, err := Open(dsn)
		assert.Error(t, err, "dsn %q", dsn)
	}
}
