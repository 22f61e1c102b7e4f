package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	contractdomain "github.com/smallbiznis/metersync/internal/contract/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&contractdomain.Contract{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM contracts")
	})
	return db
}

func TestUpsertAndList(t *testing.T) {
	db := setupDB(t)
	repo := Provide()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, db, []contractdomain.Contract{
		{ContractID: "C-2", AccountID: "A-1", Division: "electricity"},
		{ContractID: "C-1", AccountID: "A-1"},
	}))

	// Re-upserting updates instead of duplicating.
	require.NoError(t, repo.Upsert(ctx, db, []contractdomain.Contract{
		{ContractID: "C-1", AccountID: "A-1", Address: "1 Main St"},
	}))

	contracts, err := repo.List(ctx, db)
	require.NoError(t, err)
	require.Len(t, contracts, 2)
	assert.Equal(t, "C-1", contracts[0].ContractID)
	assert.Equal(t, "1 Main St", contracts[0].Address)
	assert.Equal(t, "C-2", contracts[1].ContractID)
}

func TestExists(t *testing.T) {
	db := setupDB(t)
	repo := Provide()
	ctx := context.Background()

	ok, err := repo.Exists(ctx, db, "C-3")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Upsert(ctx, db, []contractdomain.Contract{{ContractID: "C-3"}}))

	ok, err = repo.Exists(ctx, db, "C-3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpsertEmptyIsNoOp(t *testing.T) {
	db := setupDB(t)
	repo := Provide()

	require.NoError(t, repo.Upsert(context.Background(), db, nil))
}
