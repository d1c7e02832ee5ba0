package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/internal/database/models"
	"github.com/hugh/go-accounts/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_TransactionLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	uows := database.NewFactory(db)

	uow := uows.New(context.Background())
	defer uow.Close()

	assert.False(t, uow.InTransaction())
	assert.ErrorIs(t, uow.Commit(), database.ErrNoTx)
	assert.NoError(t, uow.Rollback())

	require.NoError(t, uow.Begin())
	assert.True(t, uow.InTransaction())
	assert.ErrorIs(t, uow.Begin(), database.ErrTxActive)

	_, err := uow.Organizations.CreateOrganization("Committed", false)
	require.NoError(t, err)
	require.NoError(t, uow.Commit())
	assert.False(t, uow.InTransaction())

	var count int64
	require.NoError(t, db.Model(&models.Organization{}).Where("name = ?", "Committed").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestFactory_Transact(t *testing.T) {
	db := testutil.SetupTestDB(t)
	uows := database.NewFactory(db)
	ctx := context.Background()

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := uows.Transact(ctx, func(uow *database.UnitOfWork) error {
			if _, err := uow.Organizations.CreateOrganization("Discarded", false); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var count int64
		require.NoError(t, db.Model(&models.Organization{}).Where("name = ?", "Discarded").Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("commits on success", func(t *testing.T) {
		var created *models.Organization
		err := uows.Transact(ctx, func(uow *database.UnitOfWork) error {
			var err error
			created, err = uow.Organizations.CreateOrganization("Kept", true)
			return err
		})
		require.NoError(t, err)

		uow := uows.New(ctx)
		defer uow.Close()
		got, err := uow.Organizations.GetOrganizationByID(created.ID)
		require.NoError(t, err)
		assert.True(t, got.Personal)
	})

	t.Run("close without commit rolls back", func(t *testing.T) {
		uow := uows.New(ctx)
		require.NoError(t, uow.Begin())
		_, err := uow.Organizations.CreateOrganization("Abandoned", false)
		require.NoError(t, err)
		uow.Close()

		var count int64
		require.NoError(t, db.Model(&models.Organization{}).Where("name = ?", "Abandoned").Count(&count).Error)
		assert.Zero(t, count)
	})
}
