package roles

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/agentbilling/internal/models"
	"github.com/fatflowers/agentbilling/internal/platform/db/dbtest"
	"github.com/fatflowers/agentbilling/pkg/types"
)

func TestGormStore(t *testing.T) {
	gdb := dbtest.Postgres(t)
	store := NewGormStore(gdb)
	ctx := context.Background()

	t.Run("operations", func(t *testing.T) {
		err := store.WithUserLock(ctx, "u1", func(tx Tx) error {
			latest, err := tx.LatestRole(ctx, "u1")
			require.NoError(t, err)
			assert.Nil(t, latest)

			require.NoError(t, tx.InsertRole(ctx, "u1", types.RoleAgentPro, t0))
			require.NoError(t, tx.InsertRole(ctx, "u1", types.RoleManagerProGold, t0.Add(time.Hour)))

			latest, err = tx.LatestRole(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, types.RoleManagerProGold, latest.Role)

			n, err := tx.DeleteRole(ctx, "u1", types.RoleManagerProGold)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			require.NoError(t, tx.UpsertRole(ctx, "u1", types.RoleAgentPro, t0.Add(2*time.Hour)))
			require.NoError(t, tx.UpsertRole(ctx, "u1", types.RoleManagerPro, t0.Add(3*time.Hour)))
			return nil
		})
		require.NoError(t, err)

		rows, err := store.ListRoles(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, types.RoleManagerPro, rows[0].Role)
		assert.Equal(t, types.RoleAgentPro, rows[1].Role)
		assert.True(t, rows[1].AssignedAt.Equal(t0.Add(2*time.Hour)))

		err = store.WithUserLock(ctx, "u1", func(tx Tx) error {
			n, err := tx.SetAllRoles(ctx, "u1", types.RoleAgent)
			assert.Equal(t, int64(2), n)
			return err
		})
		require.NoError(t, err)

		err = store.WithUserLock(ctx, "u1", func(tx Tx) error {
			latest, err := tx.LatestRole(ctx, "u1")
			require.NoError(t, err)
			require.NoError(t, tx.SetRoleByID(ctx, latest.ID, types.RoleManagerPro))
			n, err := tx.DeleteRolesExcept(ctx, "u1", types.RoleAgent)
			assert.Equal(t, int64(1), n)
			return err
		})
		require.NoError(t, err)

		rows, err = store.ListRoles(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, types.RoleAgent, rows[0].Role)
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithUserLock(ctx, "u2", func(tx Tx) error {
			require.NoError(t, tx.InsertRole(ctx, "u2", types.RoleManagerPro, t0))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		rows, err := store.ListRoles(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("concurrent grants insert once", func(t *testing.T) {
		r, _, _ := newTestReconciler(store, true)
		var mu sync.Mutex
		clock := t0
		r.now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		}

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Reconcile(ctx, updated("u3", types.SubscriptionStatusActive, types.RoleManagerPro))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var count int64
		require.NoError(t, gdb.Model(&models.UserRole{}).Where("user_id = ?", "u3").Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}
