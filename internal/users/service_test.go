package users

import (
	"context"
	"testing"

	"github.com/angelmondragon/farmbid-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	client := dbtest.New(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)
	return svc
}

func TestEnsureProfileCreatesOnce(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id := uuid.New()

	user, err := svc.EnsureProfile(ctx, EnsureProfileInput{UserID: id, Role: enums.RoleFarmer, DisplayName: "<b>Asha</b>"})
	require.NoError(t, err)
	require.Equal(t, enums.RoleFarmer, user.Role)
	require.Equal(t, "Asha", user.DisplayName)

	again, err := svc.EnsureProfile(ctx, EnsureProfileInput{UserID: id, Role: enums.RoleMerchant, DisplayName: "Other"})
	require.NoError(t, err)
	require.Equal(t, enums.RoleFarmer, again.Role, "role is fixed at creation")
	require.Equal(t, "Asha", again.DisplayName)
}

func TestEnsureProfileRejectsInvalidRole(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.EnsureProfile(context.Background(), EnsureProfileInput{UserID: uuid.New(), Role: "admin"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidInput))
}

func TestGetUnknownUser(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonUserNotFound))
}

func TestIDsByRoleExcludes(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	m1, m2, f1 := uuid.New(), uuid.New(), uuid.New()
	for id, role := range map[uuid.UUID]enums.Role{m1: enums.RoleMerchant, m2: enums.RoleMerchant, f1: enums.RoleFarmer} {
		_, err := svc.EnsureProfile(ctx, EnsureProfileInput{UserID: id, Role: role})
		require.NoError(t, err)
	}

	ids, err := svc.IDsByRole(ctx, enums.RoleMerchant, &m1)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{m2}, ids)
}

func TestUpdateRatingSummary(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	id := uuid.New()
	_, err := svc.EnsureProfile(ctx, EnsureProfileInput{UserID: id, Role: enums.RoleMerchant})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateRatingSummary(ctx, id, 4.5, 2))
	user, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 4.5, user.RatingAverage)
	require.Equal(t, int64(2), user.RatingCount)
}
