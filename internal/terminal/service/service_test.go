package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	terminaldomain "github.com/smallbiznis/kassa/internal/terminal/domain"
	"github.com/smallbiznis/kassa/internal/terminal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTerminalService(t *testing.T) (terminaldomain.Service, *gorm.DB, snowflake.ID) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&terminaldomain.Terminal{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, db, node.Generate()
}

func TestRegisterIssuesSecret(t *testing.T) {
	svc, db, tenantID := newTerminalService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{
		Code: "reg-1",
		Name: "Front register",
	})
	require.NoError(t, err)
	assert.Equal(t, "reg-1", resp.Code)
	assert.True(t, strings.HasPrefix(resp.Secret, "ks_term_"))
	assert.Len(t, resp.Secret, len("ks_term_")+64)

	var record terminaldomain.Terminal
	require.NoError(t, db.Where("code = ?", "reg-1").First(&record).Error)
	assert.True(t, record.IsActive)
	assert.Equal(t, []string{terminaldomain.ScopeSyncWrite}, []string(record.Scopes))
}

func TestGetTerminalByCode(t *testing.T) {
	svc, _, tenantID := newTerminalService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{
		Code: "reg-1",
		Name: "Front register",
	})
	require.NoError(t, err)

	found, err := svc.Get(ctx, tenantID, "reg-1")
	require.NoError(t, err)
	assert.Equal(t, "reg-1", found.Code)
	assert.Equal(t, []string{terminaldomain.ScopeSyncWrite}, found.Scopes)

	_, err = svc.Get(ctx, tenantID, "ghost")
	assert.ErrorIs(t, err, terminaldomain.ErrNotFound)

	// Codes resolve globally for sync auth, but admin reads stay
	// inside the tenant.
	_, err = svc.Get(ctx, tenantID+1, "reg-1")
	assert.ErrorIs(t, err, terminaldomain.ErrNotFound)

	_, err = svc.Get(ctx, tenantID, "  ")
	assert.ErrorIs(t, err, terminaldomain.ErrInvalidCode)
}

func TestRegisterRejectsBlankFields(t *testing.T) {
	svc, _, tenantID := newTerminalService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{Name: "No code"})
	assert.ErrorIs(t, err, terminaldomain.ErrInvalidCode)

	_, err = svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{Code: "reg-1"})
	assert.ErrorIs(t, err, terminaldomain.ErrInvalidName)
}

func TestAuthenticate(t *testing.T) {
	svc, _, tenantID := newTerminalService(t)
	ctx := context.Background()

	issued, err := svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{
		Code: "reg-1",
		Name: "Front register",
	})
	require.NoError(t, err)

	body := []byte(`{"operations":[]}`)
	sig := terminaldomain.SignBody(issued.Secret, body)

	terminal, err := svc.Authenticate(ctx, "reg-1", sig, body)
	require.NoError(t, err)
	assert.Equal(t, tenantID, terminal.TenantID)
	assert.NotNil(t, terminal.LastSeenAt)

	_, err = svc.Authenticate(ctx, "reg-1", terminaldomain.SignBody("wrong", body), body)
	assert.ErrorIs(t, err, terminaldomain.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "unknown", sig, body)
	assert.ErrorIs(t, err, terminaldomain.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "reg-1", "", body)
	assert.ErrorIs(t, err, terminaldomain.ErrUnauthorized)
}

func TestAuthenticateLockedTerminal(t *testing.T) {
	svc, _, tenantID := newTerminalService(t)
	ctx := context.Background()

	issued, err := svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{
		Code: "reg-1",
		Name: "Front register",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Lock(ctx, tenantID, "reg-1"))

	body := []byte(`{}`)
	sig := terminaldomain.SignBody(issued.Secret, body)
	_, err = svc.Authenticate(ctx, "reg-1", sig, body)
	assert.ErrorIs(t, err, terminaldomain.ErrLocked)

	// A bad signature on a locked terminal still reads as unauthorized:
	// lock state is only disclosed to holders of the secret.
	_, err = svc.Authenticate(ctx, "reg-1", terminaldomain.SignBody("wrong", body), body)
	assert.ErrorIs(t, err, terminaldomain.ErrUnauthorized)

	require.NoError(t, svc.Unlock(ctx, tenantID, "reg-1"))
	_, err = svc.Authenticate(ctx, "reg-1", sig, body)
	assert.NoError(t, err)
}

func TestAuthenticateDeactivatedTerminal(t *testing.T) {
	svc, _, tenantID := newTerminalService(t)
	ctx := context.Background()

	issued, err := svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{
		Code: "reg-1",
		Name: "Front register",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, tenantID, "reg-1"))

	body := []byte(`{}`)
	_, err = svc.Authenticate(ctx, "reg-1", terminaldomain.SignBody(issued.Secret, body), body)
	assert.ErrorIs(t, err, terminaldomain.ErrUnauthorized)
}

func TestRotateSecretInvalidatesOldOne(t *testing.T) {
	svc, _, tenantID := newTerminalService(t)
	ctx := context.Background()

	issued, err := svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{
		Code: "reg-1",
		Name: "Front register",
	})
	require.NoError(t, err)

	rotated, err := svc.RotateSecret(ctx, tenantID, "reg-1")
	require.NoError(t, err)
	assert.NotEqual(t, issued.Secret, rotated.Secret)

	body := []byte(`{}`)
	_, err = svc.Authenticate(ctx, "reg-1", terminaldomain.SignBody(issued.Secret, body), body)
	assert.ErrorIs(t, err, terminaldomain.ErrUnauthorized)

	_, err = svc.Authenticate(ctx, "reg-1", terminaldomain.SignBody(rotated.Secret, body), body)
	assert.NoError(t, err)
}

func TestRotateSecretUnknownTerminal(t *testing.T) {
	svc, _, tenantID := newTerminalService(t)

	_, err := svc.RotateSecret(context.Background(), tenantID, "ghost")
	assert.ErrorIs(t, err, terminaldomain.ErrNotFound)
}

func TestDuplicateCodeRejected(t *testing.T) {
	svc, _, tenantID := newTerminalService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{Code: "reg-1", Name: "A"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, tenantID, terminaldomain.RegisterRequest{Code: "reg-1", Name: "B"})
	assert.ErrorIs(t, err, terminaldomain.ErrDuplicateCode)
}
