package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/auth"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository/sqlite"
)

// newTestAuthService returns an AuthService backed by an in-memory store.
// bcrypt runs at MinCost so the tests stay fast.
func newTestAuthService(t *testing.T) (*AuthService, *sqlite.DB, *auth.TokenService) {
	t.Helper()
	db := newTestStore(t)
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars")
	require.NoError(t, err)
	svc := NewAuthService(db, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), testLogger())
	return svc, db, tokens
}

func registerInput(name string) RegisterInput {
	return RegisterInput{
		Name:          name,
		Email:         name + "@example.com",
		Password:      "hunter22",
		SkillsOffered: []string{"Go", " go ", "", "SQL"},
	}
}

// =========================================================================
// REGISTER
// =========================================================================

func TestRegister(t *testing.T) {
	svc, _, tokens := newTestAuthService(t)

	res, err := svc.Register(context.Background(), registerInput("alice"))
	require.NoError(t, err)

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, model.RoleMember, res.User.Role)
	assert.True(t, res.User.IsProfilePublic)
	assert.Equal(t, []string{"Go", "SQL"}, res.User.SkillsOffered)
	assert.NotEqual(t, "hunter22", res.User.PasswordHash)

	userID, err := tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"missing name", func(in *RegisterInput) { in.Name = " " }},
		{"missing email", func(in *RegisterInput) { in.Email = "" }},
		{"malformed email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"short password", func(in *RegisterInput) { in.Password = "abc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := registerInput("alice")
			tt.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, registerInput("alice"))
	require.NoError(t, err)

	in := registerInput("alice")
	in.Email = "ALICE@example.com"
	_, err = svc.Register(ctx, in)
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

// =========================================================================
// LOGIN
// =========================================================================

func TestLogin(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput("alice"))
	require.NoError(t, err)

	res, err := svc.Login(ctx, LoginInput{Email: " Alice@Example.com ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.NotEmpty(t, res.Token)
}

func TestLogin_Refusals(t *testing.T) {
	svc, db, _ := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput("alice"))
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Login(ctx, LoginInput{Email: "alice@example.com"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = db.SetBan(ctx, reg.User.ID, true, "spam")
	require.NoError(t, err)
	_, err = svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "spam")
}

// =========================================================================
// GITHUB
// =========================================================================

func TestLoginOrRegisterGitHub(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	gh := &auth.GitHubUser{ID: 42, Login: "octocat", Email: "octo@example.com", AvatarURL: "https://a/x.png"}

	first, err := svc.LoginOrRegisterGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "octocat", first.User.Name)
	assert.NotEmpty(t, first.Token)

	second, err := svc.LoginOrRegisterGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID, "same GitHub account maps to the same member")
}

func TestLoginOrRegisterGitHub_LinksExistingEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput("alice"))
	require.NoError(t, err)

	res, err := svc.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 7, Login: "al", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	require.NotNil(t, res.User.GitHubID)
	assert.Equal(t, int64(7), *res.User.GitHubID)
}

func TestLoginOrRegisterGitHub_NilUser(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	_, err := svc.LoginOrRegisterGitHub(context.Background(), nil)
	assert.Error(t, err)
}

// =========================================================================
// ADMIN SEED
// =========================================================================

func TestSeedAdmin(t *testing.T) {
	svc, db, _ := newTestAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, registerInput("alice"))
	require.NoError(t, err)

	require.NoError(t, svc.SeedAdmin(ctx, "Alice@example.com"))
	u, err := db.GetUserByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())

	assert.NoError(t, svc.SeedAdmin(ctx, "missing@example.com"), "unknown email is skipped")
	assert.NoError(t, svc.SeedAdmin(ctx, ""))
}

func TestGetUserByID(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.GetUserByID(context.Background(), "")
	assert.Error(t, err)

	_, err = svc.GetUserByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
