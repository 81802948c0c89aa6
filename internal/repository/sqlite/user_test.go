package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" gives each test a fresh database that disappears on Close.
// t.Helper() makes failures point at the caller's line, not this function.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a public member and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, name string) *model.User {
	t.Helper()
	user := &model.User{
		Email:           name + "@example.com",
		Name:            name,
		PasswordHash:    "hash",
		SkillsOffered:   []string{"go"},
		IsProfilePublic: true,
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, "alice")

	if user.ID == "" {
		t.Error("CreateUser() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreateUser() did not set user.CreatedAt")
	}
	if user.Role != model.RoleMember {
		t.Errorf("Role = %q, want member", user.Role)
	}

	got, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Email != "alice@example.com" || got.Name != "alice" {
		t.Errorf("got %+v", got)
	}
	if len(got.SkillsOffered) != 1 || got.SkillsOffered[0] != "go" {
		t.Errorf("SkillsOffered = %v", got.SkillsOffered)
	}
	if got.SkillsWanted == nil {
		t.Error("SkillsWanted should decode as empty slice, not nil")
	}
	if got.GitHubID != nil {
		t.Errorf("GitHubID = %v, want nil", *got.GitHubID)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alice")

	dup := &model.User{Email: "alice@example.com", Name: "other"}
	err := db.CreateUser(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID: expected ErrNotFound, got %v", err)
	}
	_, err = db.GetUserByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByEmail: expected ErrNotFound, got %v", err)
	}
}

func TestListPublicUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	private := &model.User{Email: "dave@example.com", Name: "dave"}
	if err := db.CreateUser(ctx, private); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SetBan(ctx, carol.ID, true, "spam"); err != nil {
		t.Fatal(err)
	}

	users, err := db.ListPublicUsers(ctx, alice.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListPublicUsers() error = %v", err)
	}
	if len(users) != 1 || users[0].Name != "bob" {
		t.Errorf("expected only bob, got %+v", users)
	}
}

func TestListAllUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "alice")
	createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")
	if err := db.CreateUser(ctx, &model.User{Email: "dave@example.com", Name: "dave"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SetBan(ctx, carol.ID, true, "spam"); err != nil {
		t.Fatal(err)
	}

	all, err := db.ListAllUsers(ctx, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListAllUsers() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 users including banned and private, got %d", len(all))
	}

	page, err := db.ListAllUsers(ctx, repository.ListOptions{Limit: 3, Offset: 2})
	if err != nil {
		t.Fatalf("ListAllUsers(page) error = %v", err)
	}
	if len(page) != 2 {
		t.Errorf("expected 2 users on the second page, got %d", len(page))
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "alice")

	updated, err := db.UpdateProfile(ctx, user.ID, repository.ProfileUpdate{
		Name:          "Alice L.",
		Location:      "Lisbon",
		Availability:  "weekends",
		SkillsOffered: []string{"guitar", "go"},
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Name != "Alice L." || updated.Location != "Lisbon" || updated.Availability != "weekends" {
		t.Errorf("profile fields not written: %+v", updated)
	}
	if len(updated.SkillsOffered) != 2 || updated.SkillsOffered[0] != "guitar" {
		t.Errorf("SkillsOffered = %v", updated.SkillsOffered)
	}
	if updated.SkillsWanted == nil || len(updated.SkillsWanted) != 0 {
		t.Errorf("SkillsWanted = %#v, want empty list", updated.SkillsWanted)
	}
	if updated.IsProfilePublic {
		t.Error("expected profile to be private")
	}
	if updated.Email != user.Email {
		t.Errorf("email changed to %q", updated.Email)
	}

	if _, err := db.UpdateProfile(ctx, "missing", repository.ProfileUpdate{Name: "x"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetBan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "alice")

	banned, err := db.SetBan(ctx, user.ID, true, "abusive messages")
	if err != nil {
		t.Fatalf("SetBan(true) error = %v", err)
	}
	if !banned.Banned || banned.BanReason != "abusive messages" || banned.BannedAt == nil {
		t.Errorf("after ban: %+v", banned)
	}

	unbanned, err := db.SetBan(ctx, user.ID, false, "ignored")
	if err != nil {
		t.Fatalf("SetBan(false) error = %v", err)
	}
	if unbanned.Banned || unbanned.BanReason != "" || unbanned.BannedAt != nil {
		t.Errorf("after unban: %+v", unbanned)
	}

	if _, err := db.SetBan(ctx, "missing", true, ""); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRoleByEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "alice")

	if err := db.SetRoleByEmail(ctx, "alice@example.com", model.RoleAdmin); err != nil {
		t.Fatalf("SetRoleByEmail() error = %v", err)
	}
	got, _ := db.GetUserByID(ctx, user.ID)
	if !got.IsAdmin() {
		t.Error("expected admin role")
	}

	if err := db.SetRoleByEmail(ctx, "nobody@example.com", model.RoleAdmin); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertGitHubUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	existing := createTestUser(t, db, "alice")

	ghID := int64(4242)

	// Same email as a password account: the account gets linked, not duplicated.
	linked := &model.User{GitHubID: &ghID, Email: "alice@example.com", Name: "Alice GH", ProfileImage: "https://img"}
	if err := db.UpsertGitHubUser(ctx, linked); err != nil {
		t.Fatalf("UpsertGitHubUser(link) error = %v", err)
	}
	if linked.ID != existing.ID {
		t.Errorf("expected link to %s, got %s", existing.ID, linked.ID)
	}
	if linked.GitHubID == nil || *linked.GitHubID != ghID {
		t.Errorf("GitHubID not stored: %+v", linked.GitHubID)
	}

	// Second sign-in finds the row by github_id even if the email changed.
	again := &model.User{GitHubID: &ghID, Email: "new@example.com", Name: "x"}
	if err := db.UpsertGitHubUser(ctx, again); err != nil {
		t.Fatalf("UpsertGitHubUser(again) error = %v", err)
	}
	if again.ID != existing.ID {
		t.Errorf("expected same user, got %s", again.ID)
	}

	// Unknown account creates a new member.
	otherID := int64(7)
	fresh := &model.User{GitHubID: &otherID, Email: "bob@example.com", Name: "bob"}
	if err := db.UpsertGitHubUser(ctx, fresh); err != nil {
		t.Fatalf("UpsertGitHubUser(new) error = %v", err)
	}
	if fresh.ID == "" || fresh.ID == existing.ID {
		t.Errorf("expected a new user, got %q", fresh.ID)
	}
}
