package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

const userColumns = `id, email, name, password_hash, github_id, location, availability,
	profile_image, skills_offered, skills_wanted, is_profile_public, role, banned,
	ban_reason, banned_at, rating_average, rating_count, created_at, updated_at`

// CreateUser inserts a new member. The ID and timestamps are set in place.
// A duplicate email (or GitHub ID) returns apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	t := now()
	user.ID = xid.New().String()
	user.CreatedAt = t
	user.UpdatedAt = t
	if user.Role == "" {
		user.Role = model.RoleMember
	}

	offered, wanted, err := encodeSkills(user)
	if err != nil {
		return err
	}

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, github_id, location, availability,
			profile_image, skills_offered, skills_wanted, is_profile_public, role,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash, githubID, user.Location,
		user.Availability, user.ProfileImage, offered, wanted, user.IsProfilePublic,
		string(user.Role), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("a member with this email already exists")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// UpsertGitHubUser links a GitHub account to a member.
//
// Lookup order: an existing row with the same github_id wins; otherwise a
// password account with the same email is linked; otherwise a new member is
// created. The stored record is copied back into user.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("githubId", "github id is required")
	}

	existing, err := db.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE github_id = ?`, *user.GitHubID)
	if errors.Is(err, apperror.ErrNotFound) && user.Email != "" {
		existing, err = db.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, user.Email)
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return db.CreateUser(ctx, user)
	}
	if err != nil {
		return err
	}

	existing.GitHubID = user.GitHubID
	if existing.ProfileImage == "" {
		existing.ProfileImage = user.ProfileImage
	}
	existing.UpdatedAt = now()
	_, err = db.conn.ExecContext(ctx,
		`UPDATE users SET github_id = ?, profile_image = ?, updated_at = ? WHERE id = ?`,
		*existing.GitHubID, existing.ProfileImage, existing.UpdatedAt, existing.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: linking github account to user %s: %w", existing.ID, err)
	}
	*user = *existing
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := db.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("user", id)
	}
	return u, err
}

// GetUserByEmail retrieves a user by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := db.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("user", email)
	}
	return u, err
}

// UpdateProfile overwrites the member-editable profile fields and returns
// the updated record.
func (db *DB) UpdateProfile(ctx context.Context, id string, p repository.ProfileUpdate) (*model.User, error) {
	u := &model.User{SkillsOffered: p.SkillsOffered, SkillsWanted: p.SkillsWanted}
	offered, wanted, err := encodeSkills(u)
	if err != nil {
		return nil, err
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, location = ?, availability = ?, skills_offered = ?,
			skills_wanted = ?, is_profile_public = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Location, p.Availability, offered, wanted, p.IsProfilePublic, now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating profile of user %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("user", id)
	}
	return db.GetUserByID(ctx, id)
}

// ListPublicUsers returns members with a public profile who are not banned,
// newest first, excluding excludeID (the caller).
func (db *DB) ListPublicUsers(ctx context.Context, excludeID string, opts repository.ListOptions) ([]model.User, error) {
	return db.listUsers(ctx,
		`WHERE is_profile_public = 1 AND banned = 0 AND id <> ?`, opts, excludeID)
}

// ListAllUsers returns every member, banned and private ones included,
// newest first.
func (db *DB) ListAllUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	return db.listUsers(ctx, "", opts)
}

func (db *DB) listUsers(ctx context.Context, where string, opts repository.ListOptions, args ...any) ([]model.User, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}

// SetBan bans or unbans a member and returns the updated record.
// Unbanning clears the reason and timestamp.
func (db *DB) SetBan(ctx context.Context, id string, banned bool, reason string) (*model.User, error) {
	t := now()
	var bannedAt sql.NullTime
	if banned {
		bannedAt = sql.NullTime{Time: t, Valid: true}
	} else {
		reason = ""
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET banned = ?, ban_reason = ?, banned_at = ?, updated_at = ? WHERE id = ?`,
		banned, reason, bannedAt, t, id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating ban for user %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("user", id)
	}
	return db.GetUserByID(ctx, id)
}

// SetRoleByEmail changes a member's role.
func (db *DB) SetRoleByEmail(ctx context.Context, email string, role model.Role) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE email = ?`,
		string(role), now(), email,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting role for %s: %w", email, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("user", email)
	}
	return nil
}

func (db *DB) scanOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}
	return u, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
		bannedAt sql.NullTime
		offered  string
		wanted   string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &githubID, &u.Location, &u.Availability,
		&u.ProfileImage, &offered, &wanted, &u.IsProfilePublic, &u.Role, &u.Banned,
		&u.BanReason, &bannedAt, &u.Rating.Average, &u.Rating.Count, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	u.BannedAt = nullTimePtr(bannedAt)
	if err := json.Unmarshal([]byte(offered), &u.SkillsOffered); err != nil {
		return nil, fmt.Errorf("decoding skills_offered: %w", err)
	}
	if err := json.Unmarshal([]byte(wanted), &u.SkillsWanted); err != nil {
		return nil, fmt.Errorf("decoding skills_wanted: %w", err)
	}
	return &u, nil
}

func encodeSkills(user *model.User) (string, string, error) {
	if user.SkillsOffered == nil {
		user.SkillsOffered = []string{}
	}
	if user.SkillsWanted == nil {
		user.SkillsWanted = []string{}
	}
	offered, err := json.Marshal(user.SkillsOffered)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding skills: %w", err)
	}
	wanted, err := json.Marshal(user.SkillsWanted)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding skills: %w", err)
	}
	return string(offered), string(wanted), nil
}
