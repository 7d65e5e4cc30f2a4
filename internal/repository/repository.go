package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ggecl/auth-sessions/internal/model"
)

//go:embed migrations/001_initial.up.sql
var initialMigrationSQL string

var (
	// ErrNotFound is returned when no principal matches a lookup.
	ErrNotFound = errors.New("principal not found")
	// ErrRoleUnresolvable is returned for a role tag outside the closed
	// set. It signals a programming or configuration fault, never user
	// input to be defaulted.
	ErrRoleUnresolvable = errors.New("role unresolvable")
)

// Collection is one role's principal store. All protocol logic is
// written against this interface so it stays role-agnostic, and so
// tests can substitute in-memory fakes.
type Collection interface {
	Role() model.Role
	GetByID(ctx context.Context, id string) (model.Principal, error)
	GetByEmail(ctx context.Context, email string) (model.Principal, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (model.Principal, error)
	Create(ctx context.Context, principal model.Principal) error

	// SetRefreshToken overwrites the stored refresh token whole-value;
	// nil clears it. Last write wins across concurrent rotations.
	SetRefreshToken(ctx context.Context, id string, refreshToken *string) error

	// ReplaceRefreshToken overwrites only while the stored value still
	// equals current, reporting whether a row changed.
	ReplaceRefreshToken(ctx context.Context, id, current string, next *string) (bool, error)
}

// Resolver maps a role tag to its collection.
type Resolver interface {
	Resolve(role model.Role) (Collection, error)
}

// Stores bundles the three role collections.
type Stores struct {
	students    Collection
	instructors Collection
	admins      Collection
}

func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		students:    &pgxCollection{pool: pool, table: "students", role: model.RoleStudent},
		instructors: &pgxCollection{pool: pool, table: "instructors", role: model.RoleInstructor},
		admins:      &pgxCollection{pool: pool, table: "admins", role: model.RoleAdmin, admin: true},
	}
}

// NewStoresWith builds Stores from arbitrary collections, one per role.
func NewStoresWith(students, instructors, admins Collection) *Stores {
	return &Stores{students: students, instructors: instructors, admins: admins}
}

// Resolve is total over the closed role set; anything else fails hard.
func (s *Stores) Resolve(role model.Role) (Collection, error) {
	switch role {
	case model.RoleStudent:
		return s.students, nil
	case model.RoleInstructor:
		return s.instructors, nil
	case model.RoleAdmin:
		return s.admins, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrRoleUnresolvable, role)
	}
}

// EnsureSchema applies the initial migration. Statements are idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, initialMigrationSQL); err != nil {
		return fmt.Errorf("apply initial migration: %w", err)
	}
	return nil
}

type pgxCollection struct {
	pool  *pgxpool.Pool
	table string
	role  model.Role
	admin bool
}

func (c *pgxCollection) Role() model.Role { return c.role }

func (c *pgxCollection) columns() string {
	cols := "id, email, password_hash, refresh_token, email_verified, verification_token, verification_expires_at, created_at, updated_at"
	if c.admin {
		cols += ", admin_level, permissions"
	}
	return cols
}

func (c *pgxCollection) scan(row pgx.Row) (model.Principal, error) {
	principal := model.Principal{Role: c.role}
	dest := []any{
		&principal.ID,
		&principal.Email,
		&principal.PasswordHash,
		&principal.RefreshToken,
		&principal.EmailVerified,
		&principal.VerificationToken,
		&principal.VerificationExpiresAt,
		&principal.CreatedAt,
		&principal.UpdatedAt,
	}
	if c.admin {
		dest = append(dest, &principal.AdminLevel, &principal.Permissions)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Principal{}, ErrNotFound
		}
		return model.Principal{}, err
	}
	return principal, nil
}

func (c *pgxCollection) GetByID(ctx context.Context, id string) (model.Principal, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+c.columns()+` FROM `+c.table+` WHERE id = $1`, id)
	return c.scan(row)
}

func (c *pgxCollection) GetByEmail(ctx context.Context, email string) (model.Principal, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+c.columns()+` FROM `+c.table+` WHERE email = $1`, email)
	return c.scan(row)
}

func (c *pgxCollection) GetByRefreshToken(ctx context.Context, refreshToken string) (model.Principal, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+c.columns()+` FROM `+c.table+` WHERE refresh_token = $1`, refreshToken)
	return c.scan(row)
}

func (c *pgxCollection) Create(ctx context.Context, principal model.Principal) error {
	if c.admin {
		_, err := c.pool.Exec(ctx, `
			INSERT INTO `+c.table+` (id, email, password_hash, refresh_token, email_verified, verification_token, verification_expires_at, admin_level, permissions, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, principal.ID, principal.Email, principal.PasswordHash, principal.RefreshToken, principal.EmailVerified,
			principal.VerificationToken, principal.VerificationExpiresAt, principal.AdminLevel, principal.Permissions,
			principal.CreatedAt, principal.UpdatedAt)
		return err
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO `+c.table+` (id, email, password_hash, refresh_token, email_verified, verification_token, verification_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, principal.ID, principal.Email, principal.PasswordHash, principal.RefreshToken, principal.EmailVerified,
		principal.VerificationToken, principal.VerificationExpiresAt, principal.CreatedAt, principal.UpdatedAt)
	return err
}

func (c *pgxCollection) SetRefreshToken(ctx context.Context, id string, refreshToken *string) error {
	tag, err := c.pool.Exec(ctx, `
		UPDATE `+c.table+` SET refresh_token = $1, updated_at = $2 WHERE id = $3
	`, refreshToken, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *pgxCollection) ReplaceRefreshToken(ctx context.Context, id, current string, next *string) (bool, error) {
	tag, err := c.pool.Exec(ctx, `
		UPDATE `+c.table+` SET refresh_token = $1, updated_at = $2 WHERE id = $3 AND refresh_token = $4
	`, next, time.Now().UTC(), id, current)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
