package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/acme-app/authcontext/core"
)

// ErrEmailTaken is returned when creating a user whose email already exists.
var ErrEmailTaken = errors.New("email already registered")

// userModel is the users table row.
type userModel struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string    `bun:"id,pk"`
	Email        string    `bun:"email,notnull,unique"`
	Username     string    `bun:"username"`
	FullName     string    `bun:"full_name"`
	PasswordHash string    `bun:"password_hash"`
	Roles        []string  `bun:"roles,type:jsonb,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

func (m *userModel) toUser() *core.User {
	return &core.User{
		ID:           core.UserID(m.ID),
		Email:        m.Email,
		Username:     m.Username,
		FullName:     m.FullName,
		PasswordHash: m.PasswordHash,
		Roles:        append([]string(nil), m.Roles...),
	}
}

// SQLDirectory implements core.UserDirectory on a bun database.
type SQLDirectory struct {
	db *bun.DB
}

// NewSQLDirectory wraps db. Call CreateSchema once before first use.
func NewSQLDirectory(db *bun.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// Open creates a bun database for dsn. postgres:// and postgresql:// DSNs
// use the Postgres dialect; anything else is treated as a SQLite DSN.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		sqldb.SetMaxOpenConns(25)
		sqldb.SetMaxIdleConns(25)

		db := bun.NewDB(sqldb, pgdialect.New())
		if err := db.PingContext(ctx); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return db, nil
	}

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Single writer connection; also keeps ":memory:" databases shared.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// CreateSchema creates the users table if it does not exist.
func (d *SQLDirectory) CreateSchema(ctx context.Context) error {
	_, err := d.db.NewCreateTable().
		Model((*userModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// Create inserts u and assigns it a UUID when u.ID is empty.
func (d *SQLDirectory) Create(ctx context.Context, u *core.User) error {
	if u.ID == "" {
		u.ID = core.UserID(uuid.NewString())
	}

	existing, err := d.FindOneByEmail(ctx, u.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrEmailTaken, u.Email)
	}

	now := time.Now().UTC()
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	model := &userModel{
		ID:           string(u.ID),
		Email:        u.Email,
		Username:     u.Username,
		FullName:     u.FullName,
		PasswordHash: u.PasswordHash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := d.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// SetPassword replaces the stored hash for id.
func (d *SQLDirectory) SetPassword(ctx context.Context, id core.UserID, passwordHash string) error {
	res, err := d.db.NewUpdate().
		Model((*userModel)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", string(id)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
	}
	return nil
}

// Delete removes the user with id.
func (d *SQLDirectory) Delete(ctx context.Context, id core.UserID) error {
	_, err := d.db.NewDelete().
		Model((*userModel)(nil)).
		Where("id = ?", string(id)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (d *SQLDirectory) FindOneByID(ctx context.Context, id core.UserID) (*core.User, error) {
	model := new(userModel)
	err := d.db.NewSelect().
		Model(model).
		Where("id = ?", string(id)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("get user by ID: %w", err)
	}
	return model.toUser(), nil
}

// FindOneByEmail matches email exactly. Normalising case or whitespace is
// left to whoever writes the rows.
func (d *SQLDirectory) FindOneByEmail(ctx context.Context, email string) (*core.User, error) {
	model := new(userModel)
	err := d.db.NewSelect().
		Model(model).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return model.toUser(), nil
}
