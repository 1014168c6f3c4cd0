package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme-app/authcontext/core"
)

// directoryUnderTest is what both implementations offer to the tests.
type directoryUnderTest interface {
	core.UserDirectory
	create(t *testing.T, u *core.User) error
	remove(t *testing.T, id core.UserID)
}

type memoryHarness struct{ *MemoryDirectory }

func (h memoryHarness) create(_ *testing.T, u *core.User) error { return h.Add(u) }
func (h memoryHarness) remove(_ *testing.T, id core.UserID)     { h.Delete(id) }

type sqlHarness struct{ *SQLDirectory }

func (h sqlHarness) create(t *testing.T, u *core.User) error {
	return h.Create(context.Background(), u)
}

func (h sqlHarness) remove(t *testing.T, id core.UserID) {
	require.NoError(t, h.Delete(context.Background(), id))
}

func newSQLHarness(t *testing.T) sqlHarness {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	d := NewSQLDirectory(db)
	require.NoError(t, d.CreateSchema(ctx))
	return sqlHarness{d}
}

func harnesses(t *testing.T) map[string]directoryUnderTest {
	return map[string]directoryUnderTest{
		"memory": memoryHarness{NewMemoryDirectory()},
		"sql":    newSQLHarness(t),
	}
}

func TestUserDirectory(t *testing.T) {
	ctx := context.Background()

	for name, d := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			alice := &core.User{
				Email:        "alice@example.com",
				Username:     "alice",
				FullName:     "Alice Liddell",
				PasswordHash: "$2a$04$hash",
				Roles:        []string{"ROLE_USER", "ROLE_ADMIN"},
			}
			require.NoError(t, d.create(t, alice))
			require.NotEmpty(t, alice.ID, "create assigns an id")

			t.Run("find by id", func(t *testing.T) {
				got, err := d.FindOneByID(ctx, alice.ID)
				require.NoError(t, err)
				assert.Equal(t, alice, got)
			})

			t.Run("find by email", func(t *testing.T) {
				got, err := d.FindOneByEmail(ctx, "alice@example.com")
				require.NoError(t, err)
				assert.Equal(t, alice, got)
			})

			t.Run("unknown email is not an error", func(t *testing.T) {
				got, err := d.FindOneByEmail(ctx, "bob@example.com")
				assert.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("email match is exact", func(t *testing.T) {
				got, err := d.FindOneByEmail(ctx, "ALICE@example.com")
				assert.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("unknown id is ErrUserNotFound", func(t *testing.T) {
				got, err := d.FindOneByID(ctx, "00000000-0000-0000-0000-000000000000")
				assert.ErrorIs(t, err, core.ErrUserNotFound)
				assert.Nil(t, got)
			})

			t.Run("duplicate email is rejected", func(t *testing.T) {
				err := d.create(t, &core.User{Email: "alice@example.com"})
				assert.ErrorIs(t, err, ErrEmailTaken)
			})

			t.Run("returned users are copies", func(t *testing.T) {
				got, err := d.FindOneByID(ctx, alice.ID)
				require.NoError(t, err)
				got.Roles[0] = "ROLE_ROOT"

				again, err := d.FindOneByID(ctx, alice.ID)
				require.NoError(t, err)
				assert.Equal(t, "ROLE_USER", again.Roles[0])
			})

			t.Run("deleted user is gone", func(t *testing.T) {
				carol := &core.User{Email: "carol@example.com"}
				require.NoError(t, d.create(t, carol))
				d.remove(t, carol.ID)

				_, err := d.FindOneByID(ctx, carol.ID)
				assert.ErrorIs(t, err, core.ErrUserNotFound)
				got, err := d.FindOneByEmail(ctx, "carol@example.com")
				assert.NoError(t, err)
				assert.Nil(t, got)
			})
		})
	}
}

func TestSQLDirectory_SetPassword(t *testing.T) {
	ctx := context.Background()
	d := newSQLHarness(t)

	u := &core.User{Email: "alice@example.com", PasswordHash: "old"}
	require.NoError(t, d.Create(ctx, u))

	require.NoError(t, d.SetPassword(ctx, u.ID, "new"))
	got, err := d.FindOneByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)

	err = d.SetPassword(ctx, "missing", "x")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestSQLDirectory_CreateWithoutRoles(t *testing.T) {
	ctx := context.Background()
	d := newSQLHarness(t)

	u := &core.User{Email: "dave@example.com"}
	require.NoError(t, d.Create(ctx, u))

	got, err := d.FindOneByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Roles)
}

func TestNewMemoryDirectory_Seed(t *testing.T) {
	d := NewMemoryDirectory(
		&core.User{ID: "u1", Email: "a@example.com"},
		&core.User{ID: "u2", Email: "b@example.com"},
	)

	got, err := d.FindOneByEmail(context.Background(), "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, core.UserID("u2"), got.ID)
}
