package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"identity-link/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTest(t *testing.T) *DB {
	t.Helper()

	d, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, Migrate(context.Background(), d))
	return d
}

func row(t *Table, fields map[string]string) auth.Entity {
	e := t.New()
	for k, v := range fields {
		e.Set(k, v)
	}
	return e
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	d := openTest(t)
	assert.NoError(t, Migrate(context.Background(), d))
}

func TestRow_FieldsFollowColumns(t *testing.T) {
	users := NewTable(openTest(t), Users)
	e := users.New()

	assert.True(t, e.Set("name", "Ada"))
	assert.False(t, e.Set("phone", "+1"))
	_, ok := e.Get("phone")
	assert.False(t, ok)
	v, ok := e.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)
	_, ok = e.Get("id")
	assert.True(t, ok)
}

func TestSave_InsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)

	e := row(users, map[string]string{"email": "a@x.com", "name": "Ada"})
	require.NoError(t, users.Save(ctx, e))
	id, _ := e.Get("id")
	require.NotEmpty(t, id)

	e.Set("name", "Ada L.")
	require.NoError(t, users.Save(ctx, e))

	got, err := users.Find(ctx, id)
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, "Ada L.", name)

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSave_Validation(t *testing.T) {
	ctx := context.Background()
	admins := NewTable(openTest(t), Admins)

	err := admins.Save(ctx, row(admins, map[string]string{"email": "a@x.com", "phone": "  "}))
	var verr *auth.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "phone", verr.Field)

	require.NoError(t, admins.Save(ctx, row(admins, map[string]string{"email": "a@x.com", "phone": "+1"})))

	err = admins.Save(ctx, row(admins, map[string]string{"email": "A@X.COM", "phone": "+2"}))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "email", verr.Field)

	n, err := admins.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSave_EmptyOptionalValuesAreNotUnique(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)

	require.NoError(t, users.Save(ctx, row(users, map[string]string{"email": "a@x.com"})))
	require.NoError(t, users.Save(ctx, row(users, map[string]string{"email": "b@x.com"})))
}

func TestFindBy(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)
	require.NoError(t, users.Save(ctx, row(users, map[string]string{"email": "a@x.com", "external_id": "sub-1"})))

	e, err := users.FindBy(ctx, "external_id", "sub-1")
	require.NoError(t, err)
	email, _ := e.Get("email")
	assert.Equal(t, "a@x.com", email)

	_, err = users.FindBy(ctx, "external_id", "sub-2")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.True(t, IsNotFound(err))

	_, err = users.FindBy(ctx, "password", "x")
	assert.Error(t, err)
}

func TestCreate_HookRunsInsideTransaction(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)

	e := row(users, map[string]string{"email": "a@x.com"})
	err := users.Create(ctx, e, func(_ context.Context, e auth.Entity) error {
		e.Set("external_id", "sub-1")
		return nil
	})
	require.NoError(t, err)

	got, err := users.FindBy(ctx, "external_id", "sub-1")
	require.NoError(t, err)
	gotID, _ := got.Get("id")
	id, _ := e.Get("id")
	assert.Equal(t, id, gotID)
}

func TestCreate_HookErrorAbortsInsert(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)
	boom := errors.New("remote refused")

	err := users.Create(ctx, row(users, map[string]string{"email": "a@x.com"}), func(context.Context, auth.Entity) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreate_FailedInsertLeavesEntityUnpersisted(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)
	e := row(users, map[string]string{"email": "a@x.com"})

	// The hook runs after validation, so a blank email reaches the NOT NULL column.
	err := users.Create(ctx, e, func(_ context.Context, e auth.Entity) error {
		e.Set("email", "")
		return nil
	})
	require.Error(t, err)

	id, _ := e.Get("id")
	assert.Empty(t, id)
	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreate_ValidationSkipsHook(t *testing.T) {
	users := NewTable(openTest(t), Users)
	called := false

	err := users.Create(context.Background(), row(users, nil), func(context.Context, auth.Entity) error {
		called = true
		return nil
	})
	var verr *auth.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.False(t, called)
}

func TestDestroy(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)
	e := row(users, map[string]string{"email": "a@x.com"})
	require.NoError(t, users.Save(ctx, e))

	boom := errors.New("remote refused")
	err := users.Destroy(ctx, e, func(context.Context, auth.Entity) error { return boom })
	assert.ErrorIs(t, err, boom)
	n, _ := users.Count(ctx)
	assert.Equal(t, 1, n, "hook failure restores the row")

	var seen string
	require.NoError(t, users.Destroy(ctx, e, func(_ context.Context, e auth.Entity) error {
		seen, _ = e.Get("email")
		return nil
	}))
	assert.Equal(t, "a@x.com", seen)
	n, _ = users.Count(ctx)
	assert.Zero(t, n)

	assert.Error(t, users.Destroy(ctx, users.New(), nil))
}

func TestEach_VisitsEveryRowAcrossBatches(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)

	total := batchSize + 5
	for i := 0; i < total; i++ {
		require.NoError(t, users.Save(ctx, row(users, map[string]string{"email": fmt.Sprintf("u%d@x.com", i)})))
	}

	seen := map[string]bool{}
	err := users.Each(ctx, func(e auth.Entity) error {
		id, _ := e.Get("id")
		seen[id] = true
		e.Set("name", "touched")
		return users.Save(ctx, e)
	})
	require.NoError(t, err)
	assert.Len(t, seen, total)
}

func TestEach_StopsOnError(t *testing.T) {
	ctx := context.Background()
	users := NewTable(openTest(t), Users)
	for i := 0; i < 3; i++ {
		require.NoError(t, users.Save(ctx, row(users, map[string]string{"email": fmt.Sprintf("u%d@x.com", i)})))
	}

	boom := errors.New("stop")
	visits := 0
	err := users.Each(ctx, func(auth.Entity) error {
		visits++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, visits)
}
