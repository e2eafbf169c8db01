package linkage_test

import (
	"context"
	"errors"
	"testing"

	"identity-link/internal/auth"
	"identity-link/internal/auth/linkage"
	"identity-link/internal/auth/provider"
	"identity-link/internal/auth/provider/providertest"
	"identity-link/internal/auth/remoteuser"
	"identity-link/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type fixture struct {
	dir    *providertest.Directory
	repo   *remoteuser.Repository
	users  *db.Table
	admins *db.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	d, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, db.Migrate(ctx, d))

	dir := providertest.New()
	return &fixture{
		dir: dir,
		repo: remoteuser.NewRepository(dir, remoteuser.WithPasswords(func() (string, error) {
			return "Aa1!aaaa", nil
		})),
		users:  db.NewTable(d, db.Users),
		admins: db.NewTable(d, db.Admins),
	}
}

func (f *fixture) usersLinker(decl *auth.Declaration, opts ...linkage.Option) *linkage.Linker {
	return linkage.New(decl, f.users, f.repo, opts...)
}

func entity(s linkage.Store, fields map[string]string) auth.Entity {
	e := s.New()
	for k, v := range fields {
		e.Set(k, v)
	}
	return e
}

func count(t *testing.T, tbl *db.Table) int {
	t.Helper()
	n, err := tbl.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestCreate_WithoutVerificationFlags(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))

	e := entity(f.users, map[string]string{"email": "a@x.com"})
	require.NoError(t, l.Create(context.Background(), e))

	calls := f.dir.CallsTo("CreateUser")
	require.Len(t, calls, 1)
	assert.Equal(t, []auth.Attribute{{Name: "email", Value: "a@x.com"}}, calls[0].Attrs)

	ext := l.ExternalID(e)
	assert.NotEmpty(t, ext)
	found, err := l.FindByExternalID(context.Background(), ext)
	require.NoError(t, err)
	email, _ := found.Get("email")
	assert.Equal(t, "a@x.com", email)
}

func TestCreate_WithVerifyEmail(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users", auth.VerifyEmail()))

	require.NoError(t, l.Create(context.Background(), entity(f.users, map[string]string{"email": "a@x.com"})))

	calls := f.dir.CallsTo("CreateUser")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Attrs, auth.Attribute{Name: "email_verified", Value: "True"})
}

func TestCreate_LiteralAttributeIgnoresInstance(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users", auth.WithAttribute("role", auth.Literal("admin"))))

	for _, email := range []string{"a@x.com", "b@x.com"} {
		require.NoError(t, l.Create(context.Background(), entity(f.users, map[string]string{"email": email, "name": email})))
	}

	for _, c := range f.dir.CallsTo("CreateUser") {
		assert.Contains(t, c.Attrs, auth.Attribute{Name: "custom:role", Value: "admin"})
	}
}

func TestCreate_FieldRefReadsCurrentValue(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users", auth.WithAttribute("name", auth.FieldRef("name"))))

	e := entity(f.users, map[string]string{"email": "a@x.com", "name": "before"})
	e.Set("name", "after")
	require.NoError(t, l.Create(context.Background(), e))

	calls := f.dir.CallsTo("CreateUser")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Attrs, auth.Attribute{Name: "custom:name", Value: "after"})
}

func TestCreate_PhoneAndCustomExternalIDField(t *testing.T) {
	f := newFixture(t)
	decl := auth.NewDeclaration("admins",
		auth.WithExternalIDField("cognito_id"),
		auth.VerifyPhone(),
	)
	l := linkage.New(decl, f.admins, f.repo)

	e := entity(f.admins, map[string]string{"email": "a@x.com", "phone": "+15550001"})
	require.NoError(t, l.Create(context.Background(), e))

	id, _ := e.Get("cognito_id")
	assert.NotEmpty(t, id)
	calls := f.dir.CallsTo("CreateUser")
	require.Len(t, calls, 1)
	assert.Equal(t, []auth.Attribute{
		{Name: "email", Value: "a@x.com"},
		{Name: "phone_number", Value: "+15550001"},
		{Name: "phone_number_verified", Value: "True"},
	}, calls[0].Attrs)
}

func TestCreate_AlreadyLinkedIsNotRecreated(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))

	e := entity(f.users, map[string]string{"email": "a@x.com", "external_id": "existing"})
	require.NoError(t, l.Create(context.Background(), e))

	assert.Empty(t, f.dir.CallsTo("CreateUser"))
	assert.Equal(t, "existing", l.ExternalID(e))
}

func TestCreate_RemoteFailureAbortsLocalCreate(t *testing.T) {
	f := newFixture(t)
	f.dir.CreateUserFunc = func(context.Context, provider.CreateUserInput) (*auth.RemoteUser, error) {
		return nil, errors.New("UsernameExistsException")
	}
	l := f.usersLinker(auth.NewDeclaration("users"))

	err := l.Create(context.Background(), entity(f.users, map[string]string{"email": "a@x.com"}))
	var perr *auth.PersistenceError
	assert.True(t, errors.As(err, &perr))
	assert.Zero(t, count(t, f.users))
}

func TestCreate_InvalidLocalRecordMakesNoRemoteCall(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))

	err := l.Create(context.Background(), entity(f.users, map[string]string{"name": "no email"}))
	var verr *auth.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Empty(t, f.dir.Calls())
}

func TestSkipHooks(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"), linkage.WithSkipHooks(true))

	e := entity(f.users, map[string]string{"email": "a@x.com"})
	require.NoError(t, l.Create(context.Background(), e))
	assert.Empty(t, l.ExternalID(e))

	e.Set("external_id", "sub-1")
	require.NoError(t, l.Destroy(context.Background(), e))
	assert.Empty(t, f.dir.Calls())
}

func TestDestroy_DeletesRemoteUser(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()

	e := entity(f.users, map[string]string{"email": "a@x.com"})
	require.NoError(t, l.Create(ctx, e))
	require.Equal(t, 1, f.dir.Len())

	require.NoError(t, l.Destroy(ctx, e))
	assert.Zero(t, f.dir.Len())
	assert.Zero(t, count(t, f.users))
}

func TestDestroy_UnlinkedMakesNoRemoteCall(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()

	e := entity(f.users, map[string]string{"email": "a@x.com"})
	require.NoError(t, f.users.Save(ctx, e))

	require.NoError(t, l.Destroy(ctx, e))
	assert.Empty(t, f.dir.Calls())
	assert.Zero(t, count(t, f.users))
}

func TestDestroy_RemoteFailureKeepsLocalRow(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()

	e := entity(f.users, map[string]string{"email": "a@x.com"})
	require.NoError(t, l.Create(ctx, e))

	f.dir.DeleteUserFunc = func(context.Context, string) error { return errors.New("throttled") }

	err := l.Destroy(ctx, e)
	var perr *auth.PersistenceError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, count(t, f.users))
	assert.Equal(t, 1, f.dir.Len())
}

func TestDestroy_RemoteAlreadyGoneStillDeletesLocalRow(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()

	e := entity(f.users, map[string]string{"email": "a@x.com", "external_id": "gone"})
	require.NoError(t, f.users.Save(ctx, e))

	require.NoError(t, l.Destroy(ctx, e))
	assert.Zero(t, count(t, f.users))
	assert.Empty(t, f.dir.CallsTo("DeleteUser"))
}

// failingStore runs the create hook and then fails the local write.
type failingStore struct {
	linkage.Store
	err error
}

func (s failingStore) Create(ctx context.Context, e auth.Entity, before auth.Hook) error {
	if err := before(ctx, e); err != nil {
		return err
	}
	return s.err
}

func TestCreate_LocalWriteFailureDeletesRemoteUser(t *testing.T) {
	f := newFixture(t)
	writeErr := errors.New("disk full")
	l := linkage.New(auth.NewDeclaration("users"), failingStore{Store: f.users, err: writeErr}, f.repo)

	e := entity(f.users, map[string]string{"email": "a@x.com"})
	err := l.Create(context.Background(), e)
	assert.ErrorIs(t, err, writeErr)

	require.Len(t, f.dir.CallsTo("CreateUser"), 1)
	require.Len(t, f.dir.CallsTo("DeleteUser"), 1)
	assert.Zero(t, f.dir.Len())
	assert.Empty(t, l.ExternalID(e))
	id, _ := e.Get("id")
	assert.Empty(t, id)
}

func TestCreate_LocalWriteFailureKeepsPreexistingLink(t *testing.T) {
	f := newFixture(t)
	writeErr := errors.New("disk full")
	l := linkage.New(auth.NewDeclaration("users"), failingStore{Store: f.users, err: writeErr}, f.repo)

	e := entity(f.users, map[string]string{"email": "a@x.com", "external_id": "sub-1"})
	assert.ErrorIs(t, l.Create(context.Background(), e), writeErr)
	assert.Empty(t, f.dir.Calls())
	assert.Equal(t, "sub-1", l.ExternalID(e))
}

func TestRemoteUser(t *testing.T) {
	f := newFixture(t)
	decl := auth.NewDeclaration("users")
	l := f.usersLinker(decl)
	ctx := context.Background()

	_, err := l.RemoteUser(ctx, f.users.New())
	assert.ErrorIs(t, err, auth.ErrNotFound)

	e := entity(f.users, map[string]string{"email": "a@x.com"})
	require.NoError(t, l.Create(ctx, e))

	u, err := l.RemoteUser(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Same(t, decl, u.Type)
}

func seedRemote(f *fixture, email, name string) string {
	attrs := []auth.Attribute{{Name: "email", Value: email}}
	if name != "" {
		attrs = append(attrs, auth.Attribute{Name: "custom:name", Value: name})
	}
	attrs = append(attrs, auth.Attribute{Name: "custom:role", Value: "remote-role"})
	return f.dir.Seed(auth.RemoteUser{Attributes: attrs})
}

func TestSyncFromRemote_IdempotentByExternalID(t *testing.T) {
	f := newFixture(t)
	f.dir.PageSize = 2
	decl := auth.NewDeclaration("users",
		auth.WithAttribute("name", auth.FieldRef("name")),
		auth.WithAttribute("role", auth.Literal("user")),
	)
	l := f.usersLinker(decl)
	ctx := context.Background()

	ids := []string{
		seedRemote(f, "a@x.com", "Ada"),
		seedRemote(f, "b@x.com", "Bob"),
		seedRemote(f, "c@x.com", ""),
	}

	synced, err := l.SyncFromRemote(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, synced, 3)
	assert.Equal(t, 3, count(t, f.users))

	synced, err = l.SyncFromRemote(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, synced, 3)
	assert.Equal(t, 3, count(t, f.users))

	e, err := l.FindByExternalID(ctx, ids[0])
	require.NoError(t, err)
	email, _ := e.Get("email")
	name, _ := e.Get("name")
	assert.Equal(t, "a@x.com", email)
	assert.Equal(t, "Ada", name)

	e, err = l.FindByExternalID(ctx, ids[2])
	require.NoError(t, err)
	name, _ = e.Get("name")
	assert.Empty(t, name)

	assert.Empty(t, f.dir.CallsTo("CreateUser"))
}

func TestSyncFromRemote_UpdatesExistingRow(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()

	id := seedRemote(f, "new@x.com", "")
	require.NoError(t, f.users.Save(ctx, entity(f.users, map[string]string{"email": "old@x.com", "external_id": id})))

	_, err := l.SyncFromRemote(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, f.users))
	e, err := l.FindByExternalID(ctx, id)
	require.NoError(t, err)
	email, _ := e.Get("email")
	assert.Equal(t, "new@x.com", email)
}

func TestSyncFromRemote_CopiesPhoneWhenSupported(t *testing.T) {
	f := newFixture(t)
	l := linkage.New(auth.NewDeclaration("admins", auth.WithExternalIDField("cognito_id")), f.admins, f.repo)
	ctx := context.Background()

	id := f.dir.Seed(auth.RemoteUser{Attributes: []auth.Attribute{
		{Name: "email", Value: "a@x.com"},
		{Name: "phone_number", Value: "+15550001"},
	}})

	_, err := l.SyncFromRemote(ctx, nil)
	require.NoError(t, err)

	e, err := l.FindByExternalID(ctx, id)
	require.NoError(t, err)
	phone, _ := e.Get("phone")
	assert.Equal(t, "+15550001", phone)
}

func TestSyncFromRemote_EnrichRunsBeforeSave(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()
	id := seedRemote(f, "a@x.com", "")

	var seen []string
	_, err := l.SyncFromRemote(ctx, func(e auth.Entity, remote auth.RemoteUser) error {
		seen = append(seen, remote.Username)
		e.Set("name", "enriched")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, seen)

	e, err := l.FindByExternalID(ctx, id)
	require.NoError(t, err)
	name, _ := e.Get("name")
	assert.Equal(t, "enriched", name)
}

func TestSyncFromRemote_SkipsBlankUsernames(t *testing.T) {
	f := newFixture(t)
	f.dir.ListUsersFunc = func(context.Context, string) (*provider.UserPage, error) {
		return &provider.UserPage{Users: []auth.RemoteUser{
			{Username: "", Attributes: []auth.Attribute{{Name: "email", Value: "ghost@x.com"}}},
			{Username: "sub-1", Attributes: []auth.Attribute{{Name: "email", Value: "a@x.com"}}},
		}}, nil
	}
	l := f.usersLinker(auth.NewDeclaration("users"))

	synced, err := l.SyncFromRemote(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, synced, 1)
	assert.Equal(t, 1, count(t, f.users))
}

func TestSyncFromRemote_StopsAtFirstFailureKeepingEarlierRows(t *testing.T) {
	f := newFixture(t)
	f.dir.ListUsersFunc = func(context.Context, string) (*provider.UserPage, error) {
		return &provider.UserPage{Users: []auth.RemoteUser{
			{Username: "sub-1", Attributes: []auth.Attribute{{Name: "email", Value: "a@x.com"}}},
			{Username: "sub-2"},
			{Username: "sub-3", Attributes: []auth.Attribute{{Name: "email", Value: "c@x.com"}}},
		}}, nil
	}
	l := f.usersLinker(auth.NewDeclaration("users"))

	synced, err := l.SyncFromRemote(context.Background(), nil)
	var verr *auth.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "email", verr.Field)
	assert.Len(t, synced, 1)
	assert.Equal(t, 1, count(t, f.users))
}

func TestSyncFromRemote_ListFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("throttled")
	f.dir.ListUsersFunc = func(context.Context, string) (*provider.UserPage, error) { return nil, boom }
	l := f.usersLinker(auth.NewDeclaration("users"))

	_, err := l.SyncFromRemote(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestSyncToRemote_GuardedByExternalID(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()

	require.NoError(t, f.users.Save(ctx, entity(f.users, map[string]string{"email": "a@x.com"})))
	require.NoError(t, f.users.Save(ctx, entity(f.users, map[string]string{"email": "b@x.com", "external_id": "linked"})))

	n, err := l.SyncToRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.dir.CallsTo("CreateUser"), 1)

	e, err := f.users.FindBy(ctx, "email", "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, l.ExternalID(e))

	_, err = l.SyncToRemote(ctx)
	require.NoError(t, err)
	assert.Len(t, f.dir.CallsTo("CreateUser"), 1)
}

func TestSyncToRemote_Recreate(t *testing.T) {
	f := newFixture(t)
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()

	require.NoError(t, f.users.Save(ctx, entity(f.users, map[string]string{"email": "a@x.com", "external_id": "stale"})))

	n, err := l.SyncToRemote(ctx, linkage.WithRecreate())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.dir.CallsTo("CreateUser"), 1)

	_, err = l.FindByExternalID(ctx, "stale")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestSyncToRemote_StopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	f.dir.CreateUserFunc = func(context.Context, provider.CreateUserInput) (*auth.RemoteUser, error) {
		return nil, errors.New("denied")
	}
	l := f.usersLinker(auth.NewDeclaration("users"))
	ctx := context.Background()
	for _, email := range []string{"a@x.com", "b@x.com"} {
		require.NoError(t, f.users.Save(ctx, entity(f.users, map[string]string{"email": email})))
	}

	n, err := l.SyncToRemote(ctx)
	var perr *auth.PersistenceError
	assert.True(t, errors.As(err, &perr))
	assert.Zero(t, n)
	assert.Len(t, f.dir.CallsTo("CreateUser"), 1)
}

func TestRegistry(t *testing.T) {
	f := newFixture(t)
	users := f.usersLinker(auth.NewDeclaration("users"))
	admins := linkage.New(auth.NewDeclaration("admins", auth.WithExternalIDField("cognito_id")), f.admins, f.repo)

	r := linkage.NewRegistry("users", users, admins)
	got, err := r.Get("admins")
	require.NoError(t, err)
	assert.Same(t, admins, got)

	_, err = r.Get("guests")
	assert.Error(t, err)

	def, err := r.Default()
	require.NoError(t, err)
	assert.Same(t, users, def)
	assert.Equal(t, []string{"admins", "users"}, r.Names())

	_, err = linkage.NewRegistry("", users).Default()
	var cfgErr *auth.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "DEFAULT_LOCAL_TYPE", cfgErr.Key)
}
