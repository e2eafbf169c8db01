// Package providertest provides an in-memory directory for tests.
package providertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"identity-link/internal/auth"
	"identity-link/internal/auth/provider"

	"github.com/google/uuid"
)

// Call records one verb issued against the Directory.
type Call struct {
	Verb     string
	Username string
	Input    provider.CreateUserInput
	Attrs    []auth.Attribute
}

// Directory is an in-memory provider.IdentityProvider. The *Func fields
// override the default behaviour of the matching verb.
type Directory struct {
	GetUserFunc              func(ctx context.Context, username string) (*auth.RemoteUser, error)
	CreateUserFunc           func(ctx context.Context, in provider.CreateUserInput) (*auth.RemoteUser, error)
	UpdateUserAttributesFunc func(ctx context.Context, username string, attrs []auth.Attribute) error
	DeleteUserFunc           func(ctx context.Context, username string) error
	ListUsersFunc            func(ctx context.Context, paginationToken string) (*provider.UserPage, error)

	// PageSize splits ListUsers results; zero returns everything at once.
	PageSize int

	mu    sync.Mutex
	users map[string]*auth.RemoteUser
	order []string
	calls []Call
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{users: make(map[string]*auth.RemoteUser)}
}

// Seed stores an identity under its username (or a fresh uuid when empty)
// and returns the username.
func (d *Directory) Seed(u auth.RemoteUser) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.Username == "" {
		u.Username = uuid.NewString()
	}
	if _, ok := d.users[u.Username]; !ok {
		d.order = append(d.order, u.Username)
	}
	d.users[u.Username] = &u
	return u.Username
}

// Calls returns the verbs issued so far.
func (d *Directory) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallsTo returns the calls of a single verb.
func (d *Directory) CallsTo(verb string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Verb == verb {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of stored identities.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

func (d *Directory) record(c Call) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *Directory) GetUser(ctx context.Context, username string) (*auth.RemoteUser, error) {
	d.record(Call{Verb: "GetUser", Username: username})
	if d.GetUserFunc != nil {
		return d.GetUserFunc(ctx, username)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", auth.ErrNotFound, username)
	}
	cp := *u
	return &cp, nil
}

func (d *Directory) CreateUser(ctx context.Context, in provider.CreateUserInput) (*auth.RemoteUser, error) {
	d.record(Call{Verb: "CreateUser", Username: in.Username, Input: in, Attrs: in.Attributes})
	if d.CreateUserFunc != nil {
		return d.CreateUserFunc(ctx, in)
	}

	sub := uuid.NewString()
	attrs := append([]auth.Attribute{{Name: auth.AttrSub, Value: sub}}, in.Attributes...)
	d.Seed(auth.RemoteUser{Username: sub, Attributes: attrs, Status: "FORCE_CHANGE_PASSWORD", Enabled: true})

	return &auth.RemoteUser{Username: in.Username, Attributes: attrs, Enabled: true}, nil
}

func (d *Directory) UpdateUserAttributes(ctx context.Context, username string, attrs []auth.Attribute) error {
	d.record(Call{Verb: "UpdateUserAttributes", Username: username, Attrs: attrs})
	if d.UpdateUserAttributesFunc != nil {
		return d.UpdateUserAttributesFunc(ctx, username, attrs)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return fmt.Errorf("%w: %s", auth.ErrNotFound, username)
	}
	for _, a := range attrs {
		replaced := false
		for i := range u.Attributes {
			if u.Attributes[i].Name == a.Name {
				u.Attributes[i].Value = a.Value
				replaced = true
			}
		}
		if !replaced {
			u.Attributes = append(u.Attributes, a)
		}
	}
	return nil
}

func (d *Directory) DeleteUser(ctx context.Context, username string) error {
	d.record(Call{Verb: "DeleteUser", Username: username})
	if d.DeleteUserFunc != nil {
		return d.DeleteUserFunc(ctx, username)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[username]; !ok {
		return fmt.Errorf("%w: %s", auth.ErrNotFound, username)
	}
	delete(d.users, username)
	for i, name := range d.order {
		if name == username {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

func (d *Directory) ListUsers(ctx context.Context, paginationToken string) (*provider.UserPage, error) {
	d.record(Call{Verb: "ListUsers", Username: paginationToken})
	if d.ListUsersFunc != nil {
		return d.ListUsersFunc(ctx, paginationToken)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	start := 0
	if paginationToken != "" {
		n, err := strconv.Atoi(paginationToken)
		if err != nil {
			return nil, fmt.Errorf("providertest: bad pagination token %q", paginationToken)
		}
		start = n
	}
	names := d.order[min(start, len(d.order)):]
	next := ""
	if d.PageSize > 0 && len(names) > d.PageSize {
		names = names[:d.PageSize]
		next = strconv.Itoa(start + d.PageSize)
	}

	page := &provider.UserPage{PaginationToken: next}
	for _, name := range names {
		page.Users = append(page.Users, *d.users[name])
	}
	return page, nil
}
