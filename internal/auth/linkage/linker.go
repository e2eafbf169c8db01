// Package linkage binds local record types to directory identities: it
// provides the create/destroy hooks and the push and pull reconciliation
// passes.
package linkage

import (
	"context"
	"errors"
	"fmt"

	"identity-link/internal/auth"
	"identity-link/internal/auth/remoteuser"
	"identity-link/internal/logger"
)

// Local fields read when building a remote identity.
const (
	FieldEmail    = "email"
	FieldPhone    = "phone"
	FieldPassword = "password"
)

// Store persists the local records of one type. The hooks passed to Create
// and Destroy run inside the store's unit of work; a hook error rolls the
// local mutation back.
type Store interface {
	New() auth.Entity
	FindBy(ctx context.Context, field, value string) (auth.Entity, error)
	Each(ctx context.Context, fn func(auth.Entity) error) error
	Save(ctx context.Context, e auth.Entity) error
	Create(ctx context.Context, e auth.Entity, before auth.Hook) error
	Destroy(ctx context.Context, e auth.Entity, after auth.Hook) error
}

// EnrichFunc adjusts a local record from the raw remote identity before it is
// saved during a pull.
type EnrichFunc func(e auth.Entity, remote auth.RemoteUser) error

// Linker links the records of one local type to directory identities.
type Linker struct {
	decl      *auth.Declaration
	store     Store
	users     *remoteuser.Repository
	skipHooks bool
}

type Option func(*Linker)

// WithSkipHooks turns BeforeCreate and AfterDestroy into no-ops.
func WithSkipHooks(skip bool) Option {
	return func(l *Linker) { l.skipHooks = skip }
}

func New(decl *auth.Declaration, store Store, users *remoteuser.Repository, opts ...Option) *Linker {
	l := &Linker{decl: decl, store: store, users: users}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Linker) Name() string {
	return l.decl.Name
}

func (l *Linker) Declaration() *auth.Declaration {
	return l.decl
}

func (l *Linker) Store() Store {
	return l.store
}

// ExternalID returns the remote identity id stored on e.
func (l *Linker) ExternalID(e auth.Entity) string {
	v, _ := e.Get(l.decl.ExternalIDField)
	return v
}

// Create persists a new local record, creating its remote identity first.
// When the local write fails after the remote identity was created, the
// remote identity is deleted again.
func (l *Linker) Create(ctx context.Context, e auth.Entity) error {
	linked := false
	err := l.store.Create(ctx, e, func(ctx context.Context, e auth.Entity) error {
		before := l.ExternalID(e)
		if err := l.BeforeCreate(ctx, e); err != nil {
			return err
		}
		linked = before == "" && l.ExternalID(e) != ""
		return nil
	})
	if err != nil && linked {
		l.discardRemoteUser(ctx, e)
	}
	return err
}

// discardRemoteUser undoes createRemoteUser for a record that was never
// stored. Failures leave an orphaned remote identity and are only logged.
func (l *Linker) discardRemoteUser(ctx context.Context, e auth.Entity) {
	id := l.ExternalID(e)
	if err := l.DestroyRemoteUser(ctx, e); err != nil {
		logger.Warn("orphaned remote user", map[string]any{
			"type":        l.decl.Name,
			"external_id": id,
			"error":       err.Error(),
		})
	}
	e.Set(l.decl.ExternalIDField, "")
}

// Destroy deletes a local record and then its remote identity.
func (l *Linker) Destroy(ctx context.Context, e auth.Entity) error {
	return l.store.Destroy(ctx, e, l.AfterDestroy)
}

// BeforeCreate is the pre-commit hook of local creation.
func (l *Linker) BeforeCreate(ctx context.Context, e auth.Entity) error {
	if l.skipHooks {
		return nil
	}
	return l.InitRemoteUser(ctx, e)
}

// AfterDestroy is the post-delete hook of local destruction.
func (l *Linker) AfterDestroy(ctx context.Context, e auth.Entity) error {
	if l.skipHooks {
		return nil
	}
	return l.DestroyRemoteUser(ctx, e)
}

// InitRemoteUser creates the remote identity of e and stores its id on e.
// It does nothing when e is already linked.
func (l *Linker) InitRemoteUser(ctx context.Context, e auth.Entity) error {
	if l.ExternalID(e) != "" {
		return nil
	}
	return l.createRemoteUser(ctx, e)
}

func (l *Linker) createRemoteUser(ctx context.Context, e auth.Entity) error {
	u, err := l.users.Create(ctx, l.initAttributes(e))
	if err != nil {
		return err
	}
	if !e.Set(l.decl.ExternalIDField, u.ID) {
		return fmt.Errorf("linkage: %s has no field %q", l.decl.Name, l.decl.ExternalIDField)
	}
	logger.Info("remote user linked", map[string]any{
		"type":        l.decl.Name,
		"external_id": u.ID,
	})
	return nil
}

func (l *Linker) initAttributes(e auth.Entity) remoteuser.User {
	u := remoteuser.User{
		CustomAttributes: l.decl.ResolveAttributes(e),
		Type:             l.decl,
	}
	u.Email, _ = e.Get(FieldEmail)
	u.Phone, _ = e.Get(FieldPhone)
	u.Password, _ = e.Get(FieldPassword)
	return u
}

// DestroyRemoteUser deletes the remote identity linked to e, if any. A linked
// identity that no longer exists counts as deleted.
func (l *Linker) DestroyRemoteUser(ctx context.Context, e auth.Entity) error {
	id := l.ExternalID(e)
	if id == "" {
		return nil
	}
	u, err := l.users.Find(ctx, id, l.decl)
	if errors.Is(err, auth.ErrNotFound) {
		logger.Warn("remote user already gone", map[string]any{
			"type":        l.decl.Name,
			"external_id": id,
		})
		return nil
	}
	if err != nil {
		return err
	}
	return u.Destroy(ctx)
}

// RemoteUser loads the remote identity linked to e.
func (l *Linker) RemoteUser(ctx context.Context, e auth.Entity) (*remoteuser.User, error) {
	id := l.ExternalID(e)
	if id == "" {
		return nil, fmt.Errorf("linkage: %s record is not linked: %w", l.decl.Name, auth.ErrNotFound)
	}
	return l.users.Find(ctx, id, l.decl)
}

// FindByExternalID loads the local record linked to the given remote id.
func (l *Linker) FindByExternalID(ctx context.Context, id string) (auth.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("linkage: empty external id: %w", auth.ErrNotFound)
	}
	return l.store.FindBy(ctx, l.decl.ExternalIDField, id)
}

// SyncFromRemote copies every remote identity into the local store, matching
// rows by external id. It stops at the first failure and returns the records
// saved before it.
func (l *Linker) SyncFromRemote(ctx context.Context, enrich EnrichFunc) ([]auth.Entity, error) {
	var synced []auth.Entity
	token := ""
	for {
		page, err := l.users.All(ctx, token)
		if err != nil {
			return synced, err
		}
		for _, remote := range page.Users {
			e, err := l.syncUser(ctx, remote, enrich)
			if err != nil {
				return synced, fmt.Errorf("linkage: pull %s %s: %w", l.decl.Name, remote.Username, err)
			}
			if e != nil {
				synced = append(synced, e)
			}
		}
		if page.PaginationToken == "" {
			break
		}
		token = page.PaginationToken
	}

	logger.Info("pull finished", map[string]any{
		"type":   l.decl.Name,
		"synced": len(synced),
	})
	return synced, nil
}

func (l *Linker) syncUser(ctx context.Context, remote auth.RemoteUser, enrich EnrichFunc) (auth.Entity, error) {
	if remote.Username == "" {
		return nil, nil
	}

	e, err := l.store.FindBy(ctx, l.decl.ExternalIDField, remote.Username)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		e = l.store.New()
		e.Set(l.decl.ExternalIDField, remote.Username)
	case err != nil:
		return nil, err
	}

	email, _ := remote.Attribute(auth.AttrEmail)
	e.Set(FieldEmail, email)
	if _, ok := e.Get(FieldPhone); ok {
		phone, _ := remote.Attribute(auth.AttrPhoneNumber)
		e.Set(FieldPhone, phone)
	}
	for _, rule := range l.decl.Rules() {
		if rule.IsLiteral() {
			continue
		}
		if v, ok := remote.Attribute(rule.Name); ok {
			e.Set(rule.FieldName(), v)
		}
	}

	if enrich != nil {
		if err := enrich(e, remote); err != nil {
			return nil, err
		}
	}
	if err := l.store.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

type syncOptions struct {
	recreate bool
}

type SyncOption func(*syncOptions)

// WithRecreate creates a remote identity for every record, including those
// already linked. The previous link is overwritten.
func WithRecreate() SyncOption {
	return func(o *syncOptions) { o.recreate = true }
}

// SyncToRemote creates the missing remote identity of every local record and
// saves the record. It stops at the first failure and returns the number of
// records saved before it.
func (l *Linker) SyncToRemote(ctx context.Context, opts ...SyncOption) (int, error) {
	var o syncOptions
	for _, opt := range opts {
		opt(&o)
	}

	n := 0
	err := l.store.Each(ctx, func(e auth.Entity) error {
		var err error
		if o.recreate {
			err = l.createRemoteUser(ctx, e)
		} else {
			err = l.InitRemoteUser(ctx, e)
		}
		if err != nil {
			return fmt.Errorf("linkage: push %s: %w", l.decl.Name, err)
		}
		if err := l.store.Save(ctx, e); err != nil {
			return fmt.Errorf("linkage: push %s: %w", l.decl.Name, err)
		}
		n++
		return nil
	})

	logger.Info("push finished", map[string]any{
		"type":     l.decl.Name,
		"saved":    n,
		"recreate": o.recreate,
	})
	return n, err
}
