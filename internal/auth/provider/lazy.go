package provider

import (
	"context"
	"sync"

	"identity-link/internal/auth"

	"golang.org/x/sync/singleflight"
)

// Factory builds the process-wide provider.
type Factory func(ctx context.Context) (IdentityProvider, error)

// Lazy builds its provider on first use and shares it afterwards.
// Concurrent first calls wait on a single construction; a failed
// construction is retried by the next caller. The factory does not inherit
// the first caller's cancellation.
type Lazy struct {
	factory Factory
	group   singleflight.Group

	mu       sync.RWMutex
	provider IdentityProvider
}

// NewLazy wraps factory. Nothing is constructed until the first call.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// Get returns the shared provider, constructing it if needed.
func (l *Lazy) Get(ctx context.Context) (IdentityProvider, error) {
	l.mu.RLock()
	p := l.provider
	l.mu.RUnlock()
	if p != nil {
		return p, nil
	}

	v, err, _ := l.group.Do("provider", func() (any, error) {
		l.mu.RLock()
		existing := l.provider
		l.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		built, err := l.factory(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.provider = built
		l.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(IdentityProvider), nil
}

func (l *Lazy) GetUser(ctx context.Context, username string) (*auth.RemoteUser, error) {
	p, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.GetUser(ctx, username)
}

func (l *Lazy) CreateUser(ctx context.Context, in CreateUserInput) (*auth.RemoteUser, error) {
	p, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.CreateUser(ctx, in)
}

func (l *Lazy) UpdateUserAttributes(ctx context.Context, username string, attrs []auth.Attribute) error {
	p, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return p.UpdateUserAttributes(ctx, username, attrs)
}

func (l *Lazy) DeleteUser(ctx context.Context, username string) error {
	p, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return p.DeleteUser(ctx, username)
}

func (l *Lazy) ListUsers(ctx context.Context, paginationToken string) (*UserPage, error) {
	p, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.ListUsers(ctx, paginationToken)
}
