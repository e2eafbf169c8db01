package app

import (
	"context"

	"identity-link/internal/auth/credentials"
	"identity-link/internal/auth/linkage"
	"identity-link/internal/auth/provider"
	"identity-link/internal/auth/provider/cognito"
	"identity-link/internal/auth/remoteuser"
	"identity-link/internal/auth/resolver"
	"identity-link/internal/auth/token"
	"identity-link/internal/config"
	"identity-link/internal/db"
	"identity-link/internal/middleware"
)

// Services is the wired object graph shared by the server and the CLI.
type Services struct {
	Infra         *Infra
	Provider      *provider.Lazy
	Users         *remoteuser.Repository
	Linkers       *linkage.Registry
	Verifier      *token.Verifier
	Authenticator *middleware.Authenticator
}

// Build wires every component from cfg. The directory client is built on
// first use, so missing directory settings surface there.
func Build(ctx context.Context, cfg config.Config) (*Services, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	passwords, err := credentials.NewGenerator(cfg.PasswordMinLength, cfg.PasswordMaxLength)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	idp := provider.NewLazy(func(ctx context.Context) (provider.IdentityProvider, error) {
		return newCognito(ctx, cfg)
	})

	types := LocalTypes()
	repoOpts := []remoteuser.Option{remoteuser.WithPasswords(passwords.Generate)}
	for _, t := range types {
		if t.Declaration.Name == cfg.DefaultLocalTypeName {
			repoOpts = append(repoOpts, remoteuser.WithDefaultType(t.Declaration))
		}
	}
	users := remoteuser.NewRepository(idp, repoOpts...)

	linkers := make([]*linkage.Linker, 0, len(types))
	for _, t := range types {
		linkers = append(linkers, linkage.New(
			t.Declaration,
			db.NewTable(infra.DB, t.Table),
			users,
			linkage.WithSkipHooks(cfg.SkipModelHooks),
		))
	}
	registry := linkage.NewRegistry(cfg.DefaultLocalTypeName, linkers...)

	// An unset region or pool leaves an unusable URL; every decode then
	// fails and is logged.
	verifier := token.NewVerifier(
		token.JWKSURL(cfg.AWSRegion, cfg.UserPool),
		token.WithCache(infra.Cache),
	)

	authenticator := middleware.NewAuthenticator(
		verifier,
		resolver.NewDBResolver(registry, ""),
		cfg.TokenQueryParam,
	)

	return &Services{
		Infra:         infra,
		Provider:      idp,
		Users:         users,
		Linkers:       registry,
		Verifier:      verifier,
		Authenticator: authenticator,
	}, nil
}

func (s *Services) Close() error {
	return s.Infra.Close()
}

func newCognito(ctx context.Context, cfg config.Config) (provider.IdentityProvider, error) {
	region, err := cfg.Region()
	if err != nil {
		return nil, err
	}
	pool, err := cfg.UserPoolID()
	if err != nil {
		return nil, err
	}
	keyID, secret, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}

	p, err := cognito.New(ctx, cognito.Config{
		Region:          region,
		UserPoolID:      pool,
		AccessKeyID:     keyID,
		SecretAccessKey: secret,
		Endpoint:        cfg.CognitoEndpoint,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
