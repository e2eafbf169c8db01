package remoteuser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"identity-link/internal/auth"
	"identity-link/internal/auth/credentials"
	"identity-link/internal/auth/provider"
	"identity-link/internal/logger"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const verifiedValue = "True"

// PasswordFunc produces temporary passwords for new identities.
type PasswordFunc func() (string, error)

// Repository creates, loads and deletes remote identities through a provider.
type Repository struct {
	provider    provider.IdentityProvider
	passwords   PasswordFunc
	defaultType *auth.Declaration
	validate    *validator.Validate
}

type Option func(*Repository)

// WithPasswords replaces the default password generator.
func WithPasswords(f PasswordFunc) Option {
	return func(r *Repository) { r.passwords = f }
}

// WithDefaultType binds records without an explicit type to d.
func WithDefaultType(d *auth.Declaration) Option {
	return func(r *Repository) { r.defaultType = d }
}

func NewRepository(p provider.IdentityProvider, opts ...Option) *Repository {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)

	gen := &credentials.Generator{Min: credentials.DefaultMinLength, Max: credentials.DefaultMaxLength}
	r := &Repository{
		provider:  p,
		passwords: gen.Generate,
		validate:  v,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// User is one identity in the remote directory.
type User struct {
	ID               string
	Email            string `validate:"notblank"`
	Phone            string
	Password         string
	CustomAttributes []auth.Attribute
	Type             *auth.Declaration

	repo *Repository
}

// New returns an unsaved record bound to the repository.
func (r *Repository) New(u User) *User {
	out := u
	out.ID = ""
	out.repo = r
	if out.Type == nil {
		out.Type = r.defaultType
	}
	return &out
}

// Find loads the identity with the given id. A nil typ binds the default type.
func (r *Repository) Find(ctx context.Context, id string, typ *auth.Declaration) (*User, error) {
	remote, err := r.provider.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("remoteuser: find %q: %w", id, err)
	}

	u := &User{
		ID:   id,
		Type: typ,
		repo: r,
	}
	if u.Type == nil {
		u.Type = r.defaultType
	}
	u.Email, _ = remote.Attribute(auth.AttrEmail)
	u.Phone, _ = remote.Attribute(auth.AttrPhoneNumber)
	for _, a := range remote.Attributes {
		if strings.HasPrefix(a.Name, auth.CustomAttributePrefix) {
			u.CustomAttributes = append(u.CustomAttributes, a)
		}
	}
	return u, nil
}

// Create saves a new record and returns it, or the error that prevented it.
func (r *Repository) Create(ctx context.Context, u User) (*User, error) {
	rec := r.New(u)
	if err := rec.Save(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// TryCreate is Create reporting failure as false.
func (r *Repository) TryCreate(ctx context.Context, u User) (*User, bool) {
	rec := r.New(u)
	return rec, rec.TrySave(ctx)
}

// All returns one page of identities, starting at paginationToken.
func (r *Repository) All(ctx context.Context, paginationToken string) (*provider.UserPage, error) {
	page, err := r.provider.ListUsers(ctx, paginationToken)
	if err != nil {
		return nil, fmt.Errorf("remoteuser: list: %w", err)
	}
	return page, nil
}

// Persisted reports whether the record exists remotely.
func (u *User) Persisted() bool {
	return u.ID != ""
}

func (u *User) NewRecord() bool {
	return !u.Persisted()
}

// Validate checks the record without contacting the directory.
func (u *User) Validate() error {
	if err := u.repo.validate.Struct(u); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &auth.ValidationError{
				Field:   strings.ToLower(verrs[0].Field()),
				Message: "can't be blank",
			}
		}
		return err
	}
	return nil
}

// Save creates the identity when new and updates its attributes otherwise.
// Validation failures are returned as *auth.ValidationError, remote failures
// as *auth.PersistenceError.
func (u *User) Save(ctx context.Context) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.NewRecord() {
		return u.create(ctx)
	}
	return u.update(ctx)
}

// TrySave is Save reporting failure as false.
func (u *User) TrySave(ctx context.Context) bool {
	if err := u.Save(ctx); err != nil {
		logger.Warn("remote user not saved", map[string]any{
			"email": u.Email,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Destroy deletes the identity and clears its id. A record that was never
// persisted fails without contacting the directory.
func (u *User) Destroy(ctx context.Context) error {
	if u.NewRecord() {
		return &auth.PersistenceError{Op: "destroy", Err: errors.New("record is not persisted")}
	}
	if err := u.repo.provider.DeleteUser(ctx, u.ID); err != nil {
		return &auth.PersistenceError{Op: "destroy", Err: err}
	}
	u.ID = ""
	return nil
}

// TryDestroy is Destroy reporting failure as false.
func (u *User) TryDestroy(ctx context.Context) bool {
	if err := u.Destroy(ctx); err != nil {
		if u.Persisted() {
			logger.Warn("remote user not destroyed", map[string]any{
				"id":    u.ID,
				"error": err.Error(),
			})
		}
		return false
	}
	return true
}

func (u *User) create(ctx context.Context) error {
	password := u.Password
	if password == "" {
		if u.repo.passwords == nil {
			return &auth.PersistenceError{Op: "create", Err: errors.New("no password generator")}
		}
		p, err := u.repo.passwords()
		if err != nil {
			return &auth.PersistenceError{Op: "create", Err: err}
		}
		password = p
	}

	mediums := []string{provider.DeliveryEmail}
	if u.Phone != "" {
		mediums = append(mediums, provider.DeliverySMS)
	}

	remote, err := u.repo.provider.CreateUser(ctx, provider.CreateUserInput{
		Username:          u.Email,
		TemporaryPassword: password,
		Attributes:        append(u.generalAttributes(), u.verifyAttributes()...),
		DeliveryMediums:   mediums,
	})
	if err != nil {
		return &auth.PersistenceError{Op: "create", Err: err}
	}

	sub, ok := remote.Attribute(auth.AttrSub)
	if !ok || sub == "" {
		return &auth.PersistenceError{Op: "create", Err: errors.New("response carries no sub attribute")}
	}
	u.ID = sub
	return nil
}

func (u *User) update(ctx context.Context) error {
	if err := u.repo.provider.UpdateUserAttributes(ctx, u.ID, u.generalAttributes()); err != nil {
		return &auth.PersistenceError{Op: "update", Err: err}
	}
	return nil
}

func (u *User) generalAttributes() []auth.Attribute {
	attrs := make([]auth.Attribute, 0, 2+len(u.CustomAttributes))
	if u.Email != "" {
		attrs = append(attrs, auth.Attribute{Name: auth.AttrEmail, Value: u.Email})
	}
	if u.Phone != "" {
		attrs = append(attrs, auth.Attribute{Name: auth.AttrPhoneNumber, Value: u.Phone})
	}
	return append(attrs, u.CustomAttributes...)
}

func (u *User) verifyAttributes() []auth.Attribute {
	if u.Type == nil {
		return nil
	}
	var attrs []auth.Attribute
	if u.Type.VerifyEmail {
		attrs = append(attrs, auth.Attribute{Name: auth.AttrEmailVerified, Value: verifiedValue})
	}
	if u.Type.VerifyPhone {
		attrs = append(attrs, auth.Attribute{Name: auth.AttrPhoneNumberVerified, Value: verifiedValue})
	}
	return attrs
}
