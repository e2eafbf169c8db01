package cognito

import (
	"context"
	"errors"
	"fmt"

	"identity-link/internal/auth"
	"identity-link/internal/auth/provider"
	"identity-link/internal/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
)

// adminAPI is the subset of the Cognito client used here.
type adminAPI interface {
	AdminGetUser(ctx context.Context, in *cip.AdminGetUserInput, optFns ...func(*cip.Options)) (*cip.AdminGetUserOutput, error)
	AdminCreateUser(ctx context.Context, in *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminUpdateUserAttributes(ctx context.Context, in *cip.AdminUpdateUserAttributesInput, optFns ...func(*cip.Options)) (*cip.AdminUpdateUserAttributesOutput, error)
	AdminDeleteUser(ctx context.Context, in *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
	ListUsers(ctx context.Context, in *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
}

// Config holds the transport and auth settings of the user pool client.
type Config struct {
	Region          string
	UserPoolID      string
	AccessKeyID     string // optional; the default AWS chain is used when empty
	SecretAccessKey string
	Endpoint        string // optional endpoint override (local emulators)
}

// Provider implements provider.IdentityProvider against one Cognito user pool.
// It issues administrative calls only; no linking decisions are made here.
type Provider struct {
	api    adminAPI
	poolID string
}

var _ provider.IdentityProvider = (*Provider)(nil)

// New builds a Cognito admin client from cfg.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Region == "" {
		return nil, &auth.ConfigurationError{Key: "COGNITO_AWS_REGION"}
	}
	if cfg.UserPoolID == "" {
		return nil, &auth.ConfigurationError{Key: "COGNITO_USER_POOL_ID"}
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cognito: load aws config: %w", err)
	}

	client := cip.NewFromConfig(awsCfg, func(o *cip.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("cognito client ready", map[string]any{
		"region":          cfg.Region,
		"user_pool_id":    cfg.UserPoolID,
		"static_creds":    cfg.AccessKeyID != "",
		"custom_endpoint": cfg.Endpoint != "",
	})

	return newWithAPI(client, cfg.UserPoolID), nil
}

func newWithAPI(api adminAPI, poolID string) *Provider {
	return &Provider{api: api, poolID: poolID}
}

func (p *Provider) GetUser(ctx context.Context, username string) (*auth.RemoteUser, error) {
	out, err := p.api.AdminGetUser(ctx, &cip.AdminGetUserInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
	})
	if err != nil {
		return nil, translate(err)
	}

	return &auth.RemoteUser{
		Username:   aws.ToString(out.Username),
		Attributes: fromAttributeTypes(out.UserAttributes),
		Status:     string(out.UserStatus),
		Enabled:    out.Enabled,
		CreatedAt:  aws.ToTime(out.UserCreateDate),
		UpdatedAt:  aws.ToTime(out.UserLastModifiedDate),
	}, nil
}

func (p *Provider) CreateUser(ctx context.Context, in provider.CreateUserInput) (*auth.RemoteUser, error) {
	mediums := make([]types.DeliveryMediumType, 0, len(in.DeliveryMediums))
	for _, m := range in.DeliveryMediums {
		mediums = append(mediums, types.DeliveryMediumType(m))
	}

	out, err := p.api.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:             aws.String(p.poolID),
		Username:               aws.String(in.Username),
		TemporaryPassword:      aws.String(in.TemporaryPassword),
		UserAttributes:         toAttributeTypes(in.Attributes),
		DesiredDeliveryMediums: mediums,
	})
	if err != nil {
		return nil, translate(err)
	}
	if out.User == nil {
		return nil, errors.New("cognito: create user returned no user")
	}

	u := fromUserType(*out.User)
	return &u, nil
}

func (p *Provider) UpdateUserAttributes(ctx context.Context, username string, attrs []auth.Attribute) error {
	_, err := p.api.AdminUpdateUserAttributes(ctx, &cip.AdminUpdateUserAttributesInput{
		UserPoolId:     aws.String(p.poolID),
		Username:       aws.String(username),
		UserAttributes: toAttributeTypes(attrs),
	})
	return translate(err)
}

func (p *Provider) DeleteUser(ctx context.Context, username string) error {
	_, err := p.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(p.poolID),
		Username:   aws.String(username),
	})
	return translate(err)
}

func (p *Provider) ListUsers(ctx context.Context, paginationToken string) (*provider.UserPage, error) {
	in := &cip.ListUsersInput{UserPoolId: aws.String(p.poolID)}
	if paginationToken != "" {
		in.PaginationToken = aws.String(paginationToken)
	}

	out, err := p.api.ListUsers(ctx, in)
	if err != nil {
		return nil, translate(err)
	}

	page := &provider.UserPage{
		Users:           make([]auth.RemoteUser, 0, len(out.Users)),
		PaginationToken: aws.ToString(out.PaginationToken),
	}
	for _, u := range out.Users {
		page.Users = append(page.Users, fromUserType(u))
	}
	return page, nil
}

// translate maps a missing user onto auth.ErrNotFound and leaves every other
// error untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var notFound *types.UserNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", auth.ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "UserNotFoundException" {
		return fmt.Errorf("%w: %w", auth.ErrNotFound, err)
	}

	return err
}

func toAttributeTypes(attrs []auth.Attribute) []types.AttributeType {
	out := make([]types.AttributeType, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, types.AttributeType{
			Name:  aws.String(a.Name),
			Value: aws.String(a.Value),
		})
	}
	return out
}

func fromAttributeTypes(attrs []types.AttributeType) []auth.Attribute {
	out := make([]auth.Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, auth.Attribute{
			Name:  aws.ToString(a.Name),
			Value: aws.ToString(a.Value),
		})
	}
	return out
}

func fromUserType(u types.UserType) auth.RemoteUser {
	return auth.RemoteUser{
		Username:   aws.ToString(u.Username),
		Attributes: fromAttributeTypes(u.Attributes),
		Status:     string(u.UserStatus),
		Enabled:    u.Enabled,
		CreatedAt:  aws.ToTime(u.UserCreateDate),
		UpdatedAt:  aws.ToTime(u.UserLastModifiedDate),
	}
}
