package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type mapEntity map[string]string

func (m mapEntity) Get(field string) (string, bool) {
	v, ok := m[field]
	return v, ok
}

func (m mapEntity) Set(field, value string) bool {
	if _, ok := m[field]; !ok {
		return false
	}
	m[field] = value
	return true
}

func (m mapEntity) Fields() map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func TestNewDeclaration_Defaults(t *testing.T) {
	d := NewDeclaration("users")

	assert.Equal(t, "users", d.Name)
	assert.Equal(t, DefaultExternalIDField, d.ExternalIDField)
	assert.False(t, d.VerifyEmail)
	assert.False(t, d.VerifyPhone)
	assert.Empty(t, d.Rules())
}

func TestNewDeclaration_Options(t *testing.T) {
	d := NewDeclaration("admins",
		WithExternalIDField("cognito_id"),
		VerifyEmail(),
		VerifyPhone(),
		WithAttribute("role", Literal("admin")),
	)

	assert.Equal(t, "cognito_id", d.ExternalIDField)
	assert.True(t, d.VerifyEmail)
	assert.True(t, d.VerifyPhone)
	assert.Equal(t, []AttributeRule{{Name: "custom:role", Value: Literal("admin")}}, d.Rules())
}

func TestDefineAttribute_PrefixesOnce(t *testing.T) {
	d := NewDeclaration("users")
	d.DefineAttribute("role", Literal("user"))
	d.DefineAttribute("custom:name", FieldRef("name"))

	rules := d.Rules()
	assert.Equal(t, "custom:role", rules[0].Name)
	assert.Equal(t, "custom:name", rules[1].Name)
	assert.Equal(t, "name", rules[1].FieldName())
}

func TestResolveAttributes_LiteralIgnoresInstance(t *testing.T) {
	d := NewDeclaration("admins", WithAttribute("role", Literal("admin")))

	assert.Equal(t,
		[]Attribute{{Name: "custom:role", Value: "admin"}},
		d.ResolveAttributes(mapEntity{"role": "something-else"}),
	)
	assert.Equal(t,
		[]Attribute{{Name: "custom:role", Value: "admin"}},
		d.ResolveAttributes(nil),
	)
}

func TestResolveAttributes_FieldRefReadsAtResolveTime(t *testing.T) {
	d := NewDeclaration("users",
		WithAttribute("role", Literal("user")),
		WithAttribute("name", FieldRef("name")),
	)
	e := mapEntity{"email": "a@x.com", "name": "Before"}

	e.Set("name", "After")

	assert.Equal(t, []Attribute{
		{Name: "custom:role", Value: "user"},
		{Name: "custom:name", Value: "After"},
	}, d.ResolveAttributes(e))
}

func TestResolveAttributes_SkipsMissingField(t *testing.T) {
	d := NewDeclaration("users", WithAttribute("nickname", FieldRef("nickname")))

	assert.Empty(t, d.ResolveAttributes(mapEntity{"email": "a@x.com"}))
}

func TestAttributeRule_IsLiteral(t *testing.T) {
	assert.True(t, AttributeRule{Name: "custom:role", Value: Literal("x")}.IsLiteral())
	assert.False(t, AttributeRule{Name: "custom:name", Value: FieldRef("name")}.IsLiteral())
}

func TestRemoteUser_Attribute(t *testing.T) {
	u := &RemoteUser{Attributes: []Attribute{
		{Name: AttrSub, Value: "abc"},
		{Name: AttrEmail, Value: "a@x.com"},
	}}

	v, ok := u.Attribute(AttrEmail)
	assert.True(t, ok)
	assert.Equal(t, "a@x.com", v)

	_, ok = u.Attribute(AttrPhoneNumber)
	assert.False(t, ok)

	var nilUser *RemoteUser
	_, ok = nilUser.Attribute(AttrEmail)
	assert.False(t, ok)
}
