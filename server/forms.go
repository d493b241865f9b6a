package server

import "github.com/tinywasm/fmt"

// LoginData is the sign-in page form.
type LoginData struct {
	Email    string
	Password string
}

// FormName sets the form action to the sign-in route.
func (d *LoginData) FormName() string { return "auth/login" }

func (d *LoginData) Schema() []fmt.Field {
	return []fmt.Field{
		{Name: "email", Type: fmt.FieldText, NotNull: true, Input: "email"},
		{Name: "password", Type: fmt.FieldText, NotNull: true, Input: "password"},
	}
}

func (d *LoginData) Pointers() []any { return []any{&d.Email, &d.Password} }

// RegisterData is the first step of the registration page.
type RegisterData struct {
	Email    string
	Password string
}

func (d *RegisterData) Schema() []fmt.Field {
	return []fmt.Field{
		{Name: "email", Type: fmt.FieldText, NotNull: true, Input: "email"},
		{Name: "password", Type: fmt.FieldText, NotNull: true, Input: "password"},
	}
}

func (d *RegisterData) Pointers() []any { return []any{&d.Email, &d.Password} }

// ProfileData is the onboarding page form. The remaining details are
// collected by the onboarding flow itself.
type ProfileData struct {
	Name  string
	Phone string
}

func (d *ProfileData) Schema() []fmt.Field {
	return []fmt.Field{
		{Name: "name", Type: fmt.FieldText, NotNull: true, Input: "text"},
		{Name: "phone", Type: fmt.FieldText, Input: "tel"},
	}
}

func (d *ProfileData) Pointers() []any { return []any{&d.Name, &d.Phone} }
