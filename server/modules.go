package server

import (
	"html"
	"sort"

	"github.com/tinywasm/fmt"
	_ "github.com/tinywasm/fmt/dictionary"
	"github.com/tinywasm/form"
)

// page is a server-rendered form module.
type page interface {
	HandlerName() string
	ModuleTitle() string
	ValidateData(action byte, data fmt.Fielder) error
	RenderHTML() string
}

type loginModule struct {
	form      *form.Form
	providers []string
}

func (m *loginModule) HandlerName() string { return "login" }
func (m *loginModule) ModuleTitle() string { return "Login" }

func (m *loginModule) ValidateData(action byte, data fmt.Fielder) error {
	return m.form.ValidateData(action, data)
}

func (m *loginModule) RenderHTML() string {
	m.form.SetSSR(true)
	out := m.form.RenderHTML()
	for _, p := range m.providers {
		name := html.EscapeString(p)
		out += `<a href="/auth/social/` + name + `">Continue with ` + name + `</a>`
	}
	return out
}

type registerModule struct {
	form *form.Form
}

func (m *registerModule) HandlerName() string { return "register" }
func (m *registerModule) ModuleTitle() string { return "Register" }

func (m *registerModule) ValidateData(action byte, data fmt.Fielder) error {
	return m.form.ValidateData(action, data)
}

func (m *registerModule) RenderHTML() string {
	m.form.SetSSR(true)
	return m.form.RenderHTML()
}

type profileModule struct {
	form *form.Form
}

func (m *profileModule) HandlerName() string { return "profile" }
func (m *profileModule) ModuleTitle() string { return "Profile" }

func (m *profileModule) ValidateData(action byte, data fmt.Fielder) error {
	return m.form.ValidateData(action, data)
}

func (m *profileModule) RenderHTML() string {
	m.form.SetSSR(true)
	return m.form.RenderHTML()
}

// newPages builds the form modules. providers are the social sign-in
// options offered on the login page.
func newPages(providers []string) []page {
	providers = append([]string(nil), providers...)
	sort.Strings(providers)
	return []page{
		&loginModule{form: mustForm("login", &LoginData{}), providers: providers},
		&registerModule{form: mustForm("register", &RegisterData{})},
		&profileModule{form: mustForm("profile", &ProfileData{})},
	}
}

func mustForm(parentID string, data fmt.Fielder) *form.Form {
	f, err := form.New(parentID, data)
	if err != nil {
		panic("server: mustForm: " + err.Error())
	}
	return f
}
