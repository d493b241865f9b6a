package localauth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/linkedin"
	"golang.org/x/oauth2/microsoft"

	meridia "github.com/yoku-app/MERIDIA"
)

type OAuthUserInfo struct {
	ID    string
	Email string
	Name  string
}

type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	GetUserInfo(ctx context.Context, token *oauth2.Token) (OAuthUserInfo, error)
}

// ClientConfig holds the credentials registered with a social provider.
type ClientConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// socialProvider is an OAuthProvider described by its endpoint, scopes,
// profile URL and the decoding of the profile document.
type socialProvider struct {
	name    string
	config  *oauth2.Config
	infoURL string
	decode  func(body []byte) (OAuthUserInfo, error)
}

func newSocial(name string, c ClientConfig, endpoint oauth2.Endpoint, scopes []string, infoURL string, decode func([]byte) (OAuthUserInfo, error)) *socialProvider {
	return &socialProvider{
		name: name,
		config: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		infoURL: infoURL,
		decode:  decode,
	}
}

func (p *socialProvider) Name() string { return p.name }

func (p *socialProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *socialProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code)
}

func (p *socialProvider) GetUserInfo(ctx context.Context, token *oauth2.Token) (OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.infoURL, nil)
	if err != nil {
		return OAuthUserInfo{}, err
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return OAuthUserInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return OAuthUserInfo{}, meridia.ErrInvalidCredentials
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return OAuthUserInfo{}, err
	}
	return p.decode(raw)
}

func Google(c ClientConfig) OAuthProvider {
	return newSocial("google", c, google.Endpoint,
		[]string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		"https://www.googleapis.com/oauth2/v2/userinfo",
		func(b []byte) (OAuthUserInfo, error) {
			var d struct {
				ID    string `json:"id"`
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			err := json.Unmarshal(b, &d)
			return OAuthUserInfo{ID: d.ID, Email: d.Email, Name: d.Name}, err
		})
}

func Microsoft(c ClientConfig) OAuthProvider {
	return newSocial("microsoft", c, microsoft.AzureADEndpoint("common"),
		[]string{"User.Read"},
		"https://graph.microsoft.com/v1.0/me",
		func(b []byte) (OAuthUserInfo, error) {
			var d struct {
				ID                string `json:"id"`
				Email             string `json:"mail"`
				UserPrincipalName string `json:"userPrincipalName"`
				Name              string `json:"displayName"`
			}
			err := json.Unmarshal(b, &d)
			email := d.Email
			if email == "" {
				email = d.UserPrincipalName
			}
			return OAuthUserInfo{ID: d.ID, Email: email, Name: d.Name}, err
		})
}

// GitHub only returns the public email of the account.
func GitHub(c ClientConfig) OAuthProvider {
	return newSocial("github", c, github.Endpoint,
		[]string{"read:user", "user:email"},
		"https://api.github.com/user",
		func(b []byte) (OAuthUserInfo, error) {
			var d struct {
				ID    int64  `json:"id"`
				Login string `json:"login"`
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			err := json.Unmarshal(b, &d)
			name := d.Name
			if name == "" {
				name = d.Login
			}
			return OAuthUserInfo{ID: strconv.FormatInt(d.ID, 10), Email: d.Email, Name: name}, err
		})
}

func Facebook(c ClientConfig) OAuthProvider {
	return newSocial("facebook", c, facebook.Endpoint,
		[]string{"email", "public_profile"},
		"https://graph.facebook.com/me?fields=id,name,email",
		func(b []byte) (OAuthUserInfo, error) {
			var d struct {
				ID    string `json:"id"`
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			err := json.Unmarshal(b, &d)
			return OAuthUserInfo{ID: d.ID, Email: d.Email, Name: d.Name}, err
		})
}

// LinkedIn uses the OpenID Connect userinfo document.
func LinkedIn(c ClientConfig) OAuthProvider {
	return newSocial("linkedin", c, linkedin.Endpoint,
		[]string{"openid", "profile", "email"},
		"https://api.linkedin.com/v2/userinfo",
		func(b []byte) (OAuthUserInfo, error) {
			var d struct {
				Sub   string `json:"sub"`
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			err := json.Unmarshal(b, &d)
			return OAuthUserInfo{ID: d.Sub, Email: d.Email, Name: d.Name}, err
		})
}

var socialConstructors = map[string]func(ClientConfig) OAuthProvider{
	"google":    Google,
	"microsoft": Microsoft,
	"github":    GitHub,
	"facebook":  Facebook,
	"linkedin":  LinkedIn,
}

// SocialProvider builds the named provider, or returns ErrProviderNotFound.
func SocialProvider(name string, c ClientConfig) (OAuthProvider, error) {
	ctor, ok := socialConstructors[name]
	if !ok {
		return nil, meridia.ErrProviderNotFound
	}
	return ctor(c), nil
}
