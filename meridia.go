// Package meridia holds the domain types shared by the Yoku registration and
// onboarding flows, their remote adapters and the session store.
package meridia

import (
	"strings"
	"time"
)

type Focus string

const (
	FocusRespondent Focus = "RESPONDENT"
	FocusCreator    Focus = "CREATOR"
	FocusHybrid     Focus = "HYBRID"
)

// ParseFocus accepts the focus in any letter case.
func ParseFocus(s string) (Focus, bool) {
	switch f := Focus(strings.ToUpper(strings.TrimSpace(s))); f {
	case FocusRespondent, FocusCreator, FocusHybrid:
		return f, true
	}
	return "", false
}

type OrgType string

const (
	OrgPersonal    OrgType = "PERSONAL"
	OrgCompany     OrgType = "COMPANY"
	OrgEducational OrgType = "EDUCATIONAL"
)

type OnboardingCompletion struct {
	Core       *time.Time `json:"core,omitempty"`
	Respondent *time.Time `json:"respondent,omitempty"`
	Creator    *time.Time `json:"creator,omitempty"`
}

// User is the profile shape exchanged with the REST API.
type User struct {
	ID                   string                `json:"id"`
	Email                string                `json:"email"`
	Name                 string                `json:"name"`
	Phone                string                `json:"phone,omitempty"`
	DOB                  *time.Time            `json:"dob,omitempty"`
	Focus                Focus                 `json:"focus,omitempty"`
	AvatarURL            string                `json:"avatarUrl,omitempty"`
	OnboardingCompletion *OnboardingCompletion `json:"onboardingCompletion,omitempty"`
	CreatedAt            *time.Time            `json:"createdAt,omitempty"`
	UpdatedAt            *time.Time            `json:"updatedAt,omitempty"`
}

// Onboarded reports whether the core onboarding has been completed.
func (u User) Onboarded() bool {
	return u.OnboardingCompletion != nil && u.OnboardingCompletion.Core != nil
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

type Organisation struct {
	ID                        string  `json:"id"`
	CreatorID                 string  `json:"creatorId,omitempty"`
	Name                      string  `json:"name"`
	Description               string  `json:"description"`
	Email                     string  `json:"email"`
	AvatarURL                 string  `json:"avatarURL,omitempty"`
	MemberCount               int     `json:"memberCount"`
	SurveyCreationCount       int     `json:"surveyCreationCount"`
	PublicStatus              bool    `json:"publicStatus"`
	AverageSurveyReviewRating float64 `json:"averageSurveyReviewRating"`
	OrgType                   OrgType `json:"orgType"`
}

// TokenSource yields the bearer token of the current session, or "" when
// nobody is signed in.
type TokenSource interface {
	AccessToken() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) AccessToken() string { return string(t) }
