package flow

import "time"

const (
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldOTP         = "otp"
	FieldDisplayName = "displayName"
	FieldDOB         = "dob"
	FieldPhone       = "phone"
	FieldFocus       = "focus"
	FieldAvatarURL   = "avatarUrl"
)

// MinDOB is the earliest accepted date of birth.
var MinDOB = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// SpecialCharacters are the characters that satisfy the password's special
// character requirement.
const SpecialCharacters = `!@#$%^&*(),.?":{}|<>`

func emailField() Field {
	return Field{Name: FieldEmail, Rules: []Rule{
		Required("Email is required"),
		Email("Invalid email address"),
	}}
}

func passwordField() Field {
	return Field{Name: FieldPassword, Rules: []Rule{
		Required("Password is required"),
		MinLen(8, "Password must be at least 8 characters long"),
		Pattern(`[A-Z]`, "Password must contain at least one uppercase letter"),
		Pattern(`[a-z]`, "Password must contain at least one lowercase letter"),
		Pattern(`\d`, "Password must contain at least one digit"),
		Pattern(`[!@#$%^&*(),.?":{}|<>]`, "Password must contain at least one special character"),
	}}
}

func otpField() Field {
	return Field{Name: FieldOTP, Rules: []Rule{
		Required("OTP code is required"),
		Length(6, "OTP must be 6 characters long"),
		Pattern(`^\d+$`, "Must contain only digits"),
	}}
}

// CredentialsSchema validates the email/password pair of a sign-up.
func CredentialsSchema() Schema {
	return Schema{emailField(), passwordField()}
}

func RegistrationSchema() Schema {
	return Schema{emailField(), passwordField(), otpField()}
}

// OnboardingSchema validates the onboarding profile. now bounds the date of
// birth and is evaluated at validation time.
func OnboardingSchema(now func() time.Time) Schema {
	return Schema{
		{Name: FieldDisplayName, Rules: []Rule{
			Required("Display Name is required"),
			MinLen(3, "Display Name is too short"),
		}},
		{Name: FieldDOB, Rules: []Rule{
			Required("Date of Birth is required"),
			NotBefore(func() time.Time { return MinDOB }, "Date of Birth must be on or after 1900-01-01"),
			NotAfter(now, "Date of Birth cannot be in the future"),
		}},
		{Name: FieldPhone, Optional: true, Rules: []Rule{
			MinLen(10, "Invalid Phone Number"),
			Mobile("Invalid Phone Number"),
		}},
		{Name: FieldFocus, Rules: []Rule{
			Required("An application focus is required"),
			OneOf("An application focus is required", "respondent", "creator", "hybrid"),
		}},
		{Name: FieldAvatarURL, Optional: true, Rules: []Rule{
			URL("Please enter a valid URL"),
		}},
		otpField(),
	}
}
