package flow

import (
	"context"

	meridia "github.com/yoku-app/MERIDIA"
)

type ErrorKind uint8

const (
	KindValidation ErrorKind = iota + 1
	KindAuth
	KindNetwork
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindConflict:
		return "conflict"
	}
	return "unknown"
}

// genericFailure is shown for transport errors, whose details are only logged.
const genericFailure = "Something went wrong, please try again"

// ErrorInfo is the normalized failure of a remote operation. Field names the
// form field the failure belongs to; empty means a general banner.
type ErrorInfo struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Field   string
	Cause   error
}

func (e *ErrorInfo) Error() string { return e.Message }

func (e *ErrorInfo) Unwrap() error { return e.Cause }

// NetworkError wraps a transport failure. The user sees a generic message.
func NetworkError(cause error) *ErrorInfo {
	return &ErrorInfo{Kind: KindNetwork, Message: genericFailure, Cause: cause}
}

func AuthError(status int, code, message string) *ErrorInfo {
	return &ErrorInfo{Kind: KindAuth, Status: status, Code: code, Message: message}
}

func ConflictError(field, message string) *ErrorInfo {
	return &ErrorInfo{Kind: KindConflict, Status: 409, Code: "conflict", Message: message, Field: field}
}

// Response is the uniform return shape of every remote operation.
type Response[T any] struct {
	OK    bool
	Data  T
	Error *ErrorInfo
}

// Ack is a Response without a payload.
type Ack = Response[struct{}]

func Ok[T any](data T) Response[T] { return Response[T]{OK: true, Data: data} }

func Done() Ack { return Ack{OK: true} }

func Fail[T any](err *ErrorInfo) Response[T] { return Response[T]{Error: err} }

type Credentials struct {
	Email    string
	Password string
}

type Confirmation struct {
	Email string
	OTP   string
}

// AuthProvider is the identity side of the remote boundary.
type AuthProvider interface {
	RegisterCredentials(ctx context.Context, c Credentials) Ack
	ConfirmOtp(ctx context.Context, c Confirmation) Response[meridia.Session]
	ResendOtp(ctx context.Context, email string) Ack
	// AuthenticateSocial returns the URL the user must be redirected to.
	AuthenticateSocial(ctx context.Context, provider string) Response[string]
	SendPhoneOtp(ctx context.Context, phone string) Ack
	VerifyPhoneOtp(ctx context.Context, phone, otp string) Ack
}

// ProfileService is the profile side of the remote boundary.
type ProfileService interface {
	UpdateProfile(ctx context.Context, u meridia.User) Response[meridia.User]
	// UploadAvatar stores the image and returns its public URL.
	UploadAvatar(ctx context.Context, userID string, image []byte) Response[string]
}
