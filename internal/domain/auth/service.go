// internal/domain/auth/service.go

package auth

import (
	"context"
	"errors"
	"time"
)

// Code identifies an authentication failure the caller can act on
type Code string

const (
	CodeWrongPassword       Code = "auth/wrong-password"
	CodeUserNotFound        Code = "auth/user-not-found"
	CodeEmailInUse          Code = "auth/email-already-in-use"
	CodeWeakPassword        Code = "auth/weak-password"
	CodeRequiresRecentLogin Code = "auth/requires-recent-login"
	CodeInvalidToken        Code = "auth/invalid-token"
	CodeInvalidEmail        Code = "auth/invalid-email"
)

var remediations = map[Code]string{
	CodeWrongPassword:       "The password is incorrect. Check it and try again.",
	CodeUserNotFound:        "No account exists for this email. Sign up first.",
	CodeEmailInUse:          "An account already exists for this email. Sign in instead.",
	CodeWeakPassword:        "Choose a longer password.",
	CodeRequiresRecentLogin: "Please log out and back in, then try again.",
	CodeInvalidToken:        "Your session has expired. Sign in again.",
	CodeInvalidEmail:        "Enter a valid email address.",
}

// Error is an authentication failure with a known code
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Remediation returns the user-facing message for the error's code
func (e *Error) Remediation() string {
	if r, ok := remediations[e.Code]; ok {
		return r
	}
	return "Something went wrong. Please try again."
}

// Is matches any *Error with the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new auth error
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the auth code from an error chain, "" if none
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// User is the authenticated identity
type User struct {
	ID       string    `json:"id"`
	Email    string    `json:"email"`
	SignedIn time.Time `json:"signedIn"`
}

// Session is a signed-in user plus the bearer token naming it
type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StateEvent describes an authentication state transition
type StateEvent string

const (
	EventSignedIn  StateEvent = "signed_in"
	EventSignedOut StateEvent = "signed_out"
	EventDeleted   StateEvent = "deleted"
)

// StateChange is delivered to listeners registered with OnStateChange
type StateChange struct {
	Event StateEvent
	User  User
}

// Provider defines the authentication capability
type Provider interface {
	// SignUp creates credentials and signs the new user in
	SignUp(ctx context.Context, email, password, username string) (*Session, error)

	// SignIn checks credentials and issues a session
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignOut revokes a session token
	SignOut(ctx context.Context, token string) error

	// CurrentUser resolves a token to its user
	CurrentUser(ctx context.Context, token string) (*User, error)

	// Reauthenticate confirms the password and refreshes the session's login time
	Reauthenticate(ctx context.Context, token, password string) (*Session, error)

	// DeleteAccount removes the user's credentials; requires a recent login
	DeleteAccount(ctx context.Context, token string) error

	// ResetPassword issues a one-time reset token for the email
	ResetPassword(ctx context.Context, email string) error

	// OnStateChange registers a listener and returns a function that removes it
	OnStateChange(fn func(StateChange)) (remove func())
}

// TokenManager handles authentication tokens
type TokenManager interface {
	// GenerateToken generates a token for a user
	GenerateToken(user User, ttl time.Duration) (string, time.Time, error)

	// ValidateToken validates a token and returns its user
	ValidateToken(token string) (*User, error)

	// RevokeToken revokes a token until it would have expired
	RevokeToken(token string) error
}
