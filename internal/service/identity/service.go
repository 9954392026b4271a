// internal/service/identity/service.go

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"wimbli/internal/domain/auth"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/validation"
)

// CredentialsCollection holds one credential record per normalized email
const CredentialsCollection = "credentials"

const resetTokenTTL = time.Hour

// Profiles is the profile lifecycle the identity service drives
type Profiles interface {
	CreateMinimal(ctx context.Context, uid, username string) error
	Delete(ctx context.Context, uid string) error
}

// Config configures the identity service
type Config struct {
	TokenTTL          time.Duration
	ReauthWindow      time.Duration
	MinPasswordLength int
	BcryptCost        int
}

// Service implements auth.Provider over the document store
type Service struct {
	store    docstore.Store
	tokens   auth.TokenManager
	profiles Profiles
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	listeners map[int]func(auth.StateChange)
	nextID    int
}

// NewService creates a new identity service
func NewService(store docstore.Store, tokens auth.TokenManager, profiles Profiles, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:     store,
		tokens:    tokens,
		profiles:  profiles,
		config:    config,
		logger:    logger.With("service", "identity"),
		now:       time.Now,
		listeners: make(map[int]func(auth.StateChange)),
	}
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ConfirmPassword checks a sign-up password against its confirmation
func ConfirmPassword(password, confirm string) error {
	if password != confirm {
		return validation.New("confirmPassword", "does not match password")
	}
	return nil
}

type credentials struct {
	uid          string
	email        string
	passwordHash string
	resetHash    string
	resetExpires time.Time
}

func credentialsFromDocument(doc docstore.Document) credentials {
	return credentials{
		uid:          docstore.String(doc.Data, "uid"),
		email:        docstore.String(doc.Data, "email"),
		passwordHash: docstore.String(doc.Data, "passwordHash"),
		resetHash:    docstore.String(doc.Data, "resetHash"),
		resetExpires: docstore.Time(doc.Data, "resetExpires"),
	}
}

// SignUp creates credentials and a minimal profile, then signs the user in
func (s *Service) SignUp(ctx context.Context, email, password, username string) (*auth.Session, error) {
	email = NormalizeEmail(email)
	if err := s.validateEmail(email); err != nil {
		return nil, err
	}
	if err := s.validatePassword(password); err != nil {
		return nil, err
	}
	if err := validation.Required("username", username); err != nil {
		return nil, err
	}

	_, err := s.store.Get(ctx, CredentialsCollection, email)
	if err == nil {
		return nil, auth.NewError(auth.CodeEmailInUse, email)
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("error checking credentials: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	uid := uuid.New().String()
	err = s.store.Set(ctx, CredentialsCollection, email, map[string]interface{}{
		"uid":          uid,
		"email":        email,
		"passwordHash": string(hash),
		"createdAt":    docstore.ServerTimestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("error saving credentials: %w", err)
	}

	if err := s.profiles.CreateMinimal(ctx, uid, username); err != nil {
		if delErr := s.store.Delete(ctx, CredentialsCollection, email); delErr != nil {
			s.logger.Error("error removing credentials after failed sign-up", "email", email, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info("user signed up", "user", uid)
	return s.startSession(auth.User{ID: uid, Email: email})
}

// SignIn checks the password and issues a session
func (s *Service) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	creds, err := s.credentials(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.passwordHash), []byte(password)); err != nil {
		return nil, auth.NewError(auth.CodeWrongPassword, "")
	}
	return s.startSession(auth.User{ID: creds.uid, Email: creds.email})
}

// SignOut revokes the token
func (s *Service) SignOut(ctx context.Context, token string) error {
	user, err := s.tokens.ValidateToken(token)
	if err != nil {
		return err
	}
	if err := s.tokens.RevokeToken(token); err != nil {
		return err
	}
	s.notify(auth.StateChange{Event: auth.EventSignedOut, User: *user})
	return nil
}

// CurrentUser resolves a token. Tokens of deleted accounts are rejected.
func (s *Service) CurrentUser(ctx context.Context, token string) (*auth.User, error) {
	user, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	creds, err := s.credentials(ctx, user.Email)
	if auth.CodeOf(err) == auth.CodeUserNotFound {
		return nil, auth.NewError(auth.CodeInvalidToken, "account no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if creds.uid != user.ID {
		return nil, auth.NewError(auth.CodeInvalidToken, "account no longer exists")
	}
	return user, nil
}

// Reauthenticate confirms the password and replaces the session with one
// carrying a fresh login time
func (s *Service) Reauthenticate(ctx context.Context, token, password string) (*auth.Session, error) {
	user, err := s.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}

	creds, err := s.credentials(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.passwordHash), []byte(password)); err != nil {
		return nil, auth.NewError(auth.CodeWrongPassword, "")
	}

	session, err := s.startSession(*user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RevokeToken(token); err != nil {
		s.logger.Warn("error revoking replaced session", "user", user.ID, "error", err)
	}
	return session, nil
}

// DeleteAccount removes the credentials and profile. The session's login
// must be within the reauthentication window.
func (s *Service) DeleteAccount(ctx context.Context, token string) error {
	user, err := s.CurrentUser(ctx, token)
	if err != nil {
		return err
	}
	if s.now().Sub(user.SignedIn) > s.config.ReauthWindow {
		return auth.NewError(auth.CodeRequiresRecentLogin, "")
	}

	if err := s.store.Delete(ctx, CredentialsCollection, user.Email); err != nil {
		return fmt.Errorf("error deleting credentials: %w", err)
	}
	if err := s.profiles.Delete(ctx, user.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		s.logger.Error("credentials deleted but profile remains", "user", user.ID, "error", err)
	}
	if err := s.tokens.RevokeToken(token); err != nil {
		s.logger.Warn("error revoking session of deleted account", "user", user.ID, "error", err)
	}

	s.logger.Info("account deleted", "user", user.ID)
	s.notify(auth.StateChange{Event: auth.EventDeleted, User: *user})
	return nil
}

// ResetPassword issues a one-time reset token. There is no mail delivery;
// the token is written to the log.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if _, err := s.credentials(ctx, email); err != nil {
		return err
	}

	token := uuid.New().String()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("error hashing reset token: %w", err)
	}

	err = s.store.Update(ctx, CredentialsCollection, email, map[string]interface{}{
		"resetHash":    string(hash),
		"resetExpires": s.now().Add(resetTokenTTL),
	})
	if err != nil {
		return fmt.Errorf("error saving reset token: %w", err)
	}

	s.logger.Info("password reset requested", "email", email, "token", token)
	return nil
}

// CompleteReset sets a new password using a reset token. The token works once.
func (s *Service) CompleteReset(ctx context.Context, email, token, password string) error {
	email = NormalizeEmail(email)
	if err := s.validatePassword(password); err != nil {
		return err
	}

	creds, err := s.credentials(ctx, email)
	if err != nil {
		return err
	}
	if creds.resetHash == "" || s.now().After(creds.resetExpires) {
		return auth.NewError(auth.CodeInvalidToken, "no active reset")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.resetHash), []byte(token)); err != nil {
		return auth.NewError(auth.CodeInvalidToken, "reset token mismatch")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	err = s.store.Update(ctx, CredentialsCollection, email, map[string]interface{}{
		"passwordHash": string(hash),
		"resetHash":    "",
	})
	if err != nil {
		return fmt.Errorf("error saving password: %w", err)
	}
	return nil
}

// OnStateChange registers fn for sign-in, sign-out and deletion events
func (s *Service) OnStateChange(fn func(auth.StateChange)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) notify(change auth.StateChange) {
	s.mu.Lock()
	fns := make([]func(auth.StateChange), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (s *Service) startSession(user auth.User) (*auth.Session, error) {
	user.SignedIn = s.now().UTC().Truncate(time.Second)
	token, expiresAt, err := s.tokens.GenerateToken(user, s.config.TokenTTL)
	if err != nil {
		return nil, err
	}
	s.notify(auth.StateChange{Event: auth.EventSignedIn, User: user})
	return &auth.Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) credentials(ctx context.Context, email string) (credentials, error) {
	doc, err := s.store.Get(ctx, CredentialsCollection, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return credentials{}, auth.NewError(auth.CodeUserNotFound, "")
	}
	if err != nil {
		return credentials{}, fmt.Errorf("error reading credentials: %w", err)
	}
	return credentialsFromDocument(*doc), nil
}

func (s *Service) validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return auth.NewError(auth.CodeInvalidEmail, email)
	}
	return nil
}

func (s *Service) validatePassword(password string) error {
	if len(password) < s.config.MinPasswordLength {
		return auth.NewError(auth.CodeWeakPassword, fmt.Sprintf("at least %d characters", s.config.MinPasswordLength))
	}
	return nil
}
