package service

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"contactbook/api/internal/config"
	"contactbook/api/internal/ids"
	"contactbook/api/internal/mail"
	"contactbook/api/internal/models"
	"contactbook/api/internal/repository"
	"contactbook/api/internal/security"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailNotConfirmed   = errors.New("email not confirmed")
	ErrEmailTaken          = errors.New("email already taken")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrUnauthenticated     = errors.New("could not validate credentials")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrVerification        = errors.New("verification error")
)

// UserRepository is the user persistence capability consumed by the
// authentication service.
type UserRepository interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByUsernameAndRefreshToken(ctx context.Context, username, token string) (models.User, error)
	ConfirmEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// RefreshTokenStore persists rotatable refresh token records.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec models.RefreshToken) (models.RefreshToken, error)
	Rotate(ctx context.Context, oldToken string, rec models.RefreshToken, userID string) (*models.RefreshToken, error)
}

// IdentityCache short-circuits token resolution for recently seen bearer
// tokens.
type IdentityCache interface {
	Get(ctx context.Context, token string) (*models.User, error)
	Set(ctx context.Context, token string, user models.User) error
}

type AuthService struct {
	users  UserRepository
	tokens RefreshTokenStore
	cache  IdentityCache
	codec  *security.TokenCodec
	mailer mail.Sender
	cfg    *config.AppConfig
	log    zerolog.Logger
}

func NewAuthService(
	users UserRepository,
	tokens RefreshTokenStore,
	cache IdentityCache,
	codec *security.TokenCodec,
	mailer mail.Sender,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		cache:  cache,
		codec:  codec,
		mailer: mailer,
		cfg:    cfg,
		log:    log,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates an unconfirmed user account and dispatches the
// confirmation email in the background. The user row is committed before
// the email is sent; a delivery failure leaves the account registered but
// uncontacted, recoverable via RequestConfirmationEmail.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	if _, err := s.users.GetByEmail(ctx, input.Email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	if _, err := s.users.GetByUsername(ctx, input.Username); err == nil {
		return models.User{}, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	avatar := gravatarURL(input.Email)
	user, err := s.users.Create(ctx, models.User{
		ID:           ids.New(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: passwordHash,
		Confirmed:    false,
		Role:         models.UserRoleUser,
		AvatarURL:    &avatar,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}

	s.dispatchEmail(user, "Confirm your email", mail.TemplateVerifyEmail)
	return user, nil
}

// TokenPair is the login/refresh response payload.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Login verifies credentials, requires a confirmed email, then issues an
// access token and a persisted refresh token.
func (s *AuthService) Login(ctx context.Context, username, password string) (TokenPair, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !user.Confirmed {
		return TokenPair{}, ErrEmailNotConfirmed
	}

	access, err := s.codec.Issue(user.Username, security.TokenPurposeAccess, s.cfg.Security.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.Issue(user.Username, security.TokenPurposeRefresh, s.cfg.Security.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}

	if _, err := s.tokens.Create(ctx, models.RefreshToken{
		ID:        ids.New(),
		Token:     refresh.Token,
		UserID:    user.ID,
		CreatedAt: refresh.IssuedAt,
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		TokenType:    "bearer",
	}, nil
}

// Resolve maps a presented bearer token to a user. Cache hits return
// without decoding the token or touching the user store; misses decode,
// look the user up and repopulate the cache. Cache errors degrade to a
// miss rather than failing the request.
func (s *AuthService) Resolve(ctx context.Context, token string) (models.User, error) {
	cached, err := s.cache.Get(ctx, token)
	if err != nil {
		s.log.Warn().Err(err).Msg("identity cache lookup failed")
	} else if cached != nil {
		return *cached, nil
	}

	claims, err := s.codec.Decode(token, security.TokenPurposeAccess)
	if err != nil {
		return models.User{}, ErrUnauthenticated
	}

	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUnauthenticated
		}
		return models.User{}, err
	}

	if err := s.cache.Set(ctx, token, user); err != nil {
		s.log.Warn().Err(err).Msg("identity cache populate failed")
	}
	return user, nil
}

// ResolveAdmin resolves the current user and requires the admin role.
func (s *AuthService) ResolveAdmin(ctx context.Context, token string) (models.User, error) {
	user, err := s.Resolve(ctx, token)
	if err != nil {
		return models.User{}, err
	}
	if err := Authorize(user, models.UserRoleAdmin); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Authorize is the pure role policy check, separated from token plumbing.
func Authorize(user models.User, required models.UserRole) error {
	if user.Role != required {
		return ErrForbidden
	}
	return nil
}

// Refresh exchanges a valid, still-stored refresh token for a new access
// token and rotates the stored record in place. Of two concurrent
// attempts with the same token exactly one wins; the loser's rotate
// matches no row and surfaces ErrInvalidRefreshToken. The response
// carries the rotated token, superseding the presented one.
func (s *AuthService) Refresh(ctx context.Context, oldToken string) (TokenPair, error) {
	claims, err := s.codec.Decode(oldToken, security.TokenPurposeRefresh)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByUsernameAndRefreshToken(ctx, claims.Subject, oldToken)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}

	access, err := s.codec.Issue(user.Username, security.TokenPurposeAccess, s.cfg.Security.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.Issue(user.Username, security.TokenPurposeRefresh, s.cfg.Security.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}

	rotated, err := s.tokens.Rotate(ctx, oldToken, models.RefreshToken{
		Token:     refresh.Token,
		CreatedAt: refresh.IssuedAt,
		ExpiresAt: refresh.ExpiresAt,
	}, user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if rotated == nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	return TokenPair{
		AccessToken:  access.Token,
		RefreshToken: rotated.Token,
		TokenType:    "bearer",
	}, nil
}

// ConfirmEmail marks the account behind an email token as confirmed.
// Confirming twice is idempotent.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) (string, error) {
	email, err := s.codec.DecodeEmailToken(token)
	if err != nil {
		return "", err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrVerification
		}
		return "", err
	}
	if user.Confirmed {
		return "Your email is already confirmed", nil
	}

	if err := s.users.ConfirmEmail(ctx, email); err != nil {
		return "", err
	}
	return "Email confirmed successfully", nil
}

// RequestConfirmationEmail re-sends the confirmation email for an
// unconfirmed account.
func (s *AuthService) RequestConfirmationEmail(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrVerification
		}
		return "", err
	}
	if user.Confirmed {
		return "Your email is already confirmed", nil
	}

	s.dispatchEmail(user, "Confirm your email", mail.TemplateVerifyEmail)
	return "Check your mailbox for confirmation email", nil
}

// RequestPasswordReset dispatches a reset link to a confirmed account.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrVerification
		}
		return "", err
	}
	if !user.Confirmed {
		return "", ErrEmailNotConfirmed
	}

	subject := fmt.Sprintf("Reset password request for user %s", user.Username)
	s.dispatchEmail(user, subject, mail.TemplateResetPassword)
	return "Check your mailbox for reset password email", nil
}

// VerifyEmailToken resolves an email token to its account, used by the
// reset form before showing it.
func (s *AuthService) VerifyEmailToken(ctx context.Context, token string) (models.User, error) {
	email, err := s.codec.DecodeEmailToken(token)
	if err != nil {
		return models.User{}, err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrVerification
		}
		return models.User{}, err
	}
	return user, nil
}

// ResetPassword applies a new password for the account behind an email
// token.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	email, err := s.codec.DecodeEmailToken(token)
	if err != nil {
		return "", err
	}

	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrVerification
		}
		return "", err
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return "", err
	}
	if err := s.users.UpdatePassword(ctx, email, passwordHash); err != nil {
		return "", err
	}
	return "Password has been reset successfully", nil
}

// dispatchEmail sends in a detached goroutine with its own deadline, so
// delivery neither blocks nor fails the HTTP response. Errors are logged
// only.
func (s *AuthService) dispatchEmail(user models.User, subject, template string) {
	token, err := s.codec.IssueEmailToken(user.Email)
	if err != nil {
		s.log.Error().Err(err).Str("email", user.Email).Msg("issue email token failed")
		return
	}

	msg := mail.Message{
		To:       user.Email,
		Subject:  subject,
		Template: template,
		Username: user.Username,
		Token:    token,
		Host:     s.cfg.HTTP.PublicURL,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.mailer.Send(ctx, msg); err != nil {
			s.log.Error().Err(err).Str("email", msg.To).Str("template", template).Msg("send mail failed")
		}
	}()
}

func gravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(strings.ToLower(email))))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?d=identicon", sum)
}
