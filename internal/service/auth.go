package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/soberly/recovery/internal/model"
	"github.com/soberly/recovery/internal/repository"
	"github.com/soberly/recovery/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrPasswordlessLogin  = errors.New("this account signs in with Google")
)

// Session is what a successful sign-in hands back to the client.
type Session struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int64       `json:"expiresIn"`
	User         *model.User `json:"user"`
}

type AuthService struct {
	userRepository      repository.UserRepository
	tokenRepository     repository.TokenRepository
	subscriptionService *SubscriptionService
	emailService        *EmailService
	jwtSecret           string
	jwtExpiry           time.Duration
	refreshExpiry       time.Duration
}

func NewAuthService(
	userRepository repository.UserRepository,
	tokenRepository repository.TokenRepository,
	subscriptionService *SubscriptionService,
	emailService *EmailService,
	jwtSecret string,
	jwtExpiry time.Duration,
	refreshExpiry time.Duration,
) *AuthService {
	return &AuthService{
		userRepository:      userRepository,
		tokenRepository:     tokenRepository,
		subscriptionService: subscriptionService,
		emailService:        emailService,
		jwtSecret:           jwtSecret,
		jwtExpiry:           jwtExpiry,
		refreshExpiry:       refreshExpiry,
	}
}

// Register creates a password account. The account's creation time anchors
// the first milestone.
func (s *AuthService) Register(username, email, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))

	err := validation.ValidateUsername(username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	err = validation.ValidateEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}
	err = validation.ValidatePassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: &hash,
		CreatedAt:    time.Now().UTC(),
	}
	err = s.createUser(user)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID)
	return s.newSession(user)
}

func (s *AuthService) Login(email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepository.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		return nil, ErrPasswordlessLogin
	}

	err = s.ComparePassword(password, *user.PasswordHash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.newSession(user)
}

// Refresh exchanges a refresh token for a new session. Each refresh token
// works once.
func (s *AuthService) Refresh(refreshToken string) (*Session, error) {
	token, err := s.tokenRepository.Consume(refreshToken, model.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	user, err := s.userRepository.ByID(token.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return s.newSession(user)
}

// Logout revokes every outstanding refresh token of the user. Access tokens
// stay valid until they expire.
func (s *AuthService) Logout(userID string) error {
	err := s.tokenRepository.RevokeAll(userID, model.TokenTypeRefresh)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

// PruneTokens deletes refresh tokens that were used or expired longer ago
// than olderThan.
func (s *AuthService) PruneTokens(olderThan time.Duration) (int64, error) {
	n, err := s.tokenRepository.Prune(olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune tokens: %w", err)
	}
	return n, nil
}

// AuthenticateGoogle signs in a Google account, linking it to an existing
// user with the same email or creating a new one.
func (s *AuthService) AuthenticateGoogle(googleID, email string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	user, err := s.userRepository.ByGoogleID(googleID)
	if err == nil {
		return s.newSession(user)
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to lookup user: %w", err)
	}

	user, err = s.userRepository.ByEmail(email)
	switch {
	case err == nil:
		user.GoogleID = &googleID
		err = s.userRepository.Update(user)
		if err != nil {
			return nil, fmt.Errorf("failed to link google account: %w", err)
		}
		slog.Info("google account linked", "user_id", user.ID)
	case errors.Is(err, repository.ErrUserNotFound):
		user = &model.User{
			ID:        uuid.New().String(),
			Username:  usernameFromEmail(email),
			Email:     email,
			GoogleID:  &googleID,
			CreatedAt: time.Now().UTC(),
		}
		err = s.createUser(user)
		if err != nil {
			return nil, err
		}
		slog.Info("new google user created", "user_id", user.ID)
	default:
		return nil, fmt.Errorf("failed to lookup user: %w", err)
	}

	return s.newSession(user)
}

func (s *AuthService) createUser(user *model.User) error {
	err := s.userRepository.Create(user)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		return ErrEmailAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	err = s.subscriptionService.CreateFreeSubscription(user.ID)
	if err != nil {
		slog.Warn("failed to create free subscription", "error", err, "user_id", user.ID)
	}

	err = s.emailService.SendWelcomeEmail(user)
	if err != nil {
		slog.Warn("failed to send welcome email", "error", err, "user_id", user.ID)
	}
	return nil
}

func (s *AuthService) newSession(user *model.User) (*Session, error) {
	access, err := s.GenerateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, err := s.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	err = s.tokenRepository.Create(user.ID, model.TokenTypeRefresh, refresh, time.Now().Add(s.refreshExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwtExpiry.Seconds()),
		User:         user,
	}, nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *AuthService) ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func (s *AuthService) GenerateToken() (string, error) {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (s *AuthService) GenerateJWT(user *model.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().Add(s.jwtExpiry).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyJWT validates an access token and returns the user ID it was issued for.
func (s *AuthService) VerifyJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// usernameFromEmail derives a valid username from the local part of an email.
func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	var b strings.Builder
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > 30 {
		name = name[:30]
	}
	if validation.ValidateUsername(name) != nil {
		name = "user-" + uuid.New().String()[:8]
	}
	return name
}
