package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenLogoBridge/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Permission string

const (
	PermOperator   Permission = "operator"
	PermTechnician Permission = "technician"
	PermAdmin      Permission = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
)

const (
	maxFailedLoginAttempts = 5
	accountLockDuration    = 15 * time.Minute
)

type user struct {
	id           uuid.UUID
	username     string
	passwordHash string
	role         string
}

type loginState struct {
	failed      int
	lockedUntil time.Time
}

// AuthService authenticates the users listed in the configuration.
type AuthService struct {
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	users          map[string]user
	logger         *zap.Logger

	mu     sync.Mutex
	logins map[string]*loginState
}

func NewAuthService(cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	users := make(map[string]user, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = user{
			id:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(u.Username)),
			username:     u.Username,
			passwordHash: u.PasswordHash,
			role:         u.Role,
		}
	}

	if !cfg.IsProductionReady() {
		logger.Warn("JWT secret is not production ready", zap.String("env", cfg.JWTSecretEnv))
	}

	return &AuthService{
		jwtHandler:     NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL),
		passwordHasher: NewPasswordHasher(cfg.Argon2),
		users:          users,
		logger:         logger,
		logins:         make(map[string]*loginState),
	}
}

// LoginUser authenticates a user and returns an access token
func (a *AuthService) LoginUser(username, password, ipAddress string) (string, error) {
	if err := a.checkLocked(username); err != nil {
		return "", err
	}

	u, ok := a.users[username]
	if !ok {
		a.logger.Warn("Login failed", zap.String("username", username), zap.String("ip", ipAddress), zap.String("reason", "user not found"))
		return "", ErrInvalidCredentials
	}

	valid, err := a.passwordHasher.VerifyPassword(password, u.passwordHash)
	if err != nil || !valid {
		a.recordFailure(username)
		a.logger.Warn("Login failed", zap.String("username", username), zap.String("ip", ipAddress), zap.String("reason", "invalid password"))
		return "", ErrInvalidCredentials
	}

	a.mu.Lock()
	delete(a.logins, username)
	a.mu.Unlock()

	if a.passwordHasher.NeedsRehash(u.passwordHash) {
		a.logger.Warn("Password hash does not match configured argon2 cost, regenerate with hash-password",
			zap.String("username", username))
	}

	token, err := a.jwtHandler.GenerateAccessToken(u.id, u.username, u.role)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}

	a.logger.Info("User logged in", zap.String("username", username), zap.String("ip", ipAddress))
	return token, nil
}

// ValidateToken validates a JWT and returns the permissions of its role
func (a *AuthService) ValidateToken(token string) (*JWTClaims, []Permission, error) {
	claims, err := a.jwtHandler.ValidateAccessToken(token)
	if err != nil {
		return nil, nil, err
	}
	return claims, roleToPermissions(claims.Role), nil
}

func (a *AuthService) AccessTokenTTL() time.Duration {
	return a.jwtHandler.AccessTokenTTL()
}

func (a *AuthService) checkLocked(username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.logins[username]
	if ok && time.Now().Before(state.lockedUntil) {
		return fmt.Errorf("%w until %s", ErrAccountLocked, state.lockedUntil.Format(time.RFC3339))
	}
	return nil
}

func (a *AuthService) recordFailure(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.logins[username]
	if !ok {
		state = &loginState{}
		a.logins[username] = state
	}
	state.failed++
	if state.failed >= maxFailedLoginAttempts {
		state.lockedUntil = time.Now().Add(accountLockDuration)
		state.failed = 0
	}
}

func roleToPermissions(role string) []Permission {
	switch role {
	case "admin":
		return []Permission{PermOperator, PermTechnician, PermAdmin}
	case "technician":
		return []Permission{PermOperator, PermTechnician}
	default:
		return []Permission{PermOperator}
	}
}
