package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies operator session tokens. Accounts live
// in the user store; a local cache avoids hitting it on every token check.
type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	accounts  map[string]operatorAccount
}

type operatorAccount struct {
	passwordHash string
	role         string
	active       bool
	createdAt    time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	m := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		accounts:  make(map[string]operatorAccount),
	}
	// Startup load; no request context exists yet.
	m.syncAccounts(context.Background())
	return m
}

func (m *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	m.syncAccounts(context.Background())

	account, ok := m.lookup(req.Username)
	if !ok || !verifyPassword(account.passwordHash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !account.active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(m.tokenTTL)
	token, err := m.sign(normalizeUsername(req.Username), account.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        account.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken validates a bearer token and returns the acting operator.
func (m *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Subject == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (m *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "onticket",
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *AuthManager) CreateOperator(req domain.OperatorCreateRequest) (domain.OperatorUser, error) {
	m.syncAccounts(context.Background())

	username := normalizeUsername(req.Username)
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleCashier
	}
	if err := validateOperatorRequest(username, req.Password, role); err != nil {
		return domain.OperatorUser{}, err
	}
	if _, exists := m.lookup(username); exists {
		return domain.OperatorUser{}, fmt.Errorf("username already exists")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.OperatorUser{}, fmt.Errorf("failed to hash password")
	}
	now := time.Now().UTC()
	if m.userStore != nil {
		err := m.userStore.CreateUser(context.Background(), domain.UserAccount{
			Username:  username,
			Password:  hash,
			Role:      role,
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.OperatorUser{}, err
		}
	}

	m.mu.Lock()
	m.accounts[username] = operatorAccount{passwordHash: hash, role: role, active: true, createdAt: now}
	m.mu.Unlock()

	return domain.OperatorUser{Username: username, Role: role, Active: true, CreatedAt: now}, nil
}

func (m *AuthManager) ListOperators() []domain.OperatorUser {
	m.syncAccounts(context.Background())

	m.mu.RLock()
	operators := make([]domain.OperatorUser, 0, len(m.accounts))
	for username, account := range m.accounts {
		operators = append(operators, domain.OperatorUser{
			Username:  username,
			Role:      account.role,
			Active:    account.active,
			CreatedAt: account.createdAt,
		})
	}
	m.mu.RUnlock()

	sort.Slice(operators, func(i, j int) bool { return operators[i].Username < operators[j].Username })
	return operators
}

func (m *AuthManager) lookup(username string) (operatorAccount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[normalizeUsername(username)]
	return account, ok
}

// syncAccounts pulls accounts from the user store into the cache. Plain
// text passwords left by hand-seeded rows are upgraded to bcrypt hashes
// and written back.
func (m *AuthManager) syncAccounts(ctx context.Context) {
	if m.userStore == nil {
		return
	}
	users, err := m.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		stored := user.Password
		if !isPasswordHash(stored) {
			if hashed, err := hashPassword(stored); err == nil {
				stored = hashed
				_ = m.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		m.accounts[username] = operatorAccount{
			passwordHash: stored,
			role:         user.Role,
			active:       user.Active,
			createdAt:    user.CreatedAt,
		}
	}
}

func validateOperatorRequest(username, password, role string) error {
	switch {
	case len(username) < 4:
		return fmt.Errorf("username must be at least 4 characters")
	case strings.ContainsAny(username, " \t\r\n"):
		return fmt.Errorf("username must not contain spaces")
	case len(strings.TrimSpace(password)) == 0 || len(password) < 6:
		return fmt.Errorf("password must be at least 6 characters")
	case role != domain.RoleAdmin && role != domain.RoleCashier:
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func verifyPassword(stored, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
