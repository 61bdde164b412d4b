package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/JavierCodely/onticket-app-sub000/internal/domain"
)

type fakeUserStore struct {
	users map[string]domain.UserAccount
}

func newFakeUserStore(users ...domain.UserAccount) *fakeUserStore {
	s := &fakeUserStore{users: map[string]domain.UserAccount{}}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *fakeUserStore) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.users[user.Username] = user
	return nil
}

func (s *fakeUserStore) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeUserStore) UpdateUserPassword(_ context.Context, username string, password string) error {
	u := s.users[username]
	u.Password = password
	s.users[username] = u
	return nil
}

func testSecret() string { return "0123456789abcdef0123456789abcdef" }

func TestLoginAndTokenRoundtrip(t *testing.T) {
	hash, err := hashPassword("hunter2-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := newFakeUserStore(domain.UserAccount{
		Username: "admin", Password: hash, Role: domain.RoleAdmin, Active: true, CreatedAt: time.Now().UTC(),
	})
	auth := NewAuthManager(testSecret(), time.Hour, store)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "hunter2-secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleAdmin || resp.AccessToken == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsBadCredentialsAndInactive(t *testing.T) {
	hash, _ := hashPassword("correct-password")
	store := newFakeUserStore(
		domain.UserAccount{Username: "cashier", Password: hash, Role: domain.RoleCashier, Active: true},
		domain.UserAccount{Username: "former", Password: hash, Role: domain.RoleCashier, Active: false},
	)
	auth := NewAuthManager(testSecret(), time.Hour, store)

	if _, err := auth.Login(domain.LoginRequest{Username: "cashier", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "correct-password"}); err == nil {
		t.Fatalf("expected unknown user to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "former", Password: "correct-password"}); err == nil {
		t.Fatalf("expected inactive account to fail")
	}
}

func TestLegacyPlaintextPasswordsUpgraded(t *testing.T) {
	store := newFakeUserStore(domain.UserAccount{
		Username: "cashier", Password: "plaintext-pw", Role: domain.RoleCashier, Active: true,
	})
	auth := NewAuthManager(testSecret(), time.Hour, store)

	if _, err := auth.Login(domain.LoginRequest{Username: "cashier", Password: "plaintext-pw"}); err != nil {
		t.Fatalf("login with upgraded password: %v", err)
	}
	if !isPasswordHash(store.users["cashier"].Password) {
		t.Fatalf("expected stored password to be hashed, got %q", store.users["cashier"].Password)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	auth := NewAuthManager(testSecret(), time.Hour, nil)
	other := NewAuthManager("another-secret-another-secret-xx", time.Hour, nil)

	token, err := other.sign("admin", domain.RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected foreign token to be rejected")
	}
}

func TestCreateOperatorValidation(t *testing.T) {
	auth := NewAuthManager(testSecret(), time.Hour, newFakeUserStore())

	cases := []domain.OperatorCreateRequest{
		{Username: "ab", Password: "long-enough"},
		{Username: "valid-user", Password: "short"},
		{Username: "has space", Password: "long-enough"},
		{Username: "valid-user", Password: "long-enough", Role: "superuser"},
	}
	for _, req := range cases {
		if _, err := auth.CreateOperator(req); err == nil {
			t.Fatalf("expected rejection for %+v", req)
		}
	}

	operator, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "barstaff", Password: "long-enough"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if operator.Role != domain.RoleCashier || !operator.Active {
		t.Fatalf("unexpected operator: %+v", operator)
	}

	if _, err := auth.CreateOperator(domain.OperatorCreateRequest{Username: "barstaff", Password: "long-enough"}); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}

	found := false
	for _, op := range auth.ListOperators() {
		if op.Username == "barstaff" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new operator in listing")
	}
}
