package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"swarna/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: RoleAdmin, Active: true, CreatedAt: time.Now().UTC()},
		},
	}

	manager := NewAuthManager(testSecret, time.Hour, store, nil)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if store.updates != 1 {
		t.Fatalf("expected one password upgrade, got %d", store.updates)
	}
	if got := store.users["admin"].Password; !strings.HasPrefix(got, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", got)
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{}
	manager := NewAuthManager(testSecret, time.Hour, store, nil)

	user, err := manager.CreateUser(context.Background(), domain.StaffCreateRequest{Username: "Counter1", Password: "secret99"}, RoleStaff)
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if user.Username != "counter1" || user.Role != RoleStaff || user.Password != "" {
		t.Fatalf("unexpected account %+v", user)
	}
	if stored := store.users["counter1"].Password; !isPasswordHash(stored) {
		t.Fatalf("expected stored bcrypt hash, got %q", stored)
	}

	if _, err := manager.CreateUser(context.Background(), domain.StaffCreateRequest{Username: "counter1", Password: "secret99"}, RoleStaff); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
	if _, err := manager.CreateUser(context.Background(), domain.StaffCreateRequest{Username: "x", Password: "secret99"}, RoleStaff); err == nil {
		t.Fatalf("expected short username to be rejected")
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "counter1", Password: "secret99"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "counter1" || actor.Role != RoleStaff {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	store := &userStoreStub{}
	manager := NewAuthManager(testSecret, time.Hour, store, nil)

	for i := 0; i < 2; i++ {
		if err := manager.EnsureAdmin(context.Background(), "owner", "owner-pass"); err != nil {
			t.Fatalf("ensure admin attempt %d: %v", i+1, err)
		}
	}
	if len(store.users) != 1 || store.users["owner"].Role != RoleAdmin {
		t.Fatalf("expected a single admin account, got %+v", store.users)
	}
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour, nil, nil)

	if _, err := manager.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}

	other := NewAuthManager("another-secret-another-secret-xx", time.Hour, nil, nil)
	token, err := other.sign("admin", RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired, err := manager.sign("admin", RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	}
	foreign, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign foreign: %v", err)
	}
	if _, err := manager.ParseToken(foreign); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}
}
