package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:       "alice@example.com",
		Password:    "supersafe",
		DisplayName: "Alice",
	}

	ctx := context.Background()
	acct, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if acct.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, acct.Email)
	}
	if acct.Role != RoleMember {
		t.Fatalf("register: expected default role %s got %s", RoleMember, acct.Role)
	}
	if acct.ID == "" {
		t.Fatal("register: expected generated principal id")
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}

	principal, role, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if principal != acct.ID {
		t.Fatalf("verify token: expected %q got %q", acct.ID, principal)
	}
	if role != RoleMember {
		t.Fatalf("verify token: expected role %s got %s", RoleMember, role)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "alice@example.com",
		Password:    "short",
		DisplayName: "Alice",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "",
		Password:    "strongpassword",
		DisplayName: "",
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:       "alice@example.com",
		Password:    "strongpassword",
		DisplayName: "Alice",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

type fakeRepository struct {
	byEmail map[string]Account
	byID    map[string]Account
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail: make(map[string]Account),
		byID:    make(map[string]Account),
	}
}

func (f *fakeRepository) CreateAccount(ctx context.Context, acct Account) (Account, error) {
	if _, exists := f.byEmail[strings.ToLower(acct.Email)]; exists {
		return Account{}, ErrDuplicateEmail
	}
	acct.CreatedAt = time.Now().UTC()
	f.byEmail[strings.ToLower(acct.Email)] = acct
	f.byID[acct.ID] = acct
	return acct, nil
}

func (f *fakeRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	acct, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id string) (Account, error) {
	acct, ok := f.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}
