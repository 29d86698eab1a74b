package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
)

// Service handles principal registration and token verification.
type Service struct {
	repo        Repository
	jwtSecret   []byte
	idGenerator func() string
}

// LoginResult bundles the token and account returned after a successful login.
type LoginResult struct {
	Token   string
	Account Account
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:        repo,
		jwtSecret:   []byte(jwtSecret),
		idGenerator: func() string { return uuid.NewString() },
	}
}

// WithIDGenerator overrides principal id generation for tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Register creates a new principal account with the member role.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Account, error) {
	if len(req.Password) < 8 {
		return Account{}, ErrWeakPassword
	}
	if req.Email == "" || req.DisplayName == "" {
		return Account{}, fmt.Errorf("auth: email and display_name are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("auth: hash password: %w", err)
	}

	return s.repo.CreateAccount(ctx, Account{
		ID:           s.idGenerator(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(passwordHash),
		Role:         RoleMember,
	})
}

// Login authenticates an account and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	acct, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(acct.ID, acct.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{Token: token, Account: acct}, nil
}

// GetByID retrieves account information by principal id.
func (s *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

// VerifyToken validates a JWT token and returns the principal id and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("auth: invalid token")
	}

	accountID, ok := claims["account_id"].(string)
	if !ok {
		return "", "", fmt.Errorf("auth: invalid account_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return "", "", fmt.Errorf("auth: invalid role in token")
	}
	role := Role(roleStr)
	if role != RoleMember && role != RoleAdmin {
		return "", "", fmt.Errorf("auth: invalid role %q in token", roleStr)
	}
	return accountID, role, nil
}

func (s *Service) generateToken(accountID string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"account_id": accountID,
		"role":       role,
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
		"iat":        time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
