package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/shivang-goliyan/CloudRadius-sub000/internal/model"
	"github.com/shivang-goliyan/CloudRadius-sub000/internal/repository"
	jwtutil "github.com/shivang-goliyan/CloudRadius-sub000/pkg/jwt"
)

const defaultAccessTokenTTL = 12 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrOperatorTaken      = errors.New("operator username already in use")
	ErrInvalidAuthInput   = errors.New("invalid auth input")
	ErrSigningKeyMissing  = errors.New("jwt signing key not configured")
)

type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Operator  *model.Operator `json:"operator"`
}

type AuthService struct {
	operatorRepo repository.OperatorRepository
	privateKey   *rsa.PrivateKey
	publicKey    *rsa.PublicKey
	tokenTTL     time.Duration
	logger       *zap.Logger
}

func NewAuthService(
	operatorRepo repository.OperatorRepository,
	privateKey *rsa.PrivateKey,
	publicKey *rsa.PublicKey,
	tokenTTL time.Duration,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultAccessTokenTTL
	}

	return &AuthService{
		operatorRepo: operatorRepo,
		privateKey:   privateKey,
		publicKey:    publicKey,
		tokenTTL:     tokenTTL,
		logger:       logger,
	}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if s.privateKey == nil {
		return nil, ErrSigningKeyMissing
	}

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	operator, err := s.operatorRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	tenantID := ""
	if operator.TenantID != nil {
		tenantID = operator.TenantID.String()
	}

	claims := jwtutil.NewClaims(operator.ID.String(), tenantID, string(operator.Role), s.tokenTTL)
	token, err := jwtutil.GenerateAccessToken(claims, s.privateKey)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		Operator:  operator,
	}, nil
}

func (s *AuthService) ParseToken(tokenStr string) (*jwtutil.Claims, error) {
	if s.publicKey == nil {
		return nil, ErrSigningKeyMissing
	}
	return jwtutil.ParseAccessToken(tokenStr, s.publicKey)
}

// CreateOperator registers a staff account. A nil tenantID makes a
// platform-level operator with access to every tenant.
func (s *AuthService) CreateOperator(ctx context.Context, username, password string, tenantID *uuid.UUID, role model.OperatorRole) (*model.Operator, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || len(password) < 8 {
		return nil, ErrInvalidAuthInput
	}
	switch role {
	case model.OperatorRoleAdmin, model.OperatorRoleStaff:
	default:
		return nil, ErrInvalidAuthInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return nil, err
	}

	operator := &model.Operator{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}

	if err := s.operatorRepo.Create(ctx, operator); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrOperatorTaken
		}
		return nil, err
	}

	return operator, nil
}
