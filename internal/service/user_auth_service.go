package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/threadposts/internal/cache"
	"github.com/threadposts/internal/config"
	"github.com/threadposts/internal/constants"
	"github.com/threadposts/internal/logger"
	"github.com/threadposts/internal/models"
	"github.com/threadposts/internal/repository"

	"github.com/golang-jwt/jwt/v5"
)

// 身份解析重试参数。只对瞬时错误重试，其余错误立即返回。
const (
	resolveUserMaxAttempts    = 3
	resolveUserInitialBackoff = 100 * time.Millisecond
)

var transientErrorHints = []string{
	"connection refused",
	"i/o timeout",
	"temporary failure",
	"connection reset",
}

// UserAuthService 用户身份服务。
// 用户由托管身份服务签发 JWT，本服务负责校验 token 并维护本地用户投影。
type UserAuthService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
}

// NewUserAuthService 创建用户身份服务
func NewUserAuthService(cfg *config.Config, userRepo repository.UserRepository) *UserAuthService {
	return &UserAuthService{
		cfg:      cfg,
		userRepo: userRepo,
	}
}

// UserJWTClaims 用户 JWT 声明
type UserJWTClaims struct {
	UserID       uint   `json:"user_id"`
	Email        string `json:"email"`
	TokenVersion uint64 `json:"token_version"`
	jwt.RegisteredClaims
}

// GenerateUserJWT 生成用户 JWT Token（测试与本地联调使用，线上由身份服务签发）
func (s *UserAuthService) GenerateUserJWT(user *models.User, expireHours int) (string, time.Time, error) {
	resolvedHours := expireHours
	if resolvedHours <= 0 {
		resolvedHours = resolveUserJWTExpireHours(s.cfg.UserJWT)
	}
	expiresAt := time.Now().Add(time.Duration(resolvedHours) * time.Hour)
	claims := UserJWTClaims{
		UserID:       user.ID,
		Email:        user.Email,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.UserJWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseUserJWT 解析用户 JWT Token
func (s *UserAuthService) ParseUserJWT(tokenString string) (*UserJWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &UserJWTClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.UserJWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*UserJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// ResolveUser 校验用户 token 并返回本地用户投影。
// 投影缺失时按 claims 补建；查询遇到瞬时错误时有限重试。
func (s *UserAuthService) ResolveUser(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.ParseUserJWT(tokenString)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidCredentials
	}

	user, err := s.getUserWithRetry(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.createProjection(claims)
		if err != nil {
			return nil, err
		}
	}

	if strings.ToLower(user.Status) != constants.UserStatusActive {
		return nil, ErrUserDisabled
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, ErrInvalidCredentials
	}
	if user.TokenInvalidBefore != nil && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(*user.TokenInvalidBefore) {
		return nil, ErrInvalidCredentials
	}

	_ = cache.SetUserAuthState(ctx, cache.BuildUserAuthState(user))
	return user, nil
}

// GetUserByID 获取用户信息
func (s *UserAuthService) GetUserByID(id uint) (*models.User, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *UserAuthService) GetUserByEmail(email string) (*models.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.userRepo.GetByEmail(normalized)
}

func (s *UserAuthService) getUserWithRetry(ctx context.Context, userID uint) (*models.User, error) {
	backoff := resolveUserInitialBackoff
	var lastErr error
	for attempt := 1; attempt <= resolveUserMaxAttempts; attempt++ {
		user, err := s.userRepo.GetByID(userID)
		if err == nil {
			return user, nil
		}
		if !isTransientError(err) {
			return nil, err
		}
		lastErr = err
		if attempt == resolveUserMaxAttempts {
			break
		}
		logger.Warnw("resolve_user_transient_retry", "user_id", userID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (s *UserAuthService) createProjection(claims *UserJWTClaims) (*models.User, error) {
	normalized, err := normalizeEmail(claims.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	now := time.Now()
	user := &models.User{
		ID:           claims.UserID,
		Email:        normalized,
		DisplayName:  resolveDisplayNameFromEmail(normalized),
		Status:       constants.UserStatusActive,
		TokenVersion: claims.TokenVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(user); err != nil {
		// 并发补建时读回已有投影
		if isUniqueViolation(err) {
			existing, getErr := s.userRepo.GetByID(claims.UserID)
			if getErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	logger.Infow("user_projection_created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, hint := range transientErrorHints {
		if strings.Contains(message, hint) {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(normalized); err != nil {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

func resolveDisplayNameFromEmail(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) == 2 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}

func resolveUserJWTExpireHours(cfg config.JWTConfig) int {
	if cfg.ExpireHours <= 0 {
		return 24
	}
	return cfg.ExpireHours
}
