package service

import (
	"context"
	"errors"
	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/model"
	"go-direct-chat/pkg/logger"
	"go-direct-chat/pkg/utils"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// UserRepository 认证服务需要的用户存储
// repository.UserRepository实现
type UserRepository interface {
	interfaces.UserDirectory
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// 处理认证相关业务逻辑
type AuthService struct {
	userRepo UserRepository
}

// 创建一个新的认证服务实例
func NewAuthService(userRepo UserRepository) *AuthService {
	return &AuthService{
		userRepo: userRepo,
	}
}

// 用户注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=30"`
	FullName string `json:"full_name" binding:"max=100"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"required,email"`
}

// 用户登陆请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// 更新资料请求
type UpdateProfileRequest struct {
	FullName string `json:"full_name" binding:"max=100"`
	Avatar   string `json:"avatar" binding:"omitempty,url,max=512"`
}

// 注册新用户
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	// 检查用户名是否已存在
	existingUser, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if existingUser != nil {
		return nil, ErrUsernameTaken
	}

	// 检查邮箱是否已存在
	existingEmail, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existingEmail != nil {
		return nil, ErrEmailTaken
	}

	// 加密密码
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username: req.Username,
		FullName: strings.TrimSpace(req.FullName),
		Password: string(hashedPassword),
		Email:    req.Email,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	logger.L.Info("User registered", zap.Uint("userID", user.ID), zap.String("username", user.Username))
	return user, nil
}

// 用户登陆
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (string, *model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	// 生成JWT令牌
	token, err := utils.GenerateToken(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// 更新用户资料
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, req UpdateProfileRequest) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrUserNotFound
	}

	if name := strings.TrimSpace(req.FullName); name != "" {
		user.FullName = name
	}
	if req.Avatar != "" {
		user.Avatar = req.Avatar
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// 获取当前用户
func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrUserNotFound
	}
	return user, nil
}

// Authenticate resolves handshake credentials to a user id. Every failure is an *apperr.AuthError.
func (s *AuthService) Authenticate(ctx context.Context, creds interfaces.Credentials) (uint, error) {
	if creds.Token == "" {
		return 0, &apperr.AuthError{Err: apperr.ErrUnauthenticated}
	}

	claims, err := utils.ParseToken(creds.Token)
	if err != nil {
		return 0, &apperr.AuthError{Err: err}
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return 0, &apperr.AuthError{Err: err}
	}
	if user == nil {
		return 0, &apperr.AuthError{Err: apperr.ErrUserNotFound}
	}
	return user.ID, nil
}
