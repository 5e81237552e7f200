package service

import (
	"context"
	"errors"
	"time"

	"github.com/WIZARD3022/Crown-Fight/internal/auth"
	"github.com/WIZARD3022/Crown-Fight/internal/models"
	"github.com/WIZARD3022/Crown-Fight/internal/store"
)

// UserService 封装账号相关的业务逻辑。
type UserService struct {
	store store.Store
}

func NewUserService(st store.Store) *UserService {
	return &UserService{store: st}
}

// SignUp 注册新账号，唯一约束由存储层兜底。
func (s *UserService) SignUp(ctx context.Context, username, email, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user := models.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.store.InsertUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrUserExists
		}
		return wrapStoreErr(err)
	}
	return nil
}

// SignIn 按用户名或邮箱校验密码，成功后更新最近登录时间。
func (s *UserService) SignIn(ctx context.Context, login, password string) (*models.User, error) {
	user, err := s.store.FindUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, wrapStoreErr(err)
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if err := s.store.UpdateUser(ctx, user.Username, map[string]any{"last_login": now}); err != nil {
		return nil, wrapStoreErr(err)
	}
	user.LastLogin = &now
	return user, nil
}

// Exists 检查用户名是否存在，供令牌重连时校验。
func (s *UserService) Exists(ctx context.Context, username string) bool {
	user, err := s.store.FindUserByLogin(ctx, username)
	return err == nil && user.Username == username
}

// wrapStoreErr 把存储层故障统一折叠为 ErrStoreUnavailable，
// 不向客户端泄漏驱动细节。
func wrapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStoreUnavailable
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrDuplicate) {
		return err
	}
	return ErrStoreUnavailable
}
