package store

import (
	"context"
	"errors"

	"github.com/WIZARD3022/Crown-Fight/internal/models"
)

// 存储层通用错误，service 层用 errors.Is 识别后映射为业务错误。
var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

// Store 是核心依赖的文档存储窄接口。所有实现都要保证：
// 用户名、邮箱、房间码的唯一约束，以及每次调用的有界超时。
type Store interface {
	InsertUser(ctx context.Context, user *models.User) error
	// FindUserByLogin 按用户名或邮箱查找。
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
	// UpdateUser 对用户文档做部分字段更新，键为列名。
	UpdateUser(ctx context.Context, username string, fields map[string]any) error

	InsertRoom(ctx context.Context, room *models.Room) error
	FindRoom(ctx context.Context, code string) (*models.Room, error)
	FindActiveRooms(ctx context.Context) ([]models.Room, error)
	// UpdateRoom 整文档保存，调用方持有该房间的互斥锁。
	UpdateRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, code string) error
}
