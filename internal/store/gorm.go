package store

import (
	"context"
	"errors"
	"time"

	"github.com/WIZARD3022/Crown-Fight/internal/models"
	"gorm.io/gorm"
)

// GormStore 基于 gorm/Postgres 的 Store 实现，每次调用带有界超时。
type GormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewGormStore(db *gorm.DB, timeout time.Duration) *GormStore {
	return &GormStore{db: db, timeout: timeout}
}

func (s *GormStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (s *GormStore) InsertUser(ctx context.Context, user *models.User) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ? OR email = ?", login, login).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) UpdateUser(ctx context.Context, username string, fields map[string]any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return translate(s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Updates(fields).Error)
}

func (s *GormStore) InsertRoom(ctx context.Context, room *models.Room) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return translate(s.db.WithContext(ctx).Create(room).Error)
}

func (s *GormStore) FindRoom(ctx context.Context, code string) (*models.Room, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var room models.Room
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&room).Error
	if err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

func (s *GormStore) FindActiveRooms(ctx context.Context) ([]models.Room, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var rooms []models.Room
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&rooms).Error; err != nil {
		return nil, translate(err)
	}
	return rooms, nil
}

func (s *GormStore) UpdateRoom(ctx context.Context, room *models.Room) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return translate(s.db.WithContext(ctx).Save(room).Error)
}

func (s *GormStore) DeleteRoom(ctx context.Context, code string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return translate(s.db.WithContext(ctx).Where("code = ?", code).Delete(&models.Room{}).Error)
}
