package models

import "time"

// User 账号文档，用户名和邮箱全局唯一。
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:254;not null"`
	PasswordHash string `gorm:"not null"`
	LastLogin    *time.Time
	LastRoom     *string `gorm:"size:6"`
	Role         *string `gorm:"size:128"`
	Character    *string `gorm:"size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Room 房间文档。成员列表与各玩家子状态整体序列化为 JSON 列，
// 每次写入都在房间级锁内进行，整文档保存即可保证原子性。
type Room struct {
	ID               uint                `gorm:"primaryKey"`
	Code             string              `gorm:"uniqueIndex;size:6;not null"`
	Creator          string              `gorm:"size:64;not null"`
	Players          []string            `gorm:"serializer:json;not null"`
	PlayerAnswers    map[string][]string `gorm:"serializer:json"`
	PlayerRoles      map[string]string   `gorm:"serializer:json"`
	PlayerCharacters map[string]string   `gorm:"serializer:json"`
	CharacterLocked  map[string]bool     `gorm:"serializer:json"`
	IsActive         bool                `gorm:"not null;default:true"`
	MaxPlayers       int                 `gorm:"not null"`
	GameStarted      bool                `gorm:"not null;default:false"`
	GameFinished     bool                `gorm:"not null;default:false"`
	CurrentQuestion  int                 `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
