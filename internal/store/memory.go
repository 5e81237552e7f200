package store

import (
	"context"
	"sync"
	"time"

	"github.com/WIZARD3022/Crown-Fight/internal/models"
)

// MemoryStore 进程内 Store 实现，测试用。行为与 GormStore 对齐：
// 唯一约束返回 ErrDuplicate，缺失返回 ErrNotFound，读写均为深拷贝。
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]*models.User // username -> user
	rooms  map[string]*models.Room // code -> room
	nextID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*models.User),
		rooms: make(map[string]*models.Room),
	}
}

func copyUser(u *models.User) *models.User {
	out := *u
	return &out
}

func copyRoom(r *models.Room) *models.Room {
	out := *r
	out.Players = append([]string(nil), r.Players...)
	out.PlayerAnswers = make(map[string][]string, len(r.PlayerAnswers))
	for k, v := range r.PlayerAnswers {
		out.PlayerAnswers[k] = append([]string(nil), v...)
	}
	out.PlayerRoles = make(map[string]string, len(r.PlayerRoles))
	for k, v := range r.PlayerRoles {
		out.PlayerRoles[k] = v
	}
	out.PlayerCharacters = make(map[string]string, len(r.PlayerCharacters))
	for k, v := range r.PlayerCharacters {
		out.PlayerCharacters[k] = v
	}
	out.CharacterLocked = make(map[string]bool, len(r.CharacterLocked))
	for k, v := range r.CharacterLocked {
		out.CharacterLocked[k] = v
	}
	return &out
}

func (s *MemoryStore) InsertUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return ErrDuplicate
		}
	}
	s.nextID++
	user.ID = s.nextID
	s.users[user.Username] = copyUser(user)
	return nil
}

func (s *MemoryStore) FindUserByLogin(_ context.Context, login string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == login || u.Email == login {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateUser(_ context.Context, username string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "last_login":
			switch t := v.(type) {
			case time.Time:
				u.LastLogin = &t
			case *time.Time:
				u.LastLogin = t
			}
		case "last_room":
			if v == nil {
				u.LastRoom = nil
			} else {
				room := v.(string)
				u.LastRoom = &room
			}
		case "role":
			role := v.(string)
			u.Role = &role
		case "character":
			ch := v.(string)
			u.Character = &ch
		}
	}
	return nil
}

func (s *MemoryStore) InsertRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return ErrDuplicate
	}
	s.nextID++
	room.ID = s.nextID
	s.rooms[room.Code] = copyRoom(room)
	return nil
}

func (s *MemoryStore) FindRoom(_ context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRoom(r), nil
}

func (s *MemoryStore) FindActiveRooms(_ context.Context) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.IsActive {
			out = append(out, *copyRoom(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; !ok {
		return ErrNotFound
	}
	s.rooms[room.Code] = copyRoom(room)
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}
