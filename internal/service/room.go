package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/WIZARD3022/Crown-Fight/internal/metrics"
	"github.com/WIZARD3022/Crown-Fight/internal/models"
	"github.com/WIZARD3022/Crown-Fight/internal/quiz"
	"github.com/WIZARD3022/Crown-Fight/internal/store"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RoomService 房间生命周期的权威状态机。所有对同一房间的变更
// 都在该房间的互斥锁内串行执行；不同房间完全并行。
type RoomService struct {
	store    store.Store
	capacity int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	rooms map[string]*models.Room // 内存镜像，广播时免查库
}

func NewRoomService(st store.Store, capacity int) *RoomService {
	if capacity <= 0 {
		capacity = 4
	}
	return &RoomService{
		store:    st,
		capacity: capacity,
		locks:    make(map[string]*sync.Mutex),
		rooms:    make(map[string]*models.Room),
	}
}

// RoomSnapshot 对外输出的房间数据，字段名即线上协议字段。
type RoomSnapshot struct {
	RoomID           string              `json:"room_id"`
	Creator          string              `json:"creator"`
	Players          []string            `json:"players"`
	PlayerCharacters map[string]string   `json:"player_characters"`
	PlayerAnswers    map[string][]string `json:"player_answers"`
	PlayerRoles      map[string]string   `json:"player_roles"`
	CharacterLocked  map[string]bool     `json:"character_locked"`
	IsActive         bool                `json:"is_active"`
	CreatedAt        time.Time           `json:"created_at"`
	MaxPlayers       int                 `json:"max_players"`
	GameStarted      bool                `json:"game_started"`
	GameFinished     bool                `json:"game_finished"`
	CurrentQuestion  int                 `json:"current_question"`
}

func snapshotOf(r *models.Room) *RoomSnapshot {
	snap := &RoomSnapshot{
		RoomID:           r.Code,
		Creator:          r.Creator,
		Players:          append([]string(nil), r.Players...),
		PlayerCharacters: make(map[string]string, len(r.PlayerCharacters)),
		PlayerAnswers:    make(map[string][]string, len(r.PlayerAnswers)),
		PlayerRoles:      make(map[string]string, len(r.PlayerRoles)),
		CharacterLocked:  make(map[string]bool, len(r.CharacterLocked)),
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt,
		MaxPlayers:       r.MaxPlayers,
		GameStarted:      r.GameStarted,
		GameFinished:     r.GameFinished,
		CurrentQuestion:  r.CurrentQuestion,
	}
	for k, v := range r.PlayerCharacters {
		snap.PlayerCharacters[k] = v
	}
	for k, v := range r.PlayerAnswers {
		snap.PlayerAnswers[k] = append([]string(nil), v...)
	}
	for k, v := range r.PlayerRoles {
		snap.PlayerRoles[k] = v
	}
	for k, v := range r.CharacterLocked {
		snap.CharacterLocked[k] = v
	}
	return snap
}

func generateRoomCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

func isMember(r *models.Room, username string) bool {
	for _, p := range r.Players {
		if p == username {
			return true
		}
	}
	return false
}

// lockFor 返回（必要时创建）房间级互斥锁。
func (s *RoomService) lockFor(code string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[code]
	if !ok {
		l = &sync.Mutex{}
		s.locks[code] = l
	}
	return l
}

// getLocked 读取房间，优先走内存镜像。调用方必须持有该房间的锁。
func (s *RoomService) getLocked(ctx context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	room, ok := s.rooms[code]
	s.mu.Unlock()
	if ok {
		return room, nil
	}
	room, err := s.store.FindRoom(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, wrapStoreErr(err)
	}
	normalize(room)
	s.mu.Lock()
	s.rooms[code] = room
	s.mu.Unlock()
	return room, nil
}

// normalize 补齐从存储加载后可能为 nil 的子状态映射。
func normalize(r *models.Room) {
	if r.Players == nil {
		r.Players = []string{}
	}
	if r.PlayerAnswers == nil {
		r.PlayerAnswers = make(map[string][]string)
	}
	if r.PlayerRoles == nil {
		r.PlayerRoles = make(map[string]string)
	}
	if r.PlayerCharacters == nil {
		r.PlayerCharacters = make(map[string]string)
	}
	if r.CharacterLocked == nil {
		r.CharacterLocked = make(map[string]bool)
	}
}

// persistLocked 整文档保存；失败时丢弃镜像，下次操作重新加载。
func (s *RoomService) persistLocked(ctx context.Context, room *models.Room) error {
	if err := s.store.UpdateRoom(ctx, room); err != nil {
		s.mu.Lock()
		delete(s.rooms, room.Code)
		s.mu.Unlock()
		return wrapStoreErr(err)
	}
	return nil
}

// CreateRoom 生成唯一 6 位房间码并建房，创建者自动入座。
func (s *RoomService) CreateRoom(ctx context.Context, creator string) (*RoomSnapshot, error) {
	var room *models.Room
	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return nil, err
		}
		candidate := &models.Room{
			Code:             code,
			Creator:          creator,
			Players:          []string{creator},
			PlayerAnswers:    make(map[string][]string),
			PlayerRoles:      make(map[string]string),
			PlayerCharacters: make(map[string]string),
			CharacterLocked:  make(map[string]bool),
			IsActive:         true,
			MaxPlayers:       s.capacity,
			CreatedAt:        time.Now().UTC(),
		}
		err = s.store.InsertRoom(ctx, candidate)
		if err == nil {
			room = candidate
			break
		}
		if errors.Is(err, store.ErrDuplicate) {
			continue // 撞码重试
		}
		return nil, wrapStoreErr(err)
	}
	if room == nil {
		return nil, fmt.Errorf("room code collision persisted after retries")
	}

	s.mu.Lock()
	s.rooms[room.Code] = room
	s.locks[room.Code] = &sync.Mutex{}
	s.mu.Unlock()
	metrics.ActiveRooms.Inc()

	if err := s.store.UpdateUser(ctx, creator, map[string]any{"last_room": room.Code}); err != nil {
		return nil, wrapStoreErr(err)
	}
	return snapshotOf(room), nil
}

// Snapshot 返回房间当前快照。
func (s *RoomService) Snapshot(ctx context.Context, code string) (*RoomSnapshot, error) {
	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()
	room, err := s.getLocked(ctx, code)
	if err != nil {
		return nil, err
	}
	return snapshotOf(room), nil
}

// ListActiveRooms 列出全部活跃房间，顺序不保证。
func (s *RoomService) ListActiveRooms(ctx context.Context) ([]*RoomSnapshot, error) {
	rooms, err := s.store.FindActiveRooms(ctx)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	out := make([]*RoomSnapshot, 0, len(rooms))
	for i := range rooms {
		normalize(&rooms[i])
		out = append(out, snapshotOf(&rooms[i]))
	}
	return out, nil
}

// JoinRoom 将玩家追加到成员列表，满员、重复、不活跃都会拒绝。
func (s *RoomService) JoinRoom(ctx context.Context, code, username string) (*RoomSnapshot, error) {
	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()

	room, err := s.getLocked(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrRoomInactive
	}
	for _, p := range room.Players {
		if p == username {
			return nil, ErrAlreadyMember
		}
	}
	if len(room.Players) >= room.MaxPlayers {
		return nil, ErrRoomFull
	}

	room.Players = append(room.Players, username)
	if err := s.persistLocked(ctx, room); err != nil {
		return nil, err
	}
	if err := s.store.UpdateUser(ctx, username, map[string]any{"last_room": code}); err != nil {
		return nil, wrapStoreErr(err)
	}
	return snapshotOf(room), nil
}

// LeaveRoom 移除成员并清理其角色与锁定标志；答案与职业保留。
// 最后一名成员离开时整个房间被删除，返回 deleted=true。
func (s *RoomService) LeaveRoom(ctx context.Context, code, username string) (*RoomSnapshot, bool, error) {
	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()

	room, err := s.getLocked(ctx, code)
	if err != nil {
		return nil, false, err
	}

	players := room.Players[:0]
	for _, p := range room.Players {
		if p != username {
			players = append(players, p)
		}
	}
	room.Players = players
	delete(room.PlayerCharacters, username)
	delete(room.CharacterLocked, username)

	if len(room.Players) == 0 {
		if err := s.store.DeleteRoom(ctx, code); err != nil {
			return nil, false, wrapStoreErr(err)
		}
		s.mu.Lock()
		delete(s.rooms, code)
		delete(s.locks, code)
		s.mu.Unlock()
		metrics.ActiveRooms.Dec()
		return nil, true, nil
	}

	if err := s.persistLocked(ctx, room); err != nil {
		return nil, false, err
	}
	return snapshotOf(room), false, nil
}

// StartGame 仅房主可调用，置 game_started 并重置题目指针。
func (s *RoomService) StartGame(ctx context.Context, code, username string) (*RoomSnapshot, error) {
	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()

	room, err := s.getLocked(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Creator != username {
		return nil, ErrNotCreator
	}
	room.GameStarted = true
	room.CurrentQuestion = 0
	if err := s.persistLocked(ctx, room); err != nil {
		return nil, err
	}
	return snapshotOf(room), nil
}

// RecordAnswer 把答案写进该玩家的定长答案槽。五个槽位全部非空时
// 计算职业并返回；职业只算一次，已有职业时不重复计算。
func (s *RoomService) RecordAnswer(ctx context.Context, code, username string, questionIndex int, answer string) (string, error) {
	if questionIndex < 0 || questionIndex >= quiz.NumQuestions {
		return "", fmt.Errorf("question index %d out of range", questionIndex)
	}
	if !quiz.ValidAnswer(answer) {
		return "", fmt.Errorf("invalid answer %q", answer)
	}

	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()

	room, err := s.getLocked(ctx, code)
	if err != nil {
		return "", err
	}
	if !isMember(room, username) {
		return "", ErrNotMember
	}

	answers := room.PlayerAnswers[username]
	for len(answers) < quiz.NumQuestions {
		answers = append(answers, "")
	}
	answers[questionIndex] = answer
	room.PlayerAnswers[username] = answers

	assigned := ""
	if _, done := room.PlayerRoles[username]; !done {
		complete := true
		for _, a := range answers {
			if a == "" {
				complete = false
				break
			}
		}
		if complete {
			role, err := quiz.Resolve(answers)
			if err != nil {
				return "", err
			}
			room.PlayerRoles[username] = role
			assigned = role
		}
	}

	if err := s.persistLocked(ctx, room); err != nil {
		return "", err
	}
	if assigned != "" {
		if err := s.store.UpdateUser(ctx, username, map[string]any{"role": assigned}); err != nil {
			return "", wrapStoreErr(err)
		}
	}
	return assigned, nil
}

// SelectCharacter 选择角色：他人已持有的角色不可选，自己已锁定不可换。
func (s *RoomService) SelectCharacter(ctx context.Context, code, username, character string) (*RoomSnapshot, error) {
	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()

	room, err := s.getLocked(ctx, code)
	if err != nil {
		return nil, err
	}
	if !isMember(room, username) {
		return nil, ErrNotMember
	}
	if room.CharacterLocked[username] {
		return nil, ErrCharacterLocked
	}
	for owner, c := range room.PlayerCharacters {
		if c == character && owner != username {
			return nil, ErrCharacterTaken
		}
	}

	room.PlayerCharacters[username] = character
	if err := s.persistLocked(ctx, room); err != nil {
		return nil, err
	}
	if err := s.store.UpdateUser(ctx, username, map[string]any{"character": character}); err != nil {
		return nil, wrapStoreErr(err)
	}
	return snapshotOf(room), nil
}

// LockCharacter 锁定当前角色，单调不可逆。
func (s *RoomService) LockCharacter(ctx context.Context, code, username string) (*RoomSnapshot, error) {
	l := s.lockFor(code)
	l.Lock()
	defer l.Unlock()

	room, err := s.getLocked(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, ok := room.PlayerCharacters[username]; !ok {
		return nil, ErrNoCharacter
	}
	room.CharacterLocked[username] = true
	if err := s.persistLocked(ctx, room); err != nil {
		return nil, err
	}
	return snapshotOf(room), nil
}
