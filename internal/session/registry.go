package session

import "sync"

// Session 一条连接的服务端状态，随连接建立而生、断开而亡，不落库。
type Session struct {
	ConnID          string
	Username        string
	RoomID          string
	CharacterLocked bool
}

// Registry 连接标识到会话的注册表，被所有连接 goroutine 共享。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register 为新连接创建空白会话。
func (r *Registry) Register(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = &Session{ConnID: connID}
}

// Authenticate 在凭证校验通过后绑定用户名。
func (r *Registry) Authenticate(connID, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return false
	}
	s.Username = username
	return true
}

// SetRoom 更新会话所在房间，传空串表示离开。
func (r *Registry) SetRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.RoomID = roomID
		if roomID == "" {
			s.CharacterLocked = false
		}
	}
}

// SetLocked 记录该连接的角色锁定标志，供快速本地检查。
func (r *Registry) SetLocked(connID string, locked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.CharacterLocked = locked
	}
}

// Lookup 返回会话快照。
func (r *Registry) Lookup(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ConnsInRoom 返回当前在指定房间内的全部连接标识。
func (r *Registry) ConnsInRoom(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id, s := range r.sessions {
		if s.RoomID == roomID {
			out = append(out, id)
		}
	}
	return out
}

// Unregister 移除会话并返回移除前的快照，供断连清理使用。
func (r *Registry) Unregister(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connID)
	return *s, true
}

// Count 当前会话数。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
