package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/WIZARD3022/Crown-Fight/internal/auth"
	"github.com/WIZARD3022/Crown-Fight/internal/config"
	"github.com/WIZARD3022/Crown-Fight/internal/metrics"
	"github.com/WIZARD3022/Crown-Fight/internal/quiz"
	"github.com/WIZARD3022/Crown-Fight/internal/service"
	"github.com/WIZARD3022/Crown-Fight/internal/session"
	"github.com/rs/zerolog/log"
)

// Sender 广播引擎对路由暴露的投递面，由 ws.Hub 实现。
type Sender interface {
	SendTo(connID string, v any)
	SendToMany(connIDs []string, v any)
	BroadcastAll(v any)
}

// Request 入站消息封皮：action 决定分发目标，data 按 action 解码。
type Request struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Response 出站消息封皮，请求响应与服务端推送共用。
type Response struct {
	Action  string `json:"action"`
	Status  string `json:"status,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Router 消息路由。每个 handler 自行校验前置条件，
// 所有失败都折叠为发给请求方的结构化错误，绝不断开连接。
type Router struct {
	users    *service.UserService
	rooms    *service.RoomService
	registry *session.Registry
	sender   Sender
	cfg      config.Config
}

func New(users *service.UserService, rooms *service.RoomService, registry *session.Registry, sender Sender, cfg config.Config) *Router {
	return &Router{users: users, rooms: rooms, registry: registry, sender: sender, cfg: cfg}
}

// Dispatch 解析一帧并按 action 分发。
func (r *Router) Dispatch(connID string, data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		r.sendError(connID, "Invalid JSON format")
		metrics.ActionsTotal.WithLabelValues("invalid", "error").Inc()
		return
	}

	ctx := context.Background()
	var ok bool
	switch req.Action {
	case "sign_up":
		ok = r.handleSignUp(ctx, connID, req.Data)
	case "sign_in":
		ok = r.handleSignIn(ctx, connID, req.Data)
	case "create_room":
		ok = r.handleCreateRoom(ctx, connID)
	case "join_room":
		ok = r.handleJoinRoom(ctx, connID, req.Data)
	case "get_rooms":
		ok = r.handleGetRooms(ctx, connID)
	case "start_game":
		ok = r.handleStartGame(ctx, connID)
	case "submit_answer":
		ok = r.handleSubmitAnswer(ctx, connID, req.Data)
	case "select_character":
		ok = r.handleSelectCharacter(ctx, connID, req.Data)
	case "lock_character":
		ok = r.handleLockCharacter(ctx, connID)
	case "leave_room":
		ok = r.handleLeaveRoom(ctx, connID)
	case "get_room_status":
		ok = r.handleGetRoomStatus(ctx, connID)
	default:
		r.sendError(connID, fmt.Sprintf("Unknown action: %s", req.Action))
		metrics.ActionsTotal.WithLabelValues("unknown", "error").Inc()
		return
	}

	status := "success"
	if !ok {
		status = "error"
	}
	metrics.ActionsTotal.WithLabelValues(req.Action, status).Inc()
}

// Disconnected 断连清理：注销会话，若仍在房间则代为离开并广播。
func (r *Router) Disconnected(connID string) {
	sess, ok := r.registry.Unregister(connID)
	if !ok || sess.RoomID == "" {
		return
	}
	ctx := context.Background()
	_, deleted, err := r.rooms.LeaveRoom(ctx, sess.RoomID, sess.Username)
	if err != nil {
		log.Error().Err(err).Str("room_id", sess.RoomID).Str("username", sess.Username).Msg("leave on disconnect")
		return
	}
	if !deleted {
		r.broadcastRoomUpdate(ctx, sess.RoomID)
	}
	r.broadcastRoomList(ctx)
}

func (r *Router) sendError(connID, message string) {
	r.sender.SendTo(connID, Response{Action: "error", Status: "error", Message: message})
}

func (r *Router) respond(connID string, resp Response) {
	r.sender.SendTo(connID, resp)
}

// errMessage 把业务错误翻译成发给客户端的文案。
func errMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, service.ErrUserExists):
		return "Username or email already exists"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid username/email or password"
	case errors.Is(err, service.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, service.ErrRoomInactive):
		return "Room is not active"
	case errors.Is(err, service.ErrAlreadyMember):
		return "You are already in this room"
	case errors.Is(err, service.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, service.ErrNotCreator):
		return "Only the room creator can start the game"
	case errors.Is(err, service.ErrCharacterTaken):
		return "This character is already taken"
	case errors.Is(err, service.ErrCharacterLocked):
		return "Your character is already locked and cannot be changed"
	case errors.Is(err, service.ErrNoCharacter):
		return "You must select a character before locking it"
	case errors.Is(err, service.ErrNotMember):
		return "Not in a room"
	case errors.Is(err, service.ErrStoreUnavailable):
		return "Database unavailable, please try again"
	default:
		return fallback
	}
}

// broadcastRoomUpdate 把最新房间快照推给房间内的所有连接。
func (r *Router) broadcastRoomUpdate(ctx context.Context, roomID string) {
	snap, err := r.rooms.Snapshot(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("broadcast room update")
		return
	}
	conns := r.registry.ConnsInRoom(roomID)
	r.sender.SendToMany(conns, Response{Action: "room_updated", Data: map[string]any{"room_data": snap}})
	metrics.BroadcastsTotal.WithLabelValues("room_updated").Inc()
}

// broadcastRoomList 把活跃房间列表推给全部连接。
func (r *Router) broadcastRoomList(ctx context.Context) {
	list, err := r.rooms.ListActiveRooms(ctx)
	if err != nil {
		log.Error().Err(err).Msg("broadcast room list")
		return
	}
	r.sender.BroadcastAll(Response{Action: "rooms_updated", Data: map[string]any{"rooms": list}})
	metrics.BroadcastsTotal.WithLabelValues("rooms_updated").Inc()
}

type signUpRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (r *Router) handleSignUp(ctx context.Context, connID string, data json.RawMessage) bool {
	var req signUpRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.sendError(connID, "Invalid JSON format")
		return false
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		r.sendError(connID, "All fields are required")
		return false
	}
	if req.Password != req.ConfirmPassword {
		r.sendError(connID, "Passwords do not match")
		return false
	}
	if !auth.ValidEmail(req.Email) {
		r.sendError(connID, "Invalid email format")
		return false
	}
	if len(req.Password) < 6 {
		r.sendError(connID, "Password must be at least 6 characters")
		return false
	}
	if err := r.users.SignUp(ctx, req.Username, req.Email, req.Password); err != nil {
		r.sendError(connID, errMessage(err, "Registration failed"))
		return false
	}
	r.respond(connID, Response{Action: "sign_up_response", Status: "success", Message: "Account created successfully!"})
	return true
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *Router) handleSignIn(ctx context.Context, connID string, data json.RawMessage) bool {
	var req signInRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.sendError(connID, "Invalid JSON format")
		return false
	}
	if req.Username == "" || req.Password == "" {
		r.sendError(connID, "All fields are required")
		return false
	}
	user, err := r.users.SignIn(ctx, req.Username, req.Password)
	if err != nil {
		r.sendError(connID, errMessage(err, "Login failed"))
		return false
	}
	r.registry.Authenticate(connID, user.Username)

	token, err := auth.GenerateSessionToken(user.Username, r.cfg.JWTSecret, r.cfg.SessionTokenTTLMinutes)
	if err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("issue session token")
		token = ""
	}
	r.respond(connID, Response{
		Action: "sign_in_response",
		Status: "success",
		Data: map[string]any{
			"username":  user.Username,
			"email":     user.Email,
			"last_room": user.LastRoom,
			"token":     token,
		},
		Message: fmt.Sprintf("Welcome back, %s!", user.Username),
	})
	return true
}

func (r *Router) handleCreateRoom(ctx context.Context, connID string) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" {
		r.sendError(connID, "You must be logged in to create a room")
		return false
	}
	snap, err := r.rooms.CreateRoom(ctx, sess.Username)
	if err != nil {
		r.sendError(connID, errMessage(err, "Room creation failed"))
		return false
	}
	r.registry.SetRoom(connID, snap.RoomID)
	r.respond(connID, Response{
		Action:  "create_room_response",
		Status:  "success",
		Data:    map[string]any{"room_id": snap.RoomID, "room_data": snap},
		Message: fmt.Sprintf("Room %s created successfully!", snap.RoomID),
	})
	r.broadcastRoomList(ctx)
	return true
}

type joinRoomRequest struct {
	RoomID string `json:"room_id"`
}

func (r *Router) handleJoinRoom(ctx context.Context, connID string, data json.RawMessage) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" {
		r.sendError(connID, "You must be logged in to join a room")
		return false
	}
	var req joinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		r.sendError(connID, "Room ID is required")
		return false
	}
	snap, err := r.rooms.JoinRoom(ctx, req.RoomID, sess.Username)
	if err != nil {
		r.sendError(connID, errMessage(err, "Failed to join room"))
		return false
	}
	r.registry.SetRoom(connID, req.RoomID)
	r.respond(connID, Response{
		Action:  "join_room_response",
		Status:  "success",
		Data:    map[string]any{"room_id": req.RoomID, "room_data": snap},
		Message: fmt.Sprintf("Joined room %s successfully!", req.RoomID),
	})
	r.broadcastRoomUpdate(ctx, req.RoomID)
	r.broadcastRoomList(ctx)
	return true
}

func (r *Router) handleGetRooms(ctx context.Context, connID string) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" {
		r.sendError(connID, "You must be logged in to list rooms")
		return false
	}
	list, err := r.rooms.ListActiveRooms(ctx)
	if err != nil {
		r.sendError(connID, errMessage(err, "Failed to get rooms"))
		return false
	}
	r.respond(connID, Response{
		Action: "get_rooms_response",
		Status: "success",
		Data:   map[string]any{"rooms": list},
	})
	return true
}

func (r *Router) handleStartGame(ctx context.Context, connID string) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" || sess.RoomID == "" {
		r.sendError(connID, "You must be in a room to start the game")
		return false
	}
	_, err := r.rooms.StartGame(ctx, sess.RoomID, sess.Username)
	if err != nil {
		r.sendError(connID, errMessage(err, "Failed to start game"))
		return false
	}
	r.respond(connID, Response{
		Action:  "start_game_response",
		Status:  "success",
		Message: "Game started! All players will now begin the quiz.",
	})
	r.broadcastRoomUpdate(ctx, sess.RoomID)
	return true
}

type submitAnswerRequest struct {
	QuestionIndex *int   `json:"question_index"`
	Answer        string `json:"answer"`
}

func (r *Router) handleSubmitAnswer(ctx context.Context, connID string, data json.RawMessage) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" || sess.RoomID == "" {
		r.sendError(connID, "Missing answer data")
		return false
	}
	var req submitAnswerRequest
	if err := json.Unmarshal(data, &req); err != nil || req.QuestionIndex == nil || req.Answer == "" {
		r.sendError(connID, "Missing answer data")
		return false
	}
	if *req.QuestionIndex < 0 || *req.QuestionIndex >= quiz.NumQuestions || !quiz.ValidAnswer(req.Answer) {
		r.sendError(connID, "Invalid answer data")
		return false
	}
	role, err := r.rooms.RecordAnswer(ctx, sess.RoomID, sess.Username, *req.QuestionIndex, req.Answer)
	if err != nil {
		r.sendError(connID, errMessage(err, "Failed to submit answer"))
		return false
	}
	r.respond(connID, Response{
		Action:  "submit_answer_response",
		Status:  "success",
		Message: "Answer submitted successfully!",
	})
	if role != "" {
		// 职业只发给完成答题的那名玩家，不广播
		r.respond(connID, Response{
			Action:  "role_assigned",
			Status:  "success",
			Data:    map[string]any{"role": role},
			Message: fmt.Sprintf("Your role is: %s", role),
		})
	}
	return true
}

type selectCharacterRequest struct {
	Character string `json:"character"`
}

func (r *Router) handleSelectCharacter(ctx context.Context, connID string, data json.RawMessage) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" || sess.RoomID == "" {
		r.sendError(connID, "Missing character data")
		return false
	}
	var req selectCharacterRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Character == "" {
		r.sendError(connID, "Missing character data")
		return false
	}
	_, err := r.rooms.SelectCharacter(ctx, sess.RoomID, sess.Username, req.Character)
	if err != nil {
		r.sendError(connID, errMessage(err, "Failed to select character"))
		return false
	}
	r.respond(connID, Response{
		Action:  "select_character_response",
		Status:  "success",
		Data:    map[string]any{"character": req.Character},
		Message: fmt.Sprintf("Character %s selected!", req.Character),
	})
	r.broadcastRoomUpdate(ctx, sess.RoomID)
	return true
}

func (r *Router) handleLockCharacter(ctx context.Context, connID string) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" || sess.RoomID == "" {
		r.sendError(connID, "Missing data for character lock")
		return false
	}
	_, err := r.rooms.LockCharacter(ctx, sess.RoomID, sess.Username)
	if err != nil {
		r.sendError(connID, errMessage(err, "Failed to lock character"))
		return false
	}
	r.registry.SetLocked(connID, true)
	r.respond(connID, Response{
		Action:  "lock_character_response",
		Status:  "success",
		Message: "Character locked! You cannot change it now.",
	})
	r.broadcastRoomUpdate(ctx, sess.RoomID)
	return true
}

func (r *Router) handleLeaveRoom(ctx context.Context, connID string) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" || sess.RoomID == "" {
		r.sendError(connID, "Not in a room")
		return false
	}
	_, deleted, err := r.rooms.LeaveRoom(ctx, sess.RoomID, sess.Username)
	if err != nil {
		r.sendError(connID, errMessage(err, "Failed to leave room"))
		return false
	}
	r.registry.SetRoom(connID, "")
	r.respond(connID, Response{
		Action:  "leave_room_response",
		Status:  "success",
		Message: "Left the room successfully",
	})
	if !deleted {
		r.broadcastRoomUpdate(ctx, sess.RoomID)
	}
	r.broadcastRoomList(ctx)
	return true
}

func (r *Router) handleGetRoomStatus(ctx context.Context, connID string) bool {
	sess, ok := r.registry.Lookup(connID)
	if !ok || sess.Username == "" || sess.RoomID == "" {
		r.sendError(connID, "Not in a room")
		return false
	}
	snap, err := r.rooms.Snapshot(ctx, sess.RoomID)
	if err != nil {
		r.sendError(connID, errMessage(err, "Failed to get room status"))
		return false
	}
	r.respond(connID, Response{
		Action: "room_status_response",
		Status: "success",
		Data:   map[string]any{"room_data": snap},
	})
	return true
}
