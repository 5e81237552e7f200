package service

import "errors"

// 业务层通用错误，router 用 errors.Is 映射为协议错误响应。
var (
	ErrUserExists         = errors.New("username or email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomInactive       = errors.New("room not active")
	ErrAlreadyMember      = errors.New("already in room")
	ErrRoomFull           = errors.New("room full")
	ErrNotCreator         = errors.New("not room creator")
	ErrCharacterTaken     = errors.New("character taken")
	ErrCharacterLocked    = errors.New("character locked")
	ErrNoCharacter        = errors.New("no character selected")
	ErrNotMember          = errors.New("not a room member")
	ErrStoreUnavailable   = errors.New("store unavailable")
)
