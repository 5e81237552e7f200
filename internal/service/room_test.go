package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/WIZARD3022/Crown-Fight/internal/store"
)

func newRoomService() (*RoomService, *UserService) {
	st := store.NewMemoryStore()
	return NewRoomService(st, 4), NewUserService(st)
}

func signUpAll(t *testing.T, users *UserService, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := users.SignUp(context.Background(), n, n+"@example.com", "secret123"); err != nil {
			t.Fatalf("SignUp(%s) error = %v", n, err)
		}
	}
}

func TestRoomService_CreateRoom(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice")
	ctx := context.Background()

	snap, err := rooms.CreateRoom(ctx, "alice")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if !regexp.MustCompile(`^[A-Z0-9]{6}$`).MatchString(snap.RoomID) {
		t.Errorf("room code %q not 6 uppercase alphanumerics", snap.RoomID)
	}
	if snap.Creator != "alice" {
		t.Errorf("Creator = %q, want alice", snap.Creator)
	}
	if len(snap.Players) != 1 || snap.Players[0] != "alice" {
		t.Errorf("Players = %v, want [alice]", snap.Players)
	}
	if !snap.IsActive || snap.GameStarted || snap.GameFinished {
		t.Errorf("fresh room flags wrong: %+v", snap)
	}
	if snap.MaxPlayers != 4 {
		t.Errorf("MaxPlayers = %d, want 4", snap.MaxPlayers)
	}

	user, err := users.SignIn(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if user.LastRoom == nil || *user.LastRoom != snap.RoomID {
		t.Error("creator's last_room pointer not updated")
	}
}

func TestRoomService_CreateRoom_UniqueCodes(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice")
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 30; i++ {
		snap, err := rooms.CreateRoom(ctx, "alice")
		if err != nil {
			t.Fatalf("CreateRoom() #%d error = %v", i, err)
		}
		if seen[snap.RoomID] {
			t.Fatalf("duplicate room code %q", snap.RoomID)
		}
		seen[snap.RoomID] = true
	}
}

func TestRoomService_JoinRoom(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice", "bob")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")

	joined, err := rooms.JoinRoom(ctx, snap.RoomID, "bob")
	if err != nil {
		t.Fatalf("JoinRoom() error = %v", err)
	}
	if len(joined.Players) != 2 || joined.Players[1] != "bob" {
		t.Errorf("Players = %v, want [alice bob]", joined.Players)
	}

	// idempotent-rejecting: second join fails, membership unchanged
	if _, err := rooms.JoinRoom(ctx, snap.RoomID, "bob"); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("second JoinRoom() error = %v, want ErrAlreadyMember", err)
	}
	after, _ := rooms.Snapshot(ctx, snap.RoomID)
	if len(after.Players) != 2 {
		t.Errorf("membership changed by rejected join: %v", after.Players)
	}
}

func TestRoomService_JoinRoom_NotFound(t *testing.T) {
	rooms, _ := newRoomService()
	if _, err := rooms.JoinRoom(context.Background(), "ZZZZZZ", "bob"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("JoinRoom() error = %v, want ErrRoomNotFound", err)
	}
}

func TestRoomService_JoinRoom_Full(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "p1", "p2", "p3", "p4", "p5")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "p1")
	for _, p := range []string{"p2", "p3", "p4"} {
		if _, err := rooms.JoinRoom(ctx, snap.RoomID, p); err != nil {
			t.Fatalf("JoinRoom(%s) error = %v", p, err)
		}
	}
	if _, err := rooms.JoinRoom(ctx, snap.RoomID, "p5"); !errors.Is(err, ErrRoomFull) {
		t.Errorf("5th JoinRoom() error = %v, want ErrRoomFull", err)
	}
	after, _ := rooms.Snapshot(ctx, snap.RoomID)
	if len(after.Players) != 4 {
		t.Errorf("membership = %d players after rejected join, want 4", len(after.Players))
	}
}

func TestRoomService_LeaveRoom_DeletesEmptyRoom(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")
	_, deleted, err := rooms.LeaveRoom(ctx, snap.RoomID, "alice")
	if err != nil {
		t.Fatalf("LeaveRoom() error = %v", err)
	}
	if !deleted {
		t.Error("LeaveRoom() deleted = false for last member")
	}
	if _, err := rooms.Snapshot(ctx, snap.RoomID); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Snapshot() after delete error = %v, want ErrRoomNotFound", err)
	}
}

func TestRoomService_LeaveRoom_RetainsAnswers(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice", "bob")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")
	rooms.JoinRoom(ctx, snap.RoomID, "bob")
	rooms.StartGame(ctx, snap.RoomID, "alice")
	for i := 0; i < 5; i++ {
		if _, err := rooms.RecordAnswer(ctx, snap.RoomID, "bob", i, "B"); err != nil {
			t.Fatalf("RecordAnswer() error = %v", err)
		}
	}
	if _, err := rooms.SelectCharacter(ctx, snap.RoomID, "bob", "knight1"); err != nil {
		t.Fatalf("SelectCharacter() error = %v", err)
	}

	after, deleted, err := rooms.LeaveRoom(ctx, snap.RoomID, "bob")
	if err != nil || deleted {
		t.Fatalf("LeaveRoom() = (deleted=%v, err=%v)", deleted, err)
	}
	if _, ok := after.PlayerCharacters["bob"]; ok {
		t.Error("character not cleaned on leave")
	}
	if _, ok := after.CharacterLocked["bob"]; ok {
		t.Error("lock flag not cleaned on leave")
	}
	if len(after.PlayerAnswers["bob"]) != 5 {
		t.Error("answers dropped on leave, want retained")
	}
	if after.PlayerRoles["bob"] == "" {
		t.Error("role dropped on leave, want retained")
	}
}

func TestRoomService_StartGame(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice", "bob")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")
	rooms.JoinRoom(ctx, snap.RoomID, "bob")

	if _, err := rooms.StartGame(ctx, snap.RoomID, "bob"); !errors.Is(err, ErrNotCreator) {
		t.Errorf("StartGame() by non-creator error = %v, want ErrNotCreator", err)
	}

	started, err := rooms.StartGame(ctx, snap.RoomID, "alice")
	if err != nil {
		t.Fatalf("StartGame() error = %v", err)
	}
	if !started.GameStarted || started.CurrentQuestion != 0 {
		t.Errorf("StartGame() snapshot = started=%v question=%d", started.GameStarted, started.CurrentQuestion)
	}
}

func TestRoomService_RecordAnswer_PadsGaps(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")

	// answer question 3 first; earlier slots stay empty
	if _, err := rooms.RecordAnswer(ctx, snap.RoomID, "alice", 3, "D"); err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	after, _ := rooms.Snapshot(ctx, snap.RoomID)
	answers := after.PlayerAnswers["alice"]
	if len(answers) != 5 {
		t.Fatalf("answer slots = %d, want 5", len(answers))
	}
	if answers[3] != "D" || answers[0] != "" {
		t.Errorf("answers = %v", answers)
	}
	if after.PlayerRoles["alice"] != "" {
		t.Error("role assigned from incomplete answers")
	}
}

func TestRoomService_RecordAnswer_AssignsRoleOnCompletion(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")

	answers := []string{"A", "A", "B", "B", "C"}
	var role string
	for i, a := range answers {
		got, err := rooms.RecordAnswer(ctx, snap.RoomID, "alice", i, a)
		if err != nil {
			t.Fatalf("RecordAnswer(%d) error = %v", i, err)
		}
		if i < 4 && got != "" {
			t.Errorf("role assigned after %d answers", i+1)
		}
		role = got
	}
	if role != "Barbarian / Monk (Melee DPS)" {
		t.Errorf("assigned role = %q, want A's role from tie-break", role)
	}

	// overwriting an answer afterwards must not assign again
	again, err := rooms.RecordAnswer(ctx, snap.RoomID, "alice", 0, "C")
	if err != nil {
		t.Fatalf("RecordAnswer() overwrite error = %v", err)
	}
	if again != "" {
		t.Error("role re-assigned on overwrite")
	}
}

func TestRoomService_RecordAnswer_Invalid(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")
	if _, err := rooms.RecordAnswer(ctx, snap.RoomID, "alice", 5, "A"); err == nil {
		t.Error("RecordAnswer() with index 5 succeeded")
	}
	if _, err := rooms.RecordAnswer(ctx, snap.RoomID, "alice", -1, "A"); err == nil {
		t.Error("RecordAnswer() with negative index succeeded")
	}
	if _, err := rooms.RecordAnswer(ctx, snap.RoomID, "alice", 0, "G"); err == nil {
		t.Error("RecordAnswer() with letter G succeeded")
	}
}

func TestRoomService_NonMemberRejected(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice", "mallory")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")
	if _, err := rooms.RecordAnswer(ctx, snap.RoomID, "mallory", 0, "A"); !errors.Is(err, ErrNotMember) {
		t.Errorf("RecordAnswer() by non-member error = %v, want ErrNotMember", err)
	}
	if _, err := rooms.SelectCharacter(ctx, snap.RoomID, "mallory", "Knight"); !errors.Is(err, ErrNotMember) {
		t.Errorf("SelectCharacter() by non-member error = %v, want ErrNotMember", err)
	}
}

func TestRoomService_SelectCharacter_Exclusive(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice", "bob")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")
	rooms.JoinRoom(ctx, snap.RoomID, "bob")

	if _, err := rooms.SelectCharacter(ctx, snap.RoomID, "alice", "Knight"); err != nil {
		t.Fatalf("SelectCharacter() error = %v", err)
	}
	if _, err := rooms.SelectCharacter(ctx, snap.RoomID, "bob", "Knight"); !errors.Is(err, ErrCharacterTaken) {
		t.Errorf("SelectCharacter() for taken character error = %v, want ErrCharacterTaken", err)
	}
	after, _ := rooms.Snapshot(ctx, snap.RoomID)
	if after.PlayerCharacters["alice"] != "Knight" {
		t.Error("holder's assignment disturbed by rejected select")
	}

	// switching your own character is allowed before locking
	if _, err := rooms.SelectCharacter(ctx, snap.RoomID, "alice", "Monk"); err != nil {
		t.Errorf("SelectCharacter() switching own character error = %v", err)
	}
	if _, err := rooms.SelectCharacter(ctx, snap.RoomID, "bob", "Knight"); err != nil {
		t.Errorf("SelectCharacter() for freed character error = %v", err)
	}
}

func TestRoomService_LockCharacter(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "alice")

	if _, err := rooms.LockCharacter(ctx, snap.RoomID, "alice"); !errors.Is(err, ErrNoCharacter) {
		t.Errorf("LockCharacter() before select error = %v, want ErrNoCharacter", err)
	}

	rooms.SelectCharacter(ctx, snap.RoomID, "alice", "Knight")
	locked, err := rooms.LockCharacter(ctx, snap.RoomID, "alice")
	if err != nil {
		t.Fatalf("LockCharacter() error = %v", err)
	}
	if !locked.CharacterLocked["alice"] {
		t.Error("lock flag not set")
	}

	// monotonic: no re-select after lock
	if _, err := rooms.SelectCharacter(ctx, snap.RoomID, "alice", "Monk"); !errors.Is(err, ErrCharacterLocked) {
		t.Errorf("SelectCharacter() after lock error = %v, want ErrCharacterLocked", err)
	}
	after, _ := rooms.Snapshot(ctx, snap.RoomID)
	if after.PlayerCharacters["alice"] != "Knight" {
		t.Error("locked character changed")
	}
}

func TestRoomService_ListActiveRooms(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "alice", "bob")
	ctx := context.Background()

	a, _ := rooms.CreateRoom(ctx, "alice")
	b, _ := rooms.CreateRoom(ctx, "bob")

	list, err := rooms.ListActiveRooms(ctx)
	if err != nil {
		t.Fatalf("ListActiveRooms() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListActiveRooms() returned %d rooms, want 2", len(list))
	}
	codes := map[string]bool{}
	for _, r := range list {
		codes[r.RoomID] = true
	}
	if !codes[a.RoomID] || !codes[b.RoomID] {
		t.Errorf("room list missing codes: %v", codes)
	}
}

func TestRoomService_ConcurrentSelectCharacter(t *testing.T) {
	rooms, users := newRoomService()
	signUpAll(t, users, "p1", "p2", "p3", "p4")
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "p1")
	for _, p := range []string{"p2", "p3", "p4"} {
		rooms.JoinRoom(ctx, snap.RoomID, p)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			player := fmt.Sprintf("p%d", n+1)
			_, errs[n] = rooms.SelectCharacter(ctx, snap.RoomID, player, "Knight")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrCharacterTaken) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("%d players won the same character, want exactly 1", winners)
	}
}

func TestRoomService_ConcurrentJoins_RespectCapacity(t *testing.T) {
	rooms, users := newRoomService()
	names := []string{"h", "p1", "p2", "p3", "p4", "p5", "p6"}
	signUpAll(t, users, names...)
	ctx := context.Background()

	snap, _ := rooms.CreateRoom(ctx, "h")

	var wg sync.WaitGroup
	for _, p := range names[1:] {
		wg.Add(1)
		go func(player string) {
			defer wg.Done()
			rooms.JoinRoom(ctx, snap.RoomID, player)
		}(p)
	}
	wg.Wait()

	after, _ := rooms.Snapshot(ctx, snap.RoomID)
	if len(after.Players) > 4 {
		t.Errorf("membership = %d, exceeds capacity 4", len(after.Players))
	}
}
