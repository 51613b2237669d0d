package room

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"studyroom/internal/config"
	"studyroom/pkg/types"
)

// Mock graph recorder capturing mirrored events.
type mockRecorder struct {
	mu           sync.Mutex
	roomsCreated []string
	joins        []string
	leaves       []string
	interactions []string
}

func (m *mockRecorder) RecordRoomCreated(roomID string, _ *types.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomsCreated = append(m.roomsCreated, roomID)
}

func (m *mockRecorder) RecordJoin(userID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, userID+":"+roomID)
}

func (m *mockRecorder) RecordLeave(userID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves = append(m.leaves, userID+":"+roomID)
}

func (m *mockRecorder) RecordInteraction(userID, roomID, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, userID+":"+roomID+":"+kind)
}

func newTestDirectory(enforce bool) (*Directory, *mockRecorder) {
	recorder := &mockRecorder{}
	cfg := &config.RoomConfig{DefaultMaxMembers: 3, EnforceCapacity: enforce}
	return NewDirectory(cfg, recorder, zerolog.Nop()), recorder
}

func TestCreateIsIdempotent(t *testing.T) {
	d, recorder := newTestDirectory(false)

	first, err := d.Create("r1", Options{Name: "Algebra"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := d.Create("r1", Options{Name: "Different Name"})
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}

	if second.Name != first.Name {
		t.Errorf("second create changed metadata: got %q want %q", second.Name, first.Name)
	}
	if len(d.List()) != 1 {
		t.Errorf("expected exactly one room, got %d", len(d.List()))
	}
	if len(recorder.roomsCreated) != 1 {
		t.Errorf("expected one room_created mirror event, got %d", len(recorder.roomsCreated))
	}
}

func TestExplicitEmptyRoomPersists(t *testing.T) {
	d, _ := newTestDirectory(false)

	if _, err := d.Create("lounge", Options{}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Empty on creation: the room must persist until first join-then-empty.
	if _, err := d.Get("lounge"); err != nil {
		t.Fatalf("explicitly created empty room disappeared: %v", err)
	}

	if _, err := d.Join("alice", "lounge"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := d.Leave("alice", "lounge"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}

	if _, err := d.Get("lounge"); err != ErrRoomNotFound {
		t.Errorf("room should be deleted once its member set empties, got %v", err)
	}
}

func TestLeaveByNonMember(t *testing.T) {
	d, recorder := newTestDirectory(false)

	if _, err := d.Create("lounge", Options{}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A stray leave from a user who never joined must not touch the room.
	if err := d.Leave("stranger", "lounge"); err != ErrNotAMember {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if _, err := d.Get("lounge"); err != nil {
		t.Fatalf("empty room deleted by a non-member leave: %v", err)
	}
	if len(recorder.leaves) != 0 {
		t.Errorf("non-member leave was mirrored: %v", recorder.leaves)
	}

	// Same contract for an occupied room: the member set stays intact.
	if _, err := d.Join("alice", "lounge"); err != nil {
		t.Fatal(err)
	}
	if err := d.Leave("stranger", "lounge"); err != ErrNotAMember {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if got := d.Members("lounge"); len(got) != 1 || got[0] != "alice" {
		t.Errorf("membership changed by a non-member leave: %v", got)
	}
}

func TestJoinAutoProvisionsRoom(t *testing.T) {
	d, recorder := newTestDirectory(false)

	info, err := d.Join("x", "r2")
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if info.ID != "r2" {
		t.Errorf("expected room id r2, got %s", info.ID)
	}
	if info.Name != "Room r2" {
		t.Errorf("expected default metadata name, got %q", info.Name)
	}
	if info.MaxMembers != 3 {
		t.Errorf("expected default max members 3, got %d", info.MaxMembers)
	}
	if len(info.Members) != 1 || info.Members[0] != "x" {
		t.Errorf("expected x as sole member, got %v", info.Members)
	}
	if len(recorder.roomsCreated) != 1 || len(recorder.joins) != 1 {
		t.Errorf("expected mirrored create+join, got %v / %v", recorder.roomsCreated, recorder.joins)
	}
}

func TestJoinIsIdempotentPerUser(t *testing.T) {
	d, _ := newTestDirectory(false)

	if _, err := d.Join("a", "r1"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	info, err := d.Join("a", "r1")
	if err != nil {
		t.Fatalf("second Join failed: %v", err)
	}
	if len(info.Members) != 1 {
		t.Errorf("duplicate join must not duplicate membership: %v", info.Members)
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	d, _ := newTestDirectory(false)

	if _, err := d.Join("a", "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Join("b", "r1"); err != nil {
		t.Fatal(err)
	}

	if err := d.Leave("a", "r1"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if _, err := d.Get("r1"); err != nil {
		t.Fatalf("room with remaining member must persist: %v", err)
	}

	if err := d.Leave("b", "r1"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	for _, id := range d.List() {
		if id == "r1" {
			t.Error("empty room still listed")
		}
	}
}

func TestLeaveUnknownRoom(t *testing.T) {
	d, _ := newTestDirectory(false)

	if err := d.Leave("a", "ghost"); err != ErrRoomNotFound {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestCapacityEnforcement(t *testing.T) {
	t.Run("advisory by default", func(t *testing.T) {
		d, _ := newTestDirectory(false)
		for i := 0; i < 5; i++ {
			if _, err := d.Join(fmt.Sprintf("u%d", i), "r1"); err != nil {
				t.Fatalf("advisory capacity rejected join %d: %v", i, err)
			}
		}
	})

	t.Run("enforced rejects past limit", func(t *testing.T) {
		d, _ := newTestDirectory(true)
		for i := 0; i < 3; i++ {
			if _, err := d.Join(fmt.Sprintf("u%d", i), "r1"); err != nil {
				t.Fatalf("join %d within capacity failed: %v", i, err)
			}
		}
		if _, err := d.Join("u3", "r1"); err != ErrRoomFull {
			t.Errorf("expected ErrRoomFull, got %v", err)
		}
		// An existing member re-joining is not a capacity violation.
		if _, err := d.Join("u0", "r1"); err != nil {
			t.Errorf("existing member rejoin rejected: %v", err)
		}
	})
}

func TestMembersReturnsSnapshot(t *testing.T) {
	d, _ := newTestDirectory(false)

	if _, err := d.Join("a", "r1"); err != nil {
		t.Fatal(err)
	}
	members := d.Members("r1")
	members[0] = "mutated"

	if got := d.Members("r1"); got[0] != "a" {
		t.Error("Members must return a copy, not a live view")
	}

	if got := d.Members("unknown"); len(got) != 0 {
		t.Errorf("unknown room must yield empty member set, got %v", got)
	}
}

func TestRemoveFromAll(t *testing.T) {
	d, recorder := newTestDirectory(false)

	if _, err := d.Join("a", "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Join("a", "r2"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Join("b", "r2"); err != nil {
		t.Fatal(err)
	}

	left := d.RemoveFromAll("a")
	if len(left) != 2 {
		t.Fatalf("expected a to leave 2 rooms, got %v", left)
	}

	// r1 emptied and must be gone; r2 keeps b.
	if _, err := d.Get("r1"); err != ErrRoomNotFound {
		t.Errorf("emptied room r1 should be deleted, got %v", err)
	}
	if got := d.Members("r2"); len(got) != 1 || got[0] != "b" {
		t.Errorf("r2 should keep b, got %v", got)
	}
	if len(recorder.leaves) != 2 {
		t.Errorf("expected 2 mirrored leaves, got %v", recorder.leaves)
	}

	if again := d.RemoveFromAll("a"); len(again) != 0 {
		t.Errorf("second RemoveFromAll must be a no-op, got %v", again)
	}
}

func TestRoomsForUser(t *testing.T) {
	d, _ := newTestDirectory(false)

	for _, roomID := range []string{"r1", "r2", "r3"} {
		if _, err := d.Join("a", roomID); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := d.Join("b", "r2"); err != nil {
		t.Fatal(err)
	}

	if got := d.RoomsForUser("a"); len(got) != 3 {
		t.Errorf("expected 3 rooms for a, got %v", got)
	}
	if got := d.RoomsForUser("b"); len(got) != 1 || got[0] != "r2" {
		t.Errorf("expected [r2] for b, got %v", got)
	}
	if got := d.RoomsForUser("ghost"); len(got) != 0 {
		t.Errorf("expected no rooms for ghost, got %v", got)
	}
}

// Membership invariant over random operation sequences: at every point a
// room's member set equals exactly the users who joined and have not
// since left or disconnected.
func TestMembershipInvariantRandomOps(t *testing.T) {
	d, _ := newTestDirectory(false)
	rng := rand.New(rand.NewSource(42))

	users := []string{"u1", "u2", "u3", "u4"}
	rooms := []string{"r1", "r2", "r3"}
	expected := make(map[string]map[string]bool) // roomID -> userID -> member

	for i := 0; i < 2000; i++ {
		user := users[rng.Intn(len(users))]
		roomID := rooms[rng.Intn(len(rooms))]

		switch rng.Intn(3) {
		case 0: // join
			if _, err := d.Join(user, roomID); err != nil {
				t.Fatalf("op %d: join failed: %v", i, err)
			}
			if expected[roomID] == nil {
				expected[roomID] = make(map[string]bool)
			}
			expected[roomID][user] = true
		case 1: // leave
			_ = d.Leave(user, roomID)
			if expected[roomID] != nil {
				delete(expected[roomID], user)
				if len(expected[roomID]) == 0 {
					delete(expected, roomID)
				}
			}
		case 2: // disconnect
			d.RemoveFromAll(user)
			for id, members := range expected {
				delete(members, user)
				if len(members) == 0 {
					delete(expected, id)
				}
			}
		}

		// Verify every expected room matches and no extra rooms exist.
		for id, want := range expected {
			got := d.Members(id)
			if len(got) != len(want) {
				t.Fatalf("op %d: room %s members %v, want %v", i, id, got, want)
			}
			for _, member := range got {
				if !want[member] {
					t.Fatalf("op %d: room %s has unexpected member %s", i, id, member)
				}
			}
		}
		if len(d.List()) != len(expected) {
			t.Fatalf("op %d: active rooms %v, want %d rooms", i, d.List(), len(expected))
		}
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	d, _ := newTestDirectory(false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("user%d", n)
			for j := 0; j < 20; j++ {
				if _, err := d.Join(user, "shared"); err != nil {
					t.Errorf("concurrent join failed: %v", err)
					return
				}
				_ = d.Leave(user, "shared")
			}
			d.RemoveFromAll(user)
		}(i)
	}
	wg.Wait()

	// All users left: room must not linger.
	if got := d.Members("shared"); len(got) != 0 {
		t.Errorf("expected empty membership after all leaves, got %v", got)
	}
}
