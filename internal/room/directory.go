package room

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studyroom/internal/config"
	"studyroom/internal/metrics"
	"studyroom/pkg/interfaces"
	"studyroom/pkg/types"
)

// state is a directory entry: room metadata plus its member set. The
// member set is never handed out directly; callers get snapshots.
type state struct {
	meta    types.Room
	members map[string]struct{}
}

// Directory owns room lifecycle and membership. It is the single
// authority for which users are in which rooms; connection objects carry
// no membership state of their own.
type Directory struct {
	mu       sync.RWMutex
	rooms    map[string]*state
	cfg      *config.RoomConfig
	recorder interfaces.GraphRecorder
	logger   zerolog.Logger
}

// Options carries caller-supplied metadata for explicit room creation.
// Zero values fall back to directory defaults.
type Options struct {
	Name        string
	Description string
	MaxMembers  int
	Private     bool
}

// NewDirectory creates an empty directory. recorder may be nil when the
// graph mirror is disabled.
func NewDirectory(cfg *config.RoomConfig, recorder interfaces.GraphRecorder, logger zerolog.Logger) *Directory {
	return &Directory{
		rooms:    make(map[string]*state),
		cfg:      cfg,
		recorder: recorder,
		logger:   logger.With().Str("component", "room_directory").Logger(),
	}
}

// Create inserts a room with an empty member set. If the room already
// exists the existing room is returned unchanged; there is at most one
// room per id. Explicitly created empty rooms persist until first
// join-then-empty or an explicit Delete.
func (d *Directory) Create(roomID string, opts Options) (*types.RoomInfo, error) {
	if !types.IsValidRoomID(roomID) {
		return nil, ErrInvalidRoomID
	}

	d.mu.Lock()
	if existing, ok := d.rooms[roomID]; ok {
		info := snapshot(existing)
		d.mu.Unlock()
		return info, nil
	}

	meta := types.Room{
		ID:          roomID,
		Name:        opts.Name,
		Description: opts.Description,
		MaxMembers:  opts.MaxMembers,
		Private:     opts.Private,
		CreatedAt:   time.Now().UTC(),
	}
	if meta.Name == "" {
		meta.Name = fmt.Sprintf("Room %s", roomID)
	}
	if meta.MaxMembers <= 0 {
		meta.MaxMembers = d.cfg.DefaultMaxMembers
	}

	st := &state{meta: meta, members: make(map[string]struct{})}
	d.rooms[roomID] = st
	info := snapshot(st)
	count := len(d.rooms)
	d.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	d.logger.Info().Str("room_id", roomID).Str("name", meta.Name).Msg("room created")
	if d.recorder != nil {
		d.recorder.RecordRoomCreated(roomID, &meta)
	}
	return info, nil
}

// Join adds userID to the room's member set, provisioning the room with
// default metadata when it does not exist yet.
func (d *Directory) Join(userID, roomID string) (*types.RoomInfo, error) {
	if !types.IsValidUserID(userID) {
		return nil, ErrInvalidUserID
	}
	if !types.IsValidRoomID(roomID) {
		return nil, ErrInvalidRoomID
	}

	d.mu.Lock()
	st, ok := d.rooms[roomID]
	created := false
	if !ok {
		st = &state{
			meta: types.Room{
				ID:         roomID,
				Name:       fmt.Sprintf("Room %s", roomID),
				MaxMembers: d.cfg.DefaultMaxMembers,
				CreatedAt:  time.Now().UTC(),
			},
			members: make(map[string]struct{}),
		}
		d.rooms[roomID] = st
		created = true
	}

	if _, already := st.members[userID]; !already {
		if d.cfg.EnforceCapacity && len(st.members) >= st.meta.MaxMembers {
			d.mu.Unlock()
			return nil, ErrRoomFull
		}
		st.members[userID] = struct{}{}
	}
	info := snapshot(st)
	count := len(d.rooms)
	meta := st.meta
	d.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	d.logger.Info().Str("user_id", userID).Str("room_id", roomID).Bool("provisioned", created).Msg("user joined room")
	if d.recorder != nil {
		if created {
			d.recorder.RecordRoomCreated(roomID, &meta)
		}
		d.recorder.RecordJoin(userID, roomID)
	}
	return info, nil
}

// Leave removes userID from the room's member set and deletes the room
// when the set transitions from non-empty to empty. A leave from a
// non-member fails without touching the room, so a stray leave can never
// delete an explicitly created empty room or mirror a phantom departure.
func (d *Directory) Leave(userID, roomID string) error {
	d.mu.Lock()
	st, ok := d.rooms[roomID]
	if !ok {
		d.mu.Unlock()
		return ErrRoomNotFound
	}
	if _, member := st.members[userID]; !member {
		d.mu.Unlock()
		return ErrNotAMember
	}

	delete(st.members, userID)
	deleted := false
	if len(st.members) == 0 {
		delete(d.rooms, roomID)
		deleted = true
	}
	count := len(d.rooms)
	d.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	log := d.logger.Info().Str("user_id", userID).Str("room_id", roomID)
	if deleted {
		log = log.Bool("room_deleted", true)
	}
	log.Msg("user left room")
	if d.recorder != nil {
		d.recorder.RecordLeave(userID, roomID)
	}
	return nil
}

// RemoveFromAll drops userID from every room it is a member of and
// returns the ids of the rooms it left. Used on disconnect.
func (d *Directory) RemoveFromAll(userID string) []string {
	d.mu.Lock()
	var left []string
	for roomID, st := range d.rooms {
		if _, ok := st.members[userID]; !ok {
			continue
		}
		delete(st.members, userID)
		left = append(left, roomID)
		if len(st.members) == 0 {
			delete(d.rooms, roomID)
		}
	}
	count := len(d.rooms)
	d.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	if d.recorder != nil {
		for _, roomID := range left {
			d.recorder.RecordLeave(userID, roomID)
		}
	}
	return left
}

// Members returns a point-in-time copy of the room's member identities;
// empty for an unknown room.
func (d *Directory) Members(roomID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(st.members))
	for userID := range st.members {
		members = append(members, userID)
	}
	return members
}

// List returns all currently known room ids, sorted for stable output.
func (d *Directory) List() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.rooms))
	for roomID := range d.rooms {
		ids = append(ids, roomID)
	}
	d.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Get returns metadata plus member snapshot for a room.
func (d *Directory) Get(roomID string) (*types.RoomInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, ok := d.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return snapshot(st), nil
}

// Delete removes a room and its memberships outright.
func (d *Directory) Delete(roomID string) error {
	d.mu.Lock()
	_, ok := d.rooms[roomID]
	if !ok {
		d.mu.Unlock()
		return ErrRoomNotFound
	}
	delete(d.rooms, roomID)
	count := len(d.rooms)
	d.mu.Unlock()

	metrics.RoomsActive.Set(float64(count))
	d.logger.Info().Str("room_id", roomID).Msg("room deleted")
	return nil
}

// RoomsForUser returns the ids of every room userID is a member of.
func (d *Directory) RoomsForUser(userID string) []string {
	d.mu.RLock()
	var ids []string
	for roomID, st := range d.rooms {
		if _, ok := st.members[userID]; ok {
			ids = append(ids, roomID)
		}
	}
	d.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// RecordInteraction forwards a user interaction to the graph mirror.
func (d *Directory) RecordInteraction(userID, roomID, kind string) {
	if d.recorder != nil {
		d.recorder.RecordInteraction(userID, roomID, kind)
	}
}

func snapshot(st *state) *types.RoomInfo {
	members := make([]string, 0, len(st.members))
	for userID := range st.members {
		members = append(members, userID)
	}
	sort.Strings(members)
	return &types.RoomInfo{Room: st.meta, Members: members}
}
