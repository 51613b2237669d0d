// Package graph mirrors room and interaction events to a persistence
// collaborator. The mirror is non-authoritative: every write is
// best-effort, decoupled from the membership mutation that produced it.
package graph

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studyroom/internal/metrics"
	"studyroom/pkg/types"
)

// Sink is the storage backend the recorder drains into.
type Sink interface {
	RoomCreated(roomID string, room *types.Room, at time.Time) error
	Join(userID, roomID string, at time.Time) error
	Leave(userID, roomID string, at time.Time) error
	Interaction(userID, roomID, kind string, at time.Time) error
	Close() error
}

type eventKind int

const (
	eventRoomCreated eventKind = iota
	eventJoin
	eventLeave
	eventInteraction
)

type event struct {
	kind        eventKind
	userID      string
	roomID      string
	interaction string
	room        *types.Room
	at          time.Time
}

// Recorder queues events onto a bounded channel drained by a single
// worker goroutine. A full queue drops the event; the in-memory state is
// authoritative and must never wait on the mirror.
type Recorder struct {
	sink   Sink
	queue  chan event
	done   chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewRecorder starts the worker goroutine over the given sink.
func NewRecorder(sink Sink, queueSize int, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		sink:   sink,
		queue:  make(chan event, queueSize),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "graph_recorder").Logger(),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// RecordRoomCreated mirrors a room creation.
func (r *Recorder) RecordRoomCreated(roomID string, room *types.Room) {
	meta := *room
	r.enqueue(event{kind: eventRoomCreated, roomID: roomID, room: &meta, at: time.Now().UTC()})
}

// RecordJoin mirrors a membership addition.
func (r *Recorder) RecordJoin(userID, roomID string) {
	r.enqueue(event{kind: eventJoin, userID: userID, roomID: roomID, at: time.Now().UTC()})
}

// RecordLeave mirrors a membership removal.
func (r *Recorder) RecordLeave(userID, roomID string) {
	r.enqueue(event{kind: eventLeave, userID: userID, roomID: roomID, at: time.Now().UTC()})
}

// RecordInteraction mirrors a user interaction such as a chat message.
func (r *Recorder) RecordInteraction(userID, roomID, kind string) {
	r.enqueue(event{kind: eventInteraction, userID: userID, roomID: roomID, interaction: kind, at: time.Now().UTC()})
}

func (r *Recorder) enqueue(ev event) {
	select {
	case r.queue <- ev:
		metrics.GraphEventsQueued.Inc()
	default:
		// Dropping is acceptable: the mirror is a non-authoritative copy.
		metrics.GraphEventsDropped.Inc()
		r.logger.Warn().Str("room_id", ev.roomID).Msg("graph queue full, event dropped")
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case ev := <-r.queue:
			r.write(ev)
		case <-r.done:
			// Drain what is already queued before stopping.
			for {
				select {
				case ev := <-r.queue:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(ev event) {
	var err error
	switch ev.kind {
	case eventRoomCreated:
		err = r.sink.RoomCreated(ev.roomID, ev.room, ev.at)
	case eventJoin:
		err = r.sink.Join(ev.userID, ev.roomID, ev.at)
	case eventLeave:
		err = r.sink.Leave(ev.userID, ev.roomID, ev.at)
	case eventInteraction:
		err = r.sink.Interaction(ev.userID, ev.roomID, ev.interaction, ev.at)
	}
	if err != nil {
		// One retry, then log and move on; a failing mirror never blocks
		// or fails the live path.
		if err = r.retry(ev); err != nil {
			metrics.GraphWriteFailures.Inc()
			r.logger.Error().Err(err).Str("room_id", ev.roomID).Str("user_id", ev.userID).Msg("graph write failed")
		}
	}
}

func (r *Recorder) retry(ev event) error {
	switch ev.kind {
	case eventRoomCreated:
		return r.sink.RoomCreated(ev.roomID, ev.room, ev.at)
	case eventJoin:
		return r.sink.Join(ev.userID, ev.roomID, ev.at)
	case eventLeave:
		return r.sink.Leave(ev.userID, ev.roomID, ev.at)
	case eventInteraction:
		return r.sink.Interaction(ev.userID, ev.roomID, ev.interaction, ev.at)
	}
	return nil
}

// Close stops the worker after draining queued events and closes the sink.
func (r *Recorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return r.sink.Close()
}
