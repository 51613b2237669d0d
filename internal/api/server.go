// Package api exposes the Room Directory operations upward to HTTP
// clients. It is a pure adapter: JSON in, directory call, JSON out.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"studyroom/internal/hub"
	"studyroom/internal/room"
	"studyroom/pkg/types"
)

// Server is the HTTP surface over the room directory and hub.
type Server struct {
	directory *room.Directory
	hub       *hub.Hub
	logger    zerolog.Logger
	router    chi.Router
}

// NewServer builds the chi router with all routes and middleware.
func NewServer(directory *room.Directory, h *hub.Hub, logger zerolog.Logger) *Server {
	s := &Server{
		directory: directory,
		hub:       h,
		logger:    logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", s.createRoom)
		r.Get("/", s.listRooms)
		r.Get("/{roomID}", s.getRoom)
		r.Delete("/{roomID}", s.deleteRoom)
		r.Post("/{roomID}/join", s.joinRoom)
		r.Post("/{roomID}/leave", s.leaveRoom)
	})
	r.Get("/api/users/{userID}/rooms", s.userRooms)

	s.router = r
	return s
}

// Router returns the configured chi router so the application can mount
// the WebSocket endpoint next to the API routes.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each completed request with its status and latency.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

type createRoomRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxMembers  int    `json:"max_members"`
	Private     bool   `json:"is_private"`
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": s.hub.ConnectionCount(),
		"rooms":       len(s.directory.List()),
	})
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		s.writeError(w, http.StatusBadRequest, "room id is required")
		return
	}

	info, err := s.directory.Create(req.ID, room.Options{
		Name:        req.Name,
		Description: req.Description,
		MaxMembers:  req.MaxMembers,
		Private:     req.Private,
	})
	if err != nil {
		s.writeDirectoryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) listRooms(w http.ResponseWriter, _ *http.Request) {
	ids := s.directory.List()
	rooms := make([]*types.RoomInfo, 0, len(ids))
	for _, id := range ids {
		if info, err := s.directory.Get(id); err == nil {
			rooms = append(rooms, info)
		}
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	info, err := s.directory.Get(chi.URLParam(r, "roomID"))
	if err != nil {
		s.writeDirectoryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.directory.Delete(chi.URLParam(r, "roomID")); err != nil {
		s.writeDirectoryError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "room deleted"})
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	info, err := s.directory.Join(req.UserID, roomID)
	if err != nil {
		s.writeDirectoryError(w, err)
		return
	}

	// Same fan-out as the WebSocket join path.
	joined := types.NewEvent(types.EventUserJoined, &types.RoomEvent{UserID: req.UserID, RoomID: roomID})
	s.hub.BroadcastToRoom(r.Context(), roomID, joined, req.UserID)
	s.hub.SendPersonal(r.Context(), req.UserID, types.NewEvent(types.EventRoomInfo, info))

	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.directory.Leave(req.UserID, roomID); err != nil {
		s.writeDirectoryError(w, err)
		return
	}

	left := types.NewEvent(types.EventUserLeft, &types.RoomEvent{UserID: req.UserID, RoomID: roomID})
	s.hub.BroadcastToRoom(r.Context(), roomID, left, req.UserID)

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "left room"})
}

func (s *Server) userRooms(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	ids := s.directory.RoomsForUser(userID)
	rooms := make([]*types.RoomInfo, 0, len(ids))
	for _, id := range ids {
		if info, err := s.directory.Get(id); err == nil {
			rooms = append(rooms, info)
		}
	}
	s.writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) writeDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		s.writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, room.ErrRoomFull):
		s.writeError(w, http.StatusConflict, "room is at capacity")
	case errors.Is(err, room.ErrNotAMember):
		s.writeError(w, http.StatusConflict, "user is not a member of the room")
	case errors.Is(err, room.ErrInvalidRoomID), errors.Is(err, room.ErrInvalidUserID):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
