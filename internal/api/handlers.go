package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ruangkelas/internal/auth"
	"ruangkelas/internal/database"
	"ruangkelas/internal/rbac"
	"ruangkelas/internal/session"
	"ruangkelas/internal/validate"
	"ruangkelas/internal/websocket"
	"ruangkelas/pkg/types"
)

// Request/Response types for JSON serialization
type LoginRequest struct {
	Name     string `json:"name" validate:"notblank,max=100"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

type CreateUserRequest struct {
	Name     string `json:"name" validate:"notblank,max=100"`
	Role     string `json:"role" validate:"required,school_role"`
	Password string `json:"password" validate:"required,min=8"`
}

type CreateRoomRequest struct {
	Name      string `json:"name" validate:"notblank,max=200"`
	TeacherID int64  `json:"teacher_id" validate:"required,gt=0"`
}

type CreateMaterialRequest struct {
	Title string `json:"title" validate:"notblank,max=200"`
	Body  string `json:"body"`
}

type HistoryResponse struct {
	Topic    types.TopicKind     `json:"topic"`
	Kelas    *int64              `json:"kelas,omitempty"`
	MateriID *int64              `json:"materi_id,omitempty"`
	Messages []types.MessageView `json:"messages"`
}

type OnlineResponse struct {
	Users []types.OnlineUser `json:"users"`
}

func isValidationError(err error) bool {
	var fieldErrs validate.FieldErrors
	return errors.As(err, &fieldErrs) ||
		errors.Is(err, types.ErrInvalidRole) ||
		errors.Is(err, types.ErrInvalidUserName) ||
		errors.Is(err, types.ErrInvalidRoomName) ||
		errors.Is(err, types.ErrInvalidTitle) ||
		errors.Is(err, types.ErrInvalidReference) ||
		errors.Is(err, database.ErrNotATeacher) ||
		errors.Is(err, auth.ErrWeakPassword)
}

// decode reads and validates a JSON body, answering 400 itself on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, action rbac.Action) (*types.User, bool) {
	user := currentUser(r)
	if user == nil || !rbac.Can(user.Role, action) {
		s.sendError(w, "Not allowed", http.StatusForbidden)
		return nil, false
	}
	return user, true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.sendError(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// FUNCTIONAL DISCOVERY: POST /api/login - token in the body and in an HttpOnly cookie
// so both script clients and the browser WebSocket handshake can use it
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !s.decode(w, r, &req) {
		return
	}

	token, user, err := s.deps.Sessions.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidLogin) {
			s.sendError(w, "Invalid name or password", http.StatusUnauthorized)
			return
		}
		log.Errorf("Login failed: %v", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	cookie := &http.Cookie{
		Name:     websocket.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.deps.SessionTTL > 0 {
		cookie.MaxAge = int(s.deps.SessionTTL.Seconds())
	}
	http.SetCookie(w, cookie)

	writeJSON(w, LoginResponse{Token: token, User: user})
}

// POST /api/logout clears the session cookie; tokens are stateless and expire on their own
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     websocket.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, currentUser(r))
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionManageUsers); !ok {
		return
	}
	users, err := s.deps.Database.ListUsers(r.Context())
	if err != nil {
		s.sendStoreError(w, err, "User")
		return
	}
	writeJSON(w, users)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionManageUsers); !ok {
		return
	}
	var req CreateUserRequest
	if !s.decode(w, r, &req) {
		return
	}

	role, err := types.ParseRole(req.Role)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.sendStoreError(w, err, "User")
		return
	}

	user := &types.User{Name: strings.TrimSpace(req.Name), Role: role, PasswordHash: hash}
	if err := s.deps.Database.CreateUser(r.Context(), user); err != nil {
		s.sendStoreError(w, err, "User")
		return
	}
	log.Infof("User %d (%s) created", user.ID, user.Role)

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, user)
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionRead); !ok {
		return
	}
	rooms, err := s.deps.Database.ListRooms(r.Context())
	if err != nil {
		s.sendStoreError(w, err, "Room")
		return
	}
	writeJSON(w, rooms)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionCreateRoom); !ok {
		return
	}
	var req CreateRoomRequest
	if !s.decode(w, r, &req) {
		return
	}

	room := &types.Room{Name: strings.TrimSpace(req.Name), TeacherID: req.TeacherID}
	if err := s.deps.Database.CreateRoom(r.Context(), room); err != nil {
		s.sendStoreError(w, err, "Room")
		return
	}
	log.Infof("Room %d created for teacher %d", room.ID, room.TeacherID)

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, room)
}

func (s *Server) listMaterials(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionRead); !ok {
		return
	}
	roomID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Database.GetRoom(r.Context(), roomID); err != nil {
		s.sendStoreError(w, err, "Room")
		return
	}

	materials, err := s.deps.Database.ListMaterials(r.Context(), roomID)
	if err != nil {
		s.sendStoreError(w, err, "Material")
		return
	}
	writeJSON(w, materials)
}

// FUNCTIONAL DISCOVERY: Teachers may only publish into rooms they teach;
// principals may publish anywhere
func (s *Server) createMaterial(w http.ResponseWriter, r *http.Request) {
	user, ok := s.authorize(w, r, rbac.ActionCreateMaterial)
	if !ok {
		return
	}
	roomID, ok := s.pathID(w, r)
	if !ok {
		return
	}
	var req CreateMaterialRequest
	if !s.decode(w, r, &req) {
		return
	}

	room, err := s.deps.Database.GetRoom(r.Context(), roomID)
	if err != nil {
		s.sendStoreError(w, err, "Room")
		return
	}
	if user.Role == types.RoleTeacher && room.TeacherID != user.ID {
		s.sendError(w, "Not the teacher of this room", http.StatusForbidden)
		return
	}

	material := &types.Material{RoomID: roomID, Title: strings.TrimSpace(req.Title), Body: req.Body}
	if err := s.deps.Database.CreateMaterial(r.Context(), material); err != nil {
		s.sendStoreError(w, err, "Material")
		return
	}
	log.Infof("Material %d created in room %d by user %d", material.ID, roomID, user.ID)

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, material)
}

func (s *Server) roomHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Database.GetRoom(r.Context(), id); err != nil {
		s.sendStoreError(w, err, "Room")
		return
	}
	s.sendHistory(w, r, types.RoomTopic(id))
}

func (s *Server) materialDiscussion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Database.GetMaterial(r.Context(), id); err != nil {
		s.sendStoreError(w, err, "Material")
		return
	}
	s.sendHistory(w, r, types.MaterialTopic(id))
}

// sendHistory answers with the most recent entries of a topic, oldest first.
// ?limit= defaults to the replay window of the topic kind.
func (s *Server) sendHistory(w http.ResponseWriter, r *http.Request, topic types.TopicKey) {
	if _, ok := s.authorize(w, r, rbac.ActionRead); !ok {
		return
	}

	limit := s.deps.Discussion.HistoryLimit(topic.Kind)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	kelas, materiID := types.TopicRefs(topic)
	writeJSON(w, HistoryResponse{
		Topic:    topic.Kind,
		Kelas:    kelas,
		MateriID: materiID,
		Messages: s.deps.Discussion.RecentViews(r.Context(), topic, limit),
	})
}

func (s *Server) online(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, OnlineResponse{Users: s.deps.Presence.OnlineUsers(r.Context())})
}
