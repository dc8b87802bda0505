package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"medroom/internal/session"
	"medroom/pkg/types"
)

type CreateRoomRequest struct {
	DoctorEmail  string `json:"doctorEmail"`
	PatientEmail string `json:"patientEmail"`
}

type CreateRoomResponse struct {
	Token      string `json:"token"`
	RoomID     string `json:"roomId"`
	InviteLink string `json:"inviteLink"`
}

type ValidateResponse struct {
	Valid  bool       `json:"valid"`
	Role   types.Role `json:"role,omitempty"`
	RoomID string     `json:"roomId,omitempty"`
	Error  string     `json:"error,omitempty"`
}

type ListRoomsResponse struct {
	Rooms []session.RoomSummary `json:"rooms"`
}

// inviteLink builds the URL a participant opens to enter the room
func (s *Server) inviteLink(token string) string {
	return strings.TrimRight(s.options.PublicURL, "/") + "/consultation?token=" + url.QueryEscape(token)
}

// createRoom issues an invitation and its room (POST /api/rooms)
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	invitation, err := s.store.CreateInvitation(r.Context(), req.DoctorEmail, req.PatientEmail)
	if err != nil {
		s.sendFailure(w, err, "Failed to create room")
		return
	}

	s.writeJSON(w, http.StatusCreated, CreateRoomResponse{
		Token:      invitation.Token,
		RoomID:     invitation.RoomID,
		InviteLink: s.inviteLink(invitation.Token),
	})
}

// validateRoom checks a token and email pair (GET /api/rooms/validate).
// FUNCTIONAL DISCOVERY: Failures keep the {valid:false} body so clients can
// branch on one field
func (s *Server) validateRoom(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	email := r.URL.Query().Get("email")
	if token == "" || email == "" {
		s.writeJSON(w, http.StatusBadRequest, ValidateResponse{Valid: false, Error: "token and email are required"})
		return
	}

	role, roomID, err := s.store.ValidateAccess(token, email)
	if err != nil {
		code := statusFor(err)
		message := "Unable to validate invitation"
		if code == http.StatusNotFound || code == http.StatusForbidden {
			message = err.Error()
		}
		s.writeJSON(w, code, ValidateResponse{Valid: false, Error: message})
		return
	}
	s.writeJSON(w, http.StatusOK, ValidateResponse{Valid: true, Role: role, RoomID: roomID})
}

// listRooms returns the rooms an email participates in (GET /api/rooms?email=)
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if !types.IsValidEmail(email) {
		s.sendError(w, types.ErrInvalidEmail.Error(), http.StatusBadRequest)
		return
	}

	rooms := s.store.ListRooms(email)
	for i := range rooms {
		rooms[i].Connections = s.connections.CountRoom(rooms[i].RoomID)
	}
	s.writeJSON(w, http.StatusOK, ListRoomsResponse{Rooms: rooms})
}

// deleteRoom closes a room for everyone (DELETE /api/rooms/{token}?email=)
func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	email := r.URL.Query().Get("email")
	if email == "" {
		s.sendError(w, "email is required", http.StatusBadRequest)
		return
	}

	invitation, err := s.rooms.DeleteRoom(token, email)
	if err != nil {
		s.sendFailure(w, err, "Failed to delete room")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Room deleted successfully",
		"roomId":  invitation.RoomID,
	})
}
