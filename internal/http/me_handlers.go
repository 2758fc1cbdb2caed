package httpapi

import (
	"encoding/json"
	"net/http"

	"linova-go/internal/services"
)

type UserUpdateRequest struct {
	Password *string          `json:"password"`
	Data     *UserMetadataDTO `json:"data"`
}

func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := services.GetUser(s.DB, CurrentUserID(r))
	if err != nil {
		writeServiceError(w, s.Log, "get user", err)
		return
	}
	WriteJSON(w, http.StatusOK, buildUserDTO(user))
}

func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UserUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	var update services.AccountUpdate
	if req.Password != nil {
		if len(*req.Password) < minPasswordLength {
			WriteError(w, http.StatusBadRequest, "Password should be at least 6 characters")
			return
		}
		hash, err := s.Tokens.HashPassword(*req.Password)
		if err != nil {
			writeServiceError(w, s.Log, "hash password", err)
			return
		}
		update.PasswordHash = &hash
	}
	if req.Data != nil {
		update.Name = optionalString(req.Data.Name)
		update.FullName = optionalString(req.Data.FullName)
	}
	user, err := services.UpdateAccount(s.DB, CurrentUserID(r), update)
	if err != nil {
		writeServiceError(w, s.Log, "update user", err)
		return
	}
	WriteJSON(w, http.StatusOK, buildUserDTO(user))
}

func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := services.DeleteAccount(s.DB, CurrentUserID(r)); err != nil {
		writeServiceError(w, s.Log, "delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
