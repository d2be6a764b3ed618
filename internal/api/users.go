package api

import (
	"net/http"
)

// handleGetMyProfile returns the signed-in athlete's profile.
func (s *Server) handleGetMyProfile(w http.ResponseWriter, r *http.Request) {
	user, status, err := s.currentUser(r)
	if err != nil {
		s.errorJSON(w, err, status)
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{"user": toUserResponse(user)})
}
