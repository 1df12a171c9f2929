package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Roizz-soul/Solublog/internal/store"
)

type updateProfileRequest struct {
	FullName    *string           `json:"full_name" validate:"omitempty,max=100"`
	UserName    *string           `json:"user_name" validate:"omitempty,max=50"`
	Bio         *string           `json:"bio" validate:"omitempty,max=2000"`
	Location    *string           `json:"location" validate:"omitempty,max=100"`
	Occupation  *string           `json:"occupation" validate:"omitempty,max=100"`
	Portfolio   *string           `json:"portfolio" validate:"omitempty,max=500"`
	Interests   []string          `json:"interests" validate:"omitempty,max=50,dive,max=100"`
	Skills      []string          `json:"skills" validate:"omitempty,max=50,dive,max=100"`
	SocialLinks map[string]string `json:"social_links" validate:"omitempty,max=20,dive,keys,max=50,endkeys,max=500"`
}

func (s *HTTPServer) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user, true))
}

func (s *HTTPServer) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var body updateProfileRequest
	if err := s.decodeAndValidate(w, r, &body); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	updated, err := s.service.UpdateProfile(r.Context(), user, store.ProfileUpdate{
		FullName:    body.FullName,
		UserName:    body.UserName,
		Bio:         body.Bio,
		Location:    body.Location,
		Occupation:  body.Occupation,
		Portfolio:   body.Portfolio,
		Interests:   body.Interests,
		Skills:      body.Skills,
		SocialLinks: body.SocialLinks,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"user":    newUserView(updated, true),
	})
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u, false))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user, false))
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteUser(r.Context(), user, sessionToken(r), chi.URLParam(r, "id")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "User deleted successfully",
	})
}
