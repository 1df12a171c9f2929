package app

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Roizz-soul/Solublog/internal/authpw"
)

type registerRequest struct {
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"max=72"`
	FullName string `json:"full_name" validate:"max=100"`
	UserName string `json:"user_name" validate:"max=50"`
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"max=72"`
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status(r.Context()))
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.service.Stats(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"users":         counts.Users,
		"files":         counts.Posts,
		"notifications": counts.Notifications,
	})
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	if err := s.validate.Struct(body); err != nil {
		s.writeAppError(w, r, validationError(err))
		return
	}

	resp, err := s.service.Auth().Register(r.Context(), authpw.RegisterRequest{
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
		UserName: body.UserName,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	response := map[string]any{
		"id":      resp.User.ID,
		"email":   resp.User.Email,
		"message": "Registration successful. Please check your email to confirm your account.",
	}
	if !s.service.SMTPConfigured() && resp.ConfirmationToken != "" {
		response["devConfirmationToken"] = resp.ConfirmationToken
		response["message"] = "Account created. Confirm your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.Auth().ConfirmEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Email confirmed successfully",
		"id":      user.ID,
	})
}

func (s *HTTPServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	token, err := s.service.Auth().Connect(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *HTTPServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Auth().Disconnect(r.Context(), sessionToken(r)); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body passwordResetRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	body.Email = strings.TrimSpace(body.Email)
	if err := s.validate.Struct(body); err != nil {
		s.writeAppError(w, r, validationError(err))
		return
	}

	token, err := s.service.Auth().RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	response := map[string]any{
		"message": "If an account exists, a reset email has been sent",
	}
	if !s.service.SMTPConfigured() && token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if err := s.decodeAndValidate(w, r, &body); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.service.Auth().ResetPassword(r.Context(), chi.URLParam(r, "token"), body.Password); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}
