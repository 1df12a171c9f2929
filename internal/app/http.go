package app

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/Roizz-soul/Solublog/internal/apperror"
	"github.com/Roizz-soul/Solublog/internal/auth"
	"github.com/Roizz-soul/Solublog/internal/store"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service  *Service
	router   chi.Router
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{
		service:  service,
		validate: newValidator(),
		logger:   service.logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{corsOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.HeaderToken, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: corsOrigin != "*",
		MaxAge:           300,
	}))

	r.Get("/status", s.handleStatus)
	r.Get("/stats", s.handleStats)

	r.Post("/register", s.handleRegister)
	r.Get("/confirm-email/{token}", s.handleConfirmEmail)
	r.Get("/connect", s.handleConnect)
	r.Get("/disconnect", s.handleDisconnect)
	r.Post("/request-password-reset", s.handleRequestPasswordReset)
	r.Post("/reset-password/{token}", s.handleResetPassword)

	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.handleListUsers)
		r.Get("/me", s.handleGetMe)
		r.Put("/me", s.handleUpdateMe)
		r.Get("/{id}", s.handleGetUser)
		r.Delete("/{id}", s.handleDeleteUser)
	})

	r.Route("/blogs", func(r chi.Router) {
		r.Get("/", s.handleListPosts)
		r.Post("/", s.handleCreatePost)
		r.Get("/s/search", s.handleSearchPosts)
		r.Get("/{id}", s.handleGetPost)
		r.Post("/{id}", s.handleCreatePost)
		r.Put("/{id}", s.handleUpdatePost)
		r.Delete("/{id}", s.handleDeletePost)
		r.Post("/{id}/rate", s.handleRatePost)
	})

	r.Get("/notifications", s.handleListNotifications)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	s.router = r
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// requestLog writes one line per request once the handler has returned.
func (s *HTTPServer) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		requestID := middleware.GetReqID(r.Context())
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Header().Set(middleware.RequestIDHeader, requestID)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

// requireUser resolves the X-Token header to a confirmed user, writing the
// 401 itself when it cannot.
func (s *HTTPServer) requireUser(w http.ResponseWriter, r *http.Request) (store.User, bool) {
	user, err := s.service.ResolveUser(r.Context(), sessionToken(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return store.User{}, false
	}
	return user, true
}

func sessionToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(auth.HeaderToken))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":  code,
		"error": message,
	})
}

func (s *HTTPServer) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	writeError(w, status, code, message)
}

func mapError(err error) (status int, code, message string) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.Status(), appErr.Code, appErr.Message
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error"
}

// decodeBody reads a JSON body into target. An empty body leaves target at
// its zero value so the engines report the missing fields.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperror.Validation("invalid JSON body")
	}
	return nil
}

// decodeAndValidate decodes the body and runs its validate tags.
func (s *HTTPServer) decodeAndValidate(w http.ResponseWriter, r *http.Request, target any) error {
	if err := decodeBody(w, r, target); err != nil {
		return err
	}
	if err := s.validate.Struct(target); err != nil {
		return validationError(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.Validation("invalid request")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return apperror.Validation(fe.Field() + " is required")
	case "email":
		return apperror.Validation("Invalid email")
	case "max":
		return apperror.Validation(fe.Field() + " is too long")
	default:
		return apperror.Validation(fe.Field() + " is invalid")
	}
}
