package app

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Roizz-soul/Solublog/internal/apperror"
	"github.com/Roizz-soul/Solublog/internal/blog"
)

type createPostRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=300"`
	Content string  `json:"content" validate:"max=50000"`
}

type updatePostRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=300"`
	Content *string `json:"content" validate:"omitempty,max=50000"`
}

type ratePostRequest struct {
	Rating *int `json:"rating" validate:"required"`
}

// handleCreatePost serves both POST /blogs and POST /blogs/{id}; the second
// form is a reply to {id}.
func (s *HTTPServer) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var body createPostRequest
	if err := s.decodeAndValidate(w, r, &body); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	in := blog.CreatePostInput{Title: body.Title, Content: body.Content}
	if parentID := chi.URLParam(r, "id"); parentID != "" {
		in.ParentID = &parentID
	}
	post, err := s.service.Blog().CreatePost(r.Context(), AuthorOf(user), in)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"postId":  post.ID,
		"post":    newPostView(post),
		"message": "Blog post created successfully!",
	})
}

func (s *HTTPServer) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.service.Blog().GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPostView(post))
}

func (s *HTTPServer) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.service.Blog().ListPosts(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPostViews(posts))
}

func (s *HTTPServer) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var body updatePostRequest
	if err := s.decodeAndValidate(w, r, &body); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	post, err := s.service.Blog().UpdatePost(r.Context(), AuthorOf(user), chi.URLParam(r, "id"), blog.UpdatePostInput{
		Title:   body.Title,
		Content: body.Content,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Blog post updated successfully",
		"post":    newPostView(post),
	})
}

func (s *HTTPServer) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	removed, err := s.service.Blog().DeletePost(r.Context(), AuthorOf(user), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Blog post deleted successfully",
		"deleted": removed,
	})
}

func (s *HTTPServer) handleRatePost(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var body ratePostRequest
	if err := s.decodeAndValidate(w, r, &body); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	avg, err := s.service.Blog().RatePost(r.Context(), AuthorOf(user), chi.URLParam(r, "id"), *body.Rating)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"averageRating": avg,
		"message":       "Post rated successfully",
	})
}

func (s *HTTPServer) handleSearchPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.service.Blog().SearchPosts(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPostViews(posts))
}

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeAppError(w, r, apperror.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	items, err := s.service.Notifications().List(r.Context(), user.ID, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newNotificationViews(items))
}
