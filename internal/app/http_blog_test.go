package app

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/Roizz-soul/Solublog/internal/blog"
	"github.com/Roizz-soul/Solublog/internal/rbac"
)

type createdPost struct {
	PostID  string   `json:"postId"`
	Post    postView `json:"post"`
	Message string   `json:"message"`
}

func (e *testEnv) createPost(t *testing.T, token, path string, body map[string]string) createdPost {
	t.Helper()
	rr := e.do(t, http.MethodPost, path, token, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST %s: expected 201, got %d: %s", path, rr.Code, rr.Body.String())
	}
	return decode[createdPost](t, rr)
}

func TestCreatePostRequiresConfirmedUser(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/blogs", "", map[string]string{"title": "T", "content": "C"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "Unauthorized" {
		t.Errorf("unexpected error %q", msg)
	}

	rr = env.do(t, http.MethodPost, "/blogs", "bogus-token", map[string]string{"title": "T", "content": "C"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: expected 401, got %d", rr.Code)
	}
}

func TestCreatePostValidation(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signUp(t, "ada@example.com", "Ada")
	root := env.createPost(t, token, "/blogs", map[string]string{"title": "Root", "content": "Body"})

	tests := []struct {
		name string
		path string
		body any
		want string
	}{
		{"root without title", "/blogs", map[string]string{"content": "Body"}, "Title and content are required."},
		{"root without content", "/blogs", map[string]string{"title": "Title"}, "Title and content are required."},
		{"root with blank title", "/blogs", map[string]string{"title": "  ", "content": "Body"}, "Title and content are required."},
		{"empty body", "/blogs", nil, "Title and content are required."},
		{"reply without content", "/blogs/" + root.PostID, map[string]string{"title": "ignored"}, "Content is required."},
		{"malformed json", "/blogs", "{\"title\":", "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, token, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if msg := errorMessage(t, rr); msg != tt.want {
				t.Errorf("expected %q, got %q", tt.want, msg)
			}
		})
	}
}

func TestReplyThreadAndNotification(t *testing.T) {
	env := newTestEnv(t)
	adaToken, adaID := env.signUp(t, "ada@example.com", "Ada")
	bobToken, _ := env.signUp(t, "bob@example.com", "Bob")

	root := env.createPost(t, adaToken, "/blogs", map[string]string{"title": "Engines", "content": "On analytical engines"})
	if root.Message != "Blog post created successfully!" {
		t.Errorf("unexpected message %q", root.Message)
	}
	if root.Post.IsReply || root.Post.ParentID != nil || root.Post.UserName != "Ada" {
		t.Errorf("unexpected root post %+v", root.Post)
	}

	reply := env.createPost(t, bobToken, "/blogs/"+root.PostID, map[string]string{"title": "dropped", "content": "Nice!"})
	if !reply.Post.IsReply || reply.Post.Title != nil {
		t.Errorf("reply should have no title and be marked as reply: %+v", reply.Post)
	}
	if reply.Post.ParentID == nil || *reply.Post.ParentID != root.PostID {
		t.Errorf("reply parent = %v, want %s", reply.Post.ParentID, root.PostID)
	}

	rr := env.do(t, http.MethodGet, "/blogs/"+root.PostID, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get root: expected 200, got %d", rr.Code)
	}
	parent := decode[postView](t, rr)
	if parent.ReplyCount != 1 || len(parent.Replies) != 1 || parent.Replies[0] != reply.PostID {
		t.Errorf("parent bookkeeping wrong: %+v", parent)
	}

	rr = env.do(t, http.MethodGet, "/notifications", adaToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("notifications: expected 200, got %d", rr.Code)
	}
	notes := decode[[]notificationView](t, rr)
	if len(notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notes))
	}
	n := notes[0]
	if n.UserID != adaID || n.Type != "comment" || n.Message != "Bob commented on your post" ||
		n.RelatedEntityID != reply.PostID || n.Read || n.IsImportant {
		t.Errorf("unexpected notification %+v", n)
	}

	if notes := decode[[]notificationView](t, env.do(t, http.MethodGet, "/notifications", bobToken, nil)); len(notes) != 0 {
		t.Errorf("bob should have no notifications, got %d", len(notes))
	}
}

func TestReplyToMissingParent(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signUp(t, "ada@example.com", "Ada")

	rr := env.do(t, http.MethodPost, "/blogs/missing", token, map[string]string{"content": "hello?"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "Parent post not found" {
		t.Errorf("unexpected error %q", msg)
	}
	if posts := decode[[]postView](t, env.do(t, http.MethodGet, "/blogs", "", nil)); len(posts) != 0 {
		t.Errorf("no post should have been stored, got %d", len(posts))
	}
}

func TestListAndGetPosts(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signUp(t, "ada@example.com", "Ada")

	rr := env.do(t, http.MethodGet, "/blogs", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "[]\n" {
		t.Fatalf("empty list: got %d %q", rr.Code, rr.Body.String())
	}

	first := env.createPost(t, token, "/blogs", map[string]string{"title": "One", "content": "1"})
	second := env.createPost(t, token, "/blogs", map[string]string{"title": "Two", "content": "2"})

	posts := decode[[]postView](t, env.do(t, http.MethodGet, "/blogs", "", nil))
	if len(posts) != 2 || posts[0].ID != first.PostID || posts[1].ID != second.PostID {
		t.Errorf("expected insertion order, got %+v", posts)
	}

	if rr := env.do(t, http.MethodGet, "/blogs/unknown", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown post: expected 404, got %d", rr.Code)
	}
}

func TestUpdatePost(t *testing.T) {
	env := newTestEnv(t)
	adaToken, _ := env.signUp(t, "ada@example.com", "Ada")
	bobToken, _ := env.signUp(t, "bob@example.com", "Bob")
	post := env.createPost(t, adaToken, "/blogs", map[string]string{"title": "Draft", "content": "v1"})

	rr := env.do(t, http.MethodPut, "/blogs/"+post.PostID, adaToken, map[string]string{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty update: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/blogs/"+post.PostID, bobToken, map[string]string{"content": "hijacked"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign edit: expected 403, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/blogs/"+post.PostID, adaToken, map[string]string{"content": "v2"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	updated := decode[struct {
		Post postView `json:"post"`
	}](t, rr).Post
	if updated.Content != "v2" || updated.Title == nil || *updated.Title != "Draft" {
		t.Errorf("unexpected post after update %+v", updated)
	}
	if updated.UpdatedAt.Before(updated.CreatedAt) {
		t.Error("updatedAt should not precede createdAt")
	}

	if rr := env.do(t, http.MethodPut, "/blogs/unknown", adaToken, map[string]string{"content": "x"}); rr.Code != http.StatusNotFound {
		t.Errorf("unknown post: expected 404, got %d", rr.Code)
	}
}

func TestOpenEditingAllowsForeignEdits(t *testing.T) {
	env := newTestEnv(t, blog.WithPolicy(rbac.Policy{OpenEditing: true}))
	adaToken, _ := env.signUp(t, "ada@example.com", "Ada")
	bobToken, _ := env.signUp(t, "bob@example.com", "Bob")
	post := env.createPost(t, adaToken, "/blogs", map[string]string{"title": "Wiki", "content": "v1"})

	if rr := env.do(t, http.MethodPut, "/blogs/"+post.PostID, bobToken, map[string]string{"content": "v2"}); rr.Code != http.StatusOK {
		t.Fatalf("open edit: expected 200, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/blogs/"+post.PostID, bobToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("open delete: expected 200, got %d", rr.Code)
	}
}

func TestDeletePostCascades(t *testing.T) {
	env := newTestEnv(t)
	adaToken, _ := env.signUp(t, "ada@example.com", "Ada")
	bobToken, _ := env.signUp(t, "bob@example.com", "Bob")

	root := env.createPost(t, adaToken, "/blogs", map[string]string{"title": "Root", "content": "r"})
	child := env.createPost(t, bobToken, "/blogs/"+root.PostID, map[string]string{"content": "c"})
	grandchild := env.createPost(t, adaToken, "/blogs/"+child.PostID, map[string]string{"content": "g"})
	sibling := env.createPost(t, adaToken, "/blogs/"+root.PostID, map[string]string{"content": "s"})

	if rr := env.do(t, http.MethodDelete, "/blogs/"+child.PostID, adaToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: expected 403, got %d", rr.Code)
	}

	rr := env.do(t, http.MethodDelete, "/blogs/"+child.PostID, bobToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	deleted := decode[struct {
		Deleted []string `json:"deleted"`
	}](t, rr).Deleted
	if len(deleted) != 2 {
		t.Errorf("expected child and grandchild removed, got %v", deleted)
	}

	for _, id := range []string{child.PostID, grandchild.PostID} {
		if rr := env.do(t, http.MethodGet, "/blogs/"+id, "", nil); rr.Code != http.StatusNotFound {
			t.Errorf("post %s should be gone, got %d", id, rr.Code)
		}
	}
	parent := decode[postView](t, env.do(t, http.MethodGet, "/blogs/"+root.PostID, "", nil))
	if parent.ReplyCount != 1 || len(parent.Replies) != 1 || parent.Replies[0] != sibling.PostID {
		t.Errorf("parent should only keep the sibling: %+v", parent)
	}

	if rr := env.do(t, http.MethodDelete, "/blogs/"+child.PostID, bobToken, nil); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rr.Code)
	}
}

func TestRatePost(t *testing.T) {
	env := newTestEnv(t)
	adaToken, _ := env.signUp(t, "ada@example.com", "Ada")
	bobToken, bobID := env.signUp(t, "bob@example.com", "Bob")
	carlToken, _ := env.signUp(t, "carl@example.com", "Carl")
	post := env.createPost(t, adaToken, "/blogs", map[string]string{"title": "Rate me", "content": "please"})
	path := "/blogs/" + post.PostID + "/rate"

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing rating", map[string]any{}, "rating is required"},
		{"too low", map[string]any{"rating": 0}, "Rating must be between 1 and 5"},
		{"too high", map[string]any{"rating": 6}, "Rating must be between 1 and 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, path, bobToken, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if msg := errorMessage(t, rr); msg != tt.want {
				t.Errorf("expected %q, got %q", tt.want, msg)
			}
		})
	}

	rr := env.do(t, http.MethodPost, path, bobToken, map[string]int{"rating": 5})
	if rr.Code != http.StatusOK {
		t.Fatalf("rate: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if avg := decode[map[string]any](t, rr)["averageRating"]; avg != 5.0 {
		t.Errorf("expected average 5, got %v", avg)
	}

	rr = env.do(t, http.MethodPost, path, bobToken, map[string]int{"rating": 1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("second vote: expected 400, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "User has already rated this post" {
		t.Errorf("unexpected error %q", msg)
	}

	env.do(t, http.MethodPost, path, carlToken, map[string]int{"rating": 4})
	rr = env.do(t, http.MethodPost, path, adaToken, map[string]int{"rating": 4})
	if avg := decode[map[string]any](t, rr)["averageRating"]; avg != 4.33 {
		t.Errorf("expected average 4.33, got %v", avg)
	}

	got := decode[postView](t, env.do(t, http.MethodGet, "/blogs/"+post.PostID, "", nil))
	if len(got.Ratings) != 3 || got.Ratings[0].UserID != bobID || got.AverageRating != 4.33 {
		t.Errorf("ratings not keyed by rater: %+v", got.Ratings)
	}

	if rr := env.do(t, http.MethodPost, "/blogs/unknown/rate", bobToken, map[string]int{"rating": 3}); rr.Code != http.StatusNotFound {
		t.Errorf("unknown post: expected 404, got %d", rr.Code)
	}
}

func TestSearchPosts(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signUp(t, "ada@example.com", "Ada")
	env.createPost(t, token, "/blogs", map[string]string{"title": "Go Concurrency", "content": "channels"})
	env.createPost(t, token, "/blogs", map[string]string{"title": "Cooking", "content": "a pinch of GO-juice"})
	env.createPost(t, token, "/blogs", map[string]string{"title": "Regex", "content": "match a.b literally"})

	tests := []struct {
		query string
		want  int
	}{
		{"go", 2},
		{"CHANNELS", 1},
		{"a.b", 1},
		{".*", 0},
		{"", 3},
		{"nothing-matches", 0},
	}
	for _, tt := range tests {
		rr := env.do(t, http.MethodGet, "/blogs/s/search?query="+url.QueryEscape(tt.query), "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("search %q: expected 200, got %d", tt.query, rr.Code)
		}
		if got := decode[[]postView](t, rr); len(got) != tt.want {
			t.Errorf("search %q: expected %d results, got %d", tt.query, tt.want, len(got))
		}
	}
}

func TestListNotificationsLimit(t *testing.T) {
	env := newTestEnv(t)
	adaToken, _ := env.signUp(t, "ada@example.com", "Ada")
	bobToken, _ := env.signUp(t, "bob@example.com", "Bob")
	root := env.createPost(t, adaToken, "/blogs", map[string]string{"title": "Root", "content": "r"})
	first := env.createPost(t, bobToken, "/blogs/"+root.PostID, map[string]string{"content": "1"})
	second := env.createPost(t, bobToken, "/blogs/"+root.PostID, map[string]string{"content": "2"})

	notes := decode[[]notificationView](t, env.do(t, http.MethodGet, "/notifications", adaToken, nil))
	if len(notes) != 2 || notes[0].RelatedEntityID != second.PostID || notes[1].RelatedEntityID != first.PostID {
		t.Errorf("expected newest first, got %+v", notes)
	}

	notes = decode[[]notificationView](t, env.do(t, http.MethodGet, "/notifications?limit=1", adaToken, nil))
	if len(notes) != 1 || notes[0].RelatedEntityID != second.PostID {
		t.Errorf("limit=1 should return the newest, got %+v", notes)
	}

	for _, bad := range []string{"0", "-1", "abc"} {
		if rr := env.do(t, http.MethodGet, "/notifications?limit="+bad, adaToken, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", bad, rr.Code)
		}
	}
	if rr := env.do(t, http.MethodGet, "/notifications", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected 401, got %d", rr.Code)
	}
}
