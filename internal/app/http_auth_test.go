package app

import (
	"net/http"
	"testing"
)

func TestAccountLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/register", "", map[string]string{
		"email":    "  Grace@Example.com ",
		"password": testPassword,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	reg := decode[map[string]any](t, rr)
	if reg["email"] != "grace@example.com" {
		t.Errorf("expected normalized email, got %v", reg["email"])
	}

	// Connecting works before confirmation, but the session is not usable yet.
	rr = env.connect(t, "grace@example.com", testPassword)
	if rr.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d", rr.Code)
	}
	token := decode[map[string]string](t, rr)["token"]
	if token == "" {
		t.Fatal("expected a session token")
	}
	if got := env.redis.Exists("auth_" + token); !got {
		t.Error("expected session key auth_<token> in redis")
	}

	rr = env.do(t, http.MethodGet, "/users/me", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unconfirmed /users/me: expected 401, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "Please confirm email" {
		t.Errorf("unexpected error %q", msg)
	}

	confirm := reg["devConfirmationToken"].(string)
	if rr := env.do(t, http.MethodGet, "/confirm-email/"+confirm, "", nil); rr.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/confirm-email/"+confirm, "", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("second confirm: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/users/me", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("/users/me: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	me := decode[map[string]any](t, rr)
	if me["email"] != "grace@example.com" || me["isConfirmed"] != true {
		t.Errorf("unexpected profile %v", me)
	}
	if _, leaked := me["password"]; leaked {
		t.Error("password hash must not be serialized")
	}

	if rr := env.do(t, http.MethodGet, "/disconnect", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("disconnect: expected 204, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/users/me", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("after disconnect: expected 401, got %d", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "Unauthorized" {
		t.Errorf("unexpected error %q", msg)
	}
	if rr := env.do(t, http.MethodGet, "/disconnect", token, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("second disconnect: expected 401, got %d", rr.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "taken@example.com", "Taken")

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing email", map[string]string{"password": testPassword}, "Missing email"},
		{"missing password", map[string]string{"email": "new@example.com"}, "Missing password"},
		{"short password", map[string]string{"email": "new@example.com", "password": "short"}, "Password must be at least 8 characters"},
		{"malformed email", map[string]string{"email": "not-an-email", "password": testPassword}, "Invalid email"},
		{"duplicate", map[string]string{"email": "TAKEN@example.com", "password": testPassword}, "Already exist"},
		{"bad json", "{", "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/register", "", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if msg := errorMessage(t, rr); msg != tt.want {
				t.Errorf("expected %q, got %q", tt.want, msg)
			}
		})
	}
}

func TestConnectRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "ada@example.com", "Ada")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "ada@example.com", "wrong-password"},
		{"unknown user", "nobody@example.com", testPassword},
		{"empty password", "ada@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.connect(t, tt.email, tt.password)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if msg := errorMessage(t, rr); msg != "Unauthorized" {
				t.Errorf("unexpected error %q", msg)
			}
		})
	}

	rr := env.do(t, http.MethodGet, "/connect", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing header: expected 401, got %d", rr.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "ada@example.com", "Ada")

	rr := env.do(t, http.MethodPost, "/request-password-reset", "", map[string]string{"email": "nobody@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown email: expected 200, got %d", rr.Code)
	}
	if _, ok := decode[map[string]any](t, rr)["devResetToken"]; ok {
		t.Error("unknown email must not yield a reset token")
	}

	rr = env.do(t, http.MethodPost, "/request-password-reset", "", map[string]string{"email": "ADA@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("request reset: expected 200, got %d", rr.Code)
	}
	resetToken, _ := decode[map[string]any](t, rr)["devResetToken"].(string)
	if resetToken == "" {
		t.Fatal("expected devResetToken")
	}

	rr = env.do(t, http.MethodPost, "/reset-password/"+resetToken, "", map[string]string{"password": "short"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/reset-password/"+resetToken, "", map[string]string{"password": "new-password-1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/reset-password/"+resetToken, "", map[string]string{"password": "new-password-2"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("reused token: expected 400, got %d", rr.Code)
	}

	if rr := env.connect(t, "ada@example.com", testPassword); rr.Code != http.StatusUnauthorized {
		t.Errorf("old password: expected 401, got %d", rr.Code)
	}
	if rr := env.connect(t, "ada@example.com", "new-password-1"); rr.Code != http.StatusOK {
		t.Errorf("new password: expected 200, got %d", rr.Code)
	}
}

func TestProfileEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token, id := env.signUp(t, "ada@example.com", "Ada")
	_, otherID := env.signUp(t, "bob@example.com", "Bob")

	rr := env.do(t, http.MethodPut, "/users/me", token, map[string]any{
		"bio":          "Mathematician",
		"interests":    []string{"engines", "poetry"},
		"social_links": map[string]string{"github": "https://github.com/ada"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update profile: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	updated := decode[struct {
		User userView `json:"user"`
	}](t, rr).User
	if updated.Bio != "Mathematician" || len(updated.Interests) != 2 || updated.FullName != "Ada" {
		t.Errorf("unexpected profile after update: %+v", updated)
	}

	rr = env.do(t, http.MethodPut, "/users/me", token, map[string]any{"interests": make([]string, 51)})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("oversized interests: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/users/"+id, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get user: expected 200, got %d", rr.Code)
	}
	public := decode[map[string]any](t, rr)
	if _, ok := public["email"]; ok {
		t.Error("public profile must not expose email")
	}

	users := decode[[]userView](t, env.do(t, http.MethodGet, "/users", "", nil))
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}

	if rr := env.do(t, http.MethodGet, "/users/does-not-exist", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown user: expected 404, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/users/"+otherID, token, nil); rr.Code != http.StatusForbidden {
		t.Errorf("deleting another account: expected 403, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/users/"+id, token, nil); rr.Code != http.StatusOK {
		t.Fatalf("deleting own account: expected 200, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/users/me", token, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("after account deletion: expected 401, got %d", rr.Code)
	}
}
