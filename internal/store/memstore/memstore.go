// Package memstore keeps the document store in process memory. It backs tests
// and STORE_BACKEND=memory local runs.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Roizz-soul/Solublog/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	posts         map[string]store.Post
	postOrder     []string
	users         map[string]store.User
	userOrder     []string
	notifications []store.Notification
}

var _ store.Backend = (*Store)(nil)

func New() *Store {
	return &Store{
		posts: make(map[string]store.Post),
		users: make(map[string]store.User),
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) Counts(context.Context) (store.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Counts{
		Users:         int64(len(s.users)),
		Posts:         int64(len(s.posts)),
		Notifications: int64(len(s.notifications)),
	}, nil
}

func clonePost(p store.Post) store.Post {
	p.Replies = append([]string{}, p.Replies...)
	p.Ratings = append([]store.Rating{}, p.Ratings...)
	if p.Title != nil {
		title := *p.Title
		p.Title = &title
	}
	if p.ParentID != nil {
		parent := *p.ParentID
		p.ParentID = &parent
	}
	return p
}

func cloneUser(u store.User) store.User {
	u.Interests = slices.Clone(u.Interests)
	u.Skills = slices.Clone(u.Skills)
	if u.SocialLinks != nil {
		links := make(map[string]string, len(u.SocialLinks))
		for k, v := range u.SocialLinks {
			links[k] = v
		}
		u.SocialLinks = links
	}
	if u.ResetTokenExpiresAt != nil {
		expiry := *u.ResetTokenExpiresAt
		u.ResetTokenExpiresAt = &expiry
	}
	return u
}

func (s *Store) CreatePost(_ context.Context, post store.Post) (store.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	post.Replies = []string{}
	post.ReplyCount = 0
	post.Ratings = []store.Rating{}
	post.AverageRating = 0
	post.IsReply = post.ParentID != nil

	if post.ParentID != nil {
		parent, ok := s.posts[*post.ParentID]
		if !ok {
			return store.Post{}, fmt.Errorf("create post: parent %s: %w", *post.ParentID, store.ErrNotFound)
		}
		parent.Replies = append(parent.Replies, post.ID)
		parent.ReplyCount = len(parent.Replies)
		s.posts[parent.ID] = parent
	}

	s.posts[post.ID] = clonePost(post)
	s.postOrder = append(s.postOrder, post.ID)
	return clonePost(post), nil
}

func (s *Store) GetPost(_ context.Context, id string) (store.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return store.Post{}, fmt.Errorf("get post %s: %w", id, store.ErrNotFound)
	}
	return clonePost(post), nil
}

func (s *Store) ListPosts(context.Context) ([]store.Post, error) {
	return s.filterPosts(func(store.Post) bool { return true }), nil
}

func (s *Store) filterPosts(keep func(store.Post) bool) []store.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := []store.Post{}
	for _, id := range s.postOrder {
		if post := s.posts[id]; keep(post) {
			posts = append(posts, clonePost(post))
		}
	}
	return posts
}

func (s *Store) GetPostsByIDs(_ context.Context, ids []string) ([]store.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posts := []store.Post{}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if post, ok := s.posts[id]; ok && !seen[id] {
			seen[id] = true
			posts = append(posts, clonePost(post))
		}
	}
	return posts, nil
}

func (s *Store) SearchPosts(_ context.Context, query string) ([]store.Post, error) {
	return s.filterPosts(func(p store.Post) bool { return p.Matches(query) }), nil
}

func (s *Store) UpdatePost(_ context.Context, id string, title, content *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return fmt.Errorf("update post %s: %w", id, store.ErrNotFound)
	}
	if title != nil {
		value := *title
		post.Title = &value
	}
	if content != nil {
		post.Content = *content
	}
	post.UpdatedAt = at
	s.posts[id] = post
	return nil
}

func (s *Store) DeletePost(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("delete post %s: %w", id, store.ErrNotFound)
	}

	if post.ParentID != nil {
		if parent, ok := s.posts[*post.ParentID]; ok {
			parent.Replies = slices.DeleteFunc(parent.Replies, func(reply string) bool { return reply == id })
			parent.ReplyCount = len(parent.Replies)
			s.posts[parent.ID] = parent
		}
	}

	removed := []string{}
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		node, ok := s.posts[current]
		if !ok {
			continue
		}
		removed = append(removed, current)
		queue = append(queue, node.Replies...)
		delete(s.posts, current)
	}

	gone := make(map[string]bool, len(removed))
	for _, r := range removed {
		gone[r] = true
	}
	s.postOrder = slices.DeleteFunc(s.postOrder, func(postID string) bool { return gone[postID] })
	return removed, nil
}

func (s *Store) AddRating(_ context.Context, postID string, rating store.Rating) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postID]
	if !ok {
		return 0, fmt.Errorf("rate post %s: %w", postID, store.ErrNotFound)
	}
	for _, existing := range post.Ratings {
		if existing.UserID == rating.UserID {
			return 0, fmt.Errorf("rate post %s: %w", postID, store.ErrAlreadyRated)
		}
	}
	post.Ratings = append(post.Ratings, rating)
	post.AverageRating = store.AverageRating(post.Ratings)
	s.posts[postID] = post
	return post.AverageRating, nil
}

func (s *Store) InsertNotification(_ context.Context, n store.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, limit int) ([]store.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := []store.Notification{}
	// Walk backwards so equal timestamps keep newest-inserted first.
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			items = append(items, s.notifications[i])
		}
	}
	slices.SortStableFunc(items, func(a, b store.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) CreateUser(_ context.Context, user store.User) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = store.NormalizeEmail(user.Email)
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return store.User{}, fmt.Errorf("create user: %w", store.ErrEmailTaken)
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = cloneUser(user)
	s.userOrder = append(s.userOrder, user.ID)
	return cloneUser(user), nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return store.User{}, fmt.Errorf("get user %s: %w", id, store.ErrNotFound)
	}
	return cloneUser(user), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = store.NormalizeEmail(email)
	for _, user := range s.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return store.User{}, fmt.Errorf("get user by email: %w", store.ErrNotFound)
}

func (s *Store) ListUsers(context.Context) ([]store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]store.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		users = append(users, cloneUser(s.users[id]))
	}
	return users, nil
}

func (s *Store) ConfirmUser(_ context.Context, token string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != "" {
		for id, user := range s.users {
			if user.ConfirmationToken == token {
				user.IsConfirmed = true
				user.ConfirmationToken = ""
				user.UpdatedAt = time.Now()
				s.users[id] = user
				return cloneUser(user), nil
			}
		}
	}
	return store.User{}, fmt.Errorf("confirm user: %w", store.ErrNotFound)
}

func (s *Store) SetResetToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("set reset token %s: %w", userID, store.ErrNotFound)
	}
	user.ResetToken = token
	user.ResetTokenExpiresAt = &expiresAt
	s.users[userID] = user
	return nil
}

func (s *Store) ResetPassword(_ context.Context, token, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != "" {
		for id, user := range s.users {
			if user.ResetToken != token {
				continue
			}
			if user.ResetTokenExpiresAt == nil || !user.ResetTokenExpiresAt.After(now) {
				break
			}
			user.PasswordHash = passwordHash
			user.ResetToken = ""
			user.ResetTokenExpiresAt = nil
			user.UpdatedAt = now
			s.users[id] = user
			return nil
		}
	}
	return fmt.Errorf("reset password: %w", store.ErrNotFound)
}

func (s *Store) UpdateProfile(_ context.Context, userID string, update store.ProfileUpdate) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return store.User{}, fmt.Errorf("update profile %s: %w", userID, store.ErrNotFound)
	}
	for _, field := range []struct {
		target *string
		value  *string
	}{
		{&user.FullName, update.FullName},
		{&user.UserName, update.UserName},
		{&user.Bio, update.Bio},
		{&user.Location, update.Location},
		{&user.Occupation, update.Occupation},
		{&user.Portfolio, update.Portfolio},
	} {
		if field.value != nil {
			*field.target = *field.value
		}
	}
	if update.Interests != nil {
		user.Interests = slices.Clone(update.Interests)
	}
	if update.Skills != nil {
		user.Skills = slices.Clone(update.Skills)
	}
	if update.SocialLinks != nil {
		user.SocialLinks = update.SocialLinks
	}
	user.UpdatedAt = time.Now()
	s.users[userID] = cloneUser(user)
	return cloneUser(user), nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("delete user %s: %w", id, store.ErrNotFound)
	}
	delete(s.users, id)
	s.userOrder = slices.DeleteFunc(s.userOrder, func(userID string) bool { return userID == id })
	return nil
}
