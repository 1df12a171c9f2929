// Package storetest holds the behaviour every store.Backend must satisfy.
// Backend packages run it from their own tests against a fresh instance.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Roizz-soul/Solublog/internal/store"
)

// Factory returns an empty backend. Cleanup is the factory's business.
type Factory func(t *testing.T) store.Backend

func Run(t *testing.T, newBackend Factory) {
	t.Run("CreateAndGetRootPost", func(t *testing.T) { testCreateAndGetRootPost(t, newBackend(t)) })
	t.Run("ReplyLinksParent", func(t *testing.T) { testReplyLinksParent(t, newBackend(t)) })
	t.Run("ReplyToMissingParentLeavesNothing", func(t *testing.T) { testReplyToMissingParent(t, newBackend(t)) })
	t.Run("ConcurrentRepliesKeepCount", func(t *testing.T) { testConcurrentReplies(t, newBackend(t)) })
	t.Run("DeleteReplyUnlinksParent", func(t *testing.T) { testDeleteReplyUnlinks(t, newBackend(t)) })
	t.Run("DeleteCascadesToDescendants", func(t *testing.T) { testDeleteCascades(t, newBackend(t)) })
	t.Run("DeleteRacingRepliesReportsEveryRemoval", func(t *testing.T) { testDeleteRacingReplies(t, newBackend(t)) })
	t.Run("UpdatePostPartial", func(t *testing.T) { testUpdatePostPartial(t, newBackend(t)) })
	t.Run("Ratings", func(t *testing.T) { testRatings(t, newBackend(t)) })
	t.Run("ConcurrentRatingsAreNotLost", func(t *testing.T) { testConcurrentRatings(t, newBackend(t)) })
	t.Run("SearchPosts", func(t *testing.T) { testSearchPosts(t, newBackend(t)) })
	t.Run("ListAndLookupOrder", func(t *testing.T) { testListAndLookupOrder(t, newBackend(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newBackend(t)) })
	t.Run("UserLifecycle", func(t *testing.T) { testUserLifecycle(t, newBackend(t)) })
	t.Run("PasswordReset", func(t *testing.T) { testPasswordReset(t, newBackend(t)) })
	t.Run("Counts", func(t *testing.T) { testCounts(t, newBackend(t)) })
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func strPtr(s string) *string { return &s }

func mustRoot(t *testing.T, b store.Backend, title, content string) store.Post {
	t.Helper()
	at := now()
	post, err := b.CreatePost(context.Background(), store.Post{
		Title:     strPtr(title),
		Content:   content,
		UserID:    uuid.NewString(),
		UserName:  "Ada",
		CreatedAt: at,
		UpdatedAt: at,
	})
	require.NoError(t, err)
	return post
}

func mustReply(t *testing.T, b store.Backend, parentID, content string) store.Post {
	t.Helper()
	at := now()
	post, err := b.CreatePost(context.Background(), store.Post{
		Content:   content,
		UserID:    uuid.NewString(),
		UserName:  "Grace",
		ParentID:  strPtr(parentID),
		CreatedAt: at,
		UpdatedAt: at,
	})
	require.NoError(t, err)
	return post
}

func testCreateAndGetRootPost(t *testing.T, b store.Backend) {
	ctx := context.Background()
	created := mustRoot(t, b, "Hello", "First post")

	got, err := b.GetPost(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Hello", *got.Title)
	assert.Equal(t, "First post", got.Content)
	assert.Equal(t, "Ada", got.UserName)
	assert.Nil(t, got.ParentID)
	assert.False(t, got.IsReply)
	assert.Empty(t, got.Replies)
	assert.Zero(t, got.ReplyCount)
	assert.Empty(t, got.Ratings)
	assert.Zero(t, got.AverageRating)

	_, err = b.GetPost(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testReplyLinksParent(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "T", "C")
	reply := mustReply(t, b, root.ID, "R")

	assert.True(t, reply.IsReply)
	assert.Nil(t, reply.Title)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	parent, err := b.GetPost(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, parent.ReplyCount)
	assert.Equal(t, []string{reply.ID}, parent.Replies)
}

func testReplyToMissingParent(t *testing.T, b store.Backend) {
	ctx := context.Background()
	mustRoot(t, b, "T", "C")

	_, err := b.CreatePost(ctx, store.Post{
		Content:   "orphan",
		UserID:    uuid.NewString(),
		ParentID:  strPtr(uuid.NewString()),
		CreatedAt: now(),
		UpdatedAt: now(),
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	posts, err := b.ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func testConcurrentReplies(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "T", "C")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.CreatePost(ctx, store.Post{
				Content:   "reply",
				UserID:    uuid.NewString(),
				ParentID:  strPtr(root.ID),
				CreatedAt: now(),
				UpdatedAt: now(),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	parent, err := b.GetPost(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, n, parent.ReplyCount)
	assert.Len(t, parent.Replies, n)
}

func testDeleteReplyUnlinks(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "T", "C")
	keep := mustReply(t, b, root.ID, "keep")
	drop := mustReply(t, b, root.ID, "drop")

	removed, err := b.DeletePost(ctx, drop.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{drop.ID}, removed)

	parent, err := b.GetPost(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, parent.ReplyCount)
	assert.Equal(t, []string{keep.ID}, parent.Replies)

	_, err = b.DeletePost(ctx, drop.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteCascades(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "T", "C")
	child := mustReply(t, b, root.ID, "child")
	grandchild := mustReply(t, b, child.ID, "grandchild")
	other := mustRoot(t, b, "Other", "untouched")

	removed, err := b.DeletePost(ctx, root.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{root.ID, child.ID, grandchild.ID}, removed)

	for _, id := range []string{root.ID, child.ID, grandchild.ID} {
		_, err := b.GetPost(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
	_, err = b.GetPost(ctx, other.ID)
	assert.NoError(t, err)
}

// Replies created while their ancestor is being deleted must either fail with
// ErrNotFound or show up in the removed ids.
func testDeleteRacingReplies(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "T", "C")
	child := mustReply(t, b, root.ID, "child")

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []string
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			post, err := b.CreatePost(ctx, store.Post{
				Content:   "late reply",
				UserID:    uuid.NewString(),
				ParentID:  strPtr(child.ID),
				CreatedAt: now(),
				UpdatedAt: now(),
			})
			if err != nil {
				assert.ErrorIs(t, err, store.ErrNotFound)
				return
			}
			mu.Lock()
			created = append(created, post.ID)
			mu.Unlock()
		}()
	}

	close(start)
	removed, err := b.DeletePost(ctx, root.ID)
	wg.Wait()
	require.NoError(t, err)

	assert.Contains(t, removed, root.ID)
	assert.Contains(t, removed, child.ID)
	for _, id := range created {
		_, err := b.GetPost(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			assert.Contains(t, removed, id, "reply %s vanished without being reported", id)
			continue
		}
		t.Errorf("reply %s outlived its deleted ancestor (err=%v)", id, err)
	}
}

func testUpdatePostPartial(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "Title", "Body")
	later := root.UpdatedAt.Add(time.Minute)

	require.NoError(t, b.UpdatePost(ctx, root.ID, nil, strPtr("Edited body"), later))

	got, err := b.GetPost(ctx, root.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Title", *got.Title)
	assert.Equal(t, "Edited body", got.Content)
	assert.WithinDuration(t, later, got.UpdatedAt, time.Millisecond)

	err = b.UpdatePost(ctx, uuid.NewString(), strPtr("x"), nil, later)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRatings(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "T", "C")
	first, second := uuid.NewString(), uuid.NewString()

	avg, err := b.AddRating(ctx, root.ID, store.Rating{UserID: first, Rating: 5})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, avg, 1e-9)

	avg, err = b.AddRating(ctx, root.ID, store.Rating{UserID: second, Rating: 3})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, avg, 1e-9)

	_, err = b.AddRating(ctx, root.ID, store.Rating{UserID: first, Rating: 1})
	assert.ErrorIs(t, err, store.ErrAlreadyRated)

	_, err = b.AddRating(ctx, root.ID, store.Rating{UserID: uuid.NewString(), Rating: 2})
	require.NoError(t, err)

	got, err := b.GetPost(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, got.Ratings, 3)
	assert.Equal(t, first, got.Ratings[0].UserID)
	assert.Equal(t, second, got.Ratings[1].UserID)
	assert.InDelta(t, 3.33, got.AverageRating, 1e-9)
	assert.InDelta(t, store.AverageRating(got.Ratings), got.AverageRating, 1e-9)

	_, err = b.AddRating(ctx, uuid.NewString(), store.Rating{UserID: first, Rating: 4})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentRatings(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "T", "C")

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.AddRating(ctx, root.ID, store.Rating{UserID: uuid.NewString(), Rating: i%5 + 1})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := b.GetPost(ctx, root.ID)
	require.NoError(t, err)
	assert.Len(t, got.Ratings, n)
	assert.InDelta(t, store.AverageRating(got.Ratings), got.AverageRating, 1e-9)
}

func testSearchPosts(t *testing.T, b store.Backend) {
	ctx := context.Background()
	golang := mustRoot(t, b, "Learning Go", "channels and goroutines")
	mustRoot(t, b, "Cooking", "A GOOD soup needs time")
	discount := mustRoot(t, b, "Sale", "100% off today")

	hits, err := b.SearchPosts(ctx, "go")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = b.SearchPosts(ctx, "GOROUTINES")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, golang.ID, hits[0].ID)

	hits, err = b.SearchPosts(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, discount.ID, hits[0].ID)

	hits, err = b.SearchPosts(ctx, "nonexistent-term-xyz")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = b.SearchPosts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func testListAndLookupOrder(t *testing.T, b store.Backend) {
	ctx := context.Background()
	a := mustRoot(t, b, "A", "a")
	c := mustRoot(t, b, "B", "b")
	d := mustReply(t, b, a.ID, "reply")

	posts, err := b.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, []string{a.ID, c.ID, d.ID}, []string{posts[0].ID, posts[1].ID, posts[2].ID})

	byIDs, err := b.GetPostsByIDs(ctx, []string{d.ID, uuid.NewString(), a.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, d.ID, byIDs[0].ID)
	assert.Equal(t, a.ID, byIDs[1].ID)
}

func testNotifications(t *testing.T, b store.Backend) {
	ctx := context.Background()
	recipient, other := uuid.NewString(), uuid.NewString()
	base := now()

	for i, msg := range []string{"first", "second", "third"} {
		require.NoError(t, b.InsertNotification(ctx, store.Notification{
			UserID:          recipient,
			UserName:        "Grace",
			Message:         msg,
			Type:            "comment",
			RelatedEntityID: uuid.NewString(),
			CreatedAt:       base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, b.InsertNotification(ctx, store.Notification{
		UserID: other, Message: "elsewhere", Type: "comment", CreatedAt: base,
	}))

	items, err := b.ListNotifications(ctx, recipient, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{items[0].Message, items[1].Message, items[2].Message})
	assert.False(t, items[0].Read)
	assert.False(t, items[0].IsImportant)
	assert.Equal(t, "Grace", items[0].UserName)

	limited, err := b.ListNotifications(ctx, recipient, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := b.ListNotifications(ctx, uuid.NewString(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testUserLifecycle(t *testing.T, b store.Backend) {
	ctx := context.Background()
	created, err := b.CreateUser(ctx, store.User{
		Email:             "Ada@Example.com",
		PasswordHash:      "hash",
		ConfirmationToken: "confirm-token",
		CreatedAt:         now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.False(t, created.IsConfirmed)

	_, err = b.CreateUser(ctx, store.User{Email: "ADA@example.com", PasswordHash: "x", CreatedAt: now()})
	assert.ErrorIs(t, err, store.ErrEmailTaken)

	byEmail, err := b.GetUserByEmail(ctx, " ada@EXAMPLE.com ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	confirmed, err := b.ConfirmUser(ctx, "confirm-token")
	require.NoError(t, err)
	assert.True(t, confirmed.IsConfirmed)
	assert.Empty(t, confirmed.ConfirmationToken)

	_, err = b.ConfirmUser(ctx, "confirm-token")
	assert.ErrorIs(t, err, store.ErrNotFound)

	updated, err := b.UpdateProfile(ctx, created.ID, store.ProfileUpdate{
		FullName:    strPtr("Ada Lovelace"),
		Interests:   []string{"math", "engines"},
		SocialLinks: map[string]string{"github": "ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.FullName)
	assert.Equal(t, []string{"math", "engines"}, updated.Interests)
	assert.Equal(t, "ada", updated.SocialLinks["github"])

	updated, err = b.UpdateProfile(ctx, created.ID, store.ProfileUpdate{Bio: strPtr("Analyst")})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.FullName)
	assert.Equal(t, "Analyst", updated.Bio)

	users, err := b.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, b.DeleteUser(ctx, created.ID))
	_, err = b.GetUserByID(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, b.DeleteUser(ctx, created.ID), store.ErrNotFound)
}

func testPasswordReset(t *testing.T, b store.Backend) {
	ctx := context.Background()
	user, err := b.CreateUser(ctx, store.User{Email: "grace@example.com", PasswordHash: "old", CreatedAt: now()})
	require.NoError(t, err)

	issued := now()
	require.NoError(t, b.SetResetToken(ctx, user.ID, "expired-token", issued.Add(-time.Minute)))
	assert.ErrorIs(t, b.ResetPassword(ctx, "expired-token", "new", issued), store.ErrNotFound)

	require.NoError(t, b.SetResetToken(ctx, user.ID, "live-token", issued.Add(time.Hour)))
	require.NoError(t, b.ResetPassword(ctx, "live-token", "new", issued))
	assert.ErrorIs(t, b.ResetPassword(ctx, "live-token", "newer", issued), store.ErrNotFound)

	got, err := b.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
	assert.Empty(t, got.ResetToken)
	assert.Nil(t, got.ResetTokenExpiresAt)
}

func testCounts(t *testing.T, b store.Backend) {
	ctx := context.Background()
	root := mustRoot(t, b, "T", "C")
	mustReply(t, b, root.ID, "R")
	_, err := b.CreateUser(ctx, store.User{Email: "x@example.com", PasswordHash: "h", CreatedAt: now()})
	require.NoError(t, err)
	require.NoError(t, b.InsertNotification(ctx, store.Notification{UserID: uuid.NewString(), Message: "m", Type: "comment", CreatedAt: now()}))

	counts, err := b.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Users: 1, Posts: 2, Notifications: 1}, counts)
}
