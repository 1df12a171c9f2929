package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const postColumns = `p.id, p.title, p.content, p.user_id, p.user_name, p.parent_id, to_json(p.replies), p.reply_count, p.is_reply,
	COALESCE((SELECT json_agg(json_build_object('userId', r.user_id, 'rating', r.rating) ORDER BY r.seq)
		FROM post_ratings r WHERE r.post_id = p.id), '[]'::json),
	p.average_rating::float8, p.created_at, p.updated_at`

const userColumns = `id, email, password_hash, is_confirmed, COALESCE(confirmation_token, ''), COALESCE(reset_token, ''),
	reset_token_expires_at, full_name, user_name, bio, location, occupation, interests, skills, social_links,
	portfolio, profile_picture, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapPgError converts driver errors to the store sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return ErrNotFound
		case "23505": // unique_violation
			if pgErr.ConstraintName == "users_email_key" {
				return ErrEmailTaken
			}
		}
	}
	return err
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var (
		post        Post
		title       sql.NullString
		parentID    sql.NullString
		repliesJSON []byte
		ratingsJSON []byte
	)
	if err := row.Scan(
		&post.ID, &title, &post.Content, &post.UserID, &post.UserName, &parentID, &repliesJSON,
		&post.ReplyCount, &post.IsReply, &ratingsJSON, &post.AverageRating, &post.CreatedAt, &post.UpdatedAt,
	); err != nil {
		return Post{}, err
	}
	if title.Valid {
		post.Title = &title.String
	}
	if parentID.Valid {
		post.ParentID = &parentID.String
	}
	if err := json.Unmarshal(repliesJSON, &post.Replies); err != nil {
		return Post{}, fmt.Errorf("decode replies: %w", err)
	}
	if err := json.Unmarshal(ratingsJSON, &post.Ratings); err != nil {
		return Post{}, fmt.Errorf("decode ratings: %w", err)
	}
	if post.Replies == nil {
		post.Replies = []string{}
	}
	if post.Ratings == nil {
		post.Ratings = []Rating{}
	}
	return post, nil
}

func (s *PostgresStore) queryPosts(ctx context.Context, builder sq.SelectBuilder) ([]Post, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// CreatePost inserts the post and, for a reply, links it into the parent in the same transaction.
func (s *PostgresStore) CreatePost(ctx context.Context, post Post) (Post, error) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.ParentID != nil && !validID(*post.ParentID) {
		return Post{}, fmt.Errorf("create post: parent %s: %w", *post.ParentID, ErrNotFound)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, title, content, user_id, user_name, parent_id, is_reply, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, post.ID, post.Title, post.Content, post.UserID, post.UserName, post.ParentID, post.ParentID != nil,
			post.CreatedAt, post.UpdatedAt); err != nil {
			return mapPgError(err)
		}
		if post.ParentID == nil {
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE posts SET replies = array_append(replies, $1::uuid), reply_count = reply_count + 1
			WHERE id = $2
		`, post.ID, *post.ParentID)
		if err != nil {
			return fmt.Errorf("link reply: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	return s.GetPost(ctx, post.ID)
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (Post, error) {
	if !validID(id) {
		return Post{}, fmt.Errorf("get post %s: %w", id, ErrNotFound)
	}
	post, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = $1`, id))
	if err != nil {
		return Post{}, fmt.Errorf("get post %s: %w", id, mapPgError(err))
	}
	return post, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]Post, error) {
	posts, err := s.queryPosts(ctx, psql.Select(postColumns).From("posts p").OrderBy("p.seq"))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// GetPostsByIDs returns the posts that still exist, in the order of ids.
func (s *PostgresStore) GetPostsByIDs(ctx context.Context, ids []string) ([]Post, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []Post{}, nil
	}

	found, err := s.queryPosts(ctx, psql.Select(postColumns).From("posts p").Where(sq.Eq{"p.id": valid}))
	if err != nil {
		return nil, fmt.Errorf("get posts by ids: %w", err)
	}
	return orderByIDs(found, ids), nil
}

// SearchPosts matches query as a case-insensitive literal substring of title or content.
func (s *PostgresStore) SearchPosts(ctx context.Context, query string) ([]Post, error) {
	pattern := "%" + escapeLike(query) + "%"
	posts, err := s.queryPosts(ctx, psql.Select(postColumns).From("posts p").
		Where(sq.Or{sq.ILike{"p.title": pattern}, sq.ILike{"p.content": pattern}}).
		OrderBy("p.seq"))
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return posts, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func (s *PostgresStore) UpdatePost(ctx context.Context, id string, title, content *string, at time.Time) error {
	if !validID(id) {
		return fmt.Errorf("update post %s: %w", id, ErrNotFound)
	}
	builder := psql.Update("posts").Set("updated_at", at).Where(sq.Eq{"id": id})
	if title != nil {
		builder = builder.Set("title", *title)
	}
	if content != nil {
		builder = builder.Set("content", *content)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("update post %s: build: %w", id, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update post %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update post %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeletePost removes the post with its whole reply subtree and unlinks it from its parent.
func (s *PostgresStore) DeletePost(ctx context.Context, id string) ([]string, error) {
	if !validID(id) {
		return nil, fmt.Errorf("delete post %s: %w", id, ErrNotFound)
	}

	var removed []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var parentID sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT parent_id FROM posts WHERE id = $1 FOR UPDATE`, id).Scan(&parentID); err != nil {
			return mapPgError(err)
		}

		if parentID.Valid {
			if _, err := tx.ExecContext(ctx, `
				UPDATE posts SET replies = array_remove(replies, $1::uuid), reply_count = CARDINALITY(array_remove(replies, $1::uuid))
				WHERE id = $2
			`, id, parentID.String); err != nil {
				return fmt.Errorf("unlink reply: %w", err)
			}
		}

		// The returned ids are exactly the rows this statement removed.
		rows, err := tx.QueryContext(ctx, `
			WITH RECURSIVE subtree AS (
				SELECT id FROM posts WHERE id = $1
				UNION ALL
				SELECT c.id FROM posts c JOIN subtree st ON c.parent_id = st.id
			)
			DELETE FROM posts WHERE id IN (SELECT id FROM subtree)
			RETURNING id
		`, id)
		if err != nil {
			return fmt.Errorf("delete subtree: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var gone string
			if err := rows.Scan(&gone); err != nil {
				return err
			}
			removed = append(removed, gone)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete post %s: %w", id, err)
	}
	return removed, nil
}

// AddRating appends the rater's vote and recomputes the average under a row lock.
func (s *PostgresStore) AddRating(ctx context.Context, postID string, rating Rating) (float64, error) {
	if !validID(postID) {
		return 0, fmt.Errorf("rate post %s: %w", postID, ErrNotFound)
	}

	var average float64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var locked string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&locked); err != nil {
			return mapPgError(err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO post_ratings (post_id, user_id, rating) VALUES ($1, $2, $3)
			ON CONFLICT (post_id, user_id) DO NOTHING
		`, postID, rating.UserID, rating.Rating)
		if err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrAlreadyRated
		}

		return tx.QueryRowContext(ctx, `
			UPDATE posts SET average_rating = (
				SELECT ROUND(AVG(rating)::numeric, 2) FROM post_ratings WHERE post_id = $1
			)
			WHERE id = $1
			RETURNING average_rating::float8
		`, postID).Scan(&average)
	})
	if err != nil {
		return 0, fmt.Errorf("rate post %s: %w", postID, err)
	}
	return average, nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, user_name, message, type, read, related_entity_id, is_important, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.UserID, n.UserName, n.Message, n.Type, n.Read, n.RelatedEntityID, n.IsImportant, n.CreatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns newest first; limit <= 0 means no limit.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if !validID(userID) {
		return []Notification{}, nil
	}
	builder := psql.Select("id", "user_id", "user_name", "message", "type", "read", "related_entity_id", "is_important", "created_at").
		From("notifications").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list notifications: build: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.UserName, &n.Message, &n.Type, &n.Read, &n.RelatedEntityID, &n.IsImportant, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func scanUser(row rowScanner) (User, error) {
	var (
		user        User
		resetExpiry sql.NullTime
		interests   []byte
		skills      []byte
		socialLinks []byte
	)
	if err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.IsConfirmed, &user.ConfirmationToken, &user.ResetToken,
		&resetExpiry, &user.FullName, &user.UserName, &user.Bio, &user.Location, &user.Occupation,
		&interests, &skills, &socialLinks, &user.Portfolio, &user.ProfilePicture, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return User{}, err
	}
	if resetExpiry.Valid {
		expiry := resetExpiry.Time
		user.ResetTokenExpiresAt = &expiry
	}
	if err := json.Unmarshal(interests, &user.Interests); err != nil {
		return User{}, fmt.Errorf("decode interests: %w", err)
	}
	if err := json.Unmarshal(skills, &user.Skills); err != nil {
		return User{}, fmt.Errorf("decode skills: %w", err)
	}
	if err := json.Unmarshal(socialLinks, &user.SocialLinks); err != nil {
		return User{}, fmt.Errorf("decode social links: %w", err)
	}
	return user, nil
}

func jsonValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case []string:
		if v == nil {
			return []byte("[]"), nil
		}
	case map[string]string:
		if v == nil {
			return []byte("{}"), nil
		}
	}
	return json.Marshal(value)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = NormalizeEmail(user.Email)
	interests, err := jsonValue(user.Interests)
	if err != nil {
		return User{}, err
	}
	skills, err := jsonValue(user.Skills)
	if err != nil {
		return User{}, err
	}
	links, err := jsonValue(user.SocialLinks)
	if err != nil {
		return User{}, err
	}

	created, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, is_confirmed, confirmation_token, full_name, user_name, bio,
			location, occupation, interests, skills, social_links, portfolio, profile_picture, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING `+userColumns,
		user.ID, user.Email, user.PasswordHash, user.IsConfirmed, nullIfEmpty(user.ConfirmationToken), user.FullName,
		user.UserName, user.Bio, user.Location, user.Occupation, interests, skills, links, user.Portfolio,
		user.ProfilePicture, user.CreatedAt))
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", mapPgError(err))
	}
	return created, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if !validID(id) {
		return User{}, fmt.Errorf("get user %s: %w", id, ErrNotFound)
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, mapPgError(err))
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email)))
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", mapPgError(err))
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ConfirmUser consumes a confirmation token.
func (s *PostgresStore) ConfirmUser(ctx context.Context, token string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users SET is_confirmed = TRUE, confirmation_token = NULL, updated_at = NOW()
		WHERE confirmation_token = $1
		RETURNING `+userColumns, token))
	if err != nil {
		return User{}, fmt.Errorf("confirm user: %w", mapPgError(err))
	}
	return user, nil
}

func (s *PostgresStore) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if !validID(userID) {
		return fmt.Errorf("set reset token %s: %w", userID, ErrNotFound)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET reset_token = $2, reset_token_expires_at = $3, updated_at = NOW() WHERE id = $1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set reset token %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ResetPassword consumes an unexpired reset token and stores the new hash.
func (s *PostgresStore) ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, reset_token = NULL, reset_token_expires_at = NULL, updated_at = $3
		WHERE reset_token = $1 AND reset_token_expires_at > $3
	`, token, passwordHash, now)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reset password: %w", ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	if !validID(userID) {
		return User{}, fmt.Errorf("update profile %s: %w", userID, ErrNotFound)
	}
	builder := psql.Update("users").Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"id": userID})
	for _, field := range []struct {
		column string
		value  *string
	}{
		{"full_name", update.FullName},
		{"user_name", update.UserName},
		{"bio", update.Bio},
		{"location", update.Location},
		{"occupation", update.Occupation},
		{"portfolio", update.Portfolio},
	} {
		if field.value != nil {
			builder = builder.Set(field.column, *field.value)
		}
	}
	if update.Interests != nil {
		raw, err := jsonValue(update.Interests)
		if err != nil {
			return User{}, err
		}
		builder = builder.Set("interests", raw)
	}
	if update.Skills != nil {
		raw, err := jsonValue(update.Skills)
		if err != nil {
			return User{}, err
		}
		builder = builder.Set("skills", raw)
	}
	if update.SocialLinks != nil {
		raw, err := jsonValue(update.SocialLinks)
		if err != nil {
			return User{}, err
		}
		builder = builder.Set("social_links", raw)
	}

	query, args, err := builder.Suffix("RETURNING " + userColumns).ToSql()
	if err != nil {
		return User{}, fmt.Errorf("update profile %s: build: %w", userID, err)
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return User{}, fmt.Errorf("update profile %s: %w", userID, mapPgError(err))
	}
	return user, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("delete user %s: %w", id, ErrNotFound)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete user %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	if err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM users), (SELECT COUNT(*) FROM posts), (SELECT COUNT(*) FROM notifications)
	`).Scan(&counts.Users, &counts.Posts, &counts.Notifications); err != nil {
		return Counts{}, fmt.Errorf("counts: %w", err)
	}
	return counts, nil
}

func orderByIDs(posts []Post, ids []string) []Post {
	byID := make(map[string]Post, len(posts))
	for _, post := range posts {
		byID[post.ID] = post
	}
	ordered := make([]Post, 0, len(posts))
	for _, id := range ids {
		if post, ok := byID[id]; ok {
			ordered = append(ordered, post)
			delete(byID, id)
		}
	}
	return ordered
}
