// Package mongostore implements store.Backend on MongoDB.
//
// Standalone servers have no multi-document transactions, so a reply is
// inserted first and then linked into its parent; a failed link deletes the
// reply again. Ratings use a single conditional pipeline update.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/Roizz-soul/Solublog/internal/store"
)

type Store struct {
	client        *mongo.Client
	ownsClient    bool
	users         *mongo.Collection
	posts         *mongo.Collection
	notifications *mongo.Collection
}

var _ store.Backend = (*Store)(nil)

// Connect dials uri, verifies the connection and prepares indexes in database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s, err := New(ctx, client, database)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// New uses an existing client. Close leaves the client connected.
func New(ctx context.Context, client *mongo.Client, database string) (*Store, error) {
	db := client.Database(database)
	s := &Store{
		client:        client,
		users:         db.Collection(collUsers),
		posts:         db.Collection(collPosts),
		notifications: db.Collection(collNotifications),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users email index: %w", err)
	}
	if _, err := s.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parentId", Value: 1}},
	}); err != nil {
		return fmt.Errorf("files parent index: %w", err)
	}
	if _, err := s.notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("notifications user index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

func (s *Store) Counts(ctx context.Context) (store.Counts, error) {
	var counts store.Counts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.users.CountDocuments(gctx, bson.D{})
		counts.Users = n
		return err
	})
	g.Go(func() error {
		n, err := s.posts.CountDocuments(gctx, bson.D{})
		counts.Posts = n
		return err
	})
	g.Go(func() error {
		n, err := s.notifications.CountDocuments(gctx, bson.D{})
		counts.Notifications = n
		return err
	})
	if err := g.Wait(); err != nil {
		return store.Counts{}, fmt.Errorf("counts: %w", err)
	}
	return counts, nil
}

func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func (s *Store) CreatePost(ctx context.Context, post store.Post) (store.Post, error) {
	doc := postDoc{
		ID:        primitive.NewObjectID(),
		Title:     post.Title,
		Content:   post.Content,
		UserID:    post.UserID,
		UserName:  post.UserName,
		Replies:   []primitive.ObjectID{},
		IsReply:   post.ParentID != nil,
		Ratings:   []ratingDoc{},
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}

	var parentID primitive.ObjectID
	if post.ParentID != nil {
		oid, ok := objectID(*post.ParentID)
		if !ok {
			return store.Post{}, fmt.Errorf("create post: parent %s: %w", *post.ParentID, store.ErrNotFound)
		}
		if err := s.posts.FindOne(ctx, bson.M{"_id": oid}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err(); err != nil {
			return store.Post{}, fmt.Errorf("create post: parent %s: %w", *post.ParentID, mapMongoError(err))
		}
		parentID = oid
		doc.ParentID = &parentID
	}

	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		return store.Post{}, fmt.Errorf("create post: %w", err)
	}
	if doc.ParentID == nil {
		return doc.toPost(), nil
	}

	res, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": parentID},
		bson.M{"$push": bson.M{"replies": doc.ID}, "$inc": bson.M{"replyCount": 1}},
	)
	if err == nil && res.MatchedCount == 1 {
		return doc.toPost(), nil
	}
	if err == nil {
		err = store.ErrNotFound
	}
	// The parent vanished or the link failed: undo the insert.
	if _, delErr := s.posts.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": doc.ID}); delErr != nil {
		return store.Post{}, fmt.Errorf("create post: link reply: %w (compensating delete: %v)", err, delErr)
	}
	return store.Post{}, fmt.Errorf("create post: link reply: %w", err)
}

func (s *Store) GetPost(ctx context.Context, id string) (store.Post, error) {
	oid, ok := objectID(id)
	if !ok {
		return store.Post{}, fmt.Errorf("get post %s: %w", id, store.ErrNotFound)
	}
	var doc postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return store.Post{}, fmt.Errorf("get post %s: %w", id, mapMongoError(err))
	}
	return doc.toPost(), nil
}

func (s *Store) findPosts(ctx context.Context, filter any) ([]store.Post, error) {
	cursor, err := s.posts.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []postDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	posts := make([]store.Post, 0, len(docs))
	for _, doc := range docs {
		posts = append(posts, doc.toPost())
	}
	return posts, nil
}

func (s *Store) ListPosts(ctx context.Context) ([]store.Post, error) {
	posts, err := s.findPosts(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func (s *Store) GetPostsByIDs(ctx context.Context, ids []string) ([]store.Post, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, ok := objectID(id); ok {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return []store.Post{}, nil
	}
	found, err := s.findPosts(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("get posts by ids: %w", err)
	}

	byID := make(map[string]store.Post, len(found))
	for _, post := range found {
		byID[post.ID] = post
	}
	ordered := make([]store.Post, 0, len(found))
	for _, id := range ids {
		if post, ok := byID[id]; ok {
			ordered = append(ordered, post)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// SearchPosts matches query as a case-insensitive literal substring of title or content.
func (s *Store) SearchPosts(ctx context.Context, query string) ([]store.Post, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	posts, err := s.findPosts(ctx, bson.M{"$or": bson.A{
		bson.M{"title": pattern},
		bson.M{"content": pattern},
	}})
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return posts, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, title, content *string, at time.Time) error {
	oid, ok := objectID(id)
	if !ok {
		return fmt.Errorf("update post %s: %w", id, store.ErrNotFound)
	}
	set := bson.M{"updatedAt": at}
	if title != nil {
		set["title"] = *title
	}
	if content != nil {
		set["content"] = *content
	}
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update post %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update post %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeletePost unlinks the post from its parent, then removes it and its
// descendants level by level. Each level is deleted before its children are
// looked up, so a reply racing the delete either is swept by the next level or
// fails its own link and removes itself.
func (s *Store) DeletePost(ctx context.Context, id string) ([]string, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, fmt.Errorf("delete post %s: %w", id, store.ErrNotFound)
	}
	var doc postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("delete post %s: %w", id, mapMongoError(err))
	}

	if doc.ParentID != nil {
		if _, err := s.posts.UpdateOne(ctx,
			bson.M{"_id": *doc.ParentID, "replies": oid},
			bson.M{"$pull": bson.M{"replies": oid}, "$inc": bson.M{"replyCount": -1}},
		); err != nil {
			return nil, fmt.Errorf("delete post %s: unlink: %w", id, err)
		}
	}

	removed := []string{}
	level := []primitive.ObjectID{oid}
	for len(level) > 0 {
		res, err := s.posts.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": level}})
		if err != nil {
			return nil, fmt.Errorf("delete post %s: %w", id, err)
		}
		if len(removed) == 0 && res.DeletedCount == 0 {
			return nil, fmt.Errorf("delete post %s: %w", id, store.ErrNotFound)
		}
		for _, gone := range level {
			removed = append(removed, gone.Hex())
		}

		cursor, err := s.posts.Find(ctx, bson.M{"parentId": bson.M{"$in": level}}, options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return nil, fmt.Errorf("delete post %s: children: %w", id, err)
		}
		var children []struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.All(ctx, &children); err != nil {
			return nil, fmt.Errorf("delete post %s: children: %w", id, err)
		}
		level = level[:0:0]
		for _, child := range children {
			level = append(level, child.ID)
		}
	}
	return removed, nil
}

// AddRating appends the vote and recomputes the average in one document update.
// The filter refuses a second vote from the same rater.
func (s *Store) AddRating(ctx context.Context, postID string, rating store.Rating) (float64, error) {
	oid, ok := objectID(postID)
	if !ok {
		return 0, fmt.Errorf("rate post %s: %w", postID, store.ErrNotFound)
	}

	entry := bson.M{"$literal": bson.M{"userId": rating.UserID, "rating": rating.Rating}}
	// floor(sum*100/n + 0.5) / 100, identical to store.AverageRating.
	average := bson.M{"$divide": bson.A{
		bson.M{"$floor": bson.M{"$add": bson.A{
			bson.M{"$divide": bson.A{
				bson.M{"$multiply": bson.A{bson.M{"$sum": "$ratings.rating"}, 100}},
				bson.M{"$size": "$ratings"},
			}},
			0.5,
		}}},
		100,
	}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"ratings": bson.M{"$concatArrays": bson.A{
			bson.M{"$ifNull": bson.A{"$ratings", bson.A{}}},
			bson.A{entry},
		}}}}},
		{{Key: "$set", Value: bson.M{"averageRating": average}}},
	}

	var updated postDoc
	err := s.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "ratings.userId": bson.M{"$ne": rating.UserID}},
		pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err == nil {
		return updated.AverageRating, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("rate post %s: %w", postID, err)
	}

	n, countErr := s.posts.CountDocuments(ctx, bson.M{"_id": oid})
	if countErr != nil {
		return 0, fmt.Errorf("rate post %s: %w", postID, countErr)
	}
	if n == 0 {
		return 0, fmt.Errorf("rate post %s: %w", postID, store.ErrNotFound)
	}
	return 0, fmt.Errorf("rate post %s: %w", postID, store.ErrAlreadyRated)
}

func (s *Store) InsertNotification(ctx context.Context, n store.Notification) error {
	doc := notificationDoc{
		ID:              primitive.NewObjectID(),
		UserID:          n.UserID,
		UserName:        n.UserName,
		Message:         n.Message,
		Type:            n.Type,
		Read:            n.Read,
		RelatedEntityID: n.RelatedEntityID,
		IsImportant:     n.IsImportant,
		CreatedAt:       n.CreatedAt,
	}
	if _, err := s.notifications.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]store.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.notifications.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	var docs []notificationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	items := make([]store.Notification, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toNotification())
	}
	return items, nil
}

func (s *Store) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	doc := newUserDoc(user)
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.User{}, fmt.Errorf("create user: %w", store.ErrEmailTaken)
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return doc.toUser(), nil
}

func (s *Store) findUser(ctx context.Context, filter any) (store.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return store.User{}, mapMongoError(err)
	}
	return doc.toUser(), nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (store.User, error) {
	oid, ok := objectID(id)
	if !ok {
		return store.User{}, fmt.Errorf("get user %s: %w", id, store.ErrNotFound)
	}
	user, err := s.findUser(ctx, bson.M{"_id": oid})
	if err != nil {
		return store.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	user, err := s.findUser(ctx, bson.M{"email": store.NormalizeEmail(email)})
	if err != nil {
		return store.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]store.User, error) {
	cursor, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]store.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.toUser())
	}
	return users, nil
}

func (s *Store) ConfirmUser(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, fmt.Errorf("confirm user: %w", store.ErrNotFound)
	}
	var doc userDoc
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"confirmationToken": token},
		bson.M{"$set": bson.M{"isConfirmed": true, "updatedAt": time.Now().UTC()}, "$unset": bson.M{"confirmationToken": ""}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return store.User{}, fmt.Errorf("confirm user: %w", mapMongoError(err))
	}
	return doc.toUser(), nil
}

func (s *Store) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	oid, ok := objectID(userID)
	if !ok {
		return fmt.Errorf("set reset token %s: %w", userID, store.ErrNotFound)
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"resetToken":        token,
		"resetTokenExpires": expiresAt,
		"updatedAt":         time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("set reset token %s: %w", userID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("set reset token %s: %w", userID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) error {
	if token == "" {
		return fmt.Errorf("reset password: %w", store.ErrNotFound)
	}
	res, err := s.users.UpdateOne(ctx,
		bson.M{"resetToken": token, "resetTokenExpires": bson.M{"$gt": now}},
		bson.M{
			"$set":   bson.M{"password": passwordHash, "updatedAt": now},
			"$unset": bson.M{"resetToken": "", "resetTokenExpires": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("reset password: %w", store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, update store.ProfileUpdate) (store.User, error) {
	oid, ok := objectID(userID)
	if !ok {
		return store.User{}, fmt.Errorf("update profile %s: %w", userID, store.ErrNotFound)
	}
	set := bson.M{"updatedAt": time.Now().UTC()}
	for field, value := range map[string]*string{
		"full_name":  update.FullName,
		"user_name":  update.UserName,
		"bio":        update.Bio,
		"location":   update.Location,
		"occupation": update.Occupation,
		"portfolio":  update.Portfolio,
	} {
		if value != nil {
			set[field] = *value
		}
	}
	if update.Interests != nil {
		set["interests"] = update.Interests
	}
	if update.Skills != nil {
		set["skills"] = update.Skills
	}
	if update.SocialLinks != nil {
		set["social_links"] = update.SocialLinks
	}

	var doc userDoc
	err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return store.User{}, fmt.Errorf("update profile %s: %w", userID, mapMongoError(err))
	}
	return doc.toUser(), nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return fmt.Errorf("delete user %s: %w", id, store.ErrNotFound)
	}
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete user %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func mapMongoError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}
