package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Roizz-soul/Solublog/internal/store"
)

// Collection names follow the files/users/notifications layout of the document store.
const (
	collUsers         = "users"
	collPosts         = "files"
	collNotifications = "notifications"
)

type ratingDoc struct {
	UserID string `bson:"userId"`
	Rating int    `bson:"rating"`
}

type postDoc struct {
	ID            primitive.ObjectID   `bson:"_id"`
	Title         *string              `bson:"title"`
	Content       string               `bson:"content"`
	UserID        string               `bson:"userId"`
	UserName      string               `bson:"user_name"`
	ParentID      *primitive.ObjectID  `bson:"parentId"`
	Replies       []primitive.ObjectID `bson:"replies"`
	ReplyCount    int                  `bson:"replyCount"`
	IsReply       bool                 `bson:"isReply"`
	Ratings       []ratingDoc          `bson:"ratings"`
	AverageRating float64              `bson:"averageRating"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

func (d postDoc) toPost() store.Post {
	post := store.Post{
		ID:            d.ID.Hex(),
		Title:         d.Title,
		Content:       d.Content,
		UserID:        d.UserID,
		UserName:      d.UserName,
		Replies:       make([]string, 0, len(d.Replies)),
		ReplyCount:    d.ReplyCount,
		IsReply:       d.IsReply,
		Ratings:       make([]store.Rating, 0, len(d.Ratings)),
		AverageRating: d.AverageRating,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.ParentID != nil {
		parent := d.ParentID.Hex()
		post.ParentID = &parent
	}
	for _, reply := range d.Replies {
		post.Replies = append(post.Replies, reply.Hex())
	}
	for _, r := range d.Ratings {
		post.Ratings = append(post.Ratings, store.Rating{UserID: r.UserID, Rating: r.Rating})
	}
	return post
}

type notificationDoc struct {
	ID              primitive.ObjectID `bson:"_id"`
	UserID          string             `bson:"userId"`
	UserName        string             `bson:"userName"`
	Message         string             `bson:"message"`
	Type            string             `bson:"type"`
	Read            bool               `bson:"read"`
	RelatedEntityID string             `bson:"relatedEntityId"`
	IsImportant     bool               `bson:"isImportant"`
	CreatedAt       time.Time          `bson:"createdAt"`
}

func (d notificationDoc) toNotification() store.Notification {
	return store.Notification{
		ID:              d.ID.Hex(),
		UserID:          d.UserID,
		UserName:        d.UserName,
		Message:         d.Message,
		Type:            d.Type,
		Read:            d.Read,
		RelatedEntityID: d.RelatedEntityID,
		IsImportant:     d.IsImportant,
		CreatedAt:       d.CreatedAt,
	}
}

type userDoc struct {
	ID                primitive.ObjectID `bson:"_id"`
	Email             string             `bson:"email"`
	Password          string             `bson:"password"`
	IsConfirmed       bool               `bson:"isConfirmed"`
	ConfirmationToken string             `bson:"confirmationToken,omitempty"`
	ResetToken        string             `bson:"resetToken,omitempty"`
	ResetTokenExpires *time.Time         `bson:"resetTokenExpires,omitempty"`
	FullName          string             `bson:"full_name"`
	UserName          string             `bson:"user_name"`
	Bio               string             `bson:"bio"`
	Location          string             `bson:"location"`
	Occupation        string             `bson:"occupation"`
	Interests         []string           `bson:"interests"`
	Skills            []string           `bson:"skills"`
	SocialLinks       map[string]string  `bson:"social_links"`
	Portfolio         string             `bson:"portfolio"`
	ProfilePicture    string             `bson:"profile_picture"`
	CreatedAt         time.Time          `bson:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt"`
}

func newUserDoc(u store.User) userDoc {
	doc := userDoc{
		ID:                primitive.NewObjectID(),
		Email:             store.NormalizeEmail(u.Email),
		Password:          u.PasswordHash,
		IsConfirmed:       u.IsConfirmed,
		ConfirmationToken: u.ConfirmationToken,
		FullName:          u.FullName,
		UserName:          u.UserName,
		Bio:               u.Bio,
		Location:          u.Location,
		Occupation:        u.Occupation,
		Interests:         u.Interests,
		Skills:            u.Skills,
		SocialLinks:       u.SocialLinks,
		Portfolio:         u.Portfolio,
		ProfilePicture:    u.ProfilePicture,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.CreatedAt,
	}
	if doc.Interests == nil {
		doc.Interests = []string{}
	}
	if doc.Skills == nil {
		doc.Skills = []string{}
	}
	if doc.SocialLinks == nil {
		doc.SocialLinks = map[string]string{}
	}
	return doc
}

func (d userDoc) toUser() store.User {
	return store.User{
		ID:                  d.ID.Hex(),
		Email:               d.Email,
		PasswordHash:        d.Password,
		IsConfirmed:         d.IsConfirmed,
		ConfirmationToken:   d.ConfirmationToken,
		ResetToken:          d.ResetToken,
		ResetTokenExpiresAt: d.ResetTokenExpires,
		Profile: store.Profile{
			FullName:       d.FullName,
			UserName:       d.UserName,
			Bio:            d.Bio,
			Location:       d.Location,
			Occupation:     d.Occupation,
			Interests:      d.Interests,
			Skills:         d.Skills,
			SocialLinks:    d.SocialLinks,
			Portfolio:      d.Portfolio,
			ProfilePicture: d.ProfilePicture,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
