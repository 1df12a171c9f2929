package app

import (
	"time"

	"github.com/Roizz-soul/Solublog/internal/store"
)

// postView is the wire shape of a post. Field names match the document
// layout clients already read.
type postView struct {
	ID            string         `json:"_id"`
	Title         *string        `json:"title"`
	Content       string         `json:"content"`
	UserID        string         `json:"userId"`
	UserName      string         `json:"user_name"`
	ParentID      *string        `json:"parentId"`
	Replies       []string       `json:"replies"`
	ReplyCount    int            `json:"replyCount"`
	IsReply       bool           `json:"isReply"`
	Ratings       []store.Rating `json:"ratings"`
	AverageRating float64        `json:"averageRating"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func newPostView(p store.Post) postView {
	v := postView{
		ID:            p.ID,
		Title:         p.Title,
		Content:       p.Content,
		UserID:        p.UserID,
		UserName:      p.UserName,
		ParentID:      p.ParentID,
		Replies:       p.Replies,
		ReplyCount:    p.ReplyCount,
		IsReply:       p.IsReply,
		Ratings:       p.Ratings,
		AverageRating: p.AverageRating,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if v.Replies == nil {
		v.Replies = []string{}
	}
	if v.Ratings == nil {
		v.Ratings = []store.Rating{}
	}
	return v
}

func newPostViews(posts []store.Post) []postView {
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, newPostView(p))
	}
	return views
}

type notificationView struct {
	ID              string    `json:"_id"`
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	Message         string    `json:"message"`
	Type            string    `json:"type"`
	Read            bool      `json:"read"`
	RelatedEntityID string    `json:"relatedEntityId"`
	IsImportant     bool      `json:"isImportant"`
	CreatedAt       time.Time `json:"createdAt"`
}

func newNotificationViews(items []store.Notification) []notificationView {
	views := make([]notificationView, 0, len(items))
	for _, n := range items {
		views = append(views, notificationView{
			ID:              n.ID,
			UserID:          n.UserID,
			UserName:        n.UserName,
			Message:         n.Message,
			Type:            n.Type,
			Read:            n.Read,
			RelatedEntityID: n.RelatedEntityID,
			IsImportant:     n.IsImportant,
			CreatedAt:       n.CreatedAt,
		})
	}
	return views
}

// userView never carries the password hash or any token. Email is only
// filled in for the account owner.
type userView struct {
	ID             string            `json:"id"`
	Email          string            `json:"email,omitempty"`
	IsConfirmed    bool              `json:"isConfirmed"`
	FullName       string            `json:"full_name"`
	UserName       string            `json:"user_name"`
	Bio            string            `json:"bio"`
	Location       string            `json:"location"`
	Occupation     string            `json:"occupation"`
	Interests      []string          `json:"interests"`
	Skills         []string          `json:"skills"`
	SocialLinks    map[string]string `json:"social_links"`
	Portfolio      string            `json:"portfolio"`
	ProfilePicture string            `json:"profile_picture"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func newUserView(u store.User, withEmail bool) userView {
	v := userView{
		ID:             u.ID,
		IsConfirmed:    u.IsConfirmed,
		FullName:       u.FullName,
		UserName:       u.UserName,
		Bio:            u.Bio,
		Location:       u.Location,
		Occupation:     u.Occupation,
		Interests:      u.Interests,
		Skills:         u.Skills,
		SocialLinks:    u.SocialLinks,
		Portfolio:      u.Portfolio,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
	}
	if withEmail {
		v.Email = u.Email
	}
	if v.Interests == nil {
		v.Interests = []string{}
	}
	if v.Skills == nil {
		v.Skills = []string{}
	}
	if v.SocialLinks == nil {
		v.SocialLinks = map[string]string{}
	}
	return v
}
