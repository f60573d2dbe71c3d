package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	PostStatusLive    PostStatus = "Live"
	PostStatusExpired PostStatus = "Expired"
)

// Post represents a topic-tagged message with an expiration time.
type Post struct {
	ID        uint       `gorm:"primaryKey" json:"id" bson:"_id"`
	Title     string     `gorm:"not null" json:"title" bson:"title"`
	Content   string     `gorm:"type:text;not null" json:"content" bson:"content"`
	UserID    uint       `gorm:"not null;index" json:"userId" bson:"userId"`
	User      *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty" bson:"-"`
	Topic     string     `gorm:"not null;index:idx_posts_topic_status,priority:1" json:"topic" bson:"topic"`
	Status    PostStatus `gorm:"type:varchar(16);not null;index:idx_posts_topic_status,priority:2" json:"status" bson:"status"`
	Likes     int64      `gorm:"not null;default:0" json:"likes" bson:"likes"`
	Dislikes  int64      `gorm:"not null;default:0" json:"dislikes" bson:"dislikes"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expiresAt" bson:"expiresAt"`
	Comments  []Comment  `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"comments" bson:"comments"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// MarshalJSON embeds the author as a UserSummary.
func (p Post) MarshalJSON() ([]byte, error) {
	type post Post
	return json.Marshal(struct {
		post
		User *UserSummary `json:"user,omitempty"`
	}{post: post(p), User: summaryOf(p.User)})
}

// EvaluateStatus returns Live while now has not passed expiresAt.
func EvaluateStatus(now, expiresAt time.Time) PostStatus {
	if now.After(expiresAt) {
		return PostStatusExpired
	}
	return PostStatusLive
}

// RefreshStatus recomputes Status at now and reports whether it changed.
func (p *Post) RefreshStatus(now time.Time) bool {
	next := EvaluateStatus(now, p.ExpiresAt)
	if next == p.Status {
		return false
	}
	p.Status = next
	return true
}

// IsLive reports whether the post still accepts interactions.
func (p *Post) IsLive() bool {
	return p.Status == PostStatusLive
}

// BeforeSave keeps Status in step with ExpiresAt on every create or save.
func (p *Post) BeforeSave(_ *gorm.DB) error {
	p.RefreshStatus(time.Now())
	return nil
}

// NormalizeTopic lowercases and trims a topic tag.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}
