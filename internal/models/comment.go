package models

import (
	"encoding/json"
	"time"
)

// Comment is a message left on a post. It has no lifecycle of its own and is
// removed together with its post.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id" bson:"id"`
	PostID    uint      `gorm:"not null;index" json:"postId" bson:"-"`
	UserID    uint      `gorm:"not null;index" json:"userId" bson:"userId"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty" bson:"-"`
	Message   string    `gorm:"type:text;not null" json:"message" bson:"message"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// MarshalJSON embeds the author as a UserSummary.
func (c Comment) MarshalJSON() ([]byte, error) {
	type comment Comment
	return json.Marshal(struct {
		comment
		User *UserSummary `json:"user,omitempty"`
	}{comment: comment(c), User: summaryOf(c.User)})
}
