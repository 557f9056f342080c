package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Spoiler provenance. A user assertion is authoritative and is never
// overwritten by the background classifier.
const (
	SpoilerSourceNone = "none"
	SpoilerSourceUser = "user"
	SpoilerSourceLLM  = "llm"
)

type Spoiler struct {
	IsSpoiler  bool     `bson:"isSpoiler" json:"isSpoiler"`
	Source     string   `bson:"source" json:"source"`
	Confidence *float64 `bson:"confidence,omitempty" json:"confidence,omitempty"`
}

type Comment struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	BookID     string               `bson:"bookId" json:"bookId"`
	UserID     primitive.ObjectID   `bson:"userId" json:"userId"`
	Page       *int                 `bson:"page,omitempty" json:"page,omitempty"`
	Percent    *float64             `bson:"percent,omitempty" json:"percent,omitempty"`
	Text       string               `bson:"text" json:"text"`
	Likes      int                  `bson:"likes" json:"likes"`
	Dislikes   int                  `bson:"dislikes" json:"dislikes"`
	LikedBy    []primitive.ObjectID `bson:"likedBy" json:"likedBy"`
	DislikedBy []primitive.ObjectID `bson:"dislikedBy" json:"dislikedBy"`
	CreatedAt  time.Time            `bson:"createdAt" json:"createdAt"`
	NSFW       bool                 `bson:"nsfw" json:"nsfw"`
	Spoiler    Spoiler              `bson:"spoiler" json:"spoiler"`

	// Author is populated from the users collection before the comment is
	// returned to the client; never stored.
	Author *UserRef `bson:"-" json:"user,omitempty"`
}

func (c *Comment) LikedByUser(userID primitive.ObjectID) bool {
	for _, id := range c.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Comment) DislikedByUser(userID primitive.ObjectID) bool {
	for _, id := range c.DislikedBy {
		if id == userID {
			return true
		}
	}
	return false
}
