package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Bookmark struct {
	BookID string `bson:"bookId" json:"bookId"`
	Page   int    `bson:"page" json:"page"`
	Color  string `bson:"color" json:"color"`
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GoogleID     string             `bson:"googleId" json:"googleId"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	Picture      string             `bson:"picture" json:"picture"`
	AccessToken  string             `bson:"accessToken" json:"-"`
	RefreshToken string             `bson:"refreshToken,omitempty" json:"-"`
	TokenExpiry  time.Time          `bson:"tokenExpiry,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	LastLogin    time.Time          `bson:"lastLogin" json:"lastLogin"`
	Bookmarks    []Bookmark         `bson:"bookmarks" json:"bookmarks"`
}

// UserRef is the public author projection embedded in comment responses
// and returned by the batch endpoint.
type UserRef struct {
	ID      primitive.ObjectID `bson:"_id" json:"id"`
	Name    string             `bson:"name" json:"name"`
	Picture string             `bson:"picture" json:"picture"`
	Email   string             `bson:"email" json:"email"`
}
