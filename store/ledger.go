package store

import (
	"github.com/reado/reado-server/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Polarity string

const (
	PolarityLike    Polarity = "like"
	PolarityDislike Polarity = "dislike"
)

// ApplyReaction applies a single like/dislike toggle to an in-memory copy of
// a comment. Reacting with a polarity the user already holds removes it;
// switching polarity removes the opposite vote first. A user id is never in
// both sets. Counters floor at zero.
func ApplyReaction(c *models.Comment, userID primitive.ObjectID, p Polarity) {
	target, opposite := &c.LikedBy, &c.DislikedBy
	targetCount, oppositeCount := &c.Likes, &c.Dislikes
	if p == PolarityDislike {
		target, opposite = opposite, target
		targetCount, oppositeCount = oppositeCount, targetCount
	}

	if contains(*target, userID) {
		*target = remove(*target, userID)
		if *targetCount > 0 {
			*targetCount--
		}
		return
	}

	if contains(*opposite, userID) {
		*opposite = remove(*opposite, userID)
		if *oppositeCount > 0 {
			*oppositeCount--
		}
	}
	*target = append(*target, userID)
	*targetCount++
}

func contains(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
