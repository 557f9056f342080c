package store

import (
	"context"

	"github.com/reado/reado-server/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// reactRetries bounds the optimistic CAS loop in React.
const reactRetries = 5

func (db *DB) InsertComment(ctx context.Context, comment *models.Comment) (primitive.ObjectID, error) {
	res, err := db.Comments().InsertOne(ctx, comment, options.InsertOne())
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (db *DB) CommentByID(ctx context.Context, id primitive.ObjectID) (*models.Comment, error) {
	var comment models.Comment
	err := db.Comments().FindOne(ctx, bson.M{"_id": id}).Decode(&comment)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// CommentFilter narrows FindComments. Zero-value fields are ignored.
type CommentFilter struct {
	BookID string
	Page   *int
	UserID *primitive.ObjectID
}

// FindComments returns matching comments, most recent first.
func (db *DB) FindComments(ctx context.Context, filter CommentFilter) ([]models.Comment, error) {
	query := bson.M{}
	if filter.BookID != "" {
		query["bookId"] = filter.BookID
	}
	if filter.Page != nil {
		query["page"] = *filter.Page
	}
	if filter.UserID != nil {
		query["userId"] = *filter.UserID
	}
	cur, err := db.Comments().Find(ctx, query, options.Find().SetSort(bson.M{"createdAt": -1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var comments []models.Comment
	if err := cur.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (db *DB) DeleteComment(ctx context.Context, id primitive.ObjectID) error {
	res, err := db.Comments().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// React toggles a like or dislike for userID on a comment and returns the
// updated document. The write is an optimistic compare-and-swap on the
// ledger sets: the update only matches when likedBy/dislikedBy are unchanged
// since the read, so concurrent reactions to the same comment never lose
// updates.
func (db *DB) React(ctx context.Context, id, userID primitive.ObjectID, polarity Polarity) (*models.Comment, error) {
	for attempt := 0; attempt < reactRetries; attempt++ {
		comment, err := db.CommentByID(ctx, id)
		if err != nil {
			return nil, err
		}
		prevLiked := comment.LikedBy
		prevDisliked := comment.DislikedBy

		ApplyReaction(comment, userID, polarity)

		res, err := db.Comments().UpdateOne(ctx,
			bson.M{"_id": id, "likedBy": prevLiked, "dislikedBy": prevDisliked},
			bson.M{"$set": bson.M{
				"likes":      comment.Likes,
				"dislikes":   comment.Dislikes,
				"likedBy":    comment.LikedBy,
				"dislikedBy": comment.DislikedBy,
			}})
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return comment, nil
		}
		// Lost the race; re-read and retry.
	}
	return nil, ErrConflict
}

// ApplyLLMSpoiler records the background classifier's verdict. The filter
// excludes user-sourced spoiler flags, so an explicit author assertion can
// never be overwritten, regardless of when the classifier finishes. Reports
// whether the comment was actually updated.
func (db *DB) ApplyLLMSpoiler(ctx context.Context, id primitive.ObjectID, isSpoiler bool, confidence float64) (bool, error) {
	res, err := db.Comments().UpdateOne(ctx,
		bson.M{"_id": id, "spoiler.source": bson.M{"$ne": models.SpoilerSourceUser}},
		bson.M{"$set": bson.M{
			"spoiler.isSpoiler":  isSpoiler,
			"spoiler.source":     models.SpoilerSourceLLM,
			"spoiler.confidence": confidence,
		}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
