package store

import (
	"context"
	"time"

	"github.com/reado/reado-server/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertGoogleUser creates or refreshes a user keyed by Google id and
// returns the stored document. Profile fields and the access token are
// always refreshed; the refresh token is only replaced when Google sent a
// new one.
func (db *DB) UpsertGoogleUser(ctx context.Context, user *models.User) (*models.User, error) {
	set := bson.M{
		"name":        user.Name,
		"email":       user.Email,
		"picture":     user.Picture,
		"accessToken": user.AccessToken,
		"lastLogin":   time.Now().UTC(),
	}
	if user.RefreshToken != "" {
		set["refreshToken"] = user.RefreshToken
	}
	if !user.TokenExpiry.IsZero() {
		set["tokenExpiry"] = user.TokenExpiry
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var stored models.User
	err := db.Users().FindOneAndUpdate(ctx,
		bson.M{"googleId": user.GoogleID},
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"googleId":  user.GoogleID,
				"createdAt": time.Now().UTC(),
				"bookmarks": []models.Bookmark{},
			},
		}, opts).Decode(&stored)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (db *DB) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := db.Users().FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UsersByIDs returns name/picture/email projections for the given ids, used
// to populate comment authors.
func (db *DB) UsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.UserRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := db.Users().Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1, "picture": 1, "email": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var refs []models.UserRef
	if err := cur.All(ctx, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// AddBookmark inserts a bookmark, replacing any existing one for the same
// (bookId, page) pair, and returns the user's full bookmark list. The pull
// and push are separate statements as in the original; the document is
// per-user so contention is not a concern.
func (db *DB) AddBookmark(ctx context.Context, userID primitive.ObjectID, bm models.Bookmark) ([]models.Bookmark, error) {
	res, err := db.Users().UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"bookmarks": bson.M{"bookId": bm.BookID, "page": bm.Page}}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u models.User
	err = db.Users().FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{"$push": bson.M{"bookmarks": bm}}, opts).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u.Bookmarks, nil
}

func (db *DB) Bookmarks(ctx context.Context, userID primitive.ObjectID) ([]models.Bookmark, error) {
	u, err := db.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Bookmarks == nil {
		return []models.Bookmark{}, nil
	}
	return u.Bookmarks, nil
}
