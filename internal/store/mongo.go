package store

import (
	"context"
	"log"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/audiolog-app/audiolog-backend/internal/models"
)

const (
	logsCollection     = "logs"
	commentsCollection = "log_comments"
	settingsCollection = "journey_settings"
)

// MongoStore persists feed documents in MongoDB and announces changes through
// a Redis-backed Notifier. Subscribers re-query the full scope on every bump.
type MongoStore struct {
	db       *mongo.Database
	notifier *Notifier
}

func NewMongoStore(db *mongo.Database, notifier *Notifier) *MongoStore {
	return &MongoStore{db: db, notifier: notifier}
}

// EnsureIndexes configures the collection indexes. Called on startup once
// Mongo has connected.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		logsCollection: {
			{
				Keys:    bson.D{{Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_created_at"),
			},
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_user_created_at"),
			},
		},
		commentsCollection: {
			{
				Keys:    bson.D{{Key: "log_id", Value: 1}, {Key: "timestamp", Value: 1}},
				Options: options.Index().SetName("idx_log_timestamp"),
			},
		},
		settingsCollection: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetName("idx_user_id").SetUnique(true),
			},
		},
	}

	for col, ms := range indexes {
		for _, m := range ms {
			if _, err := s.db.Collection(col).Indexes().CreateOne(ctx, m); err != nil {
				return err
			}
		}
	}
	return nil
}

type logDoc struct {
	OID        primitive.ObjectID `bson:"_id,omitempty"`
	models.Log `bson:",inline"`
}

type commentDoc struct {
	OID            primitive.ObjectID `bson:"_id,omitempty"`
	models.Comment `bson:",inline"`
}

func (s *MongoStore) AppendLog(ctx context.Context, l models.Log) (string, error) {
	l.CreatedAt = time.Now().UTC()
	if l.Likes == nil {
		l.Likes = []string{}
	}

	res, err := s.db.Collection(logsCollection).InsertOne(ctx, logDoc{Log: l})
	if err != nil {
		return "", err
	}

	s.notifier.Publish(ctx, LogsScope())
	return res.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (s *MongoStore) Logs(ctx context.Context) ([]models.Log, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.db.Collection(logsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var logs []models.Log
	for cur.Next(ctx) {
		var d logDoc
		if err := cur.Decode(&d); err != nil {
			continue
		}
		d.Log.ID = d.OID.Hex()
		logs = append(logs, d.Log)
	}
	return logs, cur.Err()
}

func (s *MongoStore) AppendComment(ctx context.Context, c models.Comment) (string, error) {
	c.Timestamp = time.Now().UTC()

	res, err := s.db.Collection(commentsCollection).InsertOne(ctx, commentDoc{Comment: c})
	if err != nil {
		return "", err
	}

	s.notifier.Publish(ctx, CommentsScope(c.LogID))
	return res.InsertedID.(primitive.ObjectID).Hex(), nil
}

func (s *MongoStore) Comments(ctx context.Context, logID string) ([]models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.db.Collection(commentsCollection).Find(ctx, bson.M{"log_id": logID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var comments []models.Comment
	for cur.Next(ctx) {
		var d commentDoc
		if err := cur.Decode(&d); err != nil {
			continue
		}
		d.Comment.ID = d.OID.Hex()
		comments = append(comments, d.Comment)
	}
	return comments, cur.Err()
}

func (s *MongoStore) ToggleLike(ctx context.Context, logID, userID string, liked bool) error {
	oid, err := primitive.ObjectIDFromHex(logID)
	if err != nil {
		return err
	}

	// $addToSet / $pull give set semantics: no duplicates, idempotent removal.
	var update bson.M
	if liked {
		update = bson.M{"$addToSet": bson.M{"likes": userID}}
	} else {
		update = bson.M{"$pull": bson.M{"likes": userID}}
	}

	if _, err := s.db.Collection(logsCollection).UpdateByID(ctx, oid, update); err != nil {
		return err
	}

	s.notifier.Publish(ctx, LogsScope())
	return nil
}

func (s *MongoStore) SetInsight(ctx context.Context, logID, text string) error {
	oid, err := primitive.ObjectIDFromHex(logID)
	if err != nil {
		return err
	}

	// Write-once: only match when no insight exists yet.
	filter := bson.M{
		"_id": oid,
		"$or": []bson.M{
			{"ai_insight": bson.M{"$exists": false}},
			{"ai_insight": ""},
		},
	}
	res, err := s.db.Collection(logsCollection).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"ai_insight": text}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrInsightAlreadySet
	}

	s.notifier.Publish(ctx, LogsScope())
	return nil
}

func (s *MongoStore) Settings(ctx context.Context, userID string) (*models.JourneySettings, error) {
	var out models.JourneySettings
	err := s.db.Collection(settingsCollection).FindOne(ctx, bson.M{"user_id": userID}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) MergeSettings(ctx context.Context, userID string, patch models.SettingsPatch) error {
	set := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.AIPersona != nil {
		set["ai_persona"] = *patch.AIPersona
	}
	if patch.Avatar != nil {
		// Dotted paths keep the merge field-level inside the avatar too.
		if patch.Avatar.Background != nil {
			set["avatar.background"] = *patch.Avatar.Background
		}
		if patch.Avatar.Eyes != nil {
			set["avatar.eyes"] = *patch.Avatar.Eyes
		}
		if patch.Avatar.Mouth != nil {
			set["avatar.mouth"] = *patch.Avatar.Mouth
		}
		if patch.Avatar.Accessory != nil {
			set["avatar.accessory"] = *patch.Avatar.Accessory
		}
	}
	if len(set) == 0 {
		return nil
	}

	opts := options.Update().SetUpsert(true)
	_, err := s.db.Collection(settingsCollection).UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"user_id": userID}},
		opts)
	if err != nil {
		return err
	}

	s.notifier.Publish(ctx, SettingsScope(userID))
	return nil
}

// Subscribe opens a live snapshot feed for the scope: the current snapshot is
// delivered immediately, then a fresh one after every Redis bump.
func (s *MongoStore) Subscribe(ctx context.Context, scope Scope) (<-chan Snapshot, CancelFunc, error) {
	bumps, stopListen, err := s.notifier.Listen(ctx, scope)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Snapshot, 1)
	stopped := make(chan struct{})

	deliver := func() {
		snap, err := s.materialize(ctx, scope)
		if err != nil {
			log.Printf("store: materialize %s failed: %v", scope.Key(), err)
			return
		}
		// Latest-wins: replace a pending undelivered snapshot.
		for {
			select {
			case out <- snap:
				return
			default:
				select {
				case <-out:
				default:
				}
			}
		}
	}

	go func() {
		defer close(out)
		deliver()
		for {
			select {
			case <-stopped:
				return
			case <-ctx.Done():
				return
			case _, ok := <-bumps:
				if !ok {
					return
				}
				select {
				case <-stopped:
					return
				default:
				}
				deliver()
			}
		}
	}()

	var once bool
	cancel := func() {
		if once {
			return
		}
		once = true
		close(stopped)
		stopListen()
	}

	return out, cancel, nil
}

func (s *MongoStore) materialize(ctx context.Context, scope Scope) (Snapshot, error) {
	snap := Snapshot{Scope: scope}
	var err error
	switch scope.Kind {
	case ScopeLogs:
		snap.Logs, err = s.Logs(ctx)
		// Mongo sorts missing/zero timestamps first under descending order;
		// re-sort so not-yet-confirmed entries land oldest.
		SortLogs(snap.Logs)
	case ScopeComments:
		snap.Comments, err = s.Comments(ctx, scope.LogID)
	case ScopeSettings:
		snap.Settings, err = s.Settings(ctx, scope.UserID)
	}
	return snap, err
}

// SortLogs orders logs newest-first by creation time. Zero timestamps sort as
// 0, appearing oldest. Ties fall back to ID for stability.
func SortLogs(logs []models.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		a, b := logs[i].CreatedAt, logs[j].CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return logs[i].ID > logs[j].ID
	})
}

// SortComments orders comments oldest-first by timestamp, ties broken by
// store-assigned ID.
func SortComments(comments []models.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		a, b := comments[i].Timestamp, comments[j].Timestamp
		if !a.Equal(b) {
			return a.Before(b)
		}
		return comments[i].ID < comments[j].ID
	})
}
