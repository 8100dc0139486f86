package history

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/emilyats/authmed/internal/database"
	"github.com/emilyats/authmed/internal/detection"
	"github.com/emilyats/authmed/internal/models"
)

// collectionName matches the collection the mobile app has always written to.
const collectionName = "scanHistory"

// ErrNotFound is returned for lookups, note updates and deletes against a
// scan id that does not exist (including an already-deleted one).
var ErrNotFound = errors.New("scan record not found")

// Store is the scan-history adapter over MongoDB. Every operation is a
// single remote call; no local cache, no offline queue, last writer wins.
type Store struct{}

// Scans is the process-wide history store.
var Scans = &Store{}

func (s *Store) collection() *mongo.Collection {
	return database.DB.Collection(collectionName)
}

// EnsureIndexes configures the (userId, scannedAt desc) compound index that
// backs List. Called on startup after Mongo has connected.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "scannedAt", Value: -1},
		},
		Options: options.Index().SetName("idx_user_scanned_at"),
	})
	return err
}

// Save persists one detection result as a scan record with a
// server-assigned timestamp. Every call creates a new record; saving the
// same result twice intentionally creates two records.
func (s *Store) Save(ctx context.Context, userID string, result *detection.Result, note string) (*models.ScanRecord, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	if result == nil {
		return nil, errors.New("detection result is required")
	}

	record := &models.ScanRecord{
		ID:                     primitive.NewObjectID(),
		UserID:                 userID,
		MedicineName:           result.Class,
		Confidence:             result.Confidence,
		Authenticity:           string(result.Authenticity.Status),
		AuthenticityConfidence: result.Authenticity.Confidence,
		ImageURL:               result.CroppedImageURL,
		Note:                   note,
		ScannedAt:              time.Now().UTC(),
	}

	if _, err := s.collection().InsertOne(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// List returns all of a user's scan records, newest first. A user with no
// records gets an empty slice, not an error.
func (s *Store) List(ctx context.Context, userID string) ([]models.ScanRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scannedAt", Value: -1}})

	cursor, err := s.collection().Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := make([]models.ScanRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one scan record by id.
func (s *Store) Get(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	oid, err := primitive.ObjectIDFromHex(scanID)
	if err != nil {
		return nil, ErrNotFound
	}

	var record models.ScanRecord
	err = s.collection().FindOne(ctx, bson.M{"_id": oid}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// UpdateNote overwrites the note field and nothing else.
func (s *Store) UpdateNote(ctx context.Context, scanID, note string) error {
	oid, err := primitive.ObjectIDFromHex(scanID)
	if err != nil {
		return ErrNotFound
	}

	res, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"note": note}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete irreversibly removes a scan record. Deleting an id that is already
// gone yields ErrNotFound. User confirmation is the caller's job.
func (s *Store) Delete(ctx context.Context, scanID string) error {
	oid, err := primitive.ObjectIDFromHex(scanID)
	if err != nil {
		return ErrNotFound
	}

	res, err := s.collection().DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
