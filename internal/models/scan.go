package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ScanRecord is one persisted medicine scan. userId is immutable after
// creation and is the sole partition key for listing; only the note field
// is mutable afterwards.
type ScanRecord struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID                 string             `bson:"userId" json:"user_id"`
	MedicineName           string             `bson:"medicineName" json:"medicine_name"`
	Confidence             float64            `bson:"confidence" json:"confidence"`
	Authenticity           string             `bson:"authenticity" json:"authenticity"`
	AuthenticityConfidence float64            `bson:"authenticityConfidence" json:"authenticity_confidence"`
	ImageURL               string             `bson:"imageUrl" json:"image_url"`
	Note                   string             `bson:"note" json:"note"`
	ScannedAt              time.Time          `bson:"scannedAt" json:"scanned_at"`
}
