package models

import "time"

// Log is a publicly visible voice-journal entry. The encoded audio payload is
// stored inline on the document (base64 data URL) rather than in separate blob
// storage.
type Log struct {
	ID         string    `bson:"-" json:"id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	UserName   string    `bson:"user_name" json:"user_name"`
	Transcript string    `bson:"transcript" json:"transcript"`
	Milestone  bool      `bson:"milestone" json:"milestone"`
	Summary    string    `bson:"summary" json:"summary"`
	AudioData  string    `bson:"audio_data" json:"audio_data"`
	DayNumber  int       `bson:"day_number" json:"day_number"`
	Category   string    `bson:"category,omitempty" json:"category,omitempty"`
	Likes      []string  `bson:"likes" json:"likes"`
	AIInsight  string    `bson:"ai_insight,omitempty" json:"ai_insight,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// LikedBy reports whether userID is in the log's like set.
func (l *Log) LikedBy(userID string) bool {
	for _, id := range l.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// Comment belongs to a single log. Timestamp is assigned on the write path,
// never by the submitting client.
type Comment struct {
	ID        string    `bson:"-" json:"id"`
	LogID     string    `bson:"log_id" json:"log_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	UserName  string    `bson:"user_name" json:"user_name"`
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
