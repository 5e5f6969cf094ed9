package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CommitmentStatusActive = "active"

	CommitmentSourceJournal = "journal_entry"
)

// Entities are the named things extracted from a commitment statement.
type Entities struct {
	Subjects []string `json:"subjects"`
	Projects []string `json:"projects"`
	People   []string `json:"people"`
	Domains  []string `json:"domains"`
}

// Commitment is a declared intention detected in free text.
type Commitment struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	UserID      string    `db:"user_id"      json:"user_id"`
	EntryID     string    `db:"entry_id"     json:"entry_id"`
	Statement   string    `db:"statement"    json:"statement"`
	Confidence  float64   `db:"confidence"   json:"confidence"`
	IntentVerbs []string  `db:"intent_verbs" json:"intent_verbs"`
	Entities    Entities  `db:"entities"     json:"entities"`
	Source      string    `db:"source"       json:"source"`
	Status      string    `db:"status"       json:"status"`
	DetectedAt  time.Time `db:"detected_at"  json:"detected_at"`
}

// CommitmentDetected is the payload of the CommitmentDetected event.
type CommitmentDetected struct {
	CommitmentID uuid.UUID `json:"commitment_id"`
	UserID       string    `json:"user_id"`
	EntryID      string    `json:"entry_id"`
	Statement    string    `json:"statement"`
	Confidence   float64   `json:"confidence"`
	Entities     Entities  `json:"entities"`
}
