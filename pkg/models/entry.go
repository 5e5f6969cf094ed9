package models

import (
	"time"

	"github.com/google/uuid"
)

// JournalEntryPayload is the only payload shape the specialist agents accept.
type JournalEntryPayload struct {
	EntryID string     `json:"entry_id"`
	UserID  string     `json:"user_id"`
	Content string     `json:"content"`
	Date    string     `json:"date,omitempty"`
	Tags    []EntryTag `json:"tags,omitempty"`
}

// EntryTag is an explicit, user-supplied classification.
type EntryTag struct {
	AreaCode      string   `json:"area_code"`
	DimensionCode *string  `json:"dimension_code,omitempty"`
	Strength      *float64 `json:"strength,omitempty"`
}

// JournalEntry is the persisted raw entry.
type JournalEntry struct {
	ID        string    `db:"id"         json:"id"`
	UserID    string    `db:"user_id"    json:"user_id"`
	Content   string    `db:"content"    json:"content"`
	EntryDate string    `db:"entry_date" json:"entry_date,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Area is a taxonomy term from the external ontology.
type Area struct {
	ID   uuid.UUID `db:"id"   json:"id"`
	Code string    `db:"code" json:"code"`
	Name string    `db:"name" json:"name"`
}

const ProvenanceAgent = "agent"

// EntryAreaLink ties an entry to a taxonomy area.
type EntryAreaLink struct {
	EntryID    string    `db:"entry_id"   json:"entry_id"`
	AreaID     uuid.UUID `db:"area_id"    json:"area_id"`
	Provenance string    `db:"provenance" json:"provenance"`
	Strength   float64   `db:"strength"   json:"strength"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// EntryClassification is one proposed area/dimension for an entry.
type EntryClassification struct {
	EntryID       string  `json:"entry_id"`
	AreaCode      string  `json:"area_code"`
	DimensionCode *string `json:"dimension_code,omitempty"`
	Strength      float64 `json:"strength"`
}

// Sentiment holds polarity in [-1,1] and subjectivity in [0,1].
type Sentiment struct {
	Polarity     float64 `json:"polarity"`
	Subjectivity float64 `json:"subjectivity"`
}

// ProposedScore is a suggested 0-5 score for one dimension.
type ProposedScore struct {
	DimensionCode string  `json:"dimension_code"`
	Score         float64 `json:"score"`
	Confidence    float64 `json:"confidence"`
}

// JournalEntryCreated is the payload of the JournalEntryCreated event.
type JournalEntryCreated struct {
	EntryID        string                `json:"entry_id"`
	UserID         string                `json:"user_id"`
	Classification []EntryClassification `json:"classification"`
	Sentiment      Sentiment             `json:"sentiment"`
	ProposedScores []ProposedScore       `json:"proposed_scores"`
}
