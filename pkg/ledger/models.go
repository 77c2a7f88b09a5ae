package ledger

import "time"

// Run is one recorded Upload call.
type Run struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"not null;uniqueIndex"`
	Subdirectory string `gorm:"index"`
	Status       string
	Error        string `gorm:"type:text"`
	Attempts     int

	// Denormalized artifact counts.
	Files        int
	Uploaded     int
	Deduplicated int

	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
}

// Artifact is one file of a successful run.
type Artifact struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"not null;index"`
	Path         string
	Key          string `gorm:"index"`
	URL          string
	Hash         string
	Size         int64
	Deduplicated bool
	FileID       string
}
