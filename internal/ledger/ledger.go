// Package ledger defines the reputation point rules and the
// append-only point history. Point balances mutate only through the
// publish-credit and takedown-debit triggers, always inside the same
// transaction as the catalog write that caused them.
package ledger

import "time"

// Point deltas observed by the platform. There is no floor: balances
// may go negative after repeated takedowns.
const (
	PublishBasePoints   = 10
	QualityBonusPoints  = 20
	QualityBonusCutoff  = 8
	CoAuthorBonusPoints = 5
	TakedownPenalty     = 50
)

// Reason labels the trigger behind a point entry.
type Reason string

const (
	ReasonPublish  Reason = "publish"
	ReasonCoAuthor Reason = "co_author"
	ReasonTakedown Reason = "takedown"
)

// PublishCredit returns the points earned by an uploader for a
// successful publish with the given quality score.
func PublishCredit(qualityScore int) int {
	if qualityScore > QualityBonusCutoff {
		return PublishBasePoints + QualityBonusPoints
	}
	return PublishBasePoints
}

// Credit pairs a recipient with a point delta and its trigger.
type Credit struct {
	UserID string
	Delta  int
	Reason Reason
}

// PublishCredits expands a publish event into the credits it grants:
// the uploader's base-plus-bonus credit and a flat bonus per co-author.
func PublishCredits(uploaderID string, coAuthorIDs []string, qualityScore int) []Credit {
	credits := []Credit{{UserID: uploaderID, Delta: PublishCredit(qualityScore), Reason: ReasonPublish}}
	for _, coAuthorID := range coAuthorIDs {
		if coAuthorID == "" || coAuthorID == uploaderID {
			continue
		}
		credits = append(credits, Credit{UserID: coAuthorID, Delta: CoAuthorBonusPoints, Reason: ReasonCoAuthor})
	}
	return credits
}

// TakedownDebit returns the (negative) delta applied to an uploader
// whose entry was marked infringing.
func TakedownDebit() int {
	return -TakedownPenalty
}

// PointEntry is the append-only audit row recorded alongside every
// balance mutation.
type PointEntry struct {
	EntryID           string `gorm:"column:entry_id;primaryKey;size:190;not null"`
	UserID            string `gorm:"column:user_id;size:190;not null;index:idx_points_user_time,priority:1"`
	CatalogEntryID    string `gorm:"column:catalog_entry_id;size:190;not null"`
	Delta             int    `gorm:"column:delta;not null"`
	Reason            Reason `gorm:"column:reason;size:32;not null"`
	RecordedAtSeconds int64  `gorm:"column:recorded_at_s;not null;index:idx_points_user_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (PointEntry) TableName() string {
	return "point_entries"
}

// NewPointEntry builds a history row for a credit or debit.
func NewPointEntry(id, userID, catalogEntryID string, delta int, reason Reason, at time.Time) PointEntry {
	return PointEntry{
		EntryID:           id,
		UserID:            userID,
		CatalogEntryID:    catalogEntryID,
		Delta:             delta,
		Reason:            reason,
		RecordedAtSeconds: at.UTC().Unix(),
	}
}

// Level is the read-side projection of a point balance. It is never
// stored; callers recompute it on every read.
type Level struct {
	Level int
	Badge string
}

// LevelFor maps a point balance onto the tiered level/badge ladder.
func LevelFor(points int) Level {
	switch {
	case points < 50:
		return Level{Level: 1, Badge: "Novice"}
	case points < 200:
		return Level{Level: 2, Badge: "Contributor"}
	case points < 500:
		return Level{Level: 3, Badge: "Helper"}
	default:
		return Level{Level: 4, Badge: "Expert"}
	}
}
