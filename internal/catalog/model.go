// Package catalog models published note entries and the publish-time
// orchestration that finalizes an admitted upload into the catalog.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scholarstack/scholarstack/backend/internal/ai"
)

// Status tracks the copyright state of an entry. An entry transitions
// original -> infringing at most once and never back.
type Status string

const (
	StatusOriginal    Status = "original"
	StatusInfringing  Status = "infringing"
	StatusUnderReview Status = "under_review"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidEntryID indicates an empty or oversized entry identifier.
	ErrInvalidEntryID = errors.New("catalog: invalid entry id")
	// ErrInvalidUserID indicates an empty or oversized user identifier.
	ErrInvalidUserID = errors.New("catalog: invalid user id")
)

// NewEntryID validates a raw entry identifier.
func NewEntryID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntryID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEntryID, maxIdentifierLength)
	}
	return trimmed, nil
}

// NewUserID validates a raw user identifier.
func NewUserID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return trimmed, nil
}

// Entry is the persisted catalog record for a published note. AI
// artifacts are written once at publish time and never mutated.
type Entry struct {
	EntryID           string `gorm:"column:entry_id;primaryKey;size:190;not null"`
	SerialCode        string `gorm:"column:serial_code;size:16;not null;uniqueIndex"`
	Title             string `gorm:"column:title;size:320;not null"`
	Subject           string `gorm:"column:subject;size:190;not null"`
	TagsJSON          string `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	UploaderID        string `gorm:"column:uploader_id;size:190;not null;index"`
	UploaderName      string `gorm:"column:uploader_name;size:320;not null"`
	ContributorsJSON  string `gorm:"column:contributors_json;type:text;not null;default:'[]'"`
	Fingerprint       string `gorm:"column:fingerprint;size:64;not null;index"`
	FileURL           string `gorm:"column:file_url;size:1024;not null"`
	FileType          string `gorm:"column:file_type;size:128;not null"`
	QualityScore      int    `gorm:"column:quality_score;not null"`
	AIJSON            string `gorm:"column:ai_json;type:text;not null;default:'{}'"`
	Status            Status `gorm:"column:status;size:32;not null;index"`
	UploadedAtSeconds int64  `gorm:"column:uploaded_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "catalog_entries"
}

// IsImage reports whether the stored file is image content.
func (e Entry) IsImage() bool {
	return strings.HasPrefix(e.FileType, "image/")
}

// Tags decodes the deduplicated tag set.
func (e Entry) Tags() []string {
	var tags []string
	if err := json.Unmarshal([]byte(e.TagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}

// Contributors decodes the contributor id list. The primary uploader is
// always included.
func (e Entry) Contributors() []string {
	var contributors []string
	if err := json.Unmarshal([]byte(e.ContributorsJSON), &contributors); err != nil {
		return []string{e.UploaderID}
	}
	return contributors
}

// Artifacts decodes the AI artifact bundle.
func (e Entry) Artifacts() Artifacts {
	var artifacts Artifacts
	if err := json.Unmarshal([]byte(e.AIJSON), &artifacts); err != nil {
		return Artifacts{}
	}
	return artifacts
}

// Artifacts bundles the publish-time AI outputs stored with an entry.
// Every field is optional: artifact generation failures degrade to an
// absent artifact, never to a failed publish.
type Artifacts struct {
	Summary     *ai.Summary           `json:"summary,omitempty"`
	Flashcards  []ai.Flashcard        `json:"flashcards,omitempty"`
	Quizzes     []ai.Quiz             `json:"quizzes,omitempty"`
	Quality     *ai.QualityAssessment `json:"quality,omitempty"`
	ProcessedBy string                `json:"processed_by,omitempty"`
}

// NormalizeTags lowercases, trims and deduplicates tags preserving
// first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		clean := strings.ToLower(strings.TrimSpace(tag))
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		normalized = append(normalized, clean)
	}
	return normalized
}

func marshalOrDefault(value any, fallback string) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fallback
	}
	return string(encoded)
}
