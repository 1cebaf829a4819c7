// Package users models profiles and the social relations kept by the
// platform. Point balances live here but mutate only inside catalog
// publish and takedown transactions.
package users

import (
	"time"

	"github.com/scholarstack/scholarstack/backend/internal/ledger"
)

// Profile is the persisted user record. Level and badge are derived
// from the point balance on read, never stored.
type Profile struct {
	UserID         string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email          string    `gorm:"column:email;size:320"`
	DisplayName    string    `gorm:"column:display_name;size:320"`
	Role           string    `gorm:"column:role;size:32;not null;default:'student'"`
	Points         int       `gorm:"column:points;not null;default:0"`
	FollowersCount int       `gorm:"column:followers_count;not null;default:0"`
	FollowingCount int       `gorm:"column:following_count;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "user_profiles"
}

// ProfileView is the read-side projection served to clients.
type ProfileView struct {
	Profile
	Level int
	Badge string
}

// View attaches the derived level/badge to a profile.
func (p Profile) View() ProfileView {
	level := ledger.LevelFor(p.Points)
	return ProfileView{Profile: p, Level: level.Level, Badge: level.Badge}
}

// Follow records that a follower watches a target user.
type Follow struct {
	FollowerID string    `gorm:"column:follower_id;primaryKey;size:190;not null"`
	TargetID   string    `gorm:"column:target_id;primaryKey;size:190;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Follow) TableName() string {
	return "user_follows"
}

// Bookmark records a saved catalog entry for a user.
type Bookmark struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	EntryID   string    `gorm:"column:entry_id;primaryKey;size:190;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Bookmark) TableName() string {
	return "user_bookmarks"
}
