package models

import (
	"fmt"
	"time"
)

// User links a Telegram chat identity to a GitHub contributor handle
// and carries the gamification state accrued for it.
type User struct {
	ChatID     int64  `gorm:"primaryKey"`
	GithubUser string `gorm:"index"`

	Points int
	Badges []string `gorm:"type:jsonb;serializer:json"`

	CurrentChallenge string

	// LastActivityCheck is the checkpoint up to which this user's
	// activity has already been counted toward points.
	LastActivityCheck time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (u *User) HasBadge(name string) bool {
	for _, b := range u.Badges {
		if b == name {
			return true
		}
	}
	return false
}

func (u *User) String() string {
	return fmt.Sprintf("User(%d, @%s, %d pts)", u.ChatID, u.GithubUser, u.Points)
}
