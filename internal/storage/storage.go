package storage

import (
	"context"
	"fmt"

	"github.com/forge-games/contribot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Migrate() error {
	if err := s.db.AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, chatID int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// SaveUser writes the full record as a single-row upsert keyed by
// chat_id, so a crashed pass never leaves a torn row.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	if err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			UpdateAll: true,
		}).
		Create(user).
		Error; err != nil {
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// ListUsers returns every linked user ordered by chat_id, so
// reconciliation passes iterate in a stable order.
func (s *Storage) ListUsers(ctx context.Context) ([]*models.User, error) {
	var result []*models.User
	if err := s.db.
		WithContext(ctx).
		Order("chat_id").
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return result, nil
}

// TopUsers returns at most limit users by points descending, ties
// broken by chat_id ascending.
func (s *Storage) TopUsers(ctx context.Context, limit int) ([]*models.User, error) {
	var result []*models.User
	if err := s.db.
		WithContext(ctx).
		Order("points DESC, chat_id ASC").
		Limit(limit).
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("getting top users: %w", err)
	}
	return result, nil
}
