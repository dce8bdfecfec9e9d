package store

import (
	"context"

	"github.com/SarangaVP/Car-Damage-Caption/internal/models"
)

// Store defines the persistence interface for the caption dataset.
type Store interface {
	// Captions
	SaveCaption(ctx context.Context, c *models.Caption) error
	GetCaption(ctx context.Context, imagePath string) (*models.Caption, error)
	ListCaptions(ctx context.Context) ([]*models.Caption, error)
	ReviewedPaths(ctx context.Context) (map[string]bool, error)
	CountCaptions(ctx context.Context) (int64, error)
	ClearCaptions(ctx context.Context) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
