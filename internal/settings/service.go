package settings

import (
	"context"
	"log/slog"

	"github.com/deeppomo/deeppomo/internal/db"
	"github.com/deeppomo/deeppomo/internal/logging"
)

// Service reads and updates user settings
type Service struct {
	db    *db.DB
	store *Store
	log   *slog.Logger
}

// NewService creates a new settings service
func NewService(d *db.DB) *Service {
	return &Service{
		db:    d,
		store: NewStore(d),
		log:   logging.WithComponent("settings"),
	}
}

// Get returns the settings of userID or ErrNotFound.
func (s *Service) Get(ctx context.Context, userID int64) (*Settings, error) {
	return s.store.Get(ctx, userID)
}

// Update applies a partial update. An update that changes nothing leaves
// updated_at untouched.
func (s *Service) Update(ctx context.Context, userID int64, patch Patch) (*Settings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var result *Settings
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		store := s.store.WithTx(tx)
		set, err := store.Get(ctx, userID)
		if err != nil {
			return err
		}
		if patch.Apply(set) {
			set.UpdatedAt = db.Now()
			if err := store.Save(ctx, set); err != nil {
				return err
			}
		}
		result = set
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.log).Debug("settings updated", slog.Int64("user_id", userID))
	return result, nil
}
