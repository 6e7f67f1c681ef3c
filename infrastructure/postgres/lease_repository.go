package postgres

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"support-chat/contract"
	"support-chat/domain/presence"
	"support-chat/errors"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeaseRepository maps leases onto user_presence, one row per user.
type LeaseRepository struct {
	db  *gorm.DB
	log *slog.Logger
}

var _ contract.ILeaseRepository = LeaseRepository{}

func NewLeaseRepository(db *gorm.DB, log *slog.Logger) LeaseRepository {
	return LeaseRepository{db: db, log: log}
}

func (r LeaseRepository) PutLease(ctx context.Context, lease presence.Lease) error {
	model := fromLease(lease)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "expires_at", "device_info"}),
	}).Create(&model).Error
	return classify(err)
}

func (r LeaseRepository) GetLease(ctx context.Context, userID string) (presence.Lease, error) {
	var model PresenceModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&model).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return presence.Lease{}, errors.ErrLeaseNotFound
	}
	if err != nil {
		return presence.Lease{}, classify(err)
	}
	return model.toDomain(), nil
}

func (r LeaseRepository) ListLeases(ctx context.Context, activeAt time.Time, limit int) ([]presence.Lease, error) {
	query := r.db.WithContext(ctx).
		Where("expires_at > ?", activeAt).
		Order("last_seen_at DESC").
		Order("user_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []PresenceModel
	if err := query.Find(&models).Error; err != nil {
		return nil, classify(err)
	}
	leases := lo.Map(models, func(m PresenceModel, _ int) presence.Lease { return m.toDomain() })
	return presence.Roster(leases, activeAt, limit), nil
}
