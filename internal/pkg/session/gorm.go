package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/mx-space/authgate/internal/models"
	"gorm.io/gorm"
)

// GormRegistry stores sessions in the user_sessions table.
type GormRegistry struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGorm returns a registry backed by db. The caller owns migrations.
func NewGorm(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db, now: time.Now}
}

func (g *GormRegistry) Create(ctx context.Context, rec *Record) (string, error) {
	now := g.now()
	if err := prepare(rec, now, uuid.NewString); err != nil {
		return "", err
	}
	row := &models.UserSession{
		Base:           models.Base{ID: rec.ID, CreatedAt: rec.CreatedAt},
		OwnerSubjectID: rec.OwnerSubjectID,
		DeviceType:     rec.Device.Type,
		Browser:        rec.Device.Browser,
		UserAgent:      rec.Device.UserAgent,
		IPAddress:      rec.IPAddress,
		LastUsedAt:     rec.LastUsedAt,
		ExpiresAt:      rec.ExpiresAt,
	}
	if err := g.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKey(err) {
			return "", ErrExists
		}
		return "", err
	}
	return rec.ID, nil
}

func (g *GormRegistry) Get(ctx context.Context, id string) (*Record, error) {
	var row models.UserSession
	err := g.live(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := toRecord(row)
	return &rec, nil
}

func (g *GormRegistry) List(ctx context.Context, owner string) ([]Record, error) {
	var rows []models.UserSession
	err := g.live(ctx).
		Where("owner_subject_id = ?", owner).
		Order("last_used_at DESC, created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRecord(row))
	}
	return out, nil
}

func (g *GormRegistry) Touch(ctx context.Context, id string) error {
	return g.live(ctx).
		Where("id = ?", id).
		Update("last_used_at", g.now()).Error
}

// Revoke is a compare-and-set on revoked_at, so a revoked row keeps its
// first revocation time.
func (g *GormRegistry) Revoke(ctx context.Context, id string) error {
	now := g.now()
	return g.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", &now).Error
}

func (g *GormRegistry) RevokeAllExcept(ctx context.Context, owner, keep string) error {
	now := g.now()
	query := g.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("owner_subject_id = ? AND revoked_at IS NULL", owner)
	if strings.TrimSpace(keep) != "" {
		query = query.Where("id <> ?", keep)
	}
	return query.Update("revoked_at", &now).Error
}

// Prune drops expired rows and revoked rows whose token would have expired
// anyway. Revoked rows are kept until then so their ids stay reserved.
func (g *GormRegistry) Prune(ctx context.Context) (int64, error) {
	res := g.db.WithContext(ctx).
		Where("expires_at <= ?", g.now()).
		Delete(&models.UserSession{})
	return res.RowsAffected, res.Error
}

func (g *GormRegistry) live(ctx context.Context) *gorm.DB {
	return g.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("revoked_at IS NULL AND expires_at > ?", g.now())
}

func toRecord(row models.UserSession) Record {
	return Record{
		ID:             row.ID,
		OwnerSubjectID: row.OwnerSubjectID,
		Device: Device{
			Type:      row.DeviceType,
			Browser:   row.Browser,
			UserAgent: row.UserAgent,
		},
		IPAddress:  row.IPAddress,
		CreatedAt:  row.CreatedAt.UTC(),
		LastUsedAt: row.LastUsedAt.UTC(),
		ExpiresAt:  row.ExpiresAt.UTC(),
	}
}

// isDuplicateKey catches MySQL error 1062 when the dialector was opened
// without TranslateError.
func isDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
