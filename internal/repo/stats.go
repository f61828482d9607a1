package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Scope narrows a query, e.g. DoctorsBySpecialization.
type Scope = func(*gorm.DB) *gorm.DB

// DoctorsBySpecialization matches specialization case-insensitively. An
// empty value matches every doctor.
func DoctorsBySpecialization(specialization string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if specialization == "" {
			return db
		}
		return db.Where("LOWER(specialization) = LOWER(?)", specialization)
	}
}

// TableStats returns how many rows of model match scopes and the latest
// updated_at among them (nil when none match). List handlers derive weak
// ETags from the pair.
func TableStats(ctx context.Context, db *gorm.DB, model any, scopes ...Scope) (count int64, maxUpdatedAt *time.Time, err error) {
	base := func() *gorm.DB { return db.WithContext(ctx).Model(model).Scopes(scopes...) }

	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// ORDER BY instead of MAX(): SQLite returns MAX(datetime) as TEXT.
	var row struct {
		UpdatedAt time.Time
	}
	if err = base().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
