package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"kelasku_app/internal/models"
)

// Catalog resolves courses and promo codes at transaction-creation time.
// The content subsystem owns these records; the commerce core only reads.
type Catalog interface {
	Course(ctx context.Context, id uint) (*models.Course, error)
	PromoCode(ctx context.Context, code string) (*models.PromoCode, error)
}

// GormCatalog reads the catalog from the database, with course lookups
// cached in Redis (course rows change rarely, purchases read them often)
type GormCatalog struct {
	db    *gorm.DB
	cache *RedisCache
}

// NewGormCatalog creates a catalog reader. cache may be nil.
func NewGormCatalog(db *gorm.DB, cache *RedisCache) *GormCatalog {
	return &GormCatalog{db: db, cache: cache}
}

func (c *GormCatalog) Course(ctx context.Context, id uint) (*models.Course, error) {
	key := fmt.Sprintf("catalog:course:%d", id)
	course, err := GetOrSet(c.cache, ctx, key, 5*time.Minute, func() (models.Course, error) {
		var course models.Course
		err := c.db.WithContext(ctx).First(&course, id).Error
		return course, err
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	if !course.IsPublished {
		return nil, ErrCourseNotFound
	}
	return &course, nil
}

func (c *GormCatalog) PromoCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := c.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPromoCodeInvalid
	}
	if err != nil {
		return nil, err
	}
	if !promo.Usable(time.Now()) {
		return nil, ErrPromoCodeInvalid
	}
	return &promo, nil
}
