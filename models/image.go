package models

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Image An uploaded image, keyed by the filename it is stored under
type Image struct {
	ID         uint        `json:"-" gorm:"primaryKey"`
	File       string      `json:"id" gorm:"size:255;not null;uniqueIndex"`
	CreatedAt  time.Time   `json:"created_at"`
	Annotation *Annotation `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// FindImage Look up an image by its stored filename
func FindImage(ctx context.Context, db *gorm.DB, file string) (*Image, error) {
	var image Image
	if err := db.WithContext(ctx).Where("file = ?", file).First(&image).Error; err != nil {
		return nil, err
	}
	return &image, nil
}

// ImageExists Whether an image with this stored filename is present
func ImageExists(ctx context.Context, db *gorm.DB, file string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&Image{}).Where("file = ?", file).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindImages All images, oldest first, with their annotation (without labels)
func FindImages(ctx context.Context, db *gorm.DB) ([]Image, error) {
	var images []Image
	err := db.WithContext(ctx).Preload("Annotation").Order("id").Find(&images).Error
	return images, err
}

// CreateImage Insert the image row. When annotate is set an annotation holding
// labels is created along with it. Run it inside a transaction.
func CreateImage(tx *gorm.DB, image *Image, annotate bool, labels []Label) error {
	if err := tx.Omit("Annotation").Create(image).Error; err != nil {
		return fmt.Errorf("cannot create image %s: %w", image.File, err)
	}
	if !annotate {
		return nil
	}

	annotation := Annotation{ImageID: &image.ID}
	if err := tx.Omit("Labels").Create(&annotation).Error; err != nil {
		return fmt.Errorf("cannot create annotation for %s: %w", image.File, err)
	}
	image.Annotation = &annotation
	return insertLabels(tx, &annotation, labels)
}

// DeleteImage Delete the image row, its annotation and labels go with it
func DeleteImage(ctx context.Context, db *gorm.DB, image *Image) error {
	return db.WithContext(ctx).Delete(image).Error
}
