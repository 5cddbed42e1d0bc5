package models

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Annotation Groups the labels of one image
type Annotation struct {
	ID      uint    `json:"-" gorm:"primaryKey"`
	ImageID *uint   `json:"image_id" gorm:"uniqueIndex"`
	Labels  []Label `json:"labels" gorm:"constraint:OnDelete:CASCADE"`
}

// Label A single classified region of an image
type Label struct {
	ID           string            `json:"id" gorm:"primaryKey;size:36"`
	AnnotationID uint              `json:"-" gorm:"not null;index"`
	Position     int               `json:"-" gorm:"not null"`
	ClassID      string            `json:"class_id" gorm:"size:255;not null"`
	Surface      datatypes.JSON    `json:"surface"`
	Shape        datatypes.JSONMap `json:"shape"`
	Meta         datatypes.JSONMap `json:"meta"`
}

// BeforeCreate Generate the label id when none was supplied
func (l *Label) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// SurfaceTokens Decode the stored surface
func (l *Label) SurfaceTokens() ([]string, error) {
	var tokens []string
	if len(l.Surface) == 0 {
		return tokens, nil
	}
	err := json.Unmarshal(l.Surface, &tokens)
	return tokens, err
}

// FindAnnotation Look up the annotation of the image stored as file, labels in submission order
func FindAnnotation(ctx context.Context, db *gorm.DB, file string) (*Annotation, error) {
	var annotation Annotation
	err := db.WithContext(ctx).
		Where("image_id IN (?)", db.Model(&Image{}).Select("id").Where("file = ?", file)).
		Preload("Labels", func(db *gorm.DB) *gorm.DB {
			return db.Order("position")
		}).
		First(&annotation).Error
	if err != nil {
		return nil, err
	}
	return &annotation, nil
}

// FindOrCreateAnnotation Annotation of image, created when the image has none. Run it inside a transaction.
func FindOrCreateAnnotation(tx *gorm.DB, image *Image) (*Annotation, error) {
	annotation := Annotation{ImageID: &image.ID}
	if err := tx.Where("image_id = ?", image.ID).Omit("Labels").FirstOrCreate(&annotation).Error; err != nil {
		return nil, err
	}
	return &annotation, nil
}
