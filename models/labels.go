package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// LabelConflictError Returned when submitted label ids are already used by other labels
type LabelConflictError struct {
	IDs []string
}

func (e *LabelConflictError) Error() string {
	return fmt.Sprintf("Labels with these ids already exist: %s", strings.Join(e.IDs, ", "))
}

// ReplaceLabels Delete every label of the annotation and insert labels in their place.
// Run it inside a transaction so a conflict leaves the previous labels untouched.
func ReplaceLabels(tx *gorm.DB, annotation *Annotation, labels []Label) error {
	if err := tx.Where("annotation_id = ?", annotation.ID).Delete(&Label{}).Error; err != nil {
		return fmt.Errorf("cannot delete labels of annotation %d: %w", annotation.ID, err)
	}
	return insertLabels(tx, annotation, labels)
}

func insertLabels(tx *gorm.DB, annotation *Annotation, labels []Label) error {
	if len(labels) == 0 {
		annotation.Labels = []Label{}
		return nil
	}

	var ids []string
	for i := range labels {
		labels[i].AnnotationID = annotation.ID
		labels[i].Position = i
		if labels[i].ID != "" {
			ids = append(ids, labels[i].ID)
		}
	}

	if len(ids) > 0 {
		var existing []string
		if err := tx.Model(&Label{}).Where("id IN ?", ids).Order("id").Pluck("id", &existing).Error; err != nil {
			return fmt.Errorf("cannot check existing labels: %w", err)
		}
		if len(existing) > 0 {
			return &LabelConflictError{IDs: existing}
		}
	}

	if err := tx.Create(&labels).Error; err != nil {
		return fmt.Errorf("cannot create labels for annotation %d: %w", annotation.ID, err)
	}
	annotation.Labels = labels
	return nil
}
