package controllers

import (
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"dentascope/models"
)

// ExportFormat Value of the format query parameter which selects the export view
const ExportFormat = "export"

type labelRepresentation struct {
	ID      string            `json:"id"`
	ClassID string            `json:"class_id"`
	Surface datatypes.JSON    `json:"surface"`
	Shape   datatypes.JSONMap `json:"shape"`
	Meta    datatypes.JSONMap `json:"meta"`
}

// exportedLabel Only confirmed labels are exported, with the surface flattened
type exportedLabel struct {
	ID      string `json:"id"`
	ClassID string `json:"class_id"`
	Surface string `json:"surface"`
}

type annotationRepresentation struct {
	Labels interface{} `json:"labels"`
}

// representAnnotation Shape an annotation for a response in the requested format
func representAnnotation(annotation *models.Annotation, format string) (annotationRepresentation, error) {
	if strings.EqualFold(format, ExportFormat) {
		labels, err := exportLabels(annotation.Labels)
		return annotationRepresentation{Labels: labels}, err
	}

	labels := make([]labelRepresentation, 0, len(annotation.Labels))
	for _, label := range annotation.Labels {
		surface := label.Surface
		if len(surface) == 0 {
			surface = datatypes.JSON("[]")
		}
		shape, meta := label.Shape, label.Meta
		if shape == nil {
			shape = datatypes.JSONMap{}
		}
		if meta == nil {
			meta = datatypes.JSONMap{}
		}
		labels = append(labels, labelRepresentation{
			ID:      label.ID,
			ClassID: label.ClassID,
			Surface: surface,
			Shape:   shape,
			Meta:    meta,
		})
	}
	return annotationRepresentation{Labels: labels}, nil
}

func exportLabels(labels []models.Label) ([]exportedLabel, error) {
	exported := make([]exportedLabel, 0, len(labels))
	for i := range labels {
		if !truthy(labels[i].Meta["confirmed"]) {
			continue
		}
		tokens, err := labels[i].SurfaceTokens()
		if err != nil {
			return nil, fmt.Errorf("cannot decode surface of label %s: %w", labels[i].ID, err)
		}
		exported = append(exported, exportedLabel{
			ID:      labels[i].ID,
			ClassID: labels[i].ClassID,
			Surface: strings.Join(tokens, ""),
		})
	}
	return exported, nil
}

// truthy Loose truth of a decoded JSON value: false, 0, "", [], {} and null are false
func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	default:
		return true
	}
}
