package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dentascope/models"
)

type LabelInput struct {
	ID      string                 `json:"id" binding:"omitempty,label_id"`
	ClassID string                 `json:"class_id" binding:"required,max=255"`
	Surface []string               `json:"surface"`
	Shape   map[string]interface{} `json:"shape"`
	Meta    map[string]interface{} `json:"meta"`
}

// AnnotationInput Body of an annotation replace, also embedded in image uploads
type AnnotationInput struct {
	Labels []LabelInput `json:"labels" binding:"dive"`
}

func (in LabelInput) toModel() models.Label {
	label := models.Label{
		ClassID: in.ClassID,
		Shape:   datatypes.JSONMap(in.Shape),
		Meta:    datatypes.JSONMap(in.Meta),
	}
	if in.ID != "" {
		label.ID = uuid.MustParse(in.ID).String()
	}

	surface := in.Surface
	if surface == nil {
		surface = []string{}
	}
	encoded, _ := json.Marshal(surface)
	label.Surface = datatypes.JSON(encoded)

	if label.Shape == nil {
		label.Shape = datatypes.JSONMap{}
	}
	if label.Meta == nil {
		label.Meta = datatypes.JSONMap{}
	}
	return label
}

// ToLabels Convert validated input into label rows, rejecting ids repeated within the input
func (in AnnotationInput) ToLabels() ([]models.Label, error) {
	labels := make([]models.Label, 0, len(in.Labels))
	seen := make(map[string]bool)
	errs := FieldErrors{}

	for i, labelInput := range in.Labels {
		label := labelInput.toModel()
		if label.ID != "" {
			if seen[label.ID] {
				errs.Add(fmt.Sprintf("labels[%d].id", i), fmt.Sprintf("Duplicate label id %s.", label.ID))
			}
			seen[label.ID] = true
		}
		labels = append(labels, label)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return labels, nil
}

// decodeAnnotation Decode and validate an annotation body. Labels are decoded one at
// a time so type errors are reported under the index of the offending label.
func decodeAnnotation(data []byte) (AnnotationInput, error) {
	var input AnnotationInput
	var raw struct {
		Labels []json.RawMessage `json:"labels"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return input, err
	}

	input.Labels = make([]LabelInput, len(raw.Labels))
	for i, encoded := range raw.Labels {
		if err := json.Unmarshal(encoded, &input.Labels[i]); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return input, err
			}
			field := fmt.Sprintf("%s[%d]", labelsField, i)
			if typeErr.Field != "" {
				field += "." + typeErr.Field
			}
			return input, FieldErrors{field: {fmt.Sprintf("Incorrect type. Got %s.", typeErr.Value)}}
		}
	}

	if err := binding.Validator.ValidateStruct(&input); err != nil {
		return input, err
	}
	return input, nil
}

// bindAnnotation Decode and validate an annotation carried as a decoded JSON value
func bindAnnotation(value interface{}) ([]models.Label, error) {
	if _, ok := value.(map[string]interface{}); !ok {
		return nil, FieldErrors{nonFieldErrors: {fmt.Sprintf("Invalid data. Expected an object, but got %s.", jsonKind(value))}}
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	input, err := decodeAnnotation(encoded)
	if err != nil {
		return nil, err
	}
	return input.ToLabels()
}

func jsonKind(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "list"
	case string:
		return "str"
	case bool:
		return "bool"
	case float64:
		return "number"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func respondAnnotation(c *gin.Context, status int, annotation *models.Annotation) {
	representation, err := representAnnotation(annotation, c.Query("format"))
	if err != nil {
		log.Warn(fmt.Sprintf("Cannot represent annotation %d: %s", annotation.ID, err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(status, representation)
}

// GetAnnotation Return the labels of an image, use ?format=export for the confirmed labels only
func GetAnnotation(db *gorm.DB) gin.HandlerFunc {
	fn := func(c *gin.Context) {
		annotation, err := models.FindAnnotation(c.Request.Context(), db, c.Param("file"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound(c)
				return
			}
			log.Warn(fmt.Sprintf("Cannot read annotation of %s: %s", c.Param("file"), err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		respondAnnotation(c, http.StatusOK, annotation)
	}
	return fn
}

// UpdateAnnotation Replace the complete label set of an image
func UpdateAnnotation(db *gorm.DB) gin.HandlerFunc {
	fn := func(c *gin.Context) {
		ctx := c.Request.Context()
		file := c.Param("file")

		image, err := models.FindImage(ctx, db, file)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound(c)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}

		// An empty body is an empty label set
		var input AnnotationInput
		if len(bytes.TrimSpace(body)) > 0 {
			if input, err = decodeAnnotation(body); err != nil {
				c.JSON(http.StatusBadRequest, toFieldErrors(err))
				return
			}
		}
		labels, err := input.ToLabels()
		if err != nil {
			c.JSON(http.StatusBadRequest, toFieldErrors(err))
			return
		}

		var annotation *models.Annotation
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			annotation, err = models.FindOrCreateAnnotation(tx, image)
			if err != nil {
				return err
			}
			return models.ReplaceLabels(tx, annotation, labels)
		})

		var conflict *models.LabelConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusBadRequest, FieldErrors{labelsField: {conflict.Error()}})
			return
		}
		if err != nil {
			log.Warn(fmt.Sprintf("Cannot replace labels of %s: %s", file, err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		log.WithFields(log.Fields{"file": file, "labels": len(labels)}).Info("Replaced annotation labels")
		respondAnnotation(c, http.StatusOK, annotation)
	}
	return fn
}

// PatchAnnotation Labels are only ever replaced as a whole
func PatchAnnotation(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"detail": "Partial updates of an annotation are not implemented, use PUT."})
}
