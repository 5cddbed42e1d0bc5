package controllers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dentascope/models"
	"dentascope/storage"
	"dentascope/utils"
)

const (
	msgNoFile       = "No file was submitted."
	msgFileExists   = "File already exists"
	msgInvalidImage = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
	annotationField = "annotation"
	labelsField     = "labels"
)

type imageSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Annotated bool      `json:"annotated"`
}

// FindImages List all uploaded images
func FindImages(db *gorm.DB) gin.HandlerFunc {
	fn := func(c *gin.Context) {
		images, err := models.FindImages(c.Request.Context(), db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		summaries := make([]imageSummary, 0, len(images))
		for _, image := range images {
			summaries = append(summaries, imageSummary{
				ID:        image.File,
				CreatedAt: image.CreatedAt,
				Annotated: image.Annotation != nil,
			})
		}
		c.JSON(http.StatusOK, gin.H{"data": summaries})
	}
	return fn
}

func tooBigMessage(config *utils.Config) string {
	return fmt.Sprintf("Your file is too big. Maximum size is %s MB",
		strconv.FormatFloat(config.Upload.MaxSizeMB, 'f', -1, 64))
}

func unsupportedFormatMessage(format string, config *utils.Config) string {
	return fmt.Sprintf("%s format is not supported. Supported formats: %s",
		format, strings.Join(config.Upload.Formats, ", "))
}

func isSupportedFormat(format string, config *utils.Config) bool {
	for _, supported := range config.Upload.Formats {
		if format == supported {
			return true
		}
	}
	return false
}

// validateUpload Check the uploaded file and return the name it will be stored under.
// Checks run in order and the first one failing is reported.
func validateUpload(ctx context.Context, db *gorm.DB, files *storage.FileStore, header *multipart.FileHeader, config *utils.Config) (string, FieldErrors, error) {
	errs := FieldErrors{}

	name, err := utils.ValidFilename(header.Filename)
	if err != nil {
		errs.Add(fileField, fmt.Sprintf("Could not derive a file name from '%s'.", header.Filename))
		return "", errs, nil
	}

	exists, err := models.ImageExists(ctx, db, name)
	if err != nil {
		return "", nil, err
	}
	if exists || files.Exists(name) {
		errs.Add(fileField, msgFileExists)
		return "", errs, nil
	}

	f, err := header.Open()
	if err != nil {
		return "", nil, fmt.Errorf("cannot open upload %s: %w", header.Filename, err)
	}
	defer f.Close()

	format, err := utils.DetectImageFormat(f)
	if err != nil {
		errs.Add(fileField, msgInvalidImage)
		return "", errs, nil
	}
	if !isSupportedFormat(format, config) {
		errs.Add(fileField, unsupportedFormatMessage(format, config))
		return "", errs, nil
	}

	if header.Size >= config.MaxSizeBytes() {
		errs.Add(fileField, tooBigMessage(config))
		return "", errs, nil
	}
	return name, errs, nil
}

// annotationFromData The labels of the annotation embedded in an upload. An absent or
// empty annotation object means the image is stored without annotation.
func annotationFromData(data map[string]interface{}) (bool, []models.Label, FieldErrors) {
	value, ok := data[annotationField]
	if !ok || value == nil {
		return false, nil, nil
	}
	if object, ok := value.(map[string]interface{}); ok && len(object) == 0 {
		return false, nil, nil
	}

	labels, err := bindAnnotation(value)
	if err != nil {
		return false, nil, toFieldErrors(err)
	}
	return true, labels, nil
}

func saveUpload(files *storage.FileStore, header *multipart.FileHeader, name string) error {
	f, err := header.Open()
	if err != nil {
		return fmt.Errorf("cannot open upload %s: %w", header.Filename, err)
	}
	defer f.Close()

	_, err = files.Save(name, f)
	return err
}

// CreateImage Upload an image, optionally with its annotation in the "data" part
func CreateImage(db *gorm.DB, files *storage.FileStore, config *utils.Config) gin.HandlerFunc {
	fn := func(c *gin.Context) {
		ctx := c.Request.Context()

		upload, err := ParseMultipartJSON(c)
		if err != nil {
			if errors.Is(err, http.ErrNotMultipart) {
				c.JSON(http.StatusUnsupportedMediaType, gin.H{"detail": "Expected a multipart/form-data request."})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("Multipart form parse error - %s", err.Error())})
			return
		}

		errs := FieldErrors{}
		var name string
		if upload.File == nil {
			errs.Add(fileField, msgNoFile)
		} else {
			var fileErrs FieldErrors
			name, fileErrs, err = validateUpload(ctx, db, files, upload.File, config)
			if err != nil {
				log.Warn(fmt.Sprintf("Cannot validate upload %s: %s", upload.File.Filename, err.Error()))
				c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
				return
			}
			for field, messages := range fileErrs {
				errs[field] = append(errs[field], messages...)
			}
		}

		annotate, labels, annotationErrs := annotationFromData(upload.Data)
		errs.Merge(annotationField, annotationErrs)

		if len(errs) > 0 {
			c.JSON(http.StatusBadRequest, errs)
			return
		}

		image := models.Image{File: name}
		saved := false
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := models.CreateImage(tx, &image, annotate, labels); err != nil {
				return err
			}
			if err := saveUpload(files, upload.File, name); err != nil {
				return err
			}
			saved = true
			return nil
		})

		if err != nil {
			if saved {
				if err := files.Delete(name); err != nil {
					log.Warn(fmt.Sprintf("Cannot remove %s after failed upload: %s", name, err.Error()))
				}
			}

			var conflict *models.LabelConflictError
			if errors.As(err, &conflict) {
				c.JSON(http.StatusBadRequest, FieldErrors{annotationField + "." + labelsField: {conflict.Error()}})
				return
			}
			// a concurrent upload may have taken the name since validation
			if exists, existsErr := models.ImageExists(ctx, db, name); existsErr == nil && exists {
				c.JSON(http.StatusBadRequest, FieldErrors{fileField: {msgFileExists}})
				return
			}
			log.Warn(fmt.Sprintf("Cannot create image %s: %s", name, err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		log.Info(fmt.Sprintf("Stored image %s with %d labels", name, len(labels)))
		c.JSON(http.StatusCreated, gin.H{"id": image.File})
	}
	return fn
}

// RetrieveImage Send the stored bytes of an image as an attachment
func RetrieveImage(db *gorm.DB, files *storage.FileStore) gin.HandlerFunc {
	fn := func(c *gin.Context) {
		image, err := models.FindImage(c.Request.Context(), db, c.Param("file"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound(c)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		f, size, err := files.Open(image.File)
		if err != nil {
			log.Warn(fmt.Sprintf("Image %s is in the database but its file cannot be opened: %s", image.File, err.Error()))
			if errors.Is(err, storage.ErrFileNotFound) {
				notFound(c)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		defer f.Close()

		c.DataFromReader(http.StatusOK, size, utils.ImageContentType(image.File), f, map[string]string{
			"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, image.File),
		})
	}
	return fn
}

// DeleteImage Delete an image together with its annotation and stored file
func DeleteImage(db *gorm.DB, files *storage.FileStore) gin.HandlerFunc {
	fn := func(c *gin.Context) {
		ctx := c.Request.Context()
		image, err := models.FindImage(ctx, db, c.Param("file"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				notFound(c)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}

		if err := models.DeleteImage(ctx, db, image); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		if err := files.Delete(image.File); err != nil {
			log.Warn(fmt.Sprintf("Deleted image %s but not its file: %s", image.File, err.Error()))
		}

		log.Info(fmt.Sprintf("Deleted image %s", image.File))
		c.JSON(http.StatusOK, gin.H{"data": true})
	}
	return fn
}
