package controllers

import (
	"encoding/json"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	fileField = "file"
	dataField = "data"
)

// MultipartJSON A multipart upload whose "data" part carries a JSON object
type MultipartJSON struct {
	Data map[string]interface{}
	File *multipart.FileHeader
}

// ParseMultipartJSON Parse the multipart body of the request. A "data" part that is not a
// JSON object is ignored, the upload is handled as if it had not been sent.
func ParseMultipartJSON(c *gin.Context) (*MultipartJSON, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	result := &MultipartJSON{Data: map[string]interface{}{}}
	if values := form.Value[dataField]; len(values) > 0 && strings.TrimSpace(values[0]) != "" {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(values[0]), &data); err != nil {
			log.WithField("error", err).Warn("Ignoring malformed data field in upload")
		} else if data != nil {
			result.Data = data
		}
	}

	if files := form.File[fileField]; len(files) > 0 {
		result.File = files[0]
	}
	return result, nil
}
