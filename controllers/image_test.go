package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentascope/models"
)

const firstLabelID = "2b1cd508-587b-493b-98ea-b08a8c31d111"

func TestCreateImageWithAnnotation(t *testing.T) {
	s := newTestServer(t)
	content := pngBytes(t)

	w := s.do(uploadRequest(t, "sample.png", content, map[string]interface{}{
		"annotation": annotationPayload(toothLabel(firstLabelID, true)),
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, map[string]interface{}{"id": "sample.png"}, decodeBody(t, w))

	f, size, err := s.files.Open("sample.png")
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, int64(len(content)), size)

	annotation, err := models.FindAnnotation(context.Background(), s.db, "sample.png")
	require.NoError(t, err)
	require.Len(t, annotation.Labels, 1)

	label := annotation.Labels[0]
	assert.Equal(t, firstLabelID, label.ID)
	assert.Equal(t, "tooth", label.ClassID)
	assert.JSONEq(t, `["1","2","3"]`, string(label.Surface))
	assert.Equal(t, map[string]interface{}{"endX": 111.0, "endY": 1399.0, "startY": 605.0, "startX": 44.0}, map[string]interface{}(label.Shape))
	assert.Equal(t, map[string]interface{}{"confirmed": true, "confidence_percent": 0.99}, map[string]interface{}(label.Meta))
}

func TestCreateImageWithoutAnnotation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, "sample.png", pngBytes(t), ""))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	exists, err := models.ImageExists(context.Background(), s.db, "sample.png")
	require.NoError(t, err)
	assert.True(t, exists)

	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/images/sample.png/annotation/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateImageMalformedDataIsIgnored(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, "sample.png", pngBytes(t), `{"annotation": {"labels": [`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/images/sample.png/annotation/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateImageSanitizesFilename(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, "my panoramic (1).png", pngBytes(t), nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "my_panoramic_1.png", decodeBody(t, w)["id"])
}

func TestCreateImageUnicodeFilename(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"зуб.png", "кость.png"} {
		w := s.do(uploadRequest(t, name, pngBytes(t), nil))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, name, decodeBody(t, w)["id"])
		assert.True(t, s.files.Exists(name))
	}
}

func TestCreateImageAlreadyExists(t *testing.T) {
	s := newTestServer(t)
	s.upload(t, nil)

	w := s.do(uploadRequest(t, "sample.png", pngBytes(t), nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]interface{}{"file": []interface{}{"File already exists"}}, decodeBody(t, w))
}

func TestCreateImageWrongFormat(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, "sample.gif", gifBytes(t), map[string]interface{}{
		"annotation": annotationPayload(toothLabel(firstLabelID, true)),
	}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]interface{}{
		"file": []interface{}{"GIF format is not supported. Supported formats: JPEG, PNG, TIFF"},
	}, decodeBody(t, w))

	var labels int64
	require.NoError(t, s.db.Model(&models.Label{}).Count(&labels).Error)
	assert.Zero(t, labels)
}

func TestCreateImageNotAnImage(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, "notes.png", []byte("plain text"), nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Upload a valid image")
}

func TestCreateImageTooBig(t *testing.T) {
	s := newTestServer(t)
	content := pngBytes(t)
	// exactly at the ceiling is already too big
	s.config.Upload.MaxSizeMB = float64(len(content)) / (1 << 20)

	w := s.do(uploadRequest(t, "sample.png", content, nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	messages := decodeBody(t, w)["file"].([]interface{})
	require.Len(t, messages, 1)
	assert.True(t, strings.HasPrefix(messages[0].(string), "Your file is too big. Maximum size is "))
	assert.False(t, s.files.Exists("sample.png"))
}

func TestCreateImageMissingFile(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, "", nil, nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]interface{}{"file": []interface{}{"No file was submitted."}}, decodeBody(t, w))
}

func TestCreateImageNotMultipart(t *testing.T) {
	s := newTestServer(t)

	w := s.do(jsonRequest(t, http.MethodPost, "/v1/images/", map[string]string{"file": "x"}))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestCreateImageInvalidAnnotation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(uploadRequest(t, "sample.png", pngBytes(t), map[string]interface{}{
		"annotation": map[string]interface{}{"labels": []interface{}{map[string]interface{}{}}},
	}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]interface{}{
		"annotation.labels[0].class_id": []interface{}{"This field is required."},
	}, decodeBody(t, w))

	exists, err := models.ImageExists(context.Background(), s.db, "sample.png")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateImageLabelConflictRollsBack(t *testing.T) {
	s := newTestServer(t)
	s.upload(t, annotationPayload(toothLabel(firstLabelID, true)))

	w := s.do(uploadRequest(t, "second.png", pngBytes(t), map[string]interface{}{
		"annotation": annotationPayload(toothLabel(firstLabelID, true)),
	}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w), "annotation.labels")

	exists, err := models.ImageExists(context.Background(), s.db, "second.png")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, s.files.Exists("second.png"))
}

func TestRetrieveImage(t *testing.T) {
	s := newTestServer(t)
	content := pngBytes(t)
	id := s.upload(t, annotationPayload(toothLabel(firstLabelID, true)))

	w := s.do(httptest.NewRequest(http.MethodGet, "/v1/images/"+id+"/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, strconv.Itoa(len(content)), w.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename="`+id+`"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestRetrieveImageNotFound(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/v1/images/sdfsd.jpg/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFindImages(t *testing.T) {
	s := newTestServer(t)
	s.upload(t, annotationPayload())
	w := s.do(uploadRequest(t, "plain.png", pngBytes(t), nil))
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/images/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeBody(t, w)["data"].([]interface{})
	require.Len(t, data, 2)
	assert.Equal(t, "sample.png", data[0].(map[string]interface{})["id"])
	assert.Equal(t, true, data[0].(map[string]interface{})["annotated"])
	assert.Equal(t, false, data[1].(map[string]interface{})["annotated"])
}

func TestDeleteImage(t *testing.T) {
	s := newTestServer(t)
	id := s.upload(t, annotationPayload(toothLabel(firstLabelID, true)))

	w := s.do(httptest.NewRequest(http.MethodDelete, "/v1/images/"+id+"/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.files.Exists(id))

	var labels int64
	require.NoError(t, s.db.Model(&models.Label{}).Count(&labels).Error)
	assert.Zero(t, labels)

	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/images/"+id+"/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the name can be used again
	s.upload(t, annotationPayload(toothLabel(firstLabelID, true)))
}

func TestVersion(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Version, decodeBody(t, w)["message"])
}
