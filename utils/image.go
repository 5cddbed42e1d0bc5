package utils

import (
	"errors"
	"image"
	_ "image/gif" // registered so rejected GIF uploads are named correctly
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrInvalidFilename = errors.New("invalid filename")

var unsafeFilenameChars = regexp.MustCompile(`[^-\p{L}\p{N}_.]`)

// DetectImageFormat Decode the image header and return the format name in upper case (JPEG, PNG, TIFF, ...)
func DetectImageFormat(r io.Reader) (string, error) {
	_, format, err := image.DecodeConfig(r)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(format), nil
}

// ValidFilename Turn an uploaded filename into the name it is stored under.
// Directories are dropped, surrounding whitespace is trimmed, inner spaces become
// underscores and anything that is not a letter, digit, dash, underscore or dot is removed.
func ValidFilename(name string) (string, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	if name == "" || name == "." || name == ".." {
		return "", ErrInvalidFilename
	}
	return name, nil
}

// ImageContentType Guess the content type from the extension of a stored filename
func ImageContentType(name string) string {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		ext = "*"
	}
	return "image/" + ext
}
