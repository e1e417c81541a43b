// Package assets uploads cover images to the book server and stores them on
// the server side.
package assets

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	domainerrors "github.com/listenupapp/shelfsync/internal/errors"
)

// FormField is the multipart field carrying the image.
const FormField = "image"

// MaxSize is the largest accepted image.
const MaxSize = 10 << 20 // 10MB

// Upload is the server answer to an image upload.
type Upload struct {
	Message  string `json:"message"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// DetectImage returns the detected type of data, rejecting anything that is
// not an image.
func DetectImage(data []byte) (*mimetype.MIME, error) {
	if len(data) == 0 {
		return nil, domainerrors.Validation("empty image")
	}
	if len(data) > MaxSize {
		return nil, domainerrors.Validationf("image too large, maximum size is %d bytes", MaxSize)
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, domainerrors.Validationf("unsupported file type %s", mtype.String())
	}
	return mtype, nil
}

// fileName keeps the base name of name and makes its extension agree with
// the detected type.
func fileName(name string, mtype *mimetype.MIME) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "image"
	}
	ext := mtype.Extension()
	if ext == "" || strings.EqualFold(filepath.Ext(base), ext) {
		return base
	}
	if mtype.Is("image/jpeg") && strings.EqualFold(filepath.Ext(base), ".jpeg") {
		return base
	}
	return fmt.Sprintf("%s%s", strings.TrimSuffix(base, filepath.Ext(base)), ext)
}
