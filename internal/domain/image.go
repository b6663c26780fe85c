package domain

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"
)

// safeExt bounds what a client-chosen extension may put into an object name.
var safeExt = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// Image is a photo attached to a submission, held in memory for the lifetime
// of the request.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Empty reports whether no image bytes were supplied.
func (img *Image) Empty() bool { return img == nil || len(img.Data) == 0 }

// Ext returns the object extension (without the dot) derived from the file
// name, then the content type, falling back to "bin". Only short lowercase
// alphanumeric extensions are accepted from either source.
func (img *Image) Ext() string {
	if img == nil {
		return "bin"
	}
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(img.Filename)), "."); safeExt.MatchString(ext) {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(img.ContentType); len(exts) > 0 {
		if ext := strings.TrimPrefix(exts[0], "."); safeExt.MatchString(ext) {
			return ext
		}
	}
	return "bin"
}
