package upload

import (
	"path/filepath"
	"strings"
)

// contentTypes is the whitelist of extensions the pipeline will upload.
var contentTypes = map[string]string{
	".zip":  "application/zip",
	".json": "application/json",
	".txt":  "text/plain",
	".log":  "text/plain",
	".csv":  "text/csv",
	".html": "text/html",
	".md":   "text/markdown",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
}

// ContentType resolves the MIME type of path from its extension.
func ContentType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	ct, ok := contentTypes[ext]
	if !ok {
		return "", &UnsupportedContentTypeError{Path: path, Extension: ext}
	}

	return ct, nil
}
