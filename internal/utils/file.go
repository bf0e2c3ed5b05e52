package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func GetFileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// GenerateUniqueFilename returns prefix-<uuid><ext>.
func GenerateUniqueFilename(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), ext)
}

func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

var evidenceContentTypes = map[string]string{
	".jpg":  PhotoContentType,
	".jpeg": PhotoContentType,
	".png":  "image/png",
	".wav":  AudioContentType,
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
}

// GetContentType maps a capture file to the type the backend expects.
func GetContentType(filename string) string {
	if contentType, ok := evidenceContentTypes[GetFileExtension(filename)]; ok {
		return contentType
	}
	return "application/octet-stream"
}
