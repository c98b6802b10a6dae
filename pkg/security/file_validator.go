package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

// maxFileNameLength bounds stored file names
const maxFileNameLength = 255

var (
	ErrFileTooLarge    = errors.New("file exceeds the upload limit")
	ErrInvalidFileName = errors.New("file name is invalid")
)

// FileValidationResult contains the result of upload validation
type FileValidationResult struct {
	FileName  string // Sanitized base name
	Extension string // Lowercase extension, may be empty
}

// ValidateUpload checks the name and size of an upload before it is scanned.
// Any content is accepted, including empty files: the point is to inspect it,
// not to whitelist it.
func ValidateUpload(fileName string, size, maxBytes int64) (FileValidationResult, error) {
	var result FileValidationResult

	name := SanitizeFileName(fileName)
	if name == "" {
		return result, ErrInvalidFileName
	}
	result.FileName = name
	result.Extension = strings.ToLower(filepath.Ext(name))

	if maxBytes > 0 && size > maxBytes {
		return result, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, size, maxBytes)
	}
	return result, nil
}

// SanitizeFileName keeps the base name and drops control characters
func SanitizeFileName(fileName string) string {
	// Browsers on Windows may send full paths
	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if len(name) > maxFileNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:maxFileNameLength-len(ext)], "") + ext
	}
	return name
}

// DetectMIME sniffs the content type of the file at path
func DetectMIME(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect mime: %w", err)
	}
	return mtype.String(), nil
}

// IsExecutableMIME reports whether the sniffed type is a native executable
func IsExecutableMIME(mime string) bool {
	base := strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
	switch base {
	case "application/x-msdownload", "application/vnd.microsoft.portable-executable",
		"application/x-executable", "application/x-elf", "application/x-mach-binary",
		"application/x-sharedlib", "application/x-dosexec":
		return true
	}
	return false
}
