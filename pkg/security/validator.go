package security

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/errors"
)

// Validator enforces input limits before any stage runs
type Validator struct {
	maxImageSize int64
}

// NewValidator creates a new input validator
func NewValidator(maxImageSize int64) *Validator {
	slog.Info("security_validator_init", "max_image_size_mb", maxImageSize/1024/1024)
	return &Validator{maxImageSize: maxImageSize}
}

// MaxImageSize is the largest accepted image in bytes.
func (v *Validator) MaxImageSize() int64 {
	return v.maxImageSize
}

// ValidateImage checks that path is a readable regular file within the size
// limit and returns its size.
func (v *Validator) ValidateImage(role, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		slog.Error("security_image_validation_failed", "role", role, "path", path, "reason", "stat_failed")
		return 0, errors.Input(path, err)
	}
	if !info.Mode().IsRegular() {
		slog.Error("security_image_validation_failed", "role", role, "path", path, "reason", "not_regular_file")
		return 0, errors.Input(path, fmt.Errorf("%s image is not a regular file", role))
	}
	if err := v.ValidateImageSize(info.Size()); err != nil {
		return 0, errors.Input(path, err)
	}
	return info.Size(), nil
}

// ValidateImageSize checks if an image exceeds the max image size
func (v *Validator) ValidateImageSize(size int64) error {
	if size > v.maxImageSize {
		slog.Error("security_image_size_exceeded",
			"image_size_mb", size/1024/1024,
			"max_image_size_mb", v.maxImageSize/1024/1024)
		return fmt.Errorf("security: image size %d exceeds max %d", size, v.maxImageSize)
	}
	return nil
}

// ValidateSourceLength checks that a signed_diff source fits the 24-bit
// length field of the diff info.
func (v *Validator) ValidateSourceLength(size int64) error {
	if size > bundle.MaxSourceLength {
		slog.Error("security_source_length_exceeded", "size", size, "max", bundle.MaxSourceLength)
		return errors.Input("source", fmt.Errorf("length %d exceeds %d", size, bundle.MaxSourceLength))
	}
	return nil
}

// ValidateOutputPath checks that the artifact path is not a directory and
// that its parent directory exists.
func (v *Validator) ValidateOutputPath(path string) error {
	if path == "" {
		return errors.Input(path, fmt.Errorf("empty output path"))
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		slog.Error("security_output_validation_failed", "path", path, "reason", "is_directory")
		return errors.Input(path, fmt.Errorf("output is a directory"))
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		slog.Error("security_output_validation_failed", "path", path, "reason", "missing_parent")
		return errors.Input(dir, fmt.Errorf("output directory does not exist"))
	}
	return nil
}

// ValidatePath checks for path traversal in a relative path derived from
// remote input (an object key).
func (v *Validator) ValidatePath(rel string) error {
	// Reject absolute paths
	if filepath.IsAbs(rel) {
		slog.Error("security_path_validation_failed", "path", rel, "reason", "absolute_path")
		return fmt.Errorf("security: absolute path not allowed: %s", rel)
	}

	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		slog.Error("security_path_validation_failed", "path", rel, "reason", "path_traversal")
		return fmt.Errorf("security: path traversal detected: %s", rel)
	}

	return nil
}
