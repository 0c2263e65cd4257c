package bundle

import (
	"log/slog"
	"os"
	"sync"

	"github.com/lorawan-fota/fragvec/pkg/errors"
)

// FilePattern is the os.CreateTemp pattern for persisted bundles.
const FilePattern = "bundle-*.bin"

// Build concatenates metadata and payload into a new slice.
func Build(metadata, payload []byte) []byte {
	out := make([]byte, 0, len(metadata)+len(payload))
	out = append(out, metadata...)
	out = append(out, payload...)
	return out
}

// Padding returns the number of bytes needed to fill the last fragment of a
// bundle of the given length.
func Padding(length, fragmentSize int) int {
	rem := length % fragmentSize
	if rem == 0 {
		return 0
	}
	return fragmentSize - rem
}

// ReadPayload reads the payload file for s.
func ReadPayload(s Strategy) ([]byte, error) {
	data, err := os.ReadFile(s.PayloadPath())
	if err != nil {
		return nil, errors.Input(s.PayloadPath(), err)
	}
	return data, nil
}

// File is a bundle persisted for an external tool. It is scoped to a single
// stage; Remove must be deferred right after Persist succeeds.
type File struct {
	Path string

	once sync.Once
	err  error
}

// Persist writes data to a new temp file in dir.
func Persist(dir string, data []byte) (*File, error) {
	f, err := os.CreateTemp(dir, FilePattern)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bundle file")
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrap(err, "failed to write bundle file")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, errors.Wrap(err, "failed to close bundle file")
	}

	slog.Debug("bundle_persisted", "path", path, "length", len(data))
	return &File{Path: path}, nil
}

// Remove deletes the file. It is safe to call more than once.
func (f *File) Remove() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("bundle_remove_failed", "path", f.Path, "error", err)
			f.err = err
			return
		}
		slog.Debug("bundle_removed", "path", f.Path)
	})
	return f.err
}
