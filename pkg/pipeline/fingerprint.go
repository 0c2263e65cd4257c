package pipeline

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/zeebo/blake3"
)

// FingerprintParams are the run settings, besides the input files, that
// the artifact depends on.
type FingerprintParams struct {
	FragmentSize int
	Window       int
	// Identity is embedded in manifest metadata.
	Identity bundle.Identity
	// Tooling names the signer, manifest builder, encoder and checksum
	// utility in use.
	Tooling string
}

// InputFingerprint hashes everything that determines the artifact: the
// mode, the run settings and the contents of every input file. Both
// manifest strategies embed the target mtime and the identity, so those
// are hashed for them too.
func InputFingerprint(job Job, p FingerprintParams) (string, error) {
	h := blake3.New()

	writeField(h, []byte(job.Mode))
	var params [16]byte
	binary.BigEndian.PutUint64(params[:8], uint64(p.FragmentSize))
	binary.BigEndian.PutUint64(params[8:], uint64(p.Window))
	h.Write(params[:])
	writeField(h, []byte(p.Tooling))

	if job.Mode.UsesManifest() {
		info, err := os.Stat(job.Target)
		if err != nil {
			return "", errors.Input(job.Target, err)
		}
		var mtime [8]byte
		binary.BigEndian.PutUint64(mtime[:], uint64(info.ModTime().Unix()))
		h.Write(mtime[:])
		h.Write(p.Identity.Manufacturer[:])
		h.Write(p.Identity.DeviceClass[:])
	}

	for _, path := range []string{job.Source, job.Target, job.Payload} {
		if path == "" {
			writeField(h, nil)
			continue
		}
		if err := writeFile(h, path); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileFingerprint hashes a single file.
func FileFingerprint(path string) (string, error) {
	h := blake3.New()
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to open artifact")
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "failed to read artifact")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeField(h *blake3.Hasher, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}

func writeFile(h *blake3.Hasher, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Input(path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Input(path, err)
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(info.Size()))
	h.Write(n[:])
	if _, err := io.Copy(h, f); err != nil {
		return errors.Input(path, err)
	}
	return nil
}
