// Package emit renders corrected fragments as a C header of test vectors.
package emit

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/checksum"
	"github.com/lorawan-fota/fragvec/pkg/errors"
)

// Slot2 is the source image the device keeps in its second slot, embedded
// for signed_diff vectors.
type Slot2 struct {
	Data   []byte
	Digest checksum.Digest
}

// Vectors is everything the header declares.
type Vectors struct {
	Kind      bundle.Kind
	Header    []byte
	Fragments [][]byte
	// RowLength is the declared inner dimension of FAKE_PACKETS.
	RowLength int
	Checksum  uint64
	// Slot2 is set for signed_diff only.
	Slot2 *Slot2
}

var headerTemplate = template.Must(template.New("packets.h").Funcs(template.FuncMap{
	"hexlist": hexList,
	"declist": decList,
	"crc":     checksum.Format,
	"join":    strings.Join,
}).Parse(`/*
 * Generated by fragvec ({{.Kind}}). Do not edit.
 */

#ifndef PACKETS_H
#define PACKETS_H

#include "mbed.h"

{{.Qualifier}}uint8_t FAKE_PACKETS_HEADER[] = { {{hexlist .Header}} };

{{.Qualifier}}uint8_t FAKE_PACKETS[][{{.RowLength}}] = {
{{- range .Fragments}}
    { {{declist .}} },
{{- end}}
};

uint64_t {{.ChecksumName}} = {{crc .Checksum}};
{{- with .Slot2}}

#define HAS_SLOT2_DATA      1
const uint8_t SLOT2_DATA[] = { {{hexlist .Data}} };
const size_t SLOT2_DATA_LENGTH = {{len .Data}};
const uint8_t SLOT2_SHA256_HASH[32] = { {{join .Digest.Bytes ", "}} };
{{- end}}

#endif
`))

// view adds the strategy dependent names to Vectors for the template.
type view struct {
	Vectors
	Qualifier    string
	ChecksumName string
}

// Validate checks the shape of v before anything is rendered.
func (v *Vectors) Validate() error {
	if len(v.Header) == 0 {
		return errors.Invariantf("empty fragmentation header")
	}
	if len(v.Fragments) == 0 {
		return errors.Invariantf("no fragments")
	}
	for i, f := range v.Fragments {
		if len(f) != v.RowLength {
			return errors.Invariantf("fragment %d has %d bytes, want %d", i, len(f), v.RowLength)
		}
	}
	switch {
	case v.Kind == bundle.KindSignedDiff && v.Slot2 == nil:
		return errors.Invariantf("signed_diff vectors require slot 2 data")
	case v.Kind != bundle.KindSignedDiff && v.Slot2 != nil:
		return errors.Invariantf("slot 2 data is only valid for signed_diff")
	}
	return nil
}

// Render writes the header text for v to w.
func Render(w io.Writer, v *Vectors) error {
	if err := v.Validate(); err != nil {
		return err
	}

	vw := view{Vectors: *v, Qualifier: "const ", ChecksumName: "FAKE_PACKETS_CRC64_HASH"}
	if v.Kind == bundle.KindNoDiff {
		vw.Qualifier = ""
		vw.ChecksumName = "FAKE_PACKETS_HASH"
	}
	return headerTemplate.Execute(w, vw)
}

// Write renders v to path. The text is staged in a temp file next to path
// and renamed into place, so path holds either the complete header or its
// previous contents.
func Write(path string, v *Vectors) error {
	var buf bytes.Buffer
	if err := Render(&buf, v); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp output")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp output")
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to set output permissions")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp output")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to move output to %s", path))
	}

	slog.Info("vectors_written", "path", path, "strategy", v.Kind, "fragments", len(v.Fragments), "bytes", buf.Len())
	return nil
}

func hexList(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = "0x" + strconv.FormatUint(uint64(v), 16)
	}
	return strings.Join(parts, ", ")
}

func decList(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ", ")
}
