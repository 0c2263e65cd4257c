package fragment

import (
	"log/slog"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/errors"
)

// PaddingIndex is the header slot the manifest strategies write the padding
// length into.
const PaddingIndex = 6

// Corrected is the encoder output in the order the device firmware expects.
type Corrected struct {
	Header    []byte
	Fragments [][]byte
	Padding   int
}

// RowLength is the length of every fragment row.
func RowLength(fragmentSize int) int {
	return fragmentSize + ControlBytes
}

// Correct applies the strategy's header correction and the per-fragment
// field swap to a raw encoder report.
func Correct(kind bundle.Kind, r Report, bundleLength, fragmentSize int) (Corrected, error) {
	if bundleLength <= 0 {
		return Corrected{}, errors.Invariantf("bundle length %d must be positive", bundleLength)
	}
	padding := bundle.Padding(bundleLength, fragmentSize)

	header, err := CorrectHeader(kind, r.Header, padding)
	if err != nil {
		return Corrected{}, err
	}
	hdr, err := toBytes(header)
	if err != nil {
		return Corrected{}, errors.Wrap(err, "header")
	}

	rows := make([][]byte, 0, len(r.Fragments))
	for i, f := range r.Fragments {
		if len(f) != RowLength(fragmentSize) {
			return Corrected{}, errors.Invariantf("fragment %d has %d fields, want %d", i, len(f), RowLength(fragmentSize))
		}
		if f[0] != FragmentMarkerValue {
			return Corrected{}, errors.Invariantf("fragment %d starts with %d, want %d", i, f[0], FragmentMarkerValue)
		}
		row, err := toBytes(SwapFragment(f))
		if err != nil {
			return Corrected{}, errors.Wrap(err, "fragment")
		}
		rows = append(rows, row)
	}

	slog.Info("fragments_corrected", "strategy", kind, "header", len(hdr), "fragments", len(rows), "padding", padding)
	return Corrected{Header: hdr, Fragments: rows, Padding: padding}, nil
}

// CorrectHeader returns a corrected copy of raw. The legacy strategy
// nibble-aligns field 1, swaps fields 2 and 3 and appends the padding. The
// manifest strategies leave the raw fields alone and store the padding at
// PaddingIndex.
func CorrectHeader(kind bundle.Kind, raw []int, padding int) ([]int, error) {
	switch kind {
	case bundle.KindNoDiff:
		if len(raw) < 4 {
			return nil, errors.Toolf(ToolName, "header has %d fields, want at least 4", len(raw))
		}
		if raw[1] > 0x0F {
			return nil, errors.Invariantf("header field 1 is 0x%x, shifting by 4 overflows a byte", raw[1])
		}
		h := make([]int, len(raw), len(raw)+1)
		copy(h, raw)
		h[1] <<= 4
		h[2], h[3] = h[3], h[2]
		return append(h, padding), nil

	case bundle.KindSignedDiff, bundle.KindExternalManifest:
		if len(raw) < PaddingIndex {
			return nil, errors.Toolf(ToolName, "header has %d fields, want at least %d", len(raw), PaddingIndex)
		}
		n := max(len(raw), PaddingIndex+1)
		h := make([]int, n)
		copy(h, raw)
		h[PaddingIndex] = padding
		return h, nil
	}
	return nil, errors.Invariantf("no header correction for strategy %q", kind)
}

// SwapFragment returns a copy of f with fields 1 and 2 exchanged.
func SwapFragment(f []int) []int {
	out := make([]int, len(f))
	copy(out, f)
	if len(out) > 2 {
		out[1], out[2] = out[2], out[1]
	}
	return out
}

func toBytes(vals []int) ([]byte, error) {
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 0xFF {
			return nil, errors.Invariantf("field %d value %d does not fit in a byte", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
