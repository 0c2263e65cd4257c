package fragment

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fragmentLine renders an encoder fragment line with the given index fields
// followed by a filler payload.
func fragmentLine(a, b, size int, fill int) string {
	fields := []string{"8", fmt.Sprint(a), fmt.Sprint(b)}
	for i := 0; i < size; i++ {
		fields = append(fields, fmt.Sprint(fill))
	}
	return "[" + strings.Join(fields, ", ") + "]"
}

func cannedReport(size int) string {
	return strings.Join([]string{
		"Encoding file with 204 byte fragments",
		"Fragmentation header likely: 0x02 0x01 0x19 0x00 0xcc 0x00",
		"Fragments:",
		fragmentLine(1, 0, size, 7),
		fragmentLine(2, 0, size, 9),
		"Done.",
	}, "\n")
}

func TestParseReport(t *testing.T) {
	r, err := ParseReport(cannedReport(204))
	require.NoError(t, err)

	assert.Equal(t, []int{0x02, 0x01, 0x19, 0x00, 0xcc, 0x00}, r.Header)
	require.Len(t, r.Fragments, 2)
	assert.Len(t, r.Fragments[0], 207)
	assert.Equal(t, []int{8, 1, 0, 7}, r.Fragments[0][:4])
	assert.Equal(t, []int{8, 2, 0, 9}, r.Fragments[1][:4])
	assert.Contains(t, r.Text, "Done.")
}

func TestParseReport_Failures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no header", fragmentLine(1, 0, 4, 0)},
		{"no fragments", "Fragmentation header likely: 0x02 0x01"},
		{"empty header", "Fragmentation header likely: none\n" + fragmentLine(1, 0, 4, 0)},
		{"bad fragment", "Fragmentation header likely: 0x02\n[8, 1, x]"},
		{"duplicate header", "Fragmentation header likely: 0x02\nFragmentation header likely: 0x03\n" + fragmentLine(1, 0, 4, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReport(tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrTool)

			var te *errors.ToolError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, ToolName, te.Tool)
		})
	}
}

type fakeRunner struct {
	out  string
	argv []string
	err  error
}

func (f *fakeRunner) Run(_ context.Context, _ string, argv []string) ([]byte, error) {
	f.argv = argv
	return []byte(f.out), f.err
}

func TestExecEncoder(t *testing.T) {
	runner := &fakeRunner{out: cannedReport(204)}
	enc := NewExecEncoder(runner, "python encode_file.py")

	r, err := enc.Encode(context.Background(), "/work/bundle-1.bin", 204, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "encode_file.py", "/work/bundle-1.bin", "204", "20"}, runner.argv)
	assert.Len(t, r.Fragments, 2)

	runner.err = errors.Toolf(ToolName, "exit status 1")
	_, err = enc.Encode(context.Background(), "/work/bundle-1.bin", 204, 20)
	assert.ErrorIs(t, err, errors.ErrTool)
}

func TestCorrectHeader_Legacy(t *testing.T) {
	raw := []int{0x02, 0x01, 0x19, 0x00, 0xcc, 0x00}

	h, err := CorrectHeader(bundle.KindNoDiff, raw, 57)
	require.NoError(t, err)
	assert.Equal(t, []int{0x02, 0x10, 0x00, 0x19, 0xcc, 0x00, 57}, h)
	assert.Equal(t, []int{0x02, 0x01, 0x19, 0x00, 0xcc, 0x00}, raw, "raw header must not be mutated")

	_, err = CorrectHeader(bundle.KindNoDiff, []int{0x02, 0x10, 0x19, 0x00}, 0)
	assert.ErrorIs(t, err, errors.ErrInvariant)

	_, err = CorrectHeader(bundle.KindNoDiff, []int{0x02, 0x01}, 0)
	assert.ErrorIs(t, err, errors.ErrTool)
}

func TestCorrectHeader_Manifest(t *testing.T) {
	raw := []int{0x02, 0x01, 0x19, 0x00, 0xcc, 0x00}

	for _, kind := range []bundle.Kind{bundle.KindSignedDiff, bundle.KindExternalManifest} {
		h, err := CorrectHeader(kind, raw, 91)
		require.NoError(t, err)
		assert.Equal(t, []int{0x02, 0x01, 0x19, 0x00, 0xcc, 0x00, 91}, h, "strategy %s", kind)
	}

	h, err := CorrectHeader(bundle.KindSignedDiff, []int{1, 2, 3, 4, 5, 6, 0xFF, 8}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 0, 8}, h)

	_, err = CorrectHeader(bundle.KindExternalManifest, []int{1, 2, 3}, 0)
	assert.ErrorIs(t, err, errors.ErrTool)
}

func TestSwapFragment_Involution(t *testing.T) {
	f := []int{8, 3, 0, 10, 11, 12}

	once := SwapFragment(f)
	assert.Equal(t, []int{8, 0, 3, 10, 11, 12}, once)
	assert.Equal(t, []int{8, 3, 0, 10, 11, 12}, f)
	assert.Equal(t, f, SwapFragment(once))
}

func TestCorrect(t *testing.T) {
	r, err := ParseReport(cannedReport(204))
	require.NoError(t, err)

	c, err := Correct(bundle.KindSignedDiff, r, 317, 204)
	require.NoError(t, err)

	assert.Equal(t, 91, c.Padding)
	assert.Equal(t, []byte{0x02, 0x01, 0x19, 0x00, 0xcc, 0x00, 91}, c.Header)
	require.Len(t, c.Fragments, 2)
	for i, row := range c.Fragments {
		require.Len(t, row, 207)
		assert.Equal(t, byte(8), row[0])
		assert.Equal(t, byte(r.Fragments[i][2]), row[1])
		assert.Equal(t, byte(r.Fragments[i][1]), row[2])
	}

	c, err = Correct(bundle.KindNoDiff, r, 408, 204)
	require.NoError(t, err)
	assert.Equal(t, byte(0), c.Header[len(c.Header)-1])
}

func TestCorrect_Invariants(t *testing.T) {
	short, err := ParseReport(cannedReport(100))
	require.NoError(t, err)
	_, err = Correct(bundle.KindSignedDiff, short, 317, 204)
	assert.ErrorIs(t, err, errors.ErrInvariant)

	r, err := ParseReport(cannedReport(204))
	require.NoError(t, err)
	r.Fragments[1][100] = 300
	_, err = Correct(bundle.KindSignedDiff, r, 317, 204)
	assert.ErrorIs(t, err, errors.ErrInvariant)

	_, err = Correct(bundle.KindSignedDiff, r, 0, 204)
	assert.ErrorIs(t, err, errors.ErrInvariant)
}
