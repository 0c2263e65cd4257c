package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromNames_Defaults(t *testing.T) {
	id := FromNames("", "")
	assert.Equal(t, "35a466b8-8b16-5077-af86-477a5c23e8ca", id.Manufacturer.String())
	assert.Equal(t, "7bf6b49a-c229-56c5-a931-f318407e00ef", id.DeviceClass.String())
	assert.Equal(t, 5, int(id.Manufacturer.Version()))

	assert.Equal(t, id, FromNames(DefaultManufacturer, DefaultDeviceClass))
	assert.NotEqual(t, id.Manufacturer, FromNames("example.com", "").Manufacturer)
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
manufacturer-name: arm.com
device-class-uuid: 00112233-4455-6677-8899-aabbccddeeff
`)
	id, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "35a466b8-8b16-5077-af86-477a5c23e8ca", id.Manufacturer.String())
	assert.Equal(t, "00112233-4455-6677-8899-aabbccddeeff", id.DeviceClass.String())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "vendor: arm.com\n"},
		{"bad uuid", "manufacturer-uuid: not-a-uuid\n"},
		{"bad yaml", "manufacturer-name: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.ErrorIs(t, err, errors.ErrInput)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, errors.ErrInput)
}

func TestResolve(t *testing.T) {
	id, err := Resolve("", "example.com", "")
	require.NoError(t, err)
	assert.Equal(t, FromNames("example.com", DefaultDeviceClass), id)

	path := writeFile(t, "device-class-name: other-sensor\n")
	id, err = Resolve(path, "ignored.com", "")
	require.NoError(t, err)
	assert.Equal(t, FromNames(DefaultManufacturer, "other-sensor"), id)
}
