// Package identity derives the manufacturer and device-class UUIDs stamped
// into update manifests.
package identity

import (
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Names used when neither config nor an identity file provide one.
const (
	DefaultManufacturer = "arm.com"
	DefaultDeviceClass  = "awesome-lora-sensor"
)

// FromNames returns name-based (version 5) UUIDs in the URL namespace.
func FromNames(manufacturer, deviceClass string) bundle.Identity {
	if manufacturer == "" {
		manufacturer = DefaultManufacturer
	}
	if deviceClass == "" {
		deviceClass = DefaultDeviceClass
	}
	return bundle.Identity{
		Manufacturer: uuid.NewSHA1(uuid.NameSpaceURL, []byte(manufacturer)),
		DeviceClass:  uuid.NewSHA1(uuid.NameSpaceURL, []byte(deviceClass)),
	}
}

// File is the on-disk identity document. An explicit UUID wins over the
// name it would otherwise be derived from.
type File struct {
	ManufacturerName string `yaml:"manufacturer-name"`
	DeviceClassName  string `yaml:"device-class-name"`
	ManufacturerUUID string `yaml:"manufacturer-uuid"`
	DeviceClassUUID  string `yaml:"device-class-uuid"`
}

// Load reads an identity file. Unknown keys are rejected.
func Load(path string) (bundle.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return bundle.Identity{}, errors.Input(path, err)
	}
	defer f.Close()

	var doc File
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return bundle.Identity{}, errors.Input(path, err)
	}

	id, err := doc.Resolve()
	if err != nil {
		return bundle.Identity{}, errors.Input(path, err)
	}
	slog.Info("identity_loaded", "path", path, "manufacturer", id.Manufacturer, "device_class", id.DeviceClass)
	return id, nil
}

// Resolve turns the document into UUIDs.
func (d File) Resolve() (bundle.Identity, error) {
	id := FromNames(d.ManufacturerName, d.DeviceClassName)

	if s := strings.TrimSpace(d.ManufacturerUUID); s != "" {
		u, err := uuid.Parse(s)
		if err != nil {
			return bundle.Identity{}, errors.Wrap(err, "manufacturer-uuid")
		}
		id.Manufacturer = u
	}
	if s := strings.TrimSpace(d.DeviceClassUUID); s != "" {
		u, err := uuid.Parse(s)
		if err != nil {
			return bundle.Identity{}, errors.Wrap(err, "device-class-uuid")
		}
		id.DeviceClass = u
	}
	return id, nil
}

// Resolve picks the identity file when path is set and falls back to the
// configured names otherwise.
func Resolve(path, manufacturer, deviceClass string) (bundle.Identity, error) {
	if path != "" {
		return Load(path)
	}
	return FromNames(manufacturer, deviceClass), nil
}
