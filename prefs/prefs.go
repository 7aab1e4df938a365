// Package prefs persists user preferences outside the metadata mirror,
// so wiping the database never loses the device identity or the user's
// chosen library.
package prefs

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/pinesap/lectern/live"
	"github.com/pinesap/lectern/models"
)

const (
	keyDeviceID         = "device_id"
	keyPreferredLibrary = "preferred_library"
	keyOrderingField    = "ordering.field"
	keyOrderingAsc      = "ordering.ascending"
	keyForceOffline     = "force_offline"
	keyDownloadOption   = "download_option"
)

// Store wraps a viper-backed preferences file with typed accessors.
// ForceOffline changes are also published through an observable value so
// long-running services react without polling the file.
type Store struct {
	v            *viper.Viper
	path         string
	forceOffline *live.Value[bool]
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "prefs.yaml")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(keyOrderingField, "title")
	v.SetDefault(keyOrderingAsc, true)
	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing && !os.IsNotExist(err) {
			return nil, err
		}
	}

	s := &Store{
		v:            v,
		path:         path,
		forceOffline: live.NewValue(v.GetBool(keyForceOffline)),
	}

	// A device id is minted once and survives for the lifetime of the
	// install. The server uses it to tell playback sessions apart.
	if v.GetString(keyDeviceID) == "" {
		v.Set(keyDeviceID, uuid.NewString())
		if err := v.WriteConfigAs(path); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Store) save() error {
	return s.v.WriteConfigAs(s.path)
}

func (s *Store) DeviceID() string {
	return s.v.GetString(keyDeviceID)
}

func (s *Store) PreferredLibrary() string {
	return s.v.GetString(keyPreferredLibrary)
}

func (s *Store) SetPreferredLibrary(id string) error {
	s.v.Set(keyPreferredLibrary, id)
	return s.save()
}

func (s *Store) Ordering() (string, bool) {
	return s.v.GetString(keyOrderingField), s.v.GetBool(keyOrderingAsc)
}

func (s *Store) SetOrdering(field string, ascending bool) error {
	s.v.Set(keyOrderingField, field)
	s.v.Set(keyOrderingAsc, ascending)
	return s.save()
}

func (s *Store) ForceOffline() bool {
	return s.v.GetBool(keyForceOffline)
}

func (s *Store) SetForceOffline(offline bool) error {
	s.v.Set(keyForceOffline, offline)
	s.forceOffline.Set(offline)
	return s.save()
}

// ForceOfflineValue exposes the flag as an observable for services that
// need to react to it changing mid-flight.
func (s *Store) ForceOfflineValue() *live.Value[bool] {
	return s.forceOffline
}

func (s *Store) DownloadOption() models.DownloadOption {
	return models.DecodeDownloadOption(s.v.GetString(keyDownloadOption))
}

func (s *Store) SetDownloadOption(option models.DownloadOption) error {
	s.v.Set(keyDownloadOption, models.EncodeDownloadOption(option))
	return s.save()
}
