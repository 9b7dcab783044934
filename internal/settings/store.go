// Package settings persists lid thresholds as a JSON file.
//
// The file layout matches what deployed bins already carry:
//
//	{"settings": {"minAngle": 0, "maxAngle": 180, "detectDistance": 20}}
//
// When the live file does not exist the defaults file is read instead,
// and when neither exists the built-in defaults apply. Saves go to the
// live file only.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nerrad567/neobin-core/internal/lid"
)

// ErrNoPath is returned by NewFileStore when no live path is configured.
var ErrNoPath = errors.New("settings: file path is required")

// document is the on-disk layout. Unknown sections are preserved on save.
type document map[string]json.RawMessage

// FileStore implements lid.SettingsStore on top of a JSON file.
//
// Thread Safety:
//   - Load and Save are safe for concurrent use.
type FileStore struct {
	path         string
	defaultsPath string

	mu sync.Mutex
}

// NewFileStore creates a store for path, falling back to defaultsPath
// (which may be empty) on first boot.
func NewFileStore(path, defaultsPath string) (*FileStore, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	return &FileStore{path: path, defaultsPath: defaultsPath}, nil
}

// Path returns the live settings file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the live file, then the defaults file, then built-in defaults.
// Values missing from the file keep their default.
func (s *FileStore) Load() (lid.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{s.path, s.defaultsPath} {
		if p == "" {
			continue
		}
		doc, err := readDocument(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return lid.Settings{}, err
		}
		return decodeSettings(doc, p)
	}
	return lid.DefaultSettings(), nil
}

// Save writes settings to the live file atomically (temp file + rename).
func (s *FileStore) Save(settings lid.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := readDocument(s.path)
	if errors.Is(err, os.ErrNotExist) {
		doc = document{}
	} else if err != nil {
		return err
	}

	section, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	doc[lid.SettingsSection] = section

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding settings file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("creating temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

func readDocument(path string) (document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	if doc == nil {
		doc = document{}
	}
	return doc, nil
}

func decodeSettings(doc document, path string) (lid.Settings, error) {
	settings := lid.DefaultSettings()
	raw, ok := doc[lid.SettingsSection]
	if !ok {
		return settings, nil
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return lid.Settings{}, fmt.Errorf("parsing %q section of %s: %w", lid.SettingsSection, path, err)
	}
	if err := settings.Validate(); err != nil {
		return lid.Settings{}, fmt.Errorf("settings in %s: %w", path, err)
	}
	return settings, nil
}
