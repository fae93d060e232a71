package rollout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/peteches/houston/internal/catalog"
)

const (
	statePathMissingMessageConstant   = "state file path must be provided"
	stateReadErrorTemplateConstant    = "reading rollout state %s: %w"
	stateDecodeErrorTemplateConstant  = "decoding rollout state %s: %w"
	stateEncodeErrorTemplateConstant  = "encoding rollout state: %w"
	stateWriteErrorTemplateConstant   = "writing rollout state %s: %w"
	stateDirectoryErrorTemplate       = "creating rollout state directory %s: %w"
	stateDirectoryPermissionsConstant = 0o755
	stateFilePermissionsConstant      = 0o644

	defaultStateDirectoryNameConstant = "houston"
	defaultStateFileNameConstant      = "rollout-state.yaml"
)

// ErrStatePathRequired indicates a file store was built without a path.
var ErrStatePathRequired = errors.New(statePathMissingMessageConstant)

// StateStore persists the package set last propagated for a source channel
// and target stage pair. With no recorded entry the engine falls back to an
// additive-only synchronization.
type StateStore interface {
	LastSynchronized(sourceLabel string, targetStage string) ([]catalog.PackageReference, bool, error)
	RecordSynchronized(sourceLabel string, targetStage string, packages []catalog.PackageReference) error
}

// DefaultStatePath locates the rollout state file under the user
// configuration directory.
func DefaultStatePath() (string, error) {
	configurationDirectory, directoryError := os.UserConfigDir()
	if directoryError != nil {
		return "", directoryError
	}
	return filepath.Join(configurationDirectory, defaultStateDirectoryNameConstant, defaultStateFileNameConstant), nil
}

type statePackage struct {
	Name         string  `yaml:"name"`
	Version      string  `yaml:"version"`
	Release      string  `yaml:"release"`
	Epoch        *string `yaml:"epoch,omitempty"`
	Architecture string  `yaml:"architecture"`
}

type stateEntry struct {
	Source      string         `yaml:"source"`
	TargetStage string         `yaml:"target_stage"`
	Packages    []statePackage `yaml:"packages"`
}

type stateDocument struct {
	Entries []stateEntry `yaml:"entries"`
}

// FileStateStore stores rollout synchronization records in a YAML file.
// Records are written concurrently by the engine's worker goroutines, so
// every read-modify-write of the file holds the store mutex.
type FileStateStore struct {
	mutex    sync.Mutex
	filePath string
}

// NewFileStateStore constructs a store writing to the provided path.
func NewFileStateStore(filePath string) (*FileStateStore, error) {
	if len(filePath) == 0 {
		return nil, ErrStatePathRequired
	}
	return &FileStateStore{filePath: filePath}, nil
}

// LastSynchronized returns the recorded package set for the pair, with false
// when no record exists. A missing state file is not an error.
func (store *FileStateStore) LastSynchronized(sourceLabel string, targetStage string) ([]catalog.PackageReference, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	document, loadError := store.load()
	if loadError != nil {
		return nil, false, loadError
	}

	for _, entry := range document.Entries {
		if entry.Source == sourceLabel && entry.TargetStage == targetStage {
			references := make([]catalog.PackageReference, 0, len(entry.Packages))
			for _, entryPackage := range entry.Packages {
				references = append(references, catalog.PackageReference{
					Name:         entryPackage.Name,
					Version:      entryPackage.Version,
					Release:      entryPackage.Release,
					Epoch:        entryPackage.Epoch,
					Architecture: entryPackage.Architecture,
				})
			}
			return references, true, nil
		}
	}
	return nil, false, nil
}

// RecordSynchronized replaces the recorded package set for the pair and
// rewrites the state file.
func (store *FileStateStore) RecordSynchronized(sourceLabel string, targetStage string, packages []catalog.PackageReference) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	document, loadError := store.load()
	if loadError != nil {
		return loadError
	}

	recordedPackages := make([]statePackage, 0, len(packages))
	for _, reference := range packages {
		recordedPackages = append(recordedPackages, statePackage{
			Name:         reference.Name,
			Version:      reference.Version,
			Release:      reference.Release,
			Epoch:        reference.Epoch,
			Architecture: reference.Architecture,
		})
	}

	replaced := false
	for entryIndex, entry := range document.Entries {
		if entry.Source == sourceLabel && entry.TargetStage == targetStage {
			document.Entries[entryIndex].Packages = recordedPackages
			replaced = true
			break
		}
	}
	if !replaced {
		document.Entries = append(document.Entries, stateEntry{Source: sourceLabel, TargetStage: targetStage, Packages: recordedPackages})
	}

	return store.save(document)
}

func (store *FileStateStore) load() (stateDocument, error) {
	document := stateDocument{}
	fileContents, readError := os.ReadFile(store.filePath)
	if readError != nil {
		if os.IsNotExist(readError) {
			return document, nil
		}
		return document, fmt.Errorf(stateReadErrorTemplateConstant, store.filePath, readError)
	}

	if decodeError := yaml.Unmarshal(fileContents, &document); decodeError != nil {
		return stateDocument{}, fmt.Errorf(stateDecodeErrorTemplateConstant, store.filePath, decodeError)
	}
	return document, nil
}

func (store *FileStateStore) save(document stateDocument) error {
	encodedDocument, encodeError := yaml.Marshal(document)
	if encodeError != nil {
		return fmt.Errorf(stateEncodeErrorTemplateConstant, encodeError)
	}

	stateDirectory := filepath.Dir(store.filePath)
	if directoryError := os.MkdirAll(stateDirectory, stateDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(stateDirectoryErrorTemplate, stateDirectory, directoryError)
	}
	if writeError := os.WriteFile(store.filePath, encodedDocument, stateFilePermissionsConstant); writeError != nil {
		return fmt.Errorf(stateWriteErrorTemplateConstant, store.filePath, writeError)
	}
	return nil
}
