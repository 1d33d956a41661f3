package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// BlobExt is the file extension of checkpoint blobs.
	BlobExt = ".blob"

	// DefaultVersion is the schema version used by components that do not
	// implement Versioned.
	DefaultVersion = 1

	dirMode  = 0o750
	blobMode = 0o600
)

// Component is implemented by anything that can be checkpointed.
type Component interface {
	// CheckpointName returns the component type name used for the blob file.
	CheckpointName() string

	// CheckpointFields returns the names of the persisted fields.
	CheckpointFields() []string

	// EncodeCheckpoint writes every declared field to enc.
	EncodeCheckpoint(enc *Encoder) error

	// DecodeCheckpoint decodes every declared field from dec into detached
	// values. It must not modify the component; the returned commit
	// function installs the decoded values.
	DecodeCheckpoint(dec *Decoder) (commit func(), err error)
}

// Versioned is implemented by components whose persisted schema evolves.
type Versioned interface {
	CheckpointVersion() int
}

// blob is the on-disk document.
type blob struct {
	Component string               `yaml:"component"`
	Version   int                  `yaml:"version"`
	StashedAt time.Time            `yaml:"stashed_at"`
	Fields    map[string]yaml.Node `yaml:"fields"`
}

// BlobPath returns the path of the blob for the named component in dir.
func BlobPath(dir, name string) string {
	return filepath.Join(dir, name+BlobExt)
}

// Stash writes the declared fields of c to its blob in dir, creating dir
// if needed.
func Stash(dir string, c Component) error {
	name := c.CheckpointName()
	if err := validateName(name); err != nil {
		return err
	}

	enc := newEncoder()
	if err := c.EncodeCheckpoint(enc); err != nil {
		return fmt.Errorf("stash %s: %w", name, err)
	}

	declared := c.CheckpointFields()
	for _, field := range declared {
		if _, ok := enc.fields[field]; !ok {
			return fmt.Errorf("stash %s: %w: %q", name, ErrFieldNotEncoded, field)
		}
	}
	for field := range enc.fields {
		if !slices.Contains(declared, field) {
			return fmt.Errorf("stash %s: %w: %q", name, ErrUndeclaredField, field)
		}
	}

	data, err := yaml.Marshal(blob{
		Component: name,
		Version:   versionOf(c),
		StashedAt: time.Now().UTC().Truncate(time.Second),
		Fields:    enc.fields,
	})
	if err != nil {
		return fmt.Errorf("stash %s: %w", name, err)
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("stash %s: create checkpoint directory: %w", name, err)
	}
	if err := writeAtomic(BlobPath(dir, name), data); err != nil {
		return fmt.Errorf("stash %s: %w", name, err)
	}
	return nil
}

// Prepare reads and validates the blob for c and decodes it without
// modifying c. The returned commit function installs the decoded state.
// Errors are *RecoveryError.
func Prepare(dir string, c Component) (func(), error) {
	name := c.CheckpointName()
	path := BlobPath(dir, name)
	fail := func(err error) (func(), error) {
		return nil, &RecoveryError{Component: name, Path: path, Err: err}
	}

	if err := validateName(name); err != nil {
		return fail(err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is built from a validated component name
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fail(ErrBlobNotFound)
		}
		return fail(err)
	}

	var b blob
	if err := yaml.Unmarshal(data, &b); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrSchemaMismatch, err))
	}
	if b.Component != name {
		return fail(fmt.Errorf("%w: blob is for component %q", ErrSchemaMismatch, b.Component))
	}
	if want := versionOf(c); b.Version != want {
		return fail(fmt.Errorf("%w: blob version %d, want %d", ErrSchemaMismatch, b.Version, want))
	}

	declared := c.CheckpointFields()
	for _, field := range declared {
		if _, ok := b.Fields[field]; !ok {
			return fail(fmt.Errorf("%w: field %q missing", ErrSchemaMismatch, field))
		}
	}
	for field := range b.Fields {
		if !slices.Contains(declared, field) {
			return fail(fmt.Errorf("%w: unknown field %q", ErrSchemaMismatch, field))
		}
	}

	commit, err := c.DecodeCheckpoint(&Decoder{fields: b.Fields})
	if err != nil {
		if !errors.Is(err, ErrSchemaMismatch) {
			err = fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
		}
		return fail(err)
	}
	if commit == nil {
		commit = func() {}
	}
	return commit, nil
}

// Recover replaces the declared state of c with its blob in dir. On error
// c is unchanged.
func Recover(dir string, c Component) error {
	commit, err := Prepare(dir, c)
	if err != nil {
		return err
	}
	commit()
	return nil
}

// PrepareAll prepares every component and returns a commit function that
// installs all of them. Nothing is committed unless every preparation
// succeeds.
func PrepareAll(dir string, cs ...Component) (func(), error) {
	commits := make([]func(), 0, len(cs))
	for _, c := range cs {
		commit, err := Prepare(dir, c)
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}
	return func() {
		for _, commit := range commits {
			commit()
		}
	}, nil
}

// CanRecover reports whether a blob for c exists in dir.
func CanRecover(dir string, c Component) bool {
	info, err := os.Stat(BlobPath(dir, c.CheckpointName()))
	return err == nil && info.Mode().IsRegular()
}

func versionOf(c Component) int {
	if v, ok := c.(Versioned); ok {
		return v.CheckpointVersion()
	}
	return DefaultVersion
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place.
func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary blob: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync blob: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err = os.Chmod(tmp.Name(), blobMode); err != nil {
		return fmt.Errorf("chmod blob: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}
