// SPDX-License-Identifier: MIT

package directory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Decode reads a YAML snapshot. Unknown keys are errors.
func Decode(r io.Reader) (Data, error) {
	var d Data
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return Data{}, nil
		}
		return Data{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return d, nil
}

// LoadFile reads the snapshot at path.
func LoadFile(path string) (Data, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied snapshot path
	if err != nil {
		return Data{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	d, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return Data{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// WriteFile writes d to path atomically: readers see either the old or
// the new file, never a partial one.
func WriteFile(path string, d Data) (err error) {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending snapshot: %w", err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	enc := yaml.NewEncoder(pending)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace snapshot: %w", err)
	}
	return nil
}
