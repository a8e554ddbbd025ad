package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// JSONFile persists a set as a JSON array of strings in one file.
type JSONFile struct {
	Path string
}

// Load reads the array. Numeric elements are accepted and kept in their decimal form,
// since older ban files stored identities as numbers. A missing file is an empty set.
func (j JSONFile) Load(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(j.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", j.Path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", j.Path, err)
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch v := v.(type) {
		case string:
			out = append(out, v)
		case json.Number:
			out = append(out, v.String())
		default:
			return nil, fmt.Errorf("decode %s: unexpected element %v", j.Path, v)
		}
	}
	return out, nil
}

// Save replaces the file with entries, writing a sibling temp file and renaming it
// over the target.
func (j JSONFile) Save(ctx context.Context, entries []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entries == nil {
		entries = []string{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	dir := filepath.Dir(j.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(j.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), j.Path); err != nil {
		return fmt.Errorf("rename to %s: %w", j.Path, err)
	}
	return nil
}
