// Package ledger persists the ids of rows that failed so a later run can retry them.
package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// Suffix is appended to the output path to derive the default ledger path.
const Suffix = ".retry"

// PathFor returns the conventional ledger path for an output file.
func PathFor(outputPath string) string {
	return outputPath + Suffix
}

// File is a failure ledger stored as one id per line.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a ledger backed by path. The file is created lazily on first Add.
func NewFile(path string) *File {
	return &File{path: path}
}

func (l *File) String() string {
	return l.path
}

// Add appends id to the ledger.
func (l *File) Add(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open ledger: %w", domain.ErrIO, err)
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: append ledger: %w", domain.ErrIO, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync ledger: %w", domain.ErrIO, err)
	}
	return f.Close()
}

// Load returns the ids in file order. A missing file is an empty ledger.
func (l *File) Load(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *File) load() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ledger: %w", domain.ErrIO, err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	ids := []string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id != "" {
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan ledger: %w", domain.ErrIO, err)
	}
	return ids, nil
}

// Remove rewrites the ledger without any occurrence of id.
// The file is left untouched when it does not exist or does not contain id.
func (l *File) Remove(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids, err := l.load()
	if err != nil {
		return err
	}
	if !slices.Contains(ids, id) {
		return nil
	}

	var buf bytes.Buffer
	for _, existing := range ids {
		if existing == id {
			continue
		}
		buf.WriteString(existing)
		buf.WriteByte('\n')
	}
	if err := writeFileAtomic(l.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: rewrite ledger: %w", domain.ErrIO, err)
	}
	return nil
}

// Clear deletes the ledger file if present.
func (l *File) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove ledger: %w", domain.ErrIO, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
