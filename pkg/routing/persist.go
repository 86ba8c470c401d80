package routing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitrdm/gokanroute/internal/blob"
	"github.com/gitrdm/gokanroute/pkg/cp"
)

// Compression selects how WriteAssignment compresses the file.
type Compression = blob.CompressionTag

const (
	CompressionNone = blob.CompressionNone
	CompressionLZ4  = blob.CompressionLZ4
	CompressionZstd = blob.CompressionZstd
)

// ParseCompression returns the compression called name: none, lz4 or zstd.
func ParseCompression(name string) (Compression, error) {
	return blob.ParseCompressionTag(name)
}

// WriteAssignment saves the solution of the last solve to path. The file is
// replaced atomically.
func (m *Model) WriteAssignment(path string, compression Compression) error {
	if m.solution == nil {
		return fmt.Errorf("write assignment %s: %w", path, ErrNoSolution)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write assignment: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := m.solution.SaveTo(tmp, compression); err != nil {
		tmp.Close()
		return fmt.Errorf("write assignment %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write assignment %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write assignment: %w", err)
	}
	m.log.Debug().Str("path", path).Stringer("compression", compression).Msg("assignment written")
	return nil
}

// ReadAssignment loads an assignment written by WriteAssignment for the same
// model and restores it as the current solution.
func (m *Model) ReadAssignment(ctx context.Context, path string) (*cp.Assignment, error) {
	m.quietCloseModel()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read assignment: %w", err)
	}
	defer f.Close()
	a := m.fullAssignment()
	if err := a.LoadFrom(f); err != nil {
		return nil, fmt.Errorf("read assignment %s: %w", path, err)
	}
	return m.RestoreAssignment(ctx, a)
}
