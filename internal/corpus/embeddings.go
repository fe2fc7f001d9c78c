package corpus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio/npy"
	"gonum.org/v1/gonum/mat"
)

// rawMatrix is a row-major (rows x cols) block of embeddings.
type rawMatrix struct {
	rows int
	cols int
	data []float64
}

// readEmbeddings decodes a 2-D little-endian float32/float64 C-order .npy file.
func readEmbeddings(path string) (rawMatrix, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return rawMatrix{}, fmt.Errorf("open embeddings %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return rawMatrix{}, fmt.Errorf("stat embeddings %s: %w", path, err)
	}

	m, err := decodeEmbeddings(f, info.Size())
	if err != nil {
		return rawMatrix{}, fmt.Errorf("decode embeddings %s: %w", path, err)
	}
	return m, nil
}

// decodeEmbeddings reads an array from r, which holds at most size bytes.
// The header's shape is checked against size before anything is allocated.
func decodeEmbeddings(r io.Reader, size int64) (rawMatrix, error) {
	nr, err := npy.NewReader(r)
	if err != nil {
		return rawMatrix{}, fmt.Errorf("read npy header: %w", err)
	}
	descr := nr.Header.Descr
	if descr.Fortran {
		return rawMatrix{}, errors.New("fortran-ordered arrays are not supported")
	}
	if len(descr.Shape) != 2 {
		return rawMatrix{}, fmt.Errorf("expected a 2-D array, got shape %v", descr.Shape)
	}
	rows, cols := descr.Shape[0], descr.Shape[1]
	if rows < 0 || cols < 0 {
		return rawMatrix{}, fmt.Errorf("invalid shape %v", descr.Shape)
	}
	if rows > 0 && cols == 0 {
		return rawMatrix{}, fmt.Errorf("zero-dimensional embeddings with %d rows", rows)
	}

	var itemSize int64
	switch descr.Type {
	case "<f4", "float32":
		itemSize = 4
	case "<f8", "float64":
		itemSize = 8
	default:
		return rawMatrix{}, fmt.Errorf("unsupported dtype %q (want <f4 or <f8)", descr.Type)
	}
	if cols > 0 && int64(rows) > size/itemSize/int64(cols) {
		return rawMatrix{}, fmt.Errorf("shape %v needs more data than the %d-byte file holds", descr.Shape, size)
	}

	n := rows * cols
	out := rawMatrix{rows: rows, cols: cols, data: make([]float64, n)}
	if n == 0 {
		return out, nil
	}

	if itemSize == 4 {
		raw := make([]float32, n)
		if err := nr.Read(&raw); err != nil {
			return rawMatrix{}, fmt.Errorf("read float32 data: %w", err)
		}
		for i, v := range raw {
			out.data[i] = float64(v)
		}
		return out, nil
	}
	if err := nr.Read(&out.data); err != nil {
		return rawMatrix{}, fmt.Errorf("read float64 data: %w", err)
	}
	return out, nil
}

// writeEmbeddings stores rows as a 2-D float64 .npy array.
func writeEmbeddings(path string, rows [][]float32) error {
	dim := len(rows[0])
	data := make([]float64, 0, len(rows)*dim)
	for _, row := range rows {
		for _, v := range row {
			data = append(data, float64(v))
		}
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create embeddings %s: %w", path, err)
	}
	if err := npy.Write(f, mat.NewDense(len(rows), dim, data)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write embeddings %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close embeddings %s: %w", path, err)
	}
	return nil
}
