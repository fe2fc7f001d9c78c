package corpus

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
)

// Store is the loaded reference corpus: ordered flags and their L2-normalised embeddings.
// Row i of the matrix is the embedding of flag i. Immutable after construction.
type Store struct {
	entries []domentry.Flag
	byName  map[string]int
	matrix  *mat.Dense // nil when the corpus is empty
	dim     int
	source  string
}

// Load reads a corpus descriptor and the embeddings file it references.
// A relative embeddings_filename resolves against the descriptor's directory.
func Load(path string, logger *zap.Logger) (*Store, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: read descriptor: %w", domain.ErrCorpusLoad, err)
	}

	var desc descriptorDTO
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: parse descriptor %s: %w", domain.ErrCorpusLoad, path, err)
	}
	if desc.EmbeddingsFilename == "" {
		return nil, fmt.Errorf("%w: descriptor %s has no embeddings_filename", domain.ErrCorpusLoad, path)
	}

	records := desc.records()
	entries := make([]domentry.Flag, len(records))
	for i := range records {
		f, err := records[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", domain.ErrCorpusLoad, i, err)
		}
		entries[i] = f
	}

	embPath := desc.EmbeddingsFilename
	if !filepath.IsAbs(embPath) {
		embPath = filepath.Join(filepath.Dir(path), embPath)
	}
	raw, err := readEmbeddings(embPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCorpusLoad, err)
	}

	s, err := build(entries, raw, logger)
	if err != nil {
		return nil, err
	}
	s.source = path

	logger.Info("Corpus loaded",
		zap.String("descriptor", path),
		zap.String("embeddings", embPath),
		zap.Int("flags", s.Size()),
		zap.Int("dimensions", s.Dim()),
	)
	return s, nil
}

// New builds a Store from in-memory flags and embeddings with the same checks as Load.
func New(entries []domentry.Flag, embeddings [][]float32, logger *zap.Logger) (*Store, error) {
	raw := rawMatrix{rows: len(embeddings)}
	if len(embeddings) > 0 {
		raw.cols = len(embeddings[0])
		raw.data = make([]float64, 0, raw.rows*raw.cols)
	}
	for i, row := range embeddings {
		if len(row) != raw.cols {
			return nil, &domain.IntegrityError{
				Reason: fmt.Sprintf("embedding row %d has dimension %d, want %d", i, len(row), raw.cols),
			}
		}
		for _, v := range row {
			raw.data = append(raw.data, float64(v))
		}
	}
	if raw.rows > 0 && raw.cols == 0 {
		return nil, fmt.Errorf("%w: zero-dimensional embeddings", domain.ErrCorpusLoad)
	}
	cp := make([]domentry.Flag, len(entries))
	copy(cp, entries)
	return build(cp, raw, logger)
}

func build(entries []domentry.Flag, raw rawMatrix, logger *zap.Logger) (*Store, error) {
	if len(entries) != raw.rows {
		return nil, domain.NewRowCountMismatch(len(entries), raw.rows)
	}

	byName := make(map[string]int, len(entries))
	for i := range entries {
		name := entries[i].Name()
		if first, ok := byName[name]; ok {
			return nil, domain.NewDuplicateName(name, first, i)
		}
		byName[name] = i
	}

	s := &Store{entries: entries, byName: byName, dim: raw.cols}
	if raw.rows == 0 {
		logger.Warn("Corpus has no flags")
		return s, nil
	}

	for i := 0; i < raw.rows; i++ {
		row := raw.data[i*raw.cols : (i+1)*raw.cols]
		if j := nonFinite(row); j >= 0 {
			return nil, fmt.Errorf("%w: embedding row %d (flag %q) has non-finite component %d",
				domain.ErrCorpusLoad, i, entries[i].Name(), j)
		}
		norm := floats.Norm(row, 2)
		if norm == 0 {
			logger.Warn("Zero-norm embedding; flag will always score 0",
				zap.Int("index", i), zap.String("flag", entries[i].Name()))
			continue
		}
		floats.Scale(1/norm, row)
	}
	s.matrix = mat.NewDense(raw.rows, raw.cols, raw.data)
	return s, nil
}

// nonFinite returns the position of the first NaN or infinite value, or -1.
func nonFinite(row []float64) int {
	for j, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return j
		}
	}
	return -1
}

// EntryAt returns a copy of the flag at row i.
func (s *Store) EntryAt(i int) (domentry.Flag, error) {
	if i < 0 || i >= len(s.entries) {
		return domentry.Flag{}, fmt.Errorf("%w: %d not in [0, %d)", domain.ErrIndexOutOfRange, i, len(s.entries))
	}
	return s.entries[i], nil
}

// IndexOf returns the row of the flag with the given name.
func (s *Store) IndexOf(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Entries returns a copy of the ordered flag list.
func (s *Store) Entries() []domentry.Flag {
	out := make([]domentry.Flag, len(s.entries))
	copy(out, s.entries)
	return out
}

// Size returns the number of flags.
func (s *Store) Size() int { return len(s.entries) }

// Dim returns the embedding dimensionality (0 for an empty corpus without a declared shape).
func (s *Store) Dim() int { return s.dim }

// Matrix returns the normalised (Size x Dim) embedding matrix, or nil for an empty corpus.
// Callers must treat it as read-only.
func (s *Store) Matrix() mat.Matrix {
	if s.matrix == nil {
		return nil
	}
	return s.matrix
}

// Source returns the descriptor path the store was loaded from, empty for in-memory stores.
func (s *Store) Source() string { return s.source }
