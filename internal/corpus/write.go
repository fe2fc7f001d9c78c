package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
)

// Write stores a corpus as flags.json + embeddings.npy inside dir.
// The descriptor references the embeddings by file name, so the directory can be moved as a unit.
// Every flag must be fully validated; misaligned or ragged embeddings are rejected.
func Write(dir string, entries []domentry.Flag, embeddings [][]float32) error {
	if len(entries) == 0 {
		return errors.New("corpus: no flags to write")
	}
	if len(entries) != len(embeddings) {
		return domain.NewRowCountMismatch(len(entries), len(embeddings))
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return fmt.Errorf("%w: zero-dimensional embeddings", domain.ErrValidation)
	}

	seen := make(map[string]int, len(entries))
	records := make([]entryDTO, len(entries))
	for i := range entries {
		f := &entries[i]
		if !f.Verification().Valid() {
			return fmt.Errorf("%w: flag %q has verification_method %q",
				domain.ErrValidation, f.Name(), f.Verification())
		}
		if first, ok := seen[f.Name()]; ok {
			return domain.NewDuplicateName(f.Name(), first, i)
		}
		seen[f.Name()] = i
		if len(embeddings[i]) != dim {
			return &domain.IntegrityError{
				Reason: fmt.Sprintf("embedding row %d has dimension %d, want %d", i, len(embeddings[i]), dim),
			}
		}
		for j, v := range embeddings[i] {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("%w: embedding row %d (flag %q) has non-finite component %d",
					domain.ErrValidation, i, f.Name(), j)
			}
		}
		records[i] = entryFromDomain(f)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create corpus dir: %w", err)
	}
	if err := writeEmbeddings(filepath.Join(dir, EmbeddingsFilename), embeddings); err != nil {
		return err
	}

	data, err := json.MarshalIndent(descriptorDTO{
		Flags:              records,
		EmbeddingsFilename: EmbeddingsFilename,
	}, "", " ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DescriptorFilename), data, 0o600); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

// ReadEntry reads one per-flag JSON record as produced by the curation pipeline and validates it.
func ReadEntry(path string) (domentry.Flag, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return domentry.Flag{}, fmt.Errorf("read flag record: %w", err)
	}
	var e entryDTO
	if err := json.Unmarshal(data, &e); err != nil {
		return domentry.Flag{}, fmt.Errorf("parse flag record %s: %w", path, err)
	}
	method, err := domentry.ParseVerificationMethod(e.VerificationMethod)
	if err != nil {
		return domentry.Flag{}, fmt.Errorf("flag record %s: %w", path, err)
	}
	f, err := domentry.New(e.Name, domentry.Source{
		Page:     e.WikipediaPage,
		PageURL:  e.WikipediaURL,
		ImageURL: e.WikipediaImageURL,
	}, e.LocalImageLink, method)
	if err != nil {
		return domentry.Flag{}, fmt.Errorf("flag record %s: %w", path, err)
	}
	return f, nil
}

// ReadEntries reads every *.json record under dir (recursively) in lexical path order.
func ReadEntries(dir string) ([]domentry.Flag, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".json") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	out := make([]domentry.Flag, 0, len(paths))
	for _, p := range paths {
		f, err := ReadEntry(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
