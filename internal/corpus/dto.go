package corpus

import (
	"fmt"

	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
)

// DescriptorFilename and EmbeddingsFilename are the names Write uses inside the output directory.
const (
	DescriptorFilename = "flags.json"
	EmbeddingsFilename = "embeddings.npy"
)

// entryDTO is the serialized flag record.
type entryDTO struct {
	Name               string  `json:"name"`
	WikipediaPage      string  `json:"wikipedia_page"`
	WikipediaURL       string  `json:"wikipedia_url"`
	WikipediaImageURL  string  `json:"wikipedia_image_url"`
	LocalImageLink     string  `json:"local_image_link"`
	VerificationMethod string  `json:"verification_method"`
	Score              float64 `json:"score"`
}

// descriptorDTO is the serialized corpus. Older descriptors list flags under "entries".
type descriptorDTO struct {
	Flags              []entryDTO `json:"flags"`
	Entries            []entryDTO `json:"entries,omitempty"`
	EmbeddingsFilename string     `json:"embeddings_filename"`
}

func (d *descriptorDTO) records() []entryDTO {
	if d.Flags == nil && d.Entries != nil {
		return d.Entries
	}
	return d.Flags
}

// toDomain hydrates a stored record. The persisted score is dropped: it is not part of flag identity.
func (e *entryDTO) toDomain() (domentry.Flag, error) {
	if e.Name == "" {
		return domentry.Flag{}, fmt.Errorf("flag name is required")
	}
	method, err := domentry.ParseVerificationMethod(e.VerificationMethod)
	if err != nil {
		return domentry.Flag{}, fmt.Errorf("flag %q: %w", e.Name, err)
	}
	return domentry.Reconstruct(e.Name, domentry.Source{
		Page:     e.WikipediaPage,
		PageURL:  e.WikipediaURL,
		ImageURL: e.WikipediaImageURL,
	}, e.LocalImageLink, method, 0), nil
}

func entryFromDomain(f *domentry.Flag) entryDTO {
	src := f.Source()
	return entryDTO{
		Name:               f.Name(),
		WikipediaPage:      src.Page,
		WikipediaURL:       src.PageURL,
		WikipediaImageURL:  src.ImageURL,
		LocalImageLink:     f.LocalImage(),
		VerificationMethod: string(f.Verification()),
	}
}
