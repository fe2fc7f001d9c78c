package entry

import (
	"fmt"

	"github.com/kailas-cloud/flagsearch/internal/domain"
)

// VerificationMethod records how a flag's metadata was validated during corpus construction.
type VerificationMethod string

const (
	// CheckOptions means the flag was confirmed against a list of candidate pages.
	CheckOptions VerificationMethod = "check_options"
	// Commons means the flag came from a verified Wikimedia Commons category.
	Commons VerificationMethod = "commons"
	// Table means the flag was read from a curated wiki table.
	Table VerificationMethod = "table"
	// Unverified is the pre-validation placeholder.
	Unverified VerificationMethod = ""
)

var validMethods = map[VerificationMethod]bool{
	CheckOptions: true,
	Commons:      true,
	Table:        true,
}

// ParseVerificationMethod validates a serialized verification method.
// The empty string is accepted and maps to Unverified.
func ParseVerificationMethod(s string) (VerificationMethod, error) {
	m := VerificationMethod(s)
	if m == Unverified || validMethods[m] {
		return m, nil
	}
	return "", fmt.Errorf("%w: invalid verification_method %q (allowed: %s, %s, %s)",
		domain.ErrValidation, s, CheckOptions, Commons, Table)
}

// Valid reports whether m is one of the three allowed methods.
func (m VerificationMethod) Valid() bool { return validMethods[m] }

// Flag is a single reference flag (immutable value object).
type Flag struct {
	name         string
	page         string
	pageURL      string
	imageURL     string
	localImage   string
	verification VerificationMethod
	score        float64
}

// Source groups the attribution references of a flag.
type Source struct {
	Page     string
	PageURL  string
	ImageURL string
}

// New validates and creates a Flag.
// Name is required and the verification method must be one of the allowed values.
func New(name string, src Source, localImage string, method VerificationMethod) (Flag, error) {
	if name == "" {
		return Flag{}, fmt.Errorf("%w: flag name is required", domain.ErrValidation)
	}
	if !method.Valid() {
		return Flag{}, fmt.Errorf("%w: flag %q: invalid verification_method %q", domain.ErrValidation, name, method)
	}
	return Flag{
		name:         name,
		page:         src.Page,
		pageURL:      src.PageURL,
		imageURL:     src.ImageURL,
		localImage:   localImage,
		verification: method,
	}, nil
}

// Reconstruct creates a Flag without validation (storage hydration).
func Reconstruct(name string, src Source, localImage string, method VerificationMethod, score float64) Flag {
	return Flag{
		name: name, page: src.Page, pageURL: src.PageURL, imageURL: src.ImageURL,
		localImage: localImage, verification: method, score: score,
	}
}

// Name returns the display label.
func (f *Flag) Name() string { return f.name }

// Source returns the attribution references.
func (f *Flag) Source() Source {
	return Source{Page: f.page, PageURL: f.pageURL, ImageURL: f.imageURL}
}

// LocalImage returns the path to the cached raster image, empty before it is fetched.
func (f *Flag) LocalImage() string { return f.localImage }

// Verification returns how the flag metadata was validated.
func (f *Flag) Verification() VerificationMethod { return f.verification }

// Score returns the similarity of the last ranking that produced this copy. Zero for stored flags.
func (f *Flag) Score() float64 { return f.score }

// WithScore returns a copy with the score set.
func (f *Flag) WithScore(score float64) Flag {
	c := *f
	c.score = score
	return c
}

// WithLocalImage returns a copy with the image path set.
func (f *Flag) WithLocalImage(path string) Flag {
	c := *f
	c.localImage = path
	return c
}
