package chi

import (
	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
	"github.com/kailas-cloud/flagsearch/internal/domain/search/result"
)

// TextSearchRequest is the body of POST /flags.
type TextSearchRequest struct {
	TextQuery string `json:"text_query"`
	TopK      *int   `json:"top_k,omitempty"`
}

// VectorSearchRequest is the body of POST /flags/vector.
type VectorSearchRequest struct {
	Embedding []float32 `json:"embedding"`
	TopK      *int      `json:"top_k,omitempty"`
}

// Flag is the wire form of a corpus entry.
type Flag struct {
	Index              int     `json:"index"`
	Name               string  `json:"name"`
	WikipediaPage      string  `json:"wikipedia_page"`
	WikipediaURL       string  `json:"wikipedia_url"`
	WikipediaImageURL  string  `json:"wikipedia_image_url"`
	LocalImageLink     string  `json:"local_image_link"`
	VerificationMethod string  `json:"verification_method"`
	Score              float64 `json:"score"`
}

// SearchResponse lists ranked flags, most similar first.
type SearchResponse struct {
	Flags []Flag `json:"flags"`
}

// CorpusResponse describes the loaded corpus and the query modalities the server accepts.
type CorpusResponse struct {
	Size        int  `json:"size"`
	Dimensions  int  `json:"dimensions"`
	TextSearch  bool `json:"text_search"`
	ImageSearch bool `json:"image_search"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func flagToResponse(f *domentry.Flag, index int) Flag {
	src := f.Source()
	return Flag{
		Index:              index,
		Name:               f.Name(),
		WikipediaPage:      src.Page,
		WikipediaURL:       src.PageURL,
		WikipediaImageURL:  src.ImageURL,
		LocalImageLink:     f.LocalImage(),
		VerificationMethod: string(f.Verification()),
		Score:              f.Score(),
	}
}

func resultsToResponse(results []result.Result) SearchResponse {
	flags := make([]Flag, len(results))
	for i := range results {
		f := results[i].Flag()
		flags[i] = flagToResponse(&f, results[i].Index())
	}
	return SearchResponse{Flags: flags}
}
