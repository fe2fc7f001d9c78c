package flagsearch

import (
	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
	"github.com/kailas-cloud/flagsearch/internal/domain/search/result"
)

// VerificationMethod records how a flag's metadata was validated.
type VerificationMethod string

// Verification method constants.
const (
	VerificationCheckOptions VerificationMethod = "check_options"
	VerificationCommons      VerificationMethod = "commons"
	VerificationTable        VerificationMethod = "table"
)

// Flag is a reference flag of the corpus.
type Flag struct {
	Name               string
	WikipediaPage      string
	WikipediaURL       string
	WikipediaImageURL  string
	LocalImageLink     string
	VerificationMethod VerificationMethod
}

// Match is one ranked search hit.
type Match struct {
	Flag  Flag
	Index int     // corpus row
	Score float64 // cosine similarity in [-1, 1]
}

func flagFromDomain(f *domentry.Flag) Flag {
	src := f.Source()
	return Flag{
		Name:               f.Name(),
		WikipediaPage:      src.Page,
		WikipediaURL:       src.PageURL,
		WikipediaImageURL:  src.ImageURL,
		LocalImageLink:     f.LocalImage(),
		VerificationMethod: VerificationMethod(f.Verification()),
	}
}

func matchesFromResults(results []result.Result) []Match {
	out := make([]Match, len(results))
	for i := range results {
		f := results[i].Flag()
		out[i] = Match{
			Flag:  flagFromDomain(&f),
			Index: results[i].Index(),
			Score: results[i].Score(),
		}
	}
	return out
}
