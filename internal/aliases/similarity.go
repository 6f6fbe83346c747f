package aliases

import (
	"counterparty-reconciliation/internal/models"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Similarity scores two names in [0,1] after case folding and trimming.
//
// With the default edit costs (substitution counts as delete plus insert)
// the levenshtein ratio equals 2*LCS/(len(a)+len(b)), computed over runes
// so CJK names are compared character by character.
func Similarity(a, b string) float64 {
	na, nb := models.NormalizeAlias(a), models.NormalizeAlias(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0
	}
	return levenshtein.RatioForStrings([]rune(na), []rune(nb), levenshtein.DefaultOptions)
}
