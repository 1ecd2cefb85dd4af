package matching

import (
	"sort"

	"github.com/spigell/candidate-matcher/internal/domain"
)

// Overlap returns the Jaccard index of the two label sets after normalisation
// and the shared labels in sorted order. Either set being empty yields 0.
func Overlap(a, b []string) (float64, []string) {
	left := domain.NormalizeLabels(a)
	right := domain.NormalizeLabels(b)
	if len(left) == 0 || len(right) == 0 {
		return 0, nil
	}

	inRight := make(map[string]struct{}, len(right))
	for _, label := range right {
		inRight[label] = struct{}{}
	}

	var shared []string
	for _, label := range left {
		if _, ok := inRight[label]; ok {
			shared = append(shared, label)
		}
	}

	sort.Strings(shared)

	union := len(left) + len(right) - len(shared)
	return float64(len(shared)) / float64(union), shared
}
