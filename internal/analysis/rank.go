package analysis

import (
	"fmt"
	"sort"
)

// Rank orders summaries by the mean of metric, highest first. Ties keep
// subset order.
func Rank(summaries []Summary, metric string) ([]Summary, error) {
	out := append([]Summary(nil), summaries...)
	for _, s := range out {
		if _, ok := s.Metrics[metric]; !ok {
			return nil, fmt.Errorf("subset %d has no metric %q", s.Subset, metric)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics[metric].Mean > out[j].Metrics[metric].Mean
	})
	return out, nil
}
