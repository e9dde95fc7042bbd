// Package suggest produces "did you mean?" hints for misspelled identifiers
// such as config keys and policy options.
package suggest

// maxDistance is the largest edit distance still worth suggesting.
const maxDistance = 3

// Closest returns the entry of known nearest to unknown by Levenshtein
// distance, or "" when nothing is within maxDistance. Ties resolve to the
// earlier entry, so callers should pass a sorted slice.
func Closest(unknown string, known []string) string {
	best := ""
	bestDist := maxDistance + 1

	for _, k := range known {
		d := Distance(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxDistance {
		return best
	}

	return ""
}

// Distance computes the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization: only the previous row is needed.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
