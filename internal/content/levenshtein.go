package content

// Similarity returns 1 - distance/max(len(a), len(b)) over runes using the
// classic edit distance. Two empty strings are identical and yield 1.0.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1.0
	}
	return 1 - float64(distance(ra, rb))/float64(longest)
}

// distance keeps two rows of the DP table.
func distance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = min(prev[j], curr[j-1], prev[j-1]) + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
