// Package similarity implements the string-distance primitives used for
// supplier name and location matching. All functions operate on runes so
// multi-byte names score the same as ASCII ones.
package similarity

// Levenshtein returns the edit distance between a and b using the classic
// dynamic programming recurrence, two rows at a time.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// NormalizedLevenshtein maps the edit distance onto [0,1], where 1 means
// identical. Two empty strings are fully similar.
func NormalizedLevenshtein(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 && lb == 0 {
		return 1.0
	}
	longest := la
	if lb > longest {
		longest = lb
	}
	return 1.0 - float64(Levenshtein(a, b))/float64(longest)
}

// Jaro returns the Jaro similarity of a and b in [0,1]. Matching window is
// half the longer length minus one; each character in b may be matched at
// most once, claimed by the first a-character that reaches it.
func Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	window := len(ra)
	if len(rb) > window {
		window = len(rb)
	}
	window = window/2 - 1
	if window < 0 {
		window = 0
	}

	matchedA := make([]bool, len(ra))
	matchedB := make([]bool, len(rb))
	matches := 0
	for i := range ra {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window
		if hi > len(rb)-1 {
			hi = len(rb) - 1
		}
		for j := lo; j <= hi; j++ {
			if matchedB[j] || ra[i] != rb[j] {
				continue
			}
			matchedA[i] = true
			matchedB[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	// Half-transpositions: positions where the matched subsequences differ.
	halves := 0
	j := 0
	for i := range ra {
		if !matchedA[i] {
			continue
		}
		for !matchedB[j] {
			j++
		}
		if ra[i] != rb[j] {
			halves++
		}
		j++
	}

	m := float64(matches)
	t := float64(halves) / 2.0
	return (m/float64(len(ra)) + m/float64(len(rb)) + (m-t)/m) / 3.0
}

// JaroWinkler adds the common-prefix bonus on top of Jaro: up to four
// leading characters shared by both strings pull the score toward 1.
func JaroWinkler(a, b string) float64 {
	j := Jaro(a, b)

	ra := []rune(a)
	rb := []rune(b)
	prefix := 0
	for prefix < len(ra) && prefix < len(rb) && ra[prefix] == rb[prefix] {
		prefix++
		if prefix == 4 {
			break
		}
	}
	return j + float64(prefix)*0.1*(1.0-j)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
