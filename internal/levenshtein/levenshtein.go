// Package levenshtein computes edit distance for domain typo suggestions.
package levenshtein

// Distance returns the Levenshtein edit distance between a and b,
// using a single rolling row of memory.
func Distance(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	row := make([]int, len(br)+1)
	for j := range row {
		row[j] = j
	}

	for i, ac := range ar {
		prev := row[0] // row[i-1][j-1]
		row[0] = i + 1
		for j, bc := range br {
			del := row[j+1] + 1
			ins := row[j] + 1
			sub := prev
			if ac != bc {
				sub++
			}
			prev = row[j+1]
			row[j+1] = min(del, ins, sub)
		}
	}
	return row[len(br)]
}
