package feedback

// EstimateLetters maps flagged phoneme indices onto letter positions of word
// by proportional scaling. It is a display approximation only: phonemes and
// letters are not aligned, so results may be off for digraphs and silent
// letters. Indices that land outside the word are dropped.
func EstimateLetters(word string, phonemeCount int, problems []int) map[int]bool {
	letters := []rune(word)
	marked := make(map[int]bool, len(problems))
	if phonemeCount <= 0 || len(letters) == 0 {
		return marked
	}
	for _, p := range problems {
		if p < 0 {
			continue
		}
		idx := p * len(letters) / phonemeCount
		if idx >= 0 && idx < len(letters) {
			marked[idx] = true
		}
	}
	return marked
}
