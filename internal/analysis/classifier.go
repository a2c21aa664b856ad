package analysis

import "math"

// classifier is a multinomial naive Bayes text classifier over
// bag-of-words features. Trained once at engine construction and
// read-only afterwards, so concurrent classification needs no locking.
type classifier struct {
	labels      []string                  // insertion order, breaks ties
	docs        map[string]int            // label -> training document count
	tokenCounts map[string]map[string]int // label -> token -> occurrences
	totalTokens map[string]int            // label -> total token occurrences
	vocab       map[string]struct{}
	totalDocs   int
}

// trainClassifier builds a classifier from the labelled example set.
// Returns nil when no examples are given; the classifier rule then
// never fires.
func trainClassifier(examples []TrainingExample) *classifier {
	if len(examples) == 0 {
		return nil
	}

	c := &classifier{
		docs:        make(map[string]int),
		tokenCounts: make(map[string]map[string]int),
		totalTokens: make(map[string]int),
		vocab:       make(map[string]struct{}),
	}

	for _, ex := range examples {
		if _, seen := c.docs[ex.Label]; !seen {
			c.labels = append(c.labels, ex.Label)
			c.tokenCounts[ex.Label] = make(map[string]int)
		}
		c.docs[ex.Label]++
		c.totalDocs++

		for _, tok := range tokenize(ex.Text) {
			c.tokenCounts[ex.Label][tok]++
			c.totalTokens[ex.Label]++
			c.vocab[tok] = struct{}{}
		}
	}
	return c
}

// classify returns the most probable label for the content, using log
// probabilities with Laplace smoothing. Ties go to the earlier-trained
// label, which keeps the output deterministic. Content sharing no
// vocabulary with the training set returns the empty string; without
// token evidence the class priors alone would pick a label.
func (c *classifier) classify(content string) string {
	tokens := tokenize(content)

	known := 0
	for _, tok := range tokens {
		if _, ok := c.vocab[tok]; ok {
			known++
		}
	}
	if known == 0 {
		return ""
	}

	best := c.labels[0]
	bestScore := math.Inf(-1)
	v := float64(len(c.vocab))

	for _, label := range c.labels {
		score := math.Log(float64(c.docs[label]) / float64(c.totalDocs))
		denom := float64(c.totalTokens[label]) + v
		for _, tok := range tokens {
			count := float64(c.tokenCounts[label][tok])
			score += math.Log((count + 1) / denom)
		}
		if score > bestScore {
			bestScore = score
			best = label
		}
	}
	return best
}
