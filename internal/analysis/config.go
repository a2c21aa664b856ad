package analysis

import "time"

// Classifier labels.
const (
	LabelNeutral   = "neutral"
	LabelAntiIndia = "anti-india"
)

// TrainingExample is one labelled document for the classifier.
type TrainingExample struct {
	Text  string
	Label string
}

// Config is the scoring configuration injected into the engine at
// construction. Treated as immutable afterwards; the classifier trains
// once inside NewEngine and the lists are never written again.
type Config struct {
	// Keywords are matched as case-insensitive substrings of content.
	Keywords []string

	// Hashtags are matched as substrings of each submitted hashtag,
	// lowercased with the leading # stripped.
	Hashtags []string

	// Training is the labelled example set the classifier trains on.
	Training []TrainingExample

	// Points awarded per fired rule.
	KeywordPoints    int
	ClassifierPoints int
	SentimentPoints  int
	BotPoints        int
	HashtagPoints    int
	SyncPoints       int
	CoordPoints      int

	// SentimentThreshold fires the sentiment rule when the comparative
	// score falls below it.
	SentimentThreshold float64

	// Bot rule thresholds: more than BotDailyPosts posts in the trailing
	// 24h, or a repeated-content ratio strictly above BotRepeatRatio.
	BotDailyPosts  int
	BotRepeatRatio float64

	// Network rule thresholds, both strict.
	SyncPostsThreshold  int
	CoordShareThreshold float64

	// LookupTimeout bounds the post-history lookup per call.
	LookupTimeout time.Duration
}

// DefaultConfig returns the production scoring configuration. The keyword
// and hashtag lists mix English, Devanagari, and Urdu-script entries.
func DefaultConfig() Config {
	return Config{
		Keywords: []string{
			"destroy india",
			"break india",
			"anti india",
			"anti-india",
			"boycott india",
			"india terrorist",
			"india is evil",
			"down with india",
			"india murdabad",
			"भारत विरोधी",
			"भारत मुर्दाबाद",
			"भारत को नष्ट",
			"بھارت مردہ باد",
			"بھارت دشمن",
		},
		Hashtags: []string{
			"destroyindia",
			"breakindia",
			"antiindia",
			"boycottindia",
			"indiaterrorist",
			"downwithindia",
			"indiamurdabad",
		},
		Training: []TrainingExample{
			{Text: "india is a beautiful country with rich culture", Label: LabelNeutral},
			{Text: "i enjoyed my trip to india and the food was great", Label: LabelNeutral},
			{Text: "destroy india and its economy", Label: LabelAntiIndia},
			{Text: "india is our enemy and must be broken", Label: LabelAntiIndia},
			{Text: "boycott india they are terrorists", Label: LabelAntiIndia},
		},

		KeywordPoints:    40,
		ClassifierPoints: 35,
		SentimentPoints:  20,
		BotPoints:        30,
		HashtagPoints:    25,
		SyncPoints:       20,
		CoordPoints:      25,

		SentimentThreshold: -0.5,

		BotDailyPosts:  50,
		BotRepeatRatio: 0.7,

		SyncPostsThreshold:  10,
		CoordShareThreshold: 0.6,

		LookupTimeout: 2 * time.Second,
	}
}
