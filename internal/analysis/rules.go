package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Flags recorded by fired rules.
const (
	FlagKeywords   = "suspicious_keywords"
	FlagClassifier = "ml_classification_positive"
	FlagSentiment  = "negative_sentiment"
	FlagBot        = "bot_behavior"
	FlagHashtags   = "suspicious_hashtags"
	FlagSync       = "synchronized_posting"
	FlagCoord      = "coordinated_messaging"
)

// Input carries everything a rule may inspect. Sentiment is computed once
// per call. History is nil when the author is unknown or the lookup
// degraded; Network is nil when the request carried no network data and
// no source is configured. Rules treat nil as "no signal".
type Input struct {
	Content   string
	Lowered   string
	Metadata  Metadata
	Sentiment *Sentiment
	History   *UserHistory
	Network   *NetworkData
}

// UserHistory is the post-history snapshot consumed by the bot rule.
type UserHistory struct {
	Posts []HistoryPost
}

// HistoryPost is one prior post by the author.
type HistoryPost struct {
	Content   string
	Timestamp time.Time
}

// Finding is the outcome of a fired rule. Network findings route their
// flag into NetworkAnalysis.Indicators instead of Flags, and their points
// count toward both the total and the network sub-score.
type Finding struct {
	Points      int
	Flag        string
	Network     bool
	Explanation string
}

// Rule is one independent scoring heuristic. Evaluate returns nil when
// the rule does not fire.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, in *Input) *Finding
}

// defaultRules returns the ordered production rule list. Order fixes the
// order of explanation entries only; the score is a pure sum, so it never
// depends on position.
func defaultRules(cfg Config, clf *classifier) []Rule {
	return []Rule{
		&KeywordRule{keywords: cfg.Keywords, points: cfg.KeywordPoints},
		&ClassifierRule{clf: clf, points: cfg.ClassifierPoints},
		&SentimentRule{threshold: cfg.SentimentThreshold, points: cfg.SentimentPoints},
		&BotRule{dailyPosts: cfg.BotDailyPosts, repeatRatio: cfg.BotRepeatRatio, points: cfg.BotPoints},
		&HashtagRule{hashtags: cfg.Hashtags, points: cfg.HashtagPoints},
		&SyncPostingRule{threshold: cfg.SyncPostsThreshold, points: cfg.SyncPoints},
		&CoordMessagingRule{threshold: cfg.CoordShareThreshold, points: cfg.CoordPoints},
	}
}

// ---------------------------------------------------------------------------
// KeywordRule: fixed suspicious phrases as case-insensitive substrings
// ---------------------------------------------------------------------------

type KeywordRule struct {
	keywords []string
	points   int
}

func (r *KeywordRule) Name() string { return "keywords" }

func (r *KeywordRule) Evaluate(_ context.Context, in *Input) *Finding {
	matched := 0
	for _, kw := range r.keywords {
		if strings.Contains(in.Lowered, strings.ToLower(kw)) {
			matched++
		}
	}
	if matched == 0 {
		return nil
	}
	return &Finding{
		Points:      r.points,
		Flag:        FlagKeywords,
		Explanation: fmt.Sprintf("content matched %d suspicious keyword pattern(s)", matched),
	}
}

// ---------------------------------------------------------------------------
// ClassifierRule: naive Bayes over the fixed training set
// ---------------------------------------------------------------------------

type ClassifierRule struct {
	clf    *classifier
	points int
}

func (r *ClassifierRule) Name() string { return "classifier" }

func (r *ClassifierRule) Evaluate(_ context.Context, in *Input) *Finding {
	if r.clf == nil {
		return nil
	}
	if r.clf.classify(in.Lowered) != LabelAntiIndia {
		return nil
	}
	return &Finding{
		Points:      r.points,
		Flag:        FlagClassifier,
		Explanation: "classifier labelled content " + LabelAntiIndia,
	}
}

// ---------------------------------------------------------------------------
// SentimentRule: comparative sentiment below threshold
// ---------------------------------------------------------------------------

type SentimentRule struct {
	threshold float64
	points    int
}

func (r *SentimentRule) Name() string { return "sentiment" }

func (r *SentimentRule) Evaluate(_ context.Context, in *Input) *Finding {
	if in.Sentiment == nil || in.Sentiment.Comparative >= r.threshold {
		return nil
	}
	return &Finding{
		Points:      r.points,
		Flag:        FlagSentiment,
		Explanation: fmt.Sprintf("strongly negative sentiment (comparative %.2f)", in.Sentiment.Comparative),
	}
}

// ---------------------------------------------------------------------------
// BotRule: posting volume or repeated content suggests automation
// ---------------------------------------------------------------------------

type BotRule struct {
	dailyPosts  int
	repeatRatio float64
	points      int
}

func (r *BotRule) Name() string { return "bot_behavior" }

func (r *BotRule) Evaluate(_ context.Context, in *Input) *Finding {
	if in.History == nil || len(in.History.Posts) == 0 {
		return nil
	}

	posts := in.History.Posts
	cutoff := time.Now().Add(-24 * time.Hour)
	recent := 0
	unique := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if p.Timestamp.After(cutoff) {
			recent++
		}
		unique[p.Content] = struct{}{}
	}

	if recent > r.dailyPosts {
		return &Finding{
			Points:      r.points,
			Flag:        FlagBot,
			Explanation: fmt.Sprintf("author posted %d times in the trailing 24h", recent),
		}
	}

	// Repetition ratio is strict: exactly the threshold does not fire.
	ratio := float64(len(posts)-len(unique)) / float64(len(posts))
	if ratio > r.repeatRatio {
		return &Finding{
			Points:      r.points,
			Flag:        FlagBot,
			Explanation: fmt.Sprintf("%.0f%% of the author's recent posts repeat identical content", ratio*100),
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HashtagRule: hashtags containing known suspicious tags
// ---------------------------------------------------------------------------

type HashtagRule struct {
	hashtags []string
	points   int
}

func (r *HashtagRule) Name() string { return "hashtags" }

func (r *HashtagRule) Evaluate(_ context.Context, in *Input) *Finding {
	if len(in.Metadata.Hashtags) == 0 {
		return nil
	}

	var matched []string
	for _, tag := range in.Metadata.Hashtags {
		normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		for _, sus := range r.hashtags {
			if strings.Contains(normalized, sus) {
				matched = append(matched, tag)
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return &Finding{
		Points:      r.points,
		Flag:        FlagHashtags,
		Explanation: "suspicious hashtags: " + strings.Join(matched, ", "),
	}
}

// ---------------------------------------------------------------------------
// SyncPostingRule: too many accounts posting at the same moment
// ---------------------------------------------------------------------------

type SyncPostingRule struct {
	threshold int
	points    int
}

func (r *SyncPostingRule) Name() string { return "synchronized_posting" }

func (r *SyncPostingRule) Evaluate(_ context.Context, in *Input) *Finding {
	if in.Network == nil || in.Network.SimultaneousPosts <= r.threshold {
		return nil
	}
	return &Finding{
		Points:      r.points,
		Flag:        FlagSync,
		Network:     true,
		Explanation: fmt.Sprintf("%d accounts posted simultaneously", in.Network.SimultaneousPosts),
	}
}

// ---------------------------------------------------------------------------
// CoordMessagingRule: surrounding volume dominated by suspicious content
// ---------------------------------------------------------------------------

type CoordMessagingRule struct {
	threshold float64
	points    int
}

func (r *CoordMessagingRule) Name() string { return "coordinated_messaging" }

func (r *CoordMessagingRule) Evaluate(_ context.Context, in *Input) *Finding {
	if in.Network == nil || in.Network.SharedContent.SuspiciousPercentage <= r.threshold {
		return nil
	}
	return &Finding{
		Points:      r.points,
		Flag:        FlagCoord,
		Network:     true,
		Explanation: fmt.Sprintf("%.0f%% of shared content matches known suspicious material", in.Network.SharedContent.SuspiciousPercentage*100),
	}
}
