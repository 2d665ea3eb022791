package sentiment

import (
	"regexp"
	"strings"

	"github.com/jonreiter/govader"

	"github.com/featherwatch/featherwatch/app/post"
)

// Label thresholds on the VADER compound score.
const (
	positiveThreshold = 0.1
	negativeThreshold = -0.1
)

const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	mentionPattern = regexp.MustCompile(`[@#]\w+`)
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
)

// Score is the sentiment result for a single post.
type Score struct {
	Post     post.Post
	Compound float64
	Positive float64
	Negative float64
	Neutral  float64
	Label    string
}

// Batch aggregates the scores of one account's collected posts.
type Batch struct {
	Account            string
	TotalPosts         int
	AverageSentiment   float64
	PositiveCount      int
	NegativeCount      int
	NeutralCount       int
	Label              string
	Scores             []Score
	OilRelated         []Score
	ElectricityRelated []Score
}

// Analyzer scores post text with VADER. URLs, mentions and hashtags
// are stripped before scoring so the lexicon sees prose only.
type Analyzer struct {
	vader               *govader.SentimentIntensityAnalyzer
	oilKeywords         []string
	electricityKeywords []string
}

func NewAnalyzer(oilKeywords, electricityKeywords []string) *Analyzer {
	return &Analyzer{
		vader:               govader.NewSentimentIntensityAnalyzer(),
		oilKeywords:         oilKeywords,
		electricityKeywords: electricityKeywords,
	}
}

// Analyze scores one post.
func (a *Analyzer) Analyze(p post.Post) Score {
	scores := a.vader.PolarityScores(cleanText(p.Text))
	return Score{
		Post:     p,
		Compound: scores.Compound,
		Positive: scores.Positive,
		Negative: scores.Negative,
		Neutral:  scores.Neutral,
		Label:    LabelFor(scores.Compound),
	}
}

// AnalyzeBatch scores a collected post sequence and aggregates the
// account-level numbers. An empty input yields a neutral zero batch.
func (a *Analyzer) AnalyzeBatch(account string, posts []post.Post) Batch {
	batch := Batch{Account: account, Label: LabelNeutral}
	if len(posts) == 0 {
		return batch
	}

	sum := 0.0
	for _, p := range posts {
		score := a.Analyze(p)
		batch.Scores = append(batch.Scores, score)
		sum += score.Compound

		switch score.Label {
		case LabelPositive:
			batch.PositiveCount++
		case LabelNegative:
			batch.NegativeCount++
		default:
			batch.NeutralCount++
		}

		if containsAny(p.Text, a.oilKeywords) {
			batch.OilRelated = append(batch.OilRelated, score)
		}
		if containsAny(p.Text, a.electricityKeywords) {
			batch.ElectricityRelated = append(batch.ElectricityRelated, score)
		}
	}

	batch.TotalPosts = len(posts)
	batch.AverageSentiment = sum / float64(len(posts))
	batch.Label = LabelFor(batch.AverageSentiment)
	return batch
}

// TrendingHashtags returns hashtags that appear more than once across
// the given batches, most frequent first, capped at limit.
func TrendingHashtags(batches []Batch, limit int) []string {
	counts := make(map[string]int)
	var order []string
	for _, b := range batches {
		for _, s := range b.Scores {
			for _, m := range hashtagPattern.FindAllStringSubmatch(strings.ToLower(s.Post.Text), -1) {
				tag := m[1]
				if counts[tag] == 0 {
					order = append(order, tag)
				}
				counts[tag]++
			}
		}
	}

	var trending []string
	for len(trending) < limit {
		best := ""
		bestCount := 1 // require more than one occurrence
		for _, tag := range order {
			if counts[tag] > bestCount {
				best = tag
				bestCount = counts[tag]
			}
		}
		if best == "" {
			break
		}
		trending = append(trending, best)
		counts[best] = 0
	}
	return trending
}

// LabelFor maps a compound score to its sentiment label.
func LabelFor(compound float64) string {
	switch {
	case compound >= positiveThreshold:
		return LabelPositive
	case compound <= negativeThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

func cleanText(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
