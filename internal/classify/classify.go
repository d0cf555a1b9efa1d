// Package classify scores comment text with fixed keyword heuristics.
package classify

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/TobiSchelling/Supernova/internal/social"
)

var (
	positiveWords = []string{"love", "great", "awesome", "amazing", "excellent", "perfect", "good", "wonderful", "fantastic", "best"}
	negativeWords = []string{"hate", "terrible", "awful", "bad", "worst", "horrible", "disgusting", "useless", "disappointed", "angry"}

	urgentWords = []string{"urgent", "immediately", "asap", "emergency", "terrible", "awful", "hate", "angry"}
	mediumWords = []string{"question", "help", "issue", "problem", "when", "how"}
)

// categoryRules are checked in order; the first match wins.
var categoryRules = []struct {
	category social.Category
	triggers []string
}{
	{social.CategoryRefunds, []string{"refund", "money back", "return"}},
	{social.CategoryQuestions, []string{"question", "how", "when", "?"}},
	{social.CategoryFeedback, []string{"thank", "love", "great", "awesome"}},
}

// Result is the full classification of one piece of text.
type Result struct {
	Sentiment float64
	Category  social.Category
	Priority  social.Priority
}

// Classifier scores text. Only Sentiment uses the random source.
type Classifier struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Classifier drawing jitter from src.
func New(src rand.Source) *Classifier {
	return &Classifier{rng: rand.New(src)}
}

// Classify returns sentiment, category and priority for text.
func (c *Classifier) Classify(text string) Result {
	return Result{
		Sentiment: c.Sentiment(text),
		Category:  Category(text),
		Priority:  Priority(text),
	}
}

// Sentiment counts exact lowercase token matches against the positive and
// negative word lists and returns a noisy score in the matching band:
// [0.3, 0.8] positive, [-0.8, -0.3] negative, [-0.2, 0.2] otherwise.
func (c *Classifier) Sentiment(text string) float64 {
	var pos, neg int
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if contains(positiveWords, w) {
			pos++
		}
		if contains(negativeWords, w) {
			neg++
		}
	}

	r := c.float()
	switch {
	case pos > neg:
		return r*0.5 + 0.3
	case neg > pos:
		return -(r*0.5 + 0.3)
	default:
		return (r - 0.5) * 0.4
	}
}

func (c *Classifier) float() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

// Category buckets text by case-insensitive substring rules in the fixed
// order refunds, questions, feedback, falling back to general.
func Category(text string) social.Category {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		if containsAny(lower, rule.triggers) {
			return rule.category
		}
	}
	return social.CategoryGeneral
}

// Priority returns high for any urgent word, medium for any medium word,
// low otherwise.
func Priority(text string) social.Priority {
	lower := strings.ToLower(text)
	if containsAny(lower, urgentWords) {
		return social.PriorityHigh
	}
	if containsAny(lower, mediumWords) {
		return social.PriorityMedium
	}
	return social.PriorityLow
}

func contains(list []string, word string) bool {
	for _, w := range list {
		if w == word {
			return true
		}
	}
	return false
}

func containsAny(text string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Mood labels a sentiment score for display.
func Mood(sentiment float64) string {
	switch {
	case sentiment > 0.2:
		return "positive"
	case sentiment < -0.2:
		return "negative"
	default:
		return "neutral"
	}
}
