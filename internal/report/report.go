// Package report renders a markdown digest of the inbox.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/Supernova/internal/aggregate"
	"github.com/TobiSchelling/Supernova/internal/credentials"
	"github.com/TobiSchelling/Supernova/internal/social"
)

const defaultAttentionLimit = 10

// Input is everything a digest is built from.
type Input struct {
	Comments    []social.Comment
	Stats       aggregate.Stats
	Platforms   map[social.Platform]credentials.Status
	GeneratedAt time.Time
	// Limit caps the "Needs attention" list; 0 means the default.
	Limit int
}

// Digest is a composed report.
type Digest struct {
	GeneratedAt time.Time
	TLDR        string
	Body        string
	Total       int
	Open        int
}

// Markdown returns the full digest as one markdown document.
func (d Digest) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Supernova digest %s\n\n", d.GeneratedAt.Format("2006-01-02 15:04 MST"))
	b.WriteString("## TL;DR\n\n")
	b.WriteString(d.TLDR)
	b.WriteString("\n\n")
	b.WriteString(d.Body)
	b.WriteString("\n")
	return b.String()
}

// Compose builds the digest.
func Compose(in Input) Digest {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultAttentionLimit
	}
	return Digest{
		GeneratedAt: in.GeneratedAt,
		TLDR:        tldr(in),
		Body:        assembleBody(in, limit),
		Total:       in.Stats.Total,
		Open:        in.Stats.Unresponded,
	}
}

func tldr(in Input) string {
	if in.Stats.Total == 0 {
		return "- No comments synced yet."
	}
	bullets := []string{
		fmt.Sprintf("- %d comments, %d awaiting a response.", in.Stats.Total, in.Stats.Unresponded),
	}
	if in.Stats.HighPriority > 0 {
		bullets = append(bullets, fmt.Sprintf("- %d high priority comments.", in.Stats.HighPriority))
	}
	if n := in.Stats.ByCategory[social.CategoryRefunds]; n > 0 {
		bullets = append(bullets, fmt.Sprintf("- %d refund requests.", n))
	}
	bullets = append(bullets, fmt.Sprintf("- Overall mood is %s (average sentiment %.2f).",
		overallMood(in.Stats), in.Stats.AvgSentiment))
	return strings.Join(bullets, "\n")
}

func overallMood(st aggregate.Stats) string {
	best, count := "neutral", -1
	for _, mood := range []string{"positive", "neutral", "negative"} {
		if st.ByMood[mood] > count {
			best, count = mood, st.ByMood[mood]
		}
	}
	return best
}

func assembleBody(in Input, limit int) string {
	sections := []string{
		platformSection(in),
		categorySection(in.Stats),
	}
	if s := attentionSection(in.Comments, limit); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n---\n\n")
}

func platformSection(in Input) string {
	lines := []string{"## Platforms", ""}
	for _, p := range social.Platforms {
		st, ok := in.Platforms[p]
		if !ok || !st.Connected {
			lines = append(lines, fmt.Sprintf("- **%s**: not connected", p.Title()))
			continue
		}
		line := fmt.Sprintf("- **%s**: %d accounts, %d comments", p.Title(), st.AccountCount, in.Stats.ByPlatform[p])
		if st.LastSync != nil {
			line += ", last sync " + st.LastSync.Format(time.RFC3339)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func categorySection(st aggregate.Stats) string {
	lines := []string{"## Categories", "", "| Category | Comments |", "| --- | --- |"}
	for _, c := range []social.Category{social.CategoryRefunds, social.CategoryQuestions, social.CategoryFeedback, social.CategoryGeneral} {
		lines = append(lines, fmt.Sprintf("| %s | %d |", c, st.ByCategory[c]))
	}
	return strings.Join(lines, "\n")
}

var priorityRank = map[social.Priority]int{social.PriorityHigh: 0, social.PriorityMedium: 1, social.PriorityLow: 2}

// attentionSection lists open comments, most urgent first, newest first
// within a priority.
func attentionSection(comments []social.Comment, limit int) string {
	var open []social.Comment
	for _, c := range comments {
		if !c.Responded && c.Priority != social.PriorityLow {
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		return ""
	}
	sort.SliceStable(open, func(i, j int) bool {
		if priorityRank[open[i].Priority] != priorityRank[open[j].Priority] {
			return priorityRank[open[i].Priority] < priorityRank[open[j].Priority]
		}
		return open[i].Timestamp.After(open[j].Timestamp)
	})
	if len(open) > limit {
		open = open[:limit]
	}

	lines := []string{"## Needs attention", ""}
	for _, c := range open {
		author := c.Author
		if author == "" {
			author = "Anonymous"
		}
		line := fmt.Sprintf("- **[%s]** %s on %s: %q", c.Priority, author, c.Platform.Title(), excerpt(c.Text, 140))
		if link := firstNonEmpty(c.CommentURL, c.PostURL); link != "" {
			line += fmt.Sprintf(" ([open](%s))", link)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func excerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
