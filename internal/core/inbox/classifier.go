package inbox

import (
	"strings"
	"unicode"
)

// Classification is the result of running the classifier over a message
type Classification struct {
	Kind     Kind
	Category Category
	// Boost is added to the sender's priority
	Boost int
}

var defaultKeywords = map[Category][]string{
	CategoryUrgent: {
		"urgent", "asap", "critical", "emergency", "immediately",
		"blocker", "blocking", "outage", "production down",
	},
	CategoryCompleted: {
		"completed", "complete", "done", "finished", "resolved",
		"merged", "shipped", "fixed",
	},
	CategoryTasks: {
		"task", "todo", "implement", "assign", "assigned", "please",
		"review", "deploy", "build", "refactor", "write",
	},
	CategoryQuestions: {
		"question", "how do", "how to", "can you", "could you",
		"what", "why", "which", "clarify",
	},
}

var kindKeywords = []struct {
	kind     Kind
	keywords []string
}{
	{KindError, []string{"error", "failed", "failure", "exception", "panic", "crash", "broken"}},
	{KindStatus, []string{"status", "progress", "update", "working on", "started", "eta"}},
}

// Classifier sorts messages into inbox categories by keyword matching
type Classifier struct {
	keywords map[Category][]string
}

// NewClassifier returns a classifier using the built-in keyword lists plus
// any extra keywords per category.
func NewClassifier(extra map[Category][]string) *Classifier {
	kw := make(map[Category][]string, len(defaultKeywords))
	for cat, words := range defaultKeywords {
		kw[cat] = append([]string(nil), words...)
	}
	for cat, words := range extra {
		for _, w := range words {
			if n := strings.TrimSpace(normalize(w)); n != "" {
				kw[cat] = append(kw[cat], n)
			}
		}
	}
	return &Classifier{keywords: kw}
}

// Classify returns the kind, category and priority boost for msg.
// Rules are evaluated in a fixed order: urgent, completed, tasks,
// questions, then information as the fallback.
func (c *Classifier) Classify(msg Message) Classification {
	text := normalize(msg.Subject + " " + msg.Content)
	hasQuestionMark := strings.Contains(msg.Subject+msg.Content, "?")

	result := Classification{
		Kind:     c.kind(msg, text, hasQuestionMark),
		Category: CategoryInformation,
	}

	switch {
	case msg.Priority == PriorityUrgent || c.match(CategoryUrgent, text):
		result.Category = CategoryUrgent
		result.Boost = 1
	case c.match(CategoryCompleted, text):
		result.Category = CategoryCompleted
	case msg.Type == TypeTaskUpdate || c.match(CategoryTasks, text):
		result.Category = CategoryTasks
	case hasQuestionMark || c.match(CategoryQuestions, text):
		result.Category = CategoryQuestions
	}

	return result
}

func (c *Classifier) kind(msg Message, text string, question bool) Kind {
	if c.match(CategoryCompleted, text) {
		return KindCompletion
	}
	for _, kk := range kindKeywords {
		if containsAny(text, kk.keywords) {
			return kk.kind
		}
	}
	switch {
	case msg.Type == TypeTaskUpdate:
		return KindStatus
	case c.match(CategoryTasks, text):
		return KindTask
	case question || c.match(CategoryQuestions, text):
		return KindQuestion
	case msg.Type == TypeSystem:
		return KindStatus
	}
	return KindGeneral
}

func (c *Classifier) match(cat Category, text string) bool {
	return containsAny(text, c.keywords[cat])
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, " "+k+" ") {
			return true
		}
	}
	return false
}

// normalize lowercases s and collapses every run of non-alphanumerics into
// a single space, padding both ends so whole-word lookups are substring
// checks on " word ".
func normalize(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return " " + strings.Join(fields, " ") + " "
}
