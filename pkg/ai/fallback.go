package ai

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fallback is the deterministic classifier used when the remote backend is
// unavailable or keeps failing. Keyword precedence: urgent > casual/social >
// work indicators > default normal. Time phrases are resolved against a fixed
// local timezone offset.
type Fallback struct {
	loc *time.Location
	now func() time.Time
}

func NewFallback(loc *time.Location) *Fallback {
	if loc == nil {
		loc = time.UTC
	}
	return &Fallback{loc: loc, now: time.Now}
}

var urgentKeywords = []string{
	"urgent", "asap", "emergency", "immediately", "critical",
	"right away", "eod", "overdue", "as soon as possible",
}

var casualKeywords = []string{
	"lunch", "coffee", "dinner", "party", "birthday", "hangout",
	"catch up", "movie", "drinks", "weekend plans",
}

var workKeywords = []string{
	"meeting", "report", "review", "project", "deadline", "sync",
	"standup", "client", "invoice", "presentation", "submit", "proposal",
}

var (
	relativeRe = regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(minutes?|mins?|min|hours?|hrs?|hr|days?)\b`)
	todayRe    = regexp.MustCompile(`(?i)\btoday\b`)
	tomorrowRe = regexp.MustCompile(`(?i)\btomorrow\b`)
	weekdayRe  = regexp.MustCompile(`(?i)\b(?:on\s+|by\s+|next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	clockRe    = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

	clauseRe = regexp.MustCompile(`[.;,\n]+`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

// Default time-of-day applied when a day phrase carries no explicit time.
const (
	defaultMorningHour = 9  // tomorrow, weekday names
	defaultTodayHour   = 17 // "today" means end of working day
)

type timeMatch struct {
	at     time.Time
	phrase string
}

// Classify produces a single deterministic result for the whole item.
func (f *Fallback) Classify(in Input) Result {
	ref := f.ref(in)
	text := in.Subject + "\n" + in.Body

	m := f.extractTime(text, ref)

	prio, reason := keywordPriority(text)
	var due *time.Time
	if m != nil {
		due = &m.at
		// A deadline landing within the next half hour outranks keyword tiers.
		if m.at.After(ref) && m.at.Sub(ref) <= 30*time.Minute {
			prio = PriorityUrgent
			reason = fmt.Sprintf("deadline %q is imminent", m.phrase)
		}
	}

	title := in.Subject
	if strings.TrimSpace(title) == "" {
		title = firstClause(in.Body)
	}
	phrase := ""
	if m != nil {
		phrase = m.phrase
	}

	return Result{
		Priority:         prio,
		Title:            cleanTitle(title, phrase),
		Description:      strings.TrimSpace(in.Body),
		DueAt:            due,
		EstimatedMinutes: DefaultEstimateMinutes,
		Rationale:        "fallback: " + reason,
	}
}

// ClassifyMulti splits the item into several results when distinct deadlines
// are found in separate clauses; otherwise it degrades to Classify.
func (f *Fallback) ClassifyMulti(in Input) []Result {
	ref := f.ref(in)
	body := in.Body
	if strings.TrimSpace(body) == "" {
		body = in.Subject
	}

	type clauseHit struct {
		clause string
		match  *timeMatch
	}

	var hits []clauseHit
	seen := map[int64]bool{}
	for _, clause := range clauseRe.Split(body, -1) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		m := f.extractTime(clause, ref)
		if m == nil {
			continue
		}
		key := m.at.Unix() / 60
		if seen[key] {
			continue
		}
		seen[key] = true
		hits = append(hits, clauseHit{clause: clause, match: m})
	}

	if len(hits) < 2 {
		return []Result{f.Classify(in)}
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		prio, reason := keywordPriority(h.clause)
		if h.match.at.After(ref) && h.match.at.Sub(ref) <= 30*time.Minute {
			prio = PriorityUrgent
			reason = fmt.Sprintf("deadline %q is imminent", h.match.phrase)
		}
		due := h.match.at
		results = append(results, Result{
			Priority:         prio,
			Title:            cleanTitle(h.clause, h.match.phrase),
			Description:      h.clause,
			DueAt:            &due,
			EstimatedMinutes: DefaultEstimateMinutes,
			Rationale:        "fallback: " + reason,
		})
	}
	return results
}

// ExtractDue exposes the time extractor so normalization can re-parse text
// when the remote classifier returned an invalid timestamp.
func (f *Fallback) ExtractDue(text string, ref time.Time) *time.Time {
	if m := f.extractTime(text, ref); m != nil {
		return &m.at
	}
	return nil
}

func (f *Fallback) ref(in Input) time.Time {
	if !in.ReceivedAt.IsZero() {
		return in.ReceivedAt.In(f.loc)
	}
	return f.now().In(f.loc)
}

func (f *Fallback) extractTime(text string, ref time.Time) *timeMatch {
	ref = ref.In(f.loc)

	// Relative offsets: "in 10 minutes", "in 2 hours", "in 3 days".
	if m := relativeRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			var d time.Duration
			switch {
			case strings.HasPrefix(strings.ToLower(m[2]), "min"):
				d = time.Duration(n) * time.Minute
			case strings.HasPrefix(strings.ToLower(m[2]), "h"):
				d = time.Duration(n) * time.Hour
			default:
				d = time.Duration(n) * 24 * time.Hour
			}
			at := ref.Add(d)
			return &timeMatch{at: at, phrase: m[0]}
		}
	}

	hour, min, hasClock, clockPhrase := parseClock(text)

	if m := tomorrowRe.FindString(text); m != "" {
		day := ref.AddDate(0, 0, 1)
		if !hasClock {
			hour, min = defaultMorningHour, 0
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, f.loc)
		return &timeMatch{at: at, phrase: joinPhrase(m, clockPhrase)}
	}

	if m := weekdayRe.FindStringSubmatch(text); m != nil {
		target := weekdays[strings.ToLower(m[1])]
		ahead := (int(target) - int(ref.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		day := ref.AddDate(0, 0, ahead)
		if !hasClock {
			hour, min = defaultMorningHour, 0
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, f.loc)
		return &timeMatch{at: at, phrase: joinPhrase(m[0], clockPhrase)}
	}

	if m := todayRe.FindString(text); m != "" {
		if !hasClock {
			hour, min = defaultTodayHour, 0
		}
		at := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, min, 0, 0, f.loc)
		return &timeMatch{at: at, phrase: joinPhrase(m, clockPhrase)}
	}

	// A bare clock time means today, or tomorrow once it has passed.
	if hasClock {
		at := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, min, 0, 0, f.loc)
		if at.Before(ref) {
			at = at.AddDate(0, 0, 1)
		}
		return &timeMatch{at: at, phrase: clockPhrase}
	}

	return nil
}

func parseClock(text string) (hour, min int, ok bool, phrase string) {
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false, ""
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		min, _ = strconv.Atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || min > 59 {
		return 0, 0, false, ""
	}
	return hour, min, true, m[0]
}

func keywordPriority(text string) (Priority, string) {
	lower := strings.ToLower(text)
	for _, k := range urgentKeywords {
		if strings.Contains(lower, k) {
			return PriorityUrgent, fmt.Sprintf("urgent keyword %q", k)
		}
	}
	for _, k := range casualKeywords {
		if strings.Contains(lower, k) {
			return PriorityNormal, fmt.Sprintf("casual keyword %q", k)
		}
	}
	for _, k := range workKeywords {
		if strings.Contains(lower, k) {
			return PriorityImportant, fmt.Sprintf("work keyword %q", k)
		}
	}
	return PriorityNormal, "no keyword match"
}

func firstClause(text string) string {
	for _, clause := range clauseRe.Split(text, -1) {
		if strings.TrimSpace(clause) != "" {
			return strings.TrimSpace(clause)
		}
	}
	return strings.TrimSpace(text)
}

func cleanTitle(title, timePhrase string) string {
	for _, prefix := range []string{"re:", "fwd:", "fw:"} {
		for strings.HasPrefix(strings.ToLower(title), prefix) {
			title = strings.TrimSpace(title[len(prefix):])
		}
	}
	if timePhrase != "" {
		for _, p := range strings.Split(timePhrase, "|") {
			if idx := strings.Index(strings.ToLower(title), strings.ToLower(p)); idx >= 0 {
				title = title[:idx] + title[idx+len(p):]
			}
		}
	}
	title = strings.Trim(strings.Join(strings.Fields(title), " "), " .,;:-")
	if title == "" {
		title = "Follow up"
	}
	r := []rune(title)
	if len(r) > 60 {
		title = strings.TrimSpace(string(r[:60]))
	}
	return title
}

func joinPhrase(a, b string) string {
	if b == "" {
		return a
	}
	return a + "|" + b
}
