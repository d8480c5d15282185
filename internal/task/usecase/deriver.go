package usecase

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	accountdomain "taskmind-backend/internal/account/domain"
	"taskmind-backend/internal/task/domain"
	"taskmind-backend/pkg/ai"
)

// skipPatterns match machine-generated messages that never become tasks:
// verification codes, one-time passwords, and login/security alerts.
var skipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bverification code\b`),
	regexp.MustCompile(`(?i)\byour (one[- ]time|login|security) code\b`),
	regexp.MustCompile(`(?i)\b(otp|one[- ]time pass(word|code))\b`),
	regexp.MustCompile(`(?i)\b\d{4,8}\b is your\b`),
	regexp.MustCompile(`(?i)\bnew (sign[- ]?in|login) (to|on|from|detected)\b`),
	regexp.MustCompile(`(?i)\bsecurity alert\b`),
	regexp.MustCompile(`(?i)\bconfirm your (email|e-mail) address\b`),
	regexp.MustCompile(`(?i)\bpassword reset\b`),
}

// genericTitles are classifier outputs too vague to act on. They trigger a
// second extraction pass over the subject and body.
var genericTitles = map[string]bool{
	"reply email":     true,
	"reply to email":  true,
	"check email":     true,
	"read email":      true,
	"review email":    true,
	"follow up":       true,
	"follow up email": true,
	"respond":         true,
	"email":           true,
	"task":            true,
	"new task":        true,
}

// Deriver turns classification results into task drafts.
type Deriver struct{}

func NewDeriver() *Deriver {
	return &Deriver{}
}

// Derive produces one draft per non-skip result. A skip-pattern match on
// the source item short-circuits to no drafts at all. Results beyond the
// first share a multi-task group id.
func (d *Deriver) Derive(item *accountdomain.RawItem, results []ai.Result) []domain.TaskDraft {
	if item == nil || len(results) == 0 {
		return nil
	}
	if matchesSkipPattern(item.Subject) || matchesSkipPattern(item.Body) {
		return nil
	}

	kept := make([]ai.Result, 0, len(results))
	for _, res := range results {
		if res.Priority == ai.PrioritySkip {
			continue
		}
		kept = append(kept, res)
	}
	if len(kept) == 0 {
		return nil
	}

	groupID := ""
	if len(kept) > 1 {
		groupID = uuid.New().String()
	}

	drafts := make([]domain.TaskDraft, 0, len(kept))
	for i, res := range kept {
		title := res.Title
		if isGenericTitle(title) {
			title = extractTitle(item)
		}

		draft := domain.TaskDraft{
			Title:            title,
			Description:      res.Description,
			Priority:         domain.PriorityFromClassification(res.Priority),
			EstimatedMinutes: res.EstimatedMinutes,
			DueAt:            res.DueAt,
			Rationale:        res.Rationale,
			SourceItemID:     item.ExternalID,
			SourceSender:     item.Sender,
		}
		if groupID != "" {
			draft.GroupID = groupID
			draft.GroupIndex = i
			draft.GroupSize = len(kept)
		}
		drafts = append(drafts, draft)
	}
	return drafts
}

func matchesSkipPattern(text string) bool {
	for _, re := range skipPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func isGenericTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	t = strings.TrimRight(t, ".!")
	return t == "" || genericTitles[t]
}

// extractTitle picks a concrete title from the subject, falling back to the
// first informative body line.
func extractTitle(item *accountdomain.RawItem) string {
	if title := cleanSubject(item.Subject); title != "" {
		return title
	}
	for _, line := range strings.Split(item.Body, "\n") {
		line = strings.TrimSpace(line)
		if isInformativeLine(line) {
			return clip(line, 60)
		}
	}
	if item.SenderName != "" {
		return "Follow up with " + item.SenderName
	}
	return "Follow up"
}

var subjectPrefixRe = regexp.MustCompile(`(?i)^((re|fwd?|fw)\s*:\s*)+`)

func cleanSubject(subject string) string {
	s := strings.TrimSpace(subjectPrefixRe.ReplaceAllString(subject, ""))
	if s == "" {
		return ""
	}
	return clip(s, 60)
}

// isInformativeLine rejects greetings, signatures, and filler so the body
// fallback lands on a line worth acting on.
func isInformativeLine(line string) bool {
	if len(line) < 10 {
		return false
	}
	lower := strings.ToLower(line)
	for _, greeting := range []string{"hi ", "hi,", "hello", "dear ", "hey ", "thanks", "thank you", "regards", "best,", "cheers", "sincerely"} {
		if strings.HasPrefix(lower, greeting) {
			return false
		}
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 5
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max]))
}
