package llm

import (
	"fmt"
	"strings"
)

// bulletRules are the per-kind output constraints.
var bulletRules = map[Kind]struct {
	count    int
	maxWords int
}{
	KindChannel: {count: 5, maxWords: 30},
	KindProject: {count: 6, maxWords: 35},
	KindIssue:   {count: 6, maxWords: 40},
}

const responseFormat = `Respond with JSON only, using exactly this shape:
{"bullets":[{"text":"...","link":""}]}`

func channelSystemPrompt(rules string) string {
	return `You write short digests of team chat conversations.

` + rules + `
- Cover decisions, technical updates, problems and action items.
- Mention who said something when it matters.

Order of importance:
1. Decisions made or still needed
2. Technical updates and problems
3. Progress and blockers
4. Action items and deadlines
5. Announcements

` + responseFormat
}

func projectSystemPrompt(rules, project string, channels []string) string {
	tagged := make([]string, len(channels))
	for i, ch := range channels {
		tagged[i] = "#" + ch
	}
	return fmt.Sprintf(`You write a project digest for PROJECT %s.
The messages come from %d channels: %s.

%s
- Start one bullet with an overall project status.
- Prefix bullets with the source channel when it helps, e.g. "[#hardware] board rev C approved".
- Focus on project impact: milestones, cross-team dependencies, design decisions, resource gaps, schedule changes and risks.

%s`, project, len(channels), strings.Join(tagged, ", "), rules, responseFormat)
}

func issueSystemPrompt(rules string) string {
	return `You analyze chat messages from hardware and software teams for technical issues.

` + rules + `
- Name the kind of each issue (bug, failure, performance, hardware, firmware, ...).
- Mark state with 🔴 new, 🟡 investigating or 🟢 resolved.
- Call out critical or blocking issues first.
- Track what was tried and whether it worked.

` + responseFormat
}

// buildPrompt constructs the system and user prompts for a summary request.
func buildPrompt(req SummaryRequest) (system string, user string) {
	kind := req.Kind
	if _, ok := bulletRules[kind]; !ok {
		kind = KindChannel
	}
	r := bulletRules[kind]
	rules := fmt.Sprintf("Rules:\n- Write exactly %d bullets.\n- Keep each bullet to %d words or fewer.", r.count, r.maxWords)

	var intro string
	switch kind {
	case KindProject:
		system = projectSystemPrompt(rules, req.Project, req.Channels)
		intro = "Summarize these project messages:"
	case KindIssue:
		system = issueSystemPrompt(rules)
		intro = "Analyze these messages for technical issues:"
	default:
		system = channelSystemPrompt(rules)
		intro = "Summarize these team messages:"
	}

	if p := strings.TrimSpace(req.CustomPrompt); p != "" {
		system += "\n\nAdditional instructions from the reader (keep the rules and JSON shape above):\n" + p
	}

	var sb strings.Builder
	sb.WriteString(intro)
	sb.WriteString("\n\n")
	sb.WriteString(strings.Join(req.Lines, "\n"))
	if kind == KindIssue && (len(req.IssueTypes) > 0 || len(req.Priorities) > 0) {
		sb.WriteString("\n\nDetected issue context:\n")
		fmt.Fprintf(&sb, "- Issue types: %s\n", strings.Join(req.IssueTypes, ", "))
		fmt.Fprintf(&sb, "- Priorities: %s", strings.Join(req.Priorities, ", "))
	}
	user = sb.String()
	return
}

// maxTokens sizes the response budget per kind.
func maxTokens(kind Kind) int {
	switch kind {
	case KindIssue:
		return 768
	case KindProject:
		return 640
	default:
		return 512
	}
}
