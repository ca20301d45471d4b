package nlu

import (
	"regexp"
	"strings"

	"shree/internal/task"
)

type Kind int

const (
	Unknown Kind = iota
	Command
	Quit
	History
)

func (k Kind) String() string {
	switch k {
	case Command:
		return "command"
	case Quit:
		return "quit"
	case History:
		return "history"
	default:
		return "unknown"
	}
}

// Intent is what an utterance asks for.
type Intent struct {
	Kind    Kind
	Request task.Request
	// Text is the normalized utterance.
	Text string
}

type rule struct {
	phrases []string
	action  task.Action
	pkg     string
}

var (
	versionRe = regexp.MustCompile(`\b(\d{1,2})\b`)
	emailRe   = regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	searchRe  = regexp.MustCompile(`^(?:please\s+)?(?:search(?:\s+the\s+web)?(?:\s+for)?|google|look\s+up)\s+(.+)$`)
	quitWords = map[string]bool{"exit": true, "quit": true, "goodbye": true, "bye": true}
)

// rules is checked in order and the first match wins, so every uninstall
// phrase comes before the install phrase it contains.
var rules = buildRules()

func buildRules() []rule {
	var out []rule
	for _, p := range task.Packages() {
		out = append(out, rule{phrases: prefixed("uninstall ", p.Aliases), action: task.Uninstall, pkg: p.ID})
	}
	for _, p := range task.Packages() {
		out = append(out, rule{phrases: prefixed("install ", p.Aliases), action: task.Install, pkg: p.ID})
	}
	return append(out,
		rule{phrases: []string{"check git config", "check git configuration"}, action: task.CheckGitConfig},
		rule{phrases: []string{"generate ssh key", "create ssh key"}, action: task.GenerateSSHKey},
		rule{phrases: []string{"show ssh key", "display ssh key"}, action: task.DisplaySSHKey},
		rule{phrases: []string{"guide github connection", "github ssh guide"}, action: task.GuideGitHub},
		rule{phrases: []string{"check github connection", "check ssh connection"}, action: task.CheckGitHubConnection},
		rule{phrases: []string{"do github connection", "setup git configuration", "set up git"}, action: task.GitHubConnectionFlow},
		rule{phrases: []string{"run kafka", "start kafka"}, action: task.StartBroker},
	)
}

func prefixed(prefix string, aliases []string) []string {
	out := make([]string, len(aliases))
	for i, a := range aliases {
		out[i] = prefix + a
	}
	return out
}

// Phrases lists one canonical phrase per rule, for the fallback classifier.
func Phrases() []string {
	out := make([]string, 0, len(rules)+2)
	for _, r := range rules {
		out = append(out, r.phrases[0])
	}
	return append(out, "search for <query>", "exit")
}

// Normalize lowercases s and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Parse matches text against the fixed command table.
func Parse(text string) Intent {
	text = Normalize(text)
	in := Intent{Text: text}
	if text == "" {
		return in
	}

	if m := searchRe.FindStringSubmatch(text); m != nil {
		in.Kind = Command
		in.Request = task.Request{Action: task.Search, Query: strings.TrimRight(m[1], ".?!")}
		return in
	}

	for _, r := range rules {
		idx := matchAny(text, r.phrases)
		if idx < 0 {
			continue
		}
		in.Kind = Command
		in.Request = task.Request{Action: r.action, Package: r.pkg}

		switch r.action {
		case task.Install, task.Uninstall:
			if pkg, _ := task.FindPackage(r.pkg); pkg.Versioned {
				if m := versionRe.FindStringSubmatch(text[idx:]); m != nil {
					in.Request.Version = m[1]
				}
			}
		case task.GenerateSSHKey:
			in.Request.Email = strings.TrimRight(emailRe.FindString(text), ".")
		}
		return in
	}

	switch {
	case text == "history" || strings.Contains(text, "show history"):
		in.Kind = History
	case hasQuitWord(text):
		in.Kind = Quit
	}
	return in
}

// Fill completes req with the argument found in answer, the reply to
// req.Question().
func Fill(req task.Request, answer string) task.Request {
	text := Normalize(answer)
	switch req.Missing() {
	case "version":
		if m := versionRe.FindStringSubmatch(text); m != nil {
			req.Version = m[1]
		}
	case "email":
		req.Email = strings.TrimRight(emailRe.FindString(text), ".")
	}
	return req
}

func matchAny(text string, phrases []string) int {
	for _, p := range phrases {
		if i := strings.Index(text, p); i >= 0 {
			return i
		}
	}
	return -1
}

func hasQuitWord(text string) bool {
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if quitWords[w] {
			return true
		}
	}
	return false
}
