package task

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrBadArgument = errors.New("bad argument")

// Action is one of the administrative actions the assistant knows.
type Action int

const (
	Unknown Action = iota
	Install
	Uninstall
	CheckGitConfig
	GenerateSSHKey
	DisplaySSHKey
	GuideGitHub
	CheckGitHubConnection
	GitHubConnectionFlow
	StartBroker
	Search
)

var actionNames = map[Action]string{
	Unknown:               "unknown",
	Install:               "install",
	Uninstall:             "uninstall",
	CheckGitConfig:        "check git config",
	GenerateSSHKey:        "generate ssh key",
	DisplaySSHKey:         "display ssh key",
	GuideGitHub:           "guide github connection",
	CheckGitHubConnection: "check github connection",
	GitHubConnectionFlow:  "do github connection",
	StartBroker:           "start kafka",
	Search:                "search",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Package describes one piece of software the installer script handles.
type Package struct {
	// ID is the argument the installer script expects.
	ID    string
	Title string
	// Aliases are the phrases a user says for it, most specific first.
	Aliases []string
	// Versioned packages take a version argument after the ID.
	Versioned bool
	// BeforeInstall and AfterInstall are extra announcements around a
	// successful install.
	BeforeInstall []string
	AfterInstall  []string
	// Installed overrides the default "<Title> has been installed
	// successfully." notice.
	Installed string
}

// JDKVersions are the OpenJDK releases the installer script supports.
var JDKVersions = []string{"11", "17", "21"}

var catalog = []Package{
	{ID: "git", Title: "Git", Aliases: []string{"git"}},
	{
		ID:        "jdk",
		Title:     "OpenJDK",
		Aliases:   []string{"java", "jdk"},
		Versioned: true,
		AfterInstall: []string{
			"Environment variables for Java are typically set by the system after installation, or you might need to restart your terminal.",
		},
	},
	{ID: "vscode", Title: "Visual Studio Code", Aliases: []string{"visual studio code", "vs code", "vscode"}},
	{
		ID:            "android_studio",
		Title:         "Android Studio",
		Aliases:       []string{"android studio"},
		BeforeInstall: []string{"This will download a large file and may take a while."},
		Installed:     "Android Studio installation process completed. Remember to log out and log back in for KVM group changes to take effect.",
	},
	{ID: "neovim", Title: "Neovim", Aliases: []string{"neovim"}},
	{ID: "neofetch", Title: "Neofetch", Aliases: []string{"neofetch"}},
	{ID: "snap", Title: "Snapd", Aliases: []string{"snapd", "snap"}},
	{
		ID:      "wireshark",
		Title:   "Wireshark",
		Aliases: []string{"wireshark"},
		AfterInstall: []string{
			"Remember to log out and log back in for group changes to take effect and to capture packets without sudo.",
		},
	},
	{
		ID:        "kafka",
		Title:     "Apache Kafka",
		Aliases:   []string{"apache kafka", "kafka"},
		Installed: "Apache Kafka installation process initiated. Please follow the instructions in the terminal to start Zookeeper and Kafka.",
	},
}

// Packages returns the catalog in its fixed order.
func Packages() []Package {
	return slices.Clone(catalog)
}

// FindPackage looks a package up by ID.
func FindPackage(id string) (Package, bool) {
	for _, p := range catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// Request is a fully parsed command, ready to run.
type Request struct {
	Action  Action
	Package string
	Version string
	Email   string
	Query   string
}

// Name is a short label for logs and results, e.g. "uninstall jdk 17".
func (r Request) Name() string {
	parts := []string{r.Action.String()}
	switch r.Action {
	case Install, Uninstall:
		parts = append(parts, r.Package)
		if r.Version != "" {
			parts = append(parts, r.Version)
		}
	case Search:
		parts = append(parts, r.Query)
	}
	return strings.Join(parts, " ")
}

// Missing names the argument a follow-up question can still supply: the
// JDK version or the e-mail for a new SSH key. It is empty otherwise.
func (r Request) Missing() string {
	switch r.Action {
	case Install, Uninstall:
		if pkg, ok := FindPackage(r.Package); ok && pkg.Versioned && r.Version == "" {
			return "version"
		}
	case GenerateSSHKey:
		if r.Email == "" {
			return "email"
		}
	}
	return ""
}

// Question asks the user for the argument Missing reports.
func (r Request) Question() string {
	switch r.Missing() {
	case "version":
		pkg, _ := FindPackage(r.Package)
		return fmt.Sprintf("Which %s version would you like to %s? I can handle %s.",
			pkg.Title, r.Action, strings.Join(JDKVersions, ", "))
	case "email":
		return "What email address should I use for the SSH key?"
	}
	return ""
}

// Validate checks the arguments before anything is launched. The error
// message is meant to be read to the user.
func (r Request) Validate() error {
	switch r.Action {
	case Unknown:
		return fmt.Errorf("%w: I didn't understand that command. Please try again.", ErrBadArgument)

	case Install, Uninstall:
		pkg, ok := FindPackage(r.Package)
		if !ok {
			return fmt.Errorf("%w: I don't know the package %q.", ErrBadArgument, r.Package)
		}
		if !pkg.Versioned {
			return nil
		}
		if r.Version == "" {
			return fmt.Errorf("%w: Which %s version would you like to %s? For example, say '%s java 17'. I can handle %s.",
				ErrBadArgument, pkg.Title, r.Action, r.Action, strings.Join(JDKVersions, ", "))
		}
		if !slices.Contains(JDKVersions, r.Version) {
			return fmt.Errorf("%w: The version %s is not a common LTS version I can %s. Please choose from %s.",
				ErrBadArgument, r.Version, r.Action, strings.Join(JDKVersions, ", "))
		}

	case GenerateSSHKey:
		if r.Email == "" {
			return fmt.Errorf("%w: To generate an SSH key, I need your email address for the key comment. Say 'generate ssh key for you@example.com'.", ErrBadArgument)
		}

	case Search:
		if strings.TrimSpace(r.Query) == "" {
			return fmt.Errorf("%w: What should I search for?", ErrBadArgument)
		}
	}
	return nil
}
