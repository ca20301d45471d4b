// Package task implements the assistant's actions on top of the script
// locator, runner, pump and confirmation gate. Every action is written once
// and reports through an event.Observer, whatever host is attached.
package task

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"strings"

	"shree/internal/event"
	"shree/internal/gate"
	"shree/internal/pump"
	"shree/internal/runner"
	"shree/internal/script"
)

var ErrNonZeroExit = errors.New("script exited with non-zero status")

// MetadataPrompt is asked before every uninstall.
const MetadataPrompt = "Would you like to clear all associated configuration files and metadata? Say yes or no."

// SearchURL is the query endpoint Search opens, with the query appended.
const SearchURL = "https://www.google.com/search?q="

type Resolver interface {
	Resolve(script.Name) (script.Descriptor, error)
}

type Launcher interface {
	Launch(runner.Spec) (*runner.Handle, error)
	Command(runner.Spec) []string
}

type Confirmer interface {
	Request(ctx context.Context, prompt string) (gate.Decision, error)
}

// Browser opens a URL for the user.
type Browser interface {
	Open(url string) error
}

type Runtime struct {
	Scripts  Resolver
	Runner   Launcher
	Pump     *pump.Pump
	Gate     Confirmer
	Observer event.Observer
	Browser  Browser
	// Elevate runs every script through the runner's elevation wrapper.
	Elevate bool
}

// Execute validates req and runs it. It is meant to be the body of a
// supervisor submission.
func (rt *Runtime) Execute(ctx context.Context, req Request) event.Result {
	if err := req.Validate(); err != nil {
		msg := userMessage(err)
		rt.notice(msg)
		return event.Failed(err, msg)
	}

	switch req.Action {
	case Install:
		return rt.Install(ctx, req.Package, req.Version)
	case Uninstall:
		return rt.Uninstall(ctx, req.Package, req.Version)
	case CheckGitConfig:
		return rt.CheckGitConfig(ctx)
	case GenerateSSHKey:
		return rt.GenerateSSHKey(ctx, req.Email)
	case DisplaySSHKey:
		return rt.DisplaySSHKey(ctx)
	case GuideGitHub:
		return rt.GuideGitHub(ctx)
	case CheckGitHubConnection:
		return rt.CheckGitHubConnection(ctx)
	case GitHubConnectionFlow:
		return rt.GitHubConnectionFlow(ctx)
	case StartBroker:
		return rt.StartBroker(ctx)
	case Search:
		return rt.Search(ctx, req.Query)
	}

	err := fmt.Errorf("%w: unhandled action %s", ErrBadArgument, req.Action)
	return event.Failed(err, "I didn't understand that command. Please try again.")
}

func (rt *Runtime) Install(ctx context.Context, id, version string) event.Result {
	pkg, _ := FindPackage(id)
	title := displayTitle(pkg, version)

	if pkg.Versioned {
		rt.notice(fmt.Sprintf("Okay, I will now attempt to install %s. This may require your sudo password.", title))
	} else {
		rt.notice(fmt.Sprintf("Installing %s now.", title))
	}
	for _, n := range pkg.BeforeInstall {
		rt.notice(n)
	}

	res := rt.run(script.PackageInstaller, args("install", id, version)...)
	if !res.Success {
		return res
	}

	switch {
	case pkg.Installed != "":
		res.Message = pkg.Installed
	case pkg.Versioned:
		res.Message = fmt.Sprintf("%s installed successfully.", title)
	default:
		res.Message = fmt.Sprintf("%s has been installed successfully.", title)
	}
	rt.notice(res.Message)
	for _, n := range pkg.AfterInstall {
		rt.notice(n)
	}
	return res
}

// Uninstall asks whether to clear the package's metadata and passes the
// answer to the installer script as its trailing argument.
func (rt *Runtime) Uninstall(ctx context.Context, id, version string) event.Result {
	pkg, _ := FindPackage(id)
	title := displayTitle(pkg, version)

	if pkg.Versioned {
		rt.notice(fmt.Sprintf("Okay, I will now attempt to uninstall %s. This may require your sudo password.", title))
	} else {
		rt.notice(fmt.Sprintf("Uninstalling %s now.", title))
	}

	decision, err := rt.Gate.Request(ctx, MetadataPrompt)
	if err != nil {
		// decision already holds the gate's default
		log.Warn("Metadata confirmation unavailable, using default", "err", err, "decision", decision)
	}
	log.Info("Metadata decision", "task", "uninstall "+id, "decision", decision)

	res := rt.run(script.PackageInstaller, append(args("uninstall", id, version), decision.Arg())...)
	if !res.Success {
		return res
	}

	res.Message = fmt.Sprintf("%s has been uninstalled successfully.", title)
	rt.notice(res.Message)
	return res
}

func (rt *Runtime) CheckGitConfig(ctx context.Context) event.Result {
	rt.notice("Checking your Git user configuration.")
	return rt.run(script.GitUtils, "check_config")
}

// GenerateSSHKey creates a key commented with email, then shows it.
func (rt *Runtime) GenerateSSHKey(ctx context.Context, email string) event.Result {
	rt.notice("Generating and displaying your SSH key now.")
	if res := rt.run(script.GitUtils, "gen_ssh", email); !res.Success {
		return res
	}
	return rt.run(script.GitUtils, "display_ssh")
}

func (rt *Runtime) DisplaySSHKey(ctx context.Context) event.Result {
	return rt.run(script.GitUtils, "display_ssh")
}

func (rt *Runtime) GuideGitHub(ctx context.Context) event.Result {
	rt.notice("I will now guide you on how to add your SSH key to GitHub.")
	return rt.run(script.GitUtils, "guide_github")
}

func (rt *Runtime) CheckGitHubConnection(ctx context.Context) event.Result {
	rt.notice("Checking your SSH connection to GitHub.")
	return rt.run(script.GitUtils, "check_conn")
}

func (rt *Runtime) GitHubConnectionFlow(ctx context.Context) event.Result {
	rt.notice("Starting the GitHub connection setup flow.")
	return rt.run(script.GitUtils, "do_github_connection_flow")
}

func (rt *Runtime) StartBroker(ctx context.Context) event.Result {
	rt.notice("Attempting to start Zookeeper and Kafka Broker.")

	res := rt.run(script.BrokerUtils, "start")
	if res.Success {
		res.Message = "Zookeeper and Kafka Broker started successfully."
		rt.notice(res.Message)
	} else if res.HasExitCode() {
		rt.notice("Failed to start Zookeeper and Kafka Broker. Please check the logs for details.")
	}
	return res
}

func (rt *Runtime) Search(_ context.Context, query string) event.Result {
	query = strings.TrimSpace(query)
	rt.notice(fmt.Sprintf("Searching the web for %s.", query))

	if rt.Browser == nil {
		err := errors.New("no browser configured")
		return event.Failed(err, "I can't open a browser here.")
	}
	if err := rt.Browser.Open(SearchURL + url.QueryEscape(query)); err != nil {
		log.Error("Open browser", "err", err)
		msg := "I couldn't open the browser. Please check the logs."
		rt.notice(msg)
		return event.Failed(err, msg)
	}
	return event.Done(fmt.Sprintf("Opened a search for %s.", query))
}

// run resolves, launches and pumps one script invocation. Every failure is
// folded into the returned Result and announced.
func (rt *Runtime) run(name script.Name, argv ...string) event.Result {
	desc, err := rt.Scripts.Resolve(name)
	if err != nil {
		log.Error("Resolve script", "script", name, "err", err)
		msg := fmt.Sprintf("The script, %s, was not found. Please ensure it is in the correct location and the .env file is configured.", name)
		rt.notice(msg)
		return event.Failed(err, msg)
	}

	spec := runner.Spec{Path: desc.Path, Args: argv, Elevate: rt.Elevate}
	cmdline := strings.Join(rt.Runner.Command(spec), " ")

	h, err := rt.Runner.Launch(spec)
	if err != nil {
		log.Error("Launch script", "script", name, "err", err)
		msg := fmt.Sprintf("An unexpected error occurred while running %s. Please check the logs.", name)
		rt.notice(msg)
		return event.Failed(err, msg)
	}

	label := name.String() + " " + strings.Join(argv, " ")
	res := rt.Pump.Run(h, func(o event.Output) {
		o.Task = label
		if rt.Observer != nil {
			rt.Observer.OnOutput(o)
		}
	})

	switch {
	case res.Success:
		log.Info("Script finished", "script", name, "args", argv)
	case res.HasExitCode():
		log.Error("Script failed", "script", name, "cmd", cmdline, "code", res.ExitCode)
		res.Err = fmt.Errorf("%w: %s returned %d", ErrNonZeroExit, cmdline, res.ExitCode)
		res.Message = fmt.Sprintf("There was an error running %s. The command '%s' failed. Please check the logs for details.", name, cmdline)
		rt.notice(res.Message)
	default:
		log.Error("Script terminated abnormally", "script", name, "err", res.Err)
		res.Message = fmt.Sprintf("An unexpected error occurred while running %s. Please check the logs.", name)
		rt.notice(res.Message)
	}

	return res
}

func (rt *Runtime) notice(text string) {
	if rt.Observer != nil {
		rt.Observer.OnNotice(text)
	}
}

func args(verb, id, version string) []string {
	out := []string{verb, id}
	if version != "" {
		out = append(out, version)
	}
	return out
}

func displayTitle(pkg Package, version string) string {
	if version == "" {
		return pkg.Title
	}
	return fmt.Sprintf("%s version %s", pkg.Title, version)
}

func userMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrBadArgument.Error()+": ")
}
