package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shree/internal/config"
	"shree/internal/event"
	"shree/internal/gate"
	"shree/internal/ipc"
	"shree/internal/nlu"
	"shree/internal/script"
	"shree/internal/supervisor"
)

type recorder struct {
	mu      sync.Mutex
	outputs []string
	notices []string
	prompts []string
	results []event.Result
}

func (r *recorder) OnOutput(o event.Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, o.Text)
}

func (r *recorder) OnNotice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, text)
}

func (r *recorder) OnConfirmationRequested(prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
}

func (r *recorder) OnTaskCompleted(res event.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) snapshot() (notices, outputs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...), append([]string(nil), r.outputs...)
}

type analyzer struct{ cls nlu.Classification }

func (a analyzer) Analyze(context.Context, string) (nlu.Classification, error) {
	return a.cls, nil
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pkgInstaller.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\n"+body+"\n"), 0o644))
	return path
}

func newApp(t *testing.T, installer string, opts Options) (*App, *recorder) {
	t.Helper()
	dir := t.TempDir()

	v := viper.New()
	v.Set(script.PackageInstaller.Key(), writeScript(t, dir, installer))

	cfg := &config.Config{
		Runner:  config.RunnerConfig{Interpreter: "bash"},
		Confirm: config.ConfirmConfig{Timeout: 5 * time.Second, OnTimeout: "no"},
		History: config.HistoryConfig{Path: filepath.Join(dir, "history.log")},
		Browser: "true",
		Viper:   v,
	}

	a, err := New(context.Background(), cfg, opts)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	rec := &recorder{}
	a.Events.Add(rec)
	return a, rec
}

func TestHandleCommand(t *testing.T) {
	a, rec := newApp(t, `echo "$1 $2"`, Options{})

	o, err := a.Handle(context.Background(), "Install   Git\nplease")
	require.NoError(t, err)
	require.NotNil(t, o.Submission)
	assert.Equal(t, "install git", o.Submission.Name)

	res := o.Submission.Wait()
	assert.True(t, res.Success)

	notices, outputs := rec.snapshot()
	assert.Equal(t, []string{"install git"}, outputs)
	assert.Contains(t, notices, "Git has been installed successfully.")

	recs, err := a.History.Read()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Install Git please", recs[0].Text)
}

func TestHandleNonCommands(t *testing.T) {
	a, rec := newApp(t, `true`, Options{})
	ctx := context.Background()

	o, err := a.Handle(ctx, "make me a sandwich")
	require.NoError(t, err)
	assert.Nil(t, o.Submission)

	o, err = a.Handle(ctx, "show history")
	require.NoError(t, err)
	require.Len(t, o.History, 2)
	assert.Equal(t, "make me a sandwich", o.History[0].Text)

	o, err = a.Handle(ctx, "bye")
	require.NoError(t, err)
	assert.Equal(t, nlu.Quit, o.Intent.Kind)

	notices, _ := rec.snapshot()
	assert.Equal(t, []string{Unrecognized, Farewell}, notices)
}

func TestHandleBusy(t *testing.T) {
	a, rec := newApp(t, `sleep 0.5`, Options{})
	ctx := context.Background()

	first, err := a.Handle(ctx, "install neovim")
	require.NoError(t, err)

	_, err = a.Handle(ctx, "install neofetch")
	assert.ErrorIs(t, err, supervisor.ErrBusy)

	first.Submission.Wait()
	notices, _ := rec.snapshot()
	assert.Contains(t, notices, BusyNotice)
}

func TestHandleUsesAnalyzer(t *testing.T) {
	a, _ := newApp(t, `true`, Options{Analyzer: analyzer{cls: nlu.Classification{Command: "install snap"}}})

	o, err := a.Handle(context.Background(), "get me that snap thing")
	require.NoError(t, err)
	require.NotNil(t, o.Submission)
	assert.Equal(t, "install snap", o.Submission.Name)
	o.Submission.Wait()
}

func TestUninstallAnsweredRemotely(t *testing.T) {
	a, rec := newApp(t, `echo "$@"`, Options{})

	o, err := a.Handle(context.Background(), "uninstall git")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := a.Gate.Pending()
		return ok
	}, time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, a.answer("perhaps"), ErrBadAnswer)
	require.NoError(t, a.answer("yes"))

	assert.True(t, o.Submission.Wait().Success)
	_, outputs := rec.snapshot()
	assert.Equal(t, []string{"uninstall git yes"}, outputs)
}

func control(t *testing.T, a *App) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv, err := ipc.Listen(path, NewDaemon(a, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(cancel)
	return path
}

func request(t *testing.T, path string, req ipc.Request) []ipc.Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var replies []ipc.Reply
	require.NoError(t, ipc.Do(ctx, path, req, func(r ipc.Reply) {
		replies = append(replies, r)
	}))
	return replies
}

func TestDaemonRunStreamsUntilResult(t *testing.T) {
	a, _ := newApp(t, `echo one; echo two >&2`, Options{})
	path := control(t, a)

	replies := request(t, path, ipc.Request{Cmd: ipc.CmdRun, Text: "install neovim"})
	require.NotEmpty(t, replies)

	last := replies[len(replies)-1]
	assert.Equal(t, ipc.ReplyResult, last.Kind)
	assert.True(t, last.Success)
	require.NotNil(t, last.ExitCode)
	assert.Equal(t, 0, *last.ExitCode)

	var outputs []string
	for _, r := range replies {
		if r.Kind == ipc.ReplyOutput {
			outputs = append(outputs, r.Origin+":"+r.Text)
		}
	}
	assert.ElementsMatch(t, []string{"stdout:one", "stderr:two"}, outputs)
	assert.Equal(t, 1, a.Events.Len(), "reply observer is detached")
}

func TestDaemonStatusAnswerHistory(t *testing.T) {
	a, _ := newApp(t, `true`, Options{})
	path := control(t, a)

	replies := request(t, path, ipc.Request{Cmd: ipc.CmdStatus})
	require.Len(t, replies, 1)
	assert.Equal(t, "idle", replies[0].State)
	assert.Empty(t, replies[0].Pending)

	replies = request(t, path, ipc.Request{Cmd: ipc.CmdAnswer, Text: "yes"})
	require.Len(t, replies, 1)
	assert.Equal(t, ipc.ReplyError, replies[0].Kind)
	assert.Contains(t, replies[0].Text, gate.ErrNoPending.Error())

	replies = request(t, path, ipc.Request{Cmd: ipc.CmdRun, Text: "what"})
	require.Len(t, replies, 1)
	assert.Equal(t, Unrecognized, replies[0].Text)

	replies = request(t, path, ipc.Request{Cmd: ipc.CmdHistory})
	require.Len(t, replies, 1)
	assert.Len(t, replies[0].Lines, 1)

	replies = request(t, path, ipc.Request{Cmd: ipc.CmdTrigger})
	require.Len(t, replies, 1)
	assert.Equal(t, ErrNoMicrophone.Error(), replies[0].Text)
}

type speaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *speaker) Speak(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
	return nil
}

func TestSpeechSpeaksNoticesAndPrompts(t *testing.T) {
	sp := &speaker{}
	s := NewSpeech(sp, 8)

	s.OnOutput(event.Output{Text: "ignored"})
	s.OnNotice("hello")
	s.OnConfirmationRequested("clear it?")
	s.OnTaskCompleted(event.Result{Message: "quiet"})
	s.OnTaskCompleted(event.Failed(supervisor.ErrInternalFault, "oops"))
	s.Close()

	assert.Equal(t, []string{"hello", "clear it?", "oops"}, sp.lines)
}

func TestHistoryKeepsRawText(t *testing.T) {
	a, _ := newApp(t, `true`, Options{})

	_, err := a.Handle(context.Background(), "Generate SSH key for Me@Example.com")
	require.NoError(t, err)

	recs, err := a.History.Read()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Generate SSH key for Me@Example.com", recs[0].Text)
}

func TestFollowUpAsksForVersion(t *testing.T) {
	a, rec := newApp(t, `echo "$@"`, Options{})
	ctx := context.Background()

	o, err := a.Handle(ctx, "install java")
	require.NoError(t, err)
	assert.Nil(t, o.Submission)
	notices, _ := rec.snapshot()
	assert.Equal(t, []string{"Which OpenJDK version would you like to install? I can handle 11, 17, 21."}, notices)

	o, err = a.Handle(ctx, "Seventeen, I mean 17")
	require.NoError(t, err)
	require.NotNil(t, o.Submission)
	assert.Equal(t, "install jdk 17", o.Submission.Name)
	assert.True(t, o.Submission.Wait().Success)

	_, outputs := rec.snapshot()
	assert.Equal(t, []string{"install jdk 17"}, outputs)
}

func TestFollowUpWithoutAnswerDropsCommand(t *testing.T) {
	a, rec := newApp(t, `echo "$@"`, Options{})
	ctx := context.Background()

	_, err := a.Handle(ctx, "uninstall jdk")
	require.NoError(t, err)

	o, err := a.Handle(ctx, "banana")
	require.NoError(t, err)
	assert.Nil(t, o.Submission)
	notices, _ := rec.snapshot()
	assert.Equal(t, FollowUpFailed, notices[len(notices)-1])

	o, err = a.Handle(ctx, "17")
	require.NoError(t, err)
	assert.Nil(t, o.Submission, "the held command is gone")

	o, err = a.Handle(ctx, "install java")
	require.NoError(t, err)
	o, err = a.Handle(ctx, "exit")
	require.NoError(t, err)
	assert.Equal(t, nlu.Quit, o.Intent.Kind)
}

func TestSpeechIgnoresEventsAfterClose(t *testing.T) {
	b := event.NewBroadcaster()
	s := NewSpeech(&speaker{}, 1)
	b.Add(s)
	s.Close()

	assert.NotPanics(t, func() {
		b.OnNotice("late")
		b.OnConfirmationRequested("late?")
		b.OnTaskCompleted(event.Failed(supervisor.ErrInternalFault, "late"))
	})
}

func TestBusDoesNotStallOnSilentHub(t *testing.T) {
	var up websocket.Upgrader
	hold := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-hold
	}))
	defer srv.Close()
	defer close(hold)

	a, _ := newApp(t, `true`, Options{})
	a.cfg.Bus = config.BusConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Shard: "test"}
	_, err := a.ConnectBus(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		line := strings.Repeat("x", 1024)
		for range 10000 {
			a.Events.OnOutput(event.Output{Text: line})
		}
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("publishing blocked on a hub that does not read")
	}
}

func TestDaemonDetachesClientThatHangsUp(t *testing.T) {
	a, _ := newApp(t, `echo started; sleep 2`, Options{})
	path := control(t, a)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(conn).Encode(ipc.Request{Cmd: ipc.CmdRun, Text: "install neovim"}))

	require.Eventually(t, func() bool { return a.Events.Len() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return a.Events.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, supervisor.Running, a.Supervisor.State(), "the task outlives its client")
}
