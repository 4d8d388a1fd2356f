package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
	"github.com/The-Promised-Neverland/hostwatch/pkg/utils"
)

const (
	testServerID = "SRV1"
	testChatID   = "-100"
)

type fakeSink struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeSink) Notify(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeSink) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type fakeServices struct {
	calls    []string
	statuses map[string]models.ServiceStatus
	stopOut  string
	startOut string
}

func (f *fakeServices) Status(_ context.Context, name string) models.ServiceStatus {
	f.calls = append(f.calls, "status "+name)
	if st, ok := f.statuses[name]; ok {
		return st
	}
	return models.Stopped()
}

func (f *fakeServices) Start(_ context.Context, name string) string {
	f.calls = append(f.calls, "start "+name)
	return f.startOut
}

func (f *fakeServices) Stop(_ context.Context, name string) string {
	f.calls = append(f.calls, "stop "+name)
	return f.stopOut
}

type fakeResources struct {
	cpuErr error
}

func (fakeResources) DiskUsage(context.Context, string) (float64, error) { return 45.2, nil }

func (f fakeResources) CPUUsage(context.Context) (float64, error) { return 12, f.cpuErr }

func (fakeResources) MemoryUsage(context.Context) (float64, error) { return 50, nil }

func (fakeResources) HostSummary(context.Context) (models.HostSummary, error) {
	return models.HostSummary{Hostname: "web01", OS: "linux", Platform: "debian", Uptime: 60}, nil
}

type fakeSource struct {
	batches [][]models.Update
	offsets []int64
	err     error
	// failures makes the first polls fail before batches are served.
	failures int
}

func (f *fakeSource) PollUpdates(_ context.Context, offset int64) ([]models.Update, error) {
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		return nil, f.err
	}
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fixture struct {
	dispatcher *Dispatcher
	handler    *Handler
	sink       *fakeSink
	services   *fakeServices
	source     *fakeSource
}

func newFixture(settings Settings) *fixture {
	if settings.ServerID == "" {
		settings.ServerID = testServerID
	}
	f := &fixture{
		sink: &fakeSink{},
		services: &fakeServices{
			statuses: map[string]models.ServiceStatus{},
			stopOut:  "stopped",
			startOut: "started",
		},
		source: &fakeSource{},
	}
	f.handler = NewHandler(settings, f.services, fakeResources{}, f.sink)
	f.dispatcher = NewDispatcher(f.source, f.sink, settings.ServerID, testChatID, 10*time.Millisecond)
	RegisterHandlers(f.dispatcher, f.handler)
	return f
}

func (f *fixture) handle(text string) {
	f.dispatcher.Handle(context.Background(), models.Update{ID: 1, RecipientID: testChatID, Text: text})
}

func TestParse(t *testing.T) {
	cmd, err := Parse("  /run@host_bot SRV1   ls -la  /tmp ")
	require.NoError(t, err)
	assert.Equal(t, models.VerbRun, cmd.Verb)
	assert.Equal(t, "/run@host_bot", cmd.Token)
	assert.Equal(t, "SRV1", cmd.TargetServerID)
	assert.Equal(t, "ls -la  /tmp", cmd.Rest)
	assert.Equal(t, []string{"ls", "-la", "/tmp"}, cmd.Args)

	cmd, err = Parse("status_service SRV1 sshd")
	require.NoError(t, err)
	assert.Equal(t, models.VerbStatusService, cmd.Verb)
	assert.Equal(t, []string{"sshd"}, cmd.Args)

	cmd, err = Parse("/help extra")
	require.NoError(t, err)
	assert.Equal(t, models.VerbHelp, cmd.Verb)
	assert.Empty(t, cmd.TargetServerID)
	assert.Equal(t, []string{"extra"}, cmd.Args)

	cmd, err = Parse("/foo")
	require.NoError(t, err)
	assert.Equal(t, models.VerbUnknown, cmd.Verb)

	_, err = Parse("   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestStatusServiceRoutesByServerID(t *testing.T) {
	f := newFixture(Settings{})
	f.services.statuses["sshd"] = models.Running()

	f.handle("status_service SRV1 sshd")
	assert.Equal(t, []string{"Status of service sshd on server SRV1: Running"}, f.sink.sent())

	other := newFixture(Settings{ServerID: "SRV2"})
	other.handle("status_service SRV1 sshd")
	assert.Empty(t, other.sink.sent())
	assert.Empty(t, other.services.calls)
}

func TestUnknownCommandRepliesOnce(t *testing.T) {
	f := newFixture(Settings{})
	f.handle("/foo")

	sent := f.sink.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Unknown command")
	assert.Equal(t, "Unknown command: /foo", sent[0])
}

func TestForeignChatIgnored(t *testing.T) {
	f := newFixture(Settings{})
	f.dispatcher.Handle(context.Background(), models.Update{ID: 3, RecipientID: "999", Text: "/server_id"})
	assert.Empty(t, f.sink.sent())
}

func TestEmptyTextIgnored(t *testing.T) {
	f := newFixture(Settings{})
	f.handle("")
	assert.Empty(t, f.sink.sent())
}

func TestServerIDAndHelp(t *testing.T) {
	f := newFixture(Settings{})
	f.handle("/server_id")
	f.handle("/help")

	sent := f.sink.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Server ID: SRV1", sent[0])
	assert.Contains(t, sent[1], "/status_service <server_id> <service>")
	assert.Contains(t, sent[1], "/help")
}

func TestListEnabledServices(t *testing.T) {
	f := newFixture(Settings{Services: []string{"nginx", "sshd"}})
	f.services.statuses["sshd"] = models.Running()
	f.services.statuses["nginx"] = models.StatusError(errors.New("not found"))

	f.handle("list_enabled_services SRV1")
	assert.Equal(t, []string{
		"🔴 [Server SRV1] nginx is Error: not found.",
		"🟢 [Server SRV1] sshd is Running.",
	}, f.sink.sent())
}

func TestStartStopService(t *testing.T) {
	f := newFixture(Settings{})
	f.handle("start_service SRV1 nginx")
	f.handle("stop_service SRV1 nginx")

	assert.Equal(t, []string{"start nginx", "stop nginx"}, f.services.calls)
	assert.Equal(t, []string{
		"Service nginx start on server SRV1:\nstarted",
		"Service nginx stop on server SRV1:\nstopped",
	}, f.sink.sent())
}

func TestRestartStopsThenStartsEvenOnStopFailure(t *testing.T) {
	f := newFixture(Settings{})
	f.services.stopOut = "Error: access denied"
	f.services.startOut = "Service nginx started successfully."

	f.handle("/restart_service SRV1 nginx")

	assert.Equal(t, []string{"stop nginx", "start nginx"}, f.services.calls)
	assert.Equal(t, []string{
		"Service nginx restart on server SRV1.\nStop result: Error: access denied\nStart result: Service nginx started successfully.",
	}, f.sink.sent())
}

func TestMissingArgumentsRepliesUsage(t *testing.T) {
	f := newFixture(Settings{})
	f.handle("start_service SRV1")

	assert.Empty(t, f.services.calls)
	assert.Equal(t, []string{"Usage: " + usage[models.VerbStartService]}, f.sink.sent())
}

func TestRunDisabled(t *testing.T) {
	f := newFixture(Settings{})
	called := false
	f.handler.runShell = func(context.Context, string, utils.ShellOptions) utils.ShellResult {
		called = true
		return utils.ShellResult{}
	}

	f.handle("run SRV1 id")
	assert.False(t, called)
	assert.Equal(t, []string{"Command execution is disabled on server SRV1."}, f.sink.sent())
}

func TestRunEnabled(t *testing.T) {
	opts := utils.ShellOptions{Timeout: time.Second, MaxOutput: 64}
	f := newFixture(Settings{AllowRun: true, Shell: opts})

	var gotCommand string
	var gotOpts utils.ShellOptions
	f.handler.runShell = func(_ context.Context, command string, o utils.ShellOptions) utils.ShellResult {
		gotCommand, gotOpts = command, o
		return utils.ShellResult{Stdout: "hello  world\n"}
	}

	f.handle("/run SRV1 echo hello  world")
	assert.Equal(t, "echo hello  world", gotCommand)
	assert.Equal(t, opts, gotOpts)
	assert.Equal(t, []string{"hello  world"}, f.sink.sent())
}

func TestRunWithoutCommandRepliesUsage(t *testing.T) {
	f := newFixture(Settings{AllowRun: true})
	f.handle("run SRV1")
	assert.Equal(t, []string{"Usage: " + usage[models.VerbRun]}, f.sink.sent())
}

func TestFormatShellResult(t *testing.T) {
	assert.Equal(t, "(no output)", FormatShellResult(utils.ShellResult{}))
	assert.Equal(t, "out\n…(output truncated)", FormatShellResult(utils.ShellResult{Stdout: "out", Truncated: true}))
	assert.Equal(t, "partial\nError: exit status 2\nboom",
		FormatShellResult(utils.ShellResult{Stdout: "partial\n", Stderr: "boom\n", Err: errors.New("exit status 2"), ExitCode: 2}))
	assert.Equal(t, "Error: command timed out",
		FormatShellResult(utils.ShellResult{Err: errors.New("command timed out")}))
}

func TestMetrics(t *testing.T) {
	f := newFixture(Settings{DiskPath: "/"})
	f.handle("/metrics SRV1")

	assert.Equal(t, []string{
		"📊 [Server SRV1] web01 (linux debian), up 1m0s\nDisk (/): 45.20%\nCPU: 12.00%\nMemory: 50.00%",
	}, f.sink.sent())
}

func TestMetricsReportsUnavailableSample(t *testing.T) {
	f := newFixture(Settings{DiskPath: "/"})
	f.handler.resources = fakeResources{cpuErr: errors.New("no sample")}
	f.handle("metrics SRV1")

	sent := f.sink.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "CPU: n/a")
	assert.Contains(t, sent[0], "Memory: 50.00%")
}

func TestPollOnceAdvancesCursor(t *testing.T) {
	f := newFixture(Settings{})
	f.source.batches = [][]models.Update{{
		{ID: 10, RecipientID: testChatID, Text: "/server_id"},
		{ID: 11, RecipientID: "other", Text: "/server_id"},
		{ID: 12},
	}}

	n, err := f.dispatcher.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(13), f.dispatcher.Offset())
	assert.Equal(t, []string{"Server ID: SRV1"}, f.sink.sent())

	_, err = f.dispatcher.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 13}, f.source.offsets)
}

func TestPollOnceTransportError(t *testing.T) {
	f := newFixture(Settings{})
	f.source.err = errors.New("connection refused")

	_, err := f.dispatcher.PollOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(0), f.dispatcher.Offset())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(Settings{})
	f.source.batches = [][]models.Update{{{ID: 5, RecipientID: testChatID, Text: "/server_id"}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.sink.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestRunRetriesAfterTransportError(t *testing.T) {
	f := newFixture(Settings{})
	f.source.failures = 1
	f.source.batches = [][]models.Update{{{ID: 7, RecipientID: testChatID, Text: "/server_id"}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.sink.sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Server ID: SRV1"}, f.sink.sent())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(8), f.dispatcher.Offset())
}

func TestCommandForOtherServerNotLoggedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	previous := logger.Log
	logger.Log = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	t.Cleanup(func() { logger.Log = previous })

	f := newFixture(Settings{ServerID: "SRV2"})
	f.handle("status_service SRV1 sshd")
	assert.NotContains(t, buf.String(), "Received command")

	f.handle("status_service SRV2 sshd")
	assert.Contains(t, buf.String(), "Received command")
}
