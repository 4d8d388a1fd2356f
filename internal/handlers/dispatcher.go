package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
	"github.com/The-Promised-Neverland/hostwatch/internal/notify"
	"github.com/The-Promised-Neverland/hostwatch/pkg/logger"
)

// ErrUsage is returned by a handler when the command lacks required arguments.
var ErrUsage = errors.New("missing arguments")

// UpdateSource is the inbound side of the chat transport.
type UpdateSource interface {
	PollUpdates(ctx context.Context, offset int64) ([]models.Update, error)
}

type HandlerFunc func(ctx context.Context, cmd models.RemoteCommand) error

// Dispatcher polls for inbound messages and routes accepted commands to the
// registered handlers. Server-id matching on targeted verbs is a routing
// convention between agents sharing one chat, not an authentication step:
// anyone who can post in the configured chat can address any server.
type Dispatcher struct {
	source      UpdateSource
	sink        notify.Sink
	serverID    string
	recipientID string
	idleDelay   time.Duration
	handlers    map[models.Verb]HandlerFunc
	cursor      models.UpdateCursor
}

func NewDispatcher(source UpdateSource, sink notify.Sink, serverID, recipientID string, idleDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		source:      source,
		sink:        sink,
		serverID:    serverID,
		recipientID: recipientID,
		idleDelay:   idleDelay,
		handlers:    make(map[models.Verb]HandlerFunc),
	}
}

func (d *Dispatcher) RegisterHandler(verb models.Verb, handler HandlerFunc) {
	d.handlers[verb] = handler
}

// Offset is the next update id the dispatcher will ask for.
func (d *Dispatcher) Offset() int64 {
	return d.cursor.Offset()
}

// Run polls until ctx is cancelled. Transport errors are logged and retried
// after the idle delay; a non-empty batch is followed by an immediate poll.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.Log.Info("Command dispatcher started", "idle_delay", d.idleDelay.String())
	for {
		n, err := d.PollOnce(ctx)
		if ctx.Err() != nil {
			logger.Log.Info("Stopping command dispatcher for shutdown initiation")
			return nil
		}
		if err != nil {
			logger.Log.Error("Failed to poll updates", "offset", d.Offset(), "err", err)
		}
		if err == nil && n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			logger.Log.Info("Stopping command dispatcher for shutdown initiation")
			return nil
		case <-time.After(d.idleDelay):
		}
	}
}

// PollOnce fetches one batch and handles it, returning the batch size.
func (d *Dispatcher) PollOnce(ctx context.Context) (int, error) {
	updates, err := d.source.PollUpdates(ctx, d.cursor.Offset())
	if err != nil {
		return 0, err
	}
	for _, update := range updates {
		if ctx.Err() != nil {
			break
		}
		// Advance first: a message is never handled twice, even if handling fails.
		d.cursor.Advance(update.ID)
		d.Handle(ctx, update)
	}
	return len(updates), nil
}

// Handle processes one update. Messages from foreign chats and commands
// addressed to other servers are dropped without a reply.
func (d *Dispatcher) Handle(ctx context.Context, update models.Update) {
	if update.RecipientID != d.recipientID {
		logger.Log.Debug("Ignoring update from unexpected chat", "update_id", update.ID, "chat_id", update.RecipientID)
		return
	}
	cmd, err := Parse(update.Text)
	if err != nil {
		return
	}
	if cmd.Verb.Targeted() && cmd.TargetServerID != d.serverID {
		logger.Log.Debug("Command addressed to another server", "update_id", update.ID, "target", cmd.TargetServerID)
		return
	}
	logger.Log.Info("Received command", "update_id", update.ID, "verb", string(cmd.Verb), "sender_id", update.SenderID)
	handler, ok := d.handlers[cmd.Verb]
	if !ok {
		d.reply(ctx, "Unknown command: "+cmd.Text)
		return
	}
	if err := handler(ctx, cmd); err != nil {
		if errors.Is(err, ErrUsage) {
			d.reply(ctx, "Usage: "+usage[cmd.Verb])
			return
		}
		logger.Log.Error("Handler error", "verb", string(cmd.Verb), "err", err)
	}
}

func (d *Dispatcher) reply(ctx context.Context, text string) {
	_ = d.sink.Notify(ctx, text)
}

var usage = map[models.Verb]string{
	models.VerbServerID:            "/server_id - Show the server ID.",
	models.VerbListEnabledServices: "/list_enabled_services <server_id> - List all monitored services.",
	models.VerbStatusService:       "/status_service <server_id> <service> - Show the status of a service.",
	models.VerbStartService:        "/start_service <server_id> <service> - Start a service.",
	models.VerbStopService:         "/stop_service <server_id> <service> - Stop a service.",
	models.VerbRestartService:      "/restart_service <server_id> <service> - Restart a service.",
	models.VerbRun:                 "/run <server_id> <command> - Execute a command without elevated privileges.",
	models.VerbMetrics:             "/metrics <server_id> - Show current disk, CPU and memory usage.",
}

var helpOrder = []models.Verb{
	models.VerbServerID,
	models.VerbListEnabledServices,
	models.VerbStatusService,
	models.VerbStartService,
	models.VerbStopService,
	models.VerbRestartService,
	models.VerbRun,
	models.VerbMetrics,
}

// HelpText lists every supported command.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, verb := range helpOrder {
		fmt.Fprintln(&b, usage[verb])
	}
	b.WriteString("/help - Show this message.")
	return b.String()
}
