package models

type Verb string

const (
	VerbServerID            Verb = "server_id"
	VerbHelp                Verb = "help"
	VerbListEnabledServices Verb = "list_enabled_services"
	VerbStatusService       Verb = "status_service"
	VerbStartService        Verb = "start_service"
	VerbStopService         Verb = "stop_service"
	VerbRestartService      Verb = "restart_service"
	VerbRun                 Verb = "run"
	VerbMetrics             Verb = "metrics"
	VerbUnknown             Verb = "unknown"
)

// Targeted reports whether the verb must name this server to be acted upon.
func (v Verb) Targeted() bool {
	switch v {
	case VerbServerID, VerbHelp, VerbUnknown:
		return false
	}
	return true
}

// RemoteCommand is a parsed inbound chat message.
type RemoteCommand struct {
	Verb           Verb
	Token          string
	TargetServerID string
	Args           []string
	// Rest is the raw remainder of the line after the target server id.
	Rest string
	Text string
}

// Update is one inbound message pulled from the chat transport.
type Update struct {
	ID          int64
	SenderID    string
	RecipientID string
	Text        string
}

// UpdateCursor is the next update offset to request from the transport.
type UpdateCursor struct {
	next int64
}

func (c *UpdateCursor) Offset() int64 {
	return c.next
}

// Advance moves the cursor past id. It never moves backwards.
func (c *UpdateCursor) Advance(id int64) {
	if id+1 > c.next {
		c.next = id + 1
	}
}
