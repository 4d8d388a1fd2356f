// Package telegram is a minimal typed client for the Telegram Bot API, covering
// the two calls the agent needs: sendMessage to reach the operator and
// getUpdates to long-poll for inbound commands.
//
// Every response is decoded into the Bot API envelope ({ok, result,
// error_code, description}); a non-ok envelope is returned as [*APIError].
// Updates are decoded one by one so a single unexpected payload is skipped
// without losing the rest of the batch. The bot token is part of every request
// URL and is never included in returned errors or log entries.
package telegram
