package handlers

import (
	"errors"
	"strings"
	"unicode"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
)

var ErrEmptyCommand = errors.New("empty command")

var verbs = map[string]models.Verb{
	string(models.VerbServerID):            models.VerbServerID,
	string(models.VerbHelp):                models.VerbHelp,
	string(models.VerbListEnabledServices): models.VerbListEnabledServices,
	string(models.VerbStatusService):       models.VerbStatusService,
	string(models.VerbStartService):        models.VerbStartService,
	string(models.VerbStopService):         models.VerbStopService,
	string(models.VerbRestartService):      models.VerbRestartService,
	string(models.VerbRun):                 models.VerbRun,
	string(models.VerbMetrics):             models.VerbMetrics,
}

// Parse splits a chat message into a command. The verb may carry a leading
// "/" and a trailing "@botname". For verbs addressed to a server the second
// token is the target server id and Rest keeps the remainder of the line.
func Parse(text string) (models.RemoteCommand, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.RemoteCommand{}, ErrEmptyCommand
	}
	token, rest := splitFirst(text)
	name := strings.TrimPrefix(token, "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	verb, ok := verbs[strings.ToLower(name)]
	if !ok {
		verb = models.VerbUnknown
	}

	cmd := models.RemoteCommand{Verb: verb, Token: token, Text: text}
	if verb.Targeted() {
		cmd.TargetServerID, cmd.Rest = splitFirst(rest)
		cmd.Args = strings.Fields(cmd.Rest)
	} else {
		cmd.Args = strings.Fields(rest)
	}
	return cmd, nil
}

func splitFirst(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
