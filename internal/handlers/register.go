package handlers

import "github.com/The-Promised-Neverland/hostwatch/internal/models"

// RegisterHandlers wires every verb to its handler on the dispatcher.
func RegisterHandlers(d *Dispatcher, h *Handler) {
	d.RegisterHandler(models.VerbServerID, h.ServerID)
	d.RegisterHandler(models.VerbHelp, h.Help)
	d.RegisterHandler(models.VerbListEnabledServices, h.ListEnabledServices)
	d.RegisterHandler(models.VerbStatusService, h.StatusService)
	d.RegisterHandler(models.VerbStartService, h.StartService)
	d.RegisterHandler(models.VerbStopService, h.StopService)
	d.RegisterHandler(models.VerbRestartService, h.RestartService)
	d.RegisterHandler(models.VerbRun, h.Run)
	d.RegisterHandler(models.VerbMetrics, h.Metrics)
}
