package cmd

import (
	"log/slog"

	"github.com/quorumlabs/warden/pkg/actions/httprequest"
	logaction "github.com/quorumlabs/warden/pkg/actions/log"
	"github.com/quorumlabs/warden/pkg/registry"
)

// NewRegistry creates an action registry with the built-in actions
// registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterAction(logaction.NewActionFactory())
	reg.RegisterAction(httprequest.NewActionFactory())

	return reg
}
