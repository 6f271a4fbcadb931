// Package cmdutil holds helpers shared by the command groups.
package cmdutil

import (
	"errors"
	"sync"

	"github.com/campusdesk/cli/internal/config"
	"github.com/campusdesk/cli/internal/format"
	"github.com/campusdesk/cli/internal/logging"
	"github.com/campusdesk/cli/internal/models"
	"github.com/campusdesk/cli/internal/portal"
)

var (
	service   *portal.Service
	serviceMu sync.Mutex
)

// Service opens the portal service on first use. Commands that never touch
// the portal do not open the state store.
func Service() (*portal.Service, error) {
	serviceMu.Lock()
	defer serviceMu.Unlock()

	if service != nil {
		return service, nil
	}
	svc, err := portal.Open(config.Get(), logging.Get())
	if err != nil {
		return nil, err
	}
	service = svc
	return service, nil
}

// Close releases the service if it was opened
func Close() error {
	serviceMu.Lock()
	defer serviceMu.Unlock()

	if service == nil {
		return nil
	}
	err := service.Close()
	service = nil
	return err
}

// Render prints the data of a successful result, or returns its error.
func Render(res models.Result) error {
	if !res.Success {
		return errors.New(res.Error)
	}
	return format.Print(res.Data)
}
