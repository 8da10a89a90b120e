package driver

import (
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/dmweis/hamilton/pkg/config"
	"github.com/dmweis/hamilton/pkg/log"
)

// New builds the driver selected by body.DriverType. The real driver opens
// body.Port.
func New(body config.BodyConfig, clk clock.Clock, logger log.Logger) (Driver, error) {
	switch body.DriverType {
	case config.DriverSimulated:
		logger.Infof("Using simulated driver")
		return NewSimulatedDriver(body, clk, logger), nil
	case config.DriverReal:
		port, err := OpenSerialPort(body.Port, body.Serial)
		if err != nil {
			return nil, err
		}
		logger.Infof("Using real driver on %s", body.Port)
		return NewRealDriver(body, port, clk, logger), nil
	default:
		return nil, fmt.Errorf("unknown driver type %q", body.DriverType)
	}
}
