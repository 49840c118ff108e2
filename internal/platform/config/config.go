package config

import (
	"os"
	"strings"
	"time"

	dErrors "verigate/pkg/domain-errors"
)

// Server captures process level configuration for the verification service.
type Server struct {
	Addr          string
	DBPath        string
	LEIs          []string
	AuthTimeout   time.Duration
	SweepInterval time.Duration
}

// Defaults applied when the environment does not override them.
var (
	DefaultAuthTimeout   = 600 * time.Second
	DefaultSweepInterval = time.Second
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VERIGATE_ADDR")
	if addr == "" {
		addr = ":7676"
	}

	dbPath := os.Getenv("VERIGATE_DB_PATH")
	if dbPath == "" {
		dbPath = "vdb"
	}

	var leis []string
	for _, lei := range strings.Split(os.Getenv("VERIGATE_LEIS"), ",") {
		if lei = strings.TrimSpace(lei); lei != "" {
			leis = append(leis, lei)
		}
	}

	authTimeout := DefaultAuthTimeout
	if v := os.Getenv("VERIGATE_AUTH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			authTimeout = d
		}
	}

	sweepInterval := DefaultSweepInterval
	if v := os.Getenv("VERIGATE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			sweepInterval = d
		}
	}

	return Server{
		Addr:          addr,
		DBPath:        dbPath,
		LEIs:          leis,
		AuthTimeout:   authTimeout,
		SweepInterval: sweepInterval,
	}
}

// Validate rejects configurations the service cannot safely boot with.
// An empty LEI allow-list would authorize nobody and is always a deployment
// mistake, so it stops boot.
func (s Server) Validate() error {
	if len(s.LEIs) == 0 {
		return dErrors.New(dErrors.CodeConfiguration, "invalid configuration, no LEIs available to accept")
	}
	if s.AuthTimeout <= 0 || s.SweepInterval <= 0 {
		return dErrors.New(dErrors.CodeConfiguration, "invalid configuration, timeouts must be positive")
	}
	return nil
}
