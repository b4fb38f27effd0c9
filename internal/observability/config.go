package observability

import (
	"os"
	"strconv"
)

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	EnablePprofTrace bool
}

// FromEnv overlays environment toggles onto the config. Invalid values are
// reported through report and otherwise ignored.
func (c Config) FromEnv(report func(format string, args ...any)) Config {
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			c.EnablePprofTrace = value
		} else if report != nil {
			report("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}
	return c
}
