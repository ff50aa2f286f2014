package health

import (
	"time"
)

// Report is the liveness payload served at /health.
type Report struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Reporter produces liveness reports. It never touches the store, so a
// slow or broken database does not fail the probe.
type Reporter struct {
	version string
	started time.Time
	now     func() time.Time
}

// NewReporter returns a Reporter that counts uptime from now.
func NewReporter(version string) *Reporter {
	return &Reporter{
		version: version,
		started: time.Now(),
		now:     time.Now,
	}
}

// Report returns the current liveness report.
func (r *Reporter) Report() Report {
	return Report{
		Status:  "ok",
		Version: r.version,
		Uptime:  formatUptime(r.now().Sub(r.started)),
	}
}

// formatUptime rounds to whole seconds.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}
