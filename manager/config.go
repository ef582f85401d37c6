package manager

import "time"

// Config holds the tunables for the job manager's pollers and retry policy
// (spec §4.4.1, §4.4.3, §6 "Configuration"). Zero-value fields are filled in
// by WithDefaults.
type Config struct {
	CachePollInterval    time.Duration
	ExecutorPollInterval time.Duration
	CacheLease           time.Duration
	ExecutorLease        time.Duration
	MaxRunningJobs       int
	StartupDelay         time.Duration

	// RetentionDelay is how long a terminal job stays in the cache before
	// removeEntry runs. RetentionDelayOnFailure overrides it for jobs that
	// ended FAILED; zero means "use RetentionDelay" (spec §9 OQ2).
	RetentionDelay          time.Duration
	RetentionDelayOnFailure time.Duration

	RetryLimit int

	// ProcessingTimeout holds the configured job processing timeout
	// (default 12h). No poller or task reads it, so a job that occupies the
	// executor lifecycle for longer is not treated as stuck.
	ProcessingTimeout time.Duration

	// WorkerPoolSize bounds how many processJobUpdate tasks run at once.
	WorkerPoolSize int
}

// WithDefaults fills in every zero-valued field with the defaults named in
// spec §4.4.1 / §6, returning a copy.
func (c Config) WithDefaults() Config {
	if c.CachePollInterval <= 0 {
		c.CachePollInterval = 2 * time.Second
	}
	if c.ExecutorPollInterval <= 0 {
		c.ExecutorPollInterval = 30 * time.Second
	}
	if c.CacheLease <= 0 {
		c.CacheLease = 10 * time.Second
	}
	if c.ExecutorLease <= 0 {
		c.ExecutorLease = 120 * time.Second
	}
	if c.MaxRunningJobs <= 0 {
		c.MaxRunningJobs = 6
	}
	if c.StartupDelay <= 0 {
		c.StartupDelay = 10 * time.Second
	}
	if c.RetentionDelay <= 0 {
		c.RetentionDelay = 120 * time.Second
	}
	if c.RetentionDelayOnFailure <= 0 {
		c.RetentionDelayOnFailure = c.RetentionDelay
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = 2
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = 12 * time.Hour
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 32
	}
	return c
}
