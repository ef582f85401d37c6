package env

import "time"

// CacheBackend selects which cache.Cache implementation the orchestrator
// wires up at startup.
type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
	CacheBackendMySQL  CacheBackend = "mysql"
)

// OrchestratorConfig is the full set of recognized options (spec §6):
// pollInterval, ticketDuration, maxJobs, retention delay, processing
// timeout, retry limit, startup delay — plus the ambient concerns
// (replica identity, admin/beacon bind addresses, cache backend selection)
// a deployable replica also needs. Values are loaded via Read/
// ReadWithConfigDirPath from a YAML file keyed by APP_ENV, the same way
// every other teacher config is loaded.
type OrchestratorConfig struct {
	// ReplicaID identifies this process in the liveness beacon and in
	// logs. Left empty, a replica will refuse to start a beacon.
	ReplicaID string `mapstructure:"replicaId"`

	// Cache backend selection.
	CacheBackend CacheBackend `mapstructure:"cacheBackend"`
	RedisAddr    string       `mapstructure:"redisAddr"`
	MySQLDSN     string       `mapstructure:"mysqlDsn"`

	// Poll cadence and lease durations (spec §4.4.1, §6 "pollInterval",
	// "ticketDuration").
	CachePollIntervalSeconds    int `mapstructure:"cachePollIntervalSeconds"`
	ExecutorPollIntervalSeconds int `mapstructure:"executorPollIntervalSeconds"`
	CacheLeaseSeconds           int `mapstructure:"cacheLeaseSeconds"`
	ExecutorLeaseSeconds        int `mapstructure:"executorLeaseSeconds"`

	// MaxRunningJobs caps concurrent executor occupancy (spec §6 "maxJobs").
	MaxRunningJobs int `mapstructure:"maxJobs"`

	// StartupDelaySeconds holds off the first poll tick after Run starts
	// (spec §6 "startup delay", default 10s).
	StartupDelaySeconds int `mapstructure:"startupDelaySeconds"`

	// RetentionDelaySeconds is how long a finished job's cache entry
	// lingers before removal (spec §6 "retention delay", default 120s).
	RetentionDelaySeconds int `mapstructure:"retentionDelaySeconds"`
	// RetentionDelayOnFailureSeconds overrides RetentionDelaySeconds for
	// jobs that finished FAILED, when set (spec §9 OQ2).
	RetentionDelayOnFailureSeconds int `mapstructure:"retentionDelayOnFailureSeconds"`

	// ProcessingTimeoutSeconds is handed to the manager as
	// ProcessingTimeout (default 12h). No poller or task reads it: a job
	// that stays mid-pipeline longer is not failed or moved to
	// PROCESSING_FAILED.
	ProcessingTimeoutSeconds int `mapstructure:"processingTimeoutSeconds"`

	// RetryLimit is the number of retriable-error retries before a job
	// is failed outright (spec §6, default 2).
	RetryLimit int `mapstructure:"retryLimit"`

	// WorkerPoolSize bounds concurrent per-update tasks.
	WorkerPoolSize int `mapstructure:"workerPoolSize"`

	// Admin/introspection surface (debug only, never the jobs API).
	AdminBindAddress string   `mapstructure:"adminBindAddress"`
	AdminAESKey      string   `mapstructure:"adminAesKey"`
	AdminAESIv       string   `mapstructure:"adminAesIv"`
	BeaconBindAddress string  `mapstructure:"beaconBindAddress"`
	BeaconPeers      []string `mapstructure:"beaconPeers"`
	BeaconIntervalSeconds int `mapstructure:"beaconIntervalSeconds"`
	DebugHTTPAddress string   `mapstructure:"debugHttpAddress"`

	// Session auth (spec §4.4.2 "restore"): the AES key/IV auth.Issuer
	// uses to encrypt and decrypt the delegate session tokens it issues for
	// a job's owner. Credentials themselves are never written to the cache.
	AuthAESKey         string `mapstructure:"authAesKey"`
	AuthAESIv          string `mapstructure:"authAesIv"`
	SessionTTLSeconds  int    `mapstructure:"sessionTtlSeconds"`
}

// Seconds converts a config field expressed in whole seconds to a
// time.Duration. Zero and negative values both become 0, which
// manager.Config.WithDefaults treats as unset and replaces with its
// default, so an explicit zero cannot be told apart from an unset field.
func Seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
