package config

import "time"

// IngestConfig carries the tunables named in the external-interfaces and
// concurrency sections: cardinality caps, batch caps, heartbeat timeout,
// reorder window, and resume-token TTL.
type IngestConfig struct {
	MaxMetricNamesPerRun     int
	MaxTagKeysPerRun         int
	MaxMetricNamesPerProject int

	MaxPointsPerBatch int
	MaxBatchBytes     int
	MaxParamsPerCall  int

	HeartbeatTimeout   time.Duration
	WatchdogInterval   time.Duration
	ReorderWindowSize  int
	ReorderWindowAge   time.Duration
	ResumeTokenTTL     time.Duration
	ClockSkewTolerance time.Duration

	StoreCallTimeout time.Duration
	QueryCallTimeout time.Duration
}

// LoadIngestConfig loads ingest tunables from environment, falling back to
// the spec's stated defaults.
func LoadIngestConfig(prefix string) IngestConfig {
	env := NewEnvConfig(prefix)
	return IngestConfig{
		MaxMetricNamesPerRun:     env.GetInt("MAX_METRIC_NAMES_PER_RUN", 10000),
		MaxTagKeysPerRun:         env.GetInt("MAX_TAG_KEYS_PER_RUN", 1000),
		MaxMetricNamesPerProject: env.GetInt("MAX_METRIC_NAMES_PER_PROJECT", 80000),

		MaxPointsPerBatch: env.GetInt("MAX_POINTS_PER_BATCH", 10000),
		MaxBatchBytes:     env.GetInt("MAX_BATCH_BYTES", 1<<20),
		MaxParamsPerCall:  env.GetInt("MAX_PARAMS_PER_CALL", 1000),

		HeartbeatTimeout:   env.GetDuration("HEARTBEAT_TIMEOUT", 5*time.Minute),
		WatchdogInterval:   env.GetDuration("WATCHDOG_INTERVAL", 30*time.Second),
		ReorderWindowSize:  env.GetInt("REORDER_WINDOW_SIZE", 100),
		ReorderWindowAge:   env.GetDuration("REORDER_WINDOW_AGE", 30*time.Second),
		ResumeTokenTTL:     env.GetDuration("RESUME_TOKEN_TTL", 7*24*time.Hour),
		ClockSkewTolerance: env.GetDuration("CLOCK_SKEW_TOLERANCE", 24*time.Hour),

		StoreCallTimeout: env.GetDuration("STORE_CALL_TIMEOUT", 5*time.Second),
		QueryCallTimeout: env.GetDuration("QUERY_CALL_TIMEOUT", 10*time.Second),
	}
}

// RedisConfig carries the optional query result cache's connection details.
// URL empty means no cache: the query engine falls back to the stores on
// every call.
type RedisConfig struct {
	URL string
	TTL time.Duration
}

// LoadRedisConfig loads the optional result-cache settings from environment.
func LoadRedisConfig(prefix string) RedisConfig {
	env := NewEnvConfig(prefix)
	return RedisConfig{
		URL: env.GetString("REDIS_URL", ""),
		TTL: env.GetDuration("REDIS_CACHE_TTL", 5*time.Minute),
	}
}

// ArtifactConfig carries the S3-compatible bucket runledger presigns
// artifact upload/download URLs against. Bucket empty means the feature is
// disabled: the presign endpoint returns 501.
type ArtifactConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	URLExpiry time.Duration
}

// LoadArtifactConfig loads the optional artifact-presign settings from
// environment.
func LoadArtifactConfig(prefix string) ArtifactConfig {
	env := NewEnvConfig(prefix)
	return ArtifactConfig{
		Endpoint:  env.GetString("S3_ENDPOINT", ""),
		Region:    env.GetString("S3_REGION", "us-east-1"),
		Bucket:    env.GetString("S3_BUCKET", ""),
		AccessKey: env.GetString("S3_ACCESS_KEY", ""),
		SecretKey: env.GetString("S3_SECRET_KEY", ""),
		URLExpiry: env.GetDuration("S3_URL_EXPIRY", 15*time.Minute),
	}
}

// RunledgerConfig is the fully assembled configuration the process
// entrypoint builds from cobra flags and viper-bound environment/config
// file values, and hands to every component constructor.
type RunledgerConfig struct {
	IngestHost string
	IngestPort int
	QueryHost  string
	QueryPort  int

	Database   DatabaseConfig
	ClickHouse ClickHouseConfig
	Ingest     IngestConfig
	Auth       AuthConfig
	Service    ServiceConfig
	Redis      RedisConfig
	Artifacts  ArtifactConfig

	ResumeTokenSecret string
	DisableAuth       bool
	CompressWire      bool
}
