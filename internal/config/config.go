// Package config loads the named options in §6 of the specification
// from the environment, with the documented defaults.
package config

import (
	"sync"
	"time"

	"github.com/cristalhq/aconfig"
)

// Config holds every named option the engine and its transport need to
// run as a deployable service.
type Config struct {
	MountPath       string `env:"MOUNT_PATH" default:"/microsub"`
	ListenAddr      string `env:"LISTEN_ADDR" default:":8080"`
	UserAgent       string `env:"USER_AGENT" default:"infovore-microsub/1.0 (+https://github.com/sparrowreader/microsub)"`

	DatabaseDriver string `env:"DATABASE_DRIVER" default:"sqlite"` // sqlite | postgres
	DatabaseDSN    string `env:"DATABASE_DSN" default:"microsub.db"`

	BatchConcurrency    int           `env:"BATCH_CONCURRENCY" default:"5"`
	SchedulerInterval   time.Duration `env:"SCHEDULER_INTERVAL" default:"60s"`
	FetchTimeout        time.Duration `env:"FETCH_TIMEOUT" default:"30s"`
	DiscoveryTimeout    time.Duration `env:"DISCOVERY_TIMEOUT" default:"10s"`

	MaxFullReadItemsPerChannel int           `env:"MAX_FULL_READ_ITEMS_PER_CHANNEL" default:"200"`
	UnreadRetentionDays        int           `env:"UNREAD_RETENTION_DAYS" default:"30"`
	WebSubLeaseSeconds         int           `env:"WEBSUB_LEASE_SECONDS" default:"604800"`
	WebSubLeaseRenewBefore     time.Duration `env:"WEBSUB_LEASE_RENEW_BEFORE" default:"24h"`

	// RedisAddr optionally enables the content-addressed fetch cache
	// (§4.1, §5). Left empty, the fetcher talks to the network directly.
	RedisAddr     string `env:"REDIS_ADDR" default:""`
	RedisPassword string `env:"REDIS_PASSWORD" default:""`
	RedisDB       int    `env:"REDIS_DB" default:"0"`

	// PublicBaseURL is used to build WebSub callback URLs
	// (${base}/microsub/websub/${feedId}).
	PublicBaseURL string `env:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
}

var (
	cfg  Config
	once sync.Once
	err  error
)

// Load reads Config from the environment, prefixed with MICROSUB_, once
// per process. Subsequent calls return the cached value.
func Load() (Config, error) {
	once.Do(func() {
		loader := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix:         "MICROSUB",
			SkipFlags:         true,
			AllowUnknownFlags: true,
		})
		err = loader.Load()
	})
	return cfg, err
}
