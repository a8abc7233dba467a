// Package config loads orbitald's configuration from YAML with
// environment-variable overrides, the same two-layer pattern the teacher
// uses: a typed struct decoded from a file, then a pass of Getenv checks
// that let a deployment override individual fields without editing the
// file.
package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Kernel      KernelConfig      `yaml:"kernel"`
	HAL         HALConfig         `yaml:"hal"`
	Attestation AttestationConfig `yaml:"attestation"`
	Storage     StorageConfig     `yaml:"storage"`
	AuditBus    AuditBusConfig    `yaml:"audit_bus"`
	VerifyJob   VerifyJobConfig   `yaml:"verify_job"`
	SyncTap     SyncTapConfig     `yaml:"synctap"`
}

type ServerConfig struct {
	AdminAddr       string `yaml:"admin_addr"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
}

type KernelConfig struct {
	SysLogCapacity int `yaml:"syslog_capacity"`
	MaxQueueDepth  int `yaml:"max_queue_depth"`
}

// HALConfig selects and configures one of halmem/haldocker/halnull.
type HALConfig struct {
	Backend string       `yaml:"backend"` // "mem" | "docker" | "null"
	Docker  DockerConfig `yaml:"docker"`
}

type DockerConfig struct {
	Image       string `yaml:"image"`
	Runtime     string `yaml:"runtime"` // "runsc" for gVisor
	MinIdle     int    `yaml:"min_idle"`
	MaxCapacity int    `yaml:"max_capacity"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
}

type AttestationConfig struct {
	Backend        string   `yaml:"backend"` // "noop" | "spiffe"
	SpireSocket    string   `yaml:"spire_socket"`
	TrustDomain    string   `yaml:"trust_domain"`
	AllowedImages  []string `yaml:"allowed_image_digests"`
}

type StorageConfig struct {
	Backend  string         `yaml:"backend"` // "memory" | "postgres" | "spanner"
	Postgres PostgresConfig `yaml:"postgres"`
	Spanner  SpannerConfig  `yaml:"spanner"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type SpannerConfig struct {
	ProjectID  string `yaml:"project_id"`
	InstanceID string `yaml:"instance_id"`
	DatabaseID string `yaml:"database_id"`
}

type AuditBusConfig struct {
	Backend string        `yaml:"backend"` // "inprocess" | "pubsub"
	PubSub  PubSubBusConf `yaml:"pubsub"`
}

type PubSubBusConf struct {
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

type VerifyJobConfig struct {
	Enabled         bool       `yaml:"enabled"`
	IntervalCommits uint64     `yaml:"interval_commits"`
	CloudTasks      CloudTasks `yaml:"cloud_tasks"`
}

type CloudTasks struct {
	ProjectID  string `yaml:"project_id"`
	LocationID string `yaml:"location_id"`
	QueueID    string `yaml:"queue_id"`
	TargetURL  string `yaml:"target_url"`
}

type SyncTapConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PinnedPath string `yaml:"pinned_map_path"`
}

var (
	once     sync.Once
	instance *Config
)

// Load reads path (if non-empty and present), applies environment
// overrides, fills in defaults, and caches the result — mirroring the
// teacher's singleton config loader.
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		_ = godotenv.Load() // optional .env, silently absent in prod

		cfg := &Config{}
		if path != "" {
			if f, oerr := os.Open(path); oerr == nil {
				defer f.Close()
				err = yaml.NewDecoder(f).Decode(cfg)
			}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance, err
}

func (c *Config) applyEnvOverrides() {
	c.Server.AdminAddr = getEnv("ORBITAL_ADMIN_ADDR", c.Server.AdminAddr)
	c.Server.Env = getEnv("ORBITAL_ENV", c.Server.Env)

	c.HAL.Backend = getEnv("ORBITAL_HAL_BACKEND", c.HAL.Backend)
	c.HAL.Docker.Image = getEnv("ORBITAL_SANDBOX_IMAGE", c.HAL.Docker.Image)
	c.HAL.Docker.Runtime = getEnv("ORBITAL_SANDBOX_RUNTIME", c.HAL.Docker.Runtime)
	c.HAL.Docker.RedisAddr = getEnv("ORBITAL_REDIS_ADDR", c.HAL.Docker.RedisAddr)

	c.Attestation.Backend = getEnv("ORBITAL_ATTESTATION_BACKEND", c.Attestation.Backend)
	c.Attestation.SpireSocket = getEnv("ORBITAL_SPIRE_SOCKET", c.Attestation.SpireSocket)
	c.Attestation.TrustDomain = getEnv("ORBITAL_TRUST_DOMAIN", c.Attestation.TrustDomain)

	c.Storage.Backend = getEnv("ORBITAL_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Postgres.DSN = getEnv("ORBITAL_POSTGRES_DSN", c.Storage.Postgres.DSN)
	c.Storage.Spanner.ProjectID = getEnv("ORBITAL_SPANNER_PROJECT", c.Storage.Spanner.ProjectID)
	c.Storage.Spanner.InstanceID = getEnv("ORBITAL_SPANNER_INSTANCE", c.Storage.Spanner.InstanceID)
	c.Storage.Spanner.DatabaseID = getEnv("ORBITAL_SPANNER_DATABASE", c.Storage.Spanner.DatabaseID)

	c.AuditBus.Backend = getEnv("ORBITAL_AUDITBUS_BACKEND", c.AuditBus.Backend)
	c.AuditBus.PubSub.ProjectID = getEnv("ORBITAL_PUBSUB_PROJECT", c.AuditBus.PubSub.ProjectID)
	c.AuditBus.PubSub.TopicID = getEnv("ORBITAL_PUBSUB_TOPIC", c.AuditBus.PubSub.TopicID)

	c.VerifyJob.Enabled = getEnvBool("ORBITAL_VERIFYJOB_ENABLED", c.VerifyJob.Enabled)
	if v := getEnvInt("ORBITAL_VERIFYJOB_INTERVAL_COMMITS", 0); v > 0 {
		c.VerifyJob.IntervalCommits = uint64(v)
	}
	c.VerifyJob.CloudTasks.ProjectID = getEnv("ORBITAL_CLOUDTASKS_PROJECT", c.VerifyJob.CloudTasks.ProjectID)
	c.VerifyJob.CloudTasks.LocationID = getEnv("ORBITAL_CLOUDTASKS_LOCATION", c.VerifyJob.CloudTasks.LocationID)
	c.VerifyJob.CloudTasks.QueueID = getEnv("ORBITAL_CLOUDTASKS_QUEUE", c.VerifyJob.CloudTasks.QueueID)

	c.SyncTap.Enabled = getEnvBool("ORBITAL_SYNCTAP_ENABLED", c.SyncTap.Enabled)
}

func (c *Config) applyDefaults() {
	if c.Server.AdminAddr == "" {
		c.Server.AdminAddr = ":8090"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Kernel.SysLogCapacity == 0 {
		c.Kernel.SysLogCapacity = 10000
	}
	if c.Kernel.MaxQueueDepth == 0 {
		c.Kernel.MaxQueueDepth = 256
	}
	if c.HAL.Backend == "" {
		c.HAL.Backend = "mem"
	}
	if c.Attestation.Backend == "" {
		c.Attestation.Backend = "noop"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.AuditBus.Backend == "" {
		c.AuditBus.Backend = "inprocess"
	}
	if c.VerifyJob.IntervalCommits == 0 {
		c.VerifyJob.IntervalCommits = 500
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }
