package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything the server needs from its environment so main
// stays lean.
type Config struct {
	Addr        string
	AdminToken  string
	Environment string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	AWS       AWSConfig
	Rule      RuleConfig
	Functions FunctionsConfig
	Timeouts  TimeoutConfig
	RanksFile string
	InboundMX string
}

// RedisConfig controls the optional Redis idempotency claim cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig controls the optional delivery event stream.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// AWSConfig names the buckets and region used by the object storage,
// verification, and routing rule ports.
type AWSConfig struct {
	Region            string
	AttachmentsBucket string
	DatabaseBucket    string
}

// RuleConfig identifies the provider-side routing rule and its hard cap.
type RuleConfig struct {
	RuleSet string
	Name    string
	Cap     int
}

// FunctionsConfig holds Cloudflare Workers credentials for the per-domain
// function platform.
type FunctionsConfig struct {
	APIToken         string
	AccountID        string
	WorkersSubdomain string
}

// TimeoutConfig bounds every external call the pipeline makes.
type TimeoutConfig struct {
	Pipeline time.Duration
	Webhook  time.Duration
	Function time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:        getenv("MAILHOOK_ADDR", ":8080"),
		AdminToken:  os.Getenv("MAILHOOK_ADMIN_TOKEN"),
		Environment: getenv("MAILHOOK_ENVIRONMENT", "prod"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getint("REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   getenv("KAFKA_TOPIC", "mailhook.deliveries"),
		},
		AWS: AWSConfig{
			Region:            getenv("AWS_REGION", "us-east-1"),
			AttachmentsBucket: os.Getenv("MAILHOOK_ATTACHMENTS_BUCKET"),
			DatabaseBucket:    os.Getenv("MAILHOOK_DATABASE_BUCKET"),
		},
		Rule: RuleConfig{
			RuleSet: getenv("MAILHOOK_RULE_SET", "mailhook-inbound"),
			Name:    getenv("MAILHOOK_RULE_NAME", "mailhook-recipients"),
			Cap:     getint("MAILHOOK_RULE_CAP", 100),
		},
		Functions: FunctionsConfig{
			APIToken:         os.Getenv("CLOUDFLARE_API_TOKEN"),
			AccountID:        os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			WorkersSubdomain: os.Getenv("CLOUDFLARE_WORKERS_SUBDOMAIN"),
		},
		Timeouts: TimeoutConfig{
			Pipeline: getduration("MAILHOOK_PIPELINE_TIMEOUT", 30*time.Second),
			Webhook:  getduration("MAILHOOK_WEBHOOK_TIMEOUT", 10*time.Second),
			Function: getduration("MAILHOOK_FUNCTION_TIMEOUT", 10*time.Second),
		},
		RanksFile: os.Getenv("MAILHOOK_ENV_RANKS_FILE"),
		InboundMX: getenv("MAILHOOK_INBOUND_MX", "inbound-smtp.us-east-1.amazonaws.com"),
	}
}

// LoadEnvRanks reads the environment-name → priority-rank table. The table is
// deployment policy, not code, so it lives in a mounted YAML file. An empty
// path yields an empty table (every environment ranks lowest).
func LoadEnvRanks(path string) (map[string]int, error) {
	if path == "" {
		return map[string]int{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read env ranks file: %w", err)
	}
	var doc struct {
		Environments map[string]int `yaml:"environments"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse env ranks file: %w", err)
	}
	if doc.Environments == nil {
		doc.Environments = map[string]int{}
	}
	return doc.Environments, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
