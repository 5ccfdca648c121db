package config

import (
	"flag"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DriverHBase    = "hbase"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is loaded from the environment, then overridden by flags. Missing
// store or broker addresses are not an error: the order routes answer 500
// until they are set.
type Config struct {
	HTTPAddr    string
	ServiceName string
	LogLevel    string

	StoreDriver string
	HBaseQuorum string
	PostgresDSN string
	OrdersTable string

	KafkaBrokers        []string
	KafkaGroup          string
	TopicOutForDelivery string
	TopicDelivered      string
	PollTimeout         time.Duration
	BatchLinger         time.Duration
	MaxBatch            int

	RedisAddr      string
	StatusCacheTTL time.Duration

	GuardTransitions bool
	JaegerEndpoint   string
	ShutdownTimeout  time.Duration
}

// Load reads the environment and the process flags.
func Load() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv)
}

// LoadEnv reads the environment only, for commands with their own flags.
func LoadEnv() (*Config, error) {
	return load(nil, os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	var errs []error
	cfg := &Config{
		HTTPAddr:    getenv(lookup, "HTTP_ADDR", ":8081"),
		ServiceName: getenv(lookup, "SERVICE_NAME", "courier-order"),
		LogLevel:    getenv(lookup, "LOG_LEVEL", "info"),

		StoreDriver: getenv(lookup, "STORE_DRIVER", DriverHBase),
		HBaseQuorum: getenv(lookup, "HBASE_ZK_QUORUM", ""),
		PostgresDSN: getenv(lookup, "POSTGRES_DSN", ""),
		OrdersTable: getenv(lookup, "ORDERS_TABLE", "orders"),

		KafkaBrokers:        splitCSV(getenv(lookup, "KAFKA_BROKERS", "")),
		KafkaGroup:          getenv(lookup, "KAFKA_GROUP", "order"),
		TopicOutForDelivery: getenv(lookup, "TOPIC_OUT_FOR_DELIVERY", "OrderOutForDelivery"),
		TopicDelivered:      getenv(lookup, "TOPIC_DELIVERED", "OrderDelivered"),
		PollTimeout:         getDuration(lookup, "POLL_TIMEOUT", time.Second, &errs),
		BatchLinger:         getDuration(lookup, "BATCH_LINGER", 50*time.Millisecond, &errs),
		MaxBatch:            getInt(lookup, "MAX_BATCH", 100, &errs),

		RedisAddr:      getenv(lookup, "REDIS_ADDR", ""),
		StatusCacheTTL: getDuration(lookup, "STATUS_CACHE_TTL", 5*time.Minute, &errs),

		GuardTransitions: getBool(lookup, "GUARD_TRANSITIONS", false, &errs),
		JaegerEndpoint:   getenv(lookup, "JAEGER_ENDPOINT", ""),
		ShutdownTimeout:  getDuration(lookup, "SHUTDOWN_TIMEOUT", 5*time.Second, &errs),
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}

	fs := flag.NewFlagSet("courier-order", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	brokers := strings.Join(cfg.KafkaBrokers, ",")
	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: hbase, postgres or memory")
	fs.StringVar(&cfg.HBaseQuorum, "hbase", cfg.HBaseQuorum, "HBase ZooKeeper quorum")
	fs.StringVar(&cfg.PostgresDSN, "pg", cfg.PostgresDSN, "PostgreSQL DSN for the postgres driver")
	fs.StringVar(&brokers, "brokers", brokers, "comma separated Kafka brokers")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.GuardTransitions, "guard", cfg.GuardTransitions, "reject transitions that do not move forward")
	fs.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "consumer poll timeout")
	fs.IntVar(&cfg.MaxBatch, "max-batch", cfg.MaxBatch, "maximum messages per consumer batch")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}
	cfg.KafkaBrokers = splitCSV(brokers)

	switch cfg.StoreDriver {
	case DriverHBase, DriverPostgres, DriverMemory:
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if cfg.KafkaGroup == "" {
		return nil, errors.New("kafka group must not be empty")
	}
	if cfg.OrdersTable == "" {
		return nil, errors.New("orders table must not be empty")
	}
	if cfg.TopicOutForDelivery == cfg.TopicDelivered {
		return nil, errors.Errorf("out-for-delivery and delivered topics must differ, both are %q", cfg.TopicDelivered)
	}
	if cfg.MaxBatch <= 0 {
		return nil, errors.Errorf("max batch must be positive, got %d", cfg.MaxBatch)
	}
	if cfg.PollTimeout <= 0 {
		return nil, errors.Errorf("poll timeout must be positive, got %s", cfg.PollTimeout)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return cfg, nil
}

func getenv(lookup envLookup, k, def string) string {
	if v, ok := lookup(k); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, k string, def int, errs *[]error) int {
	v := getenv(lookup, k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, errors.Wrapf(err, "invalid %s", k))
		return def
	}
	return n
}

func getDuration(lookup envLookup, k string, def time.Duration, errs *[]error) time.Duration {
	v := getenv(lookup, k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, errors.Wrapf(err, "invalid %s", k))
		return def
	}
	return d
}

func getBool(lookup envLookup, k string, def bool, errs *[]error) bool {
	v := getenv(lookup, k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, errors.Wrapf(err, "invalid %s", k))
		return def
	}
	return b
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
