package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted by WEBCHAT_PROVIDER.
const (
	ProviderAWS    = "aws"
	ProviderMemory = "memory"
)

// Function kinds accepted by WEBCHAT_FUNCTION. One Lambda binary serves all of them.
const (
	FunctionAPI       = "api"
	FunctionLifecycle = "lifecycle"
	FunctionArchiver  = "archiver"
	FunctionSweeper   = "sweeper"
)

// Record store backends accepted by RECORD_STORE.
const (
	RecordStoreObject = "object"
	RecordStoreSQLite = "sqlite"
)

// Roles holds the principal ARNs written into topic and queue access policies.
// Each one names the function role that is allowed to perform a single step of
// the room or session lifecycle.
type Roles struct {
	// Subscribe is the role that creates sessions (subscribes queues to room topics)
	Subscribe string

	// Publish is the role that posts messages to room topics
	Publish string

	// Poller is the role that receives from session queues
	Poller string

	// Acknowledger is the role that deletes received messages
	Acknowledger string

	// Lifecycle is the role that closes and tears down rooms
	Lifecycle string

	// QueueDelete is the role allowed to delete session queues during cleanup
	QueueDelete string

	// TopicDelete is the role allowed to delete room topics during cleanup
	TopicDelete string

	// Own is the role of the running function, used for self-granted statements
	Own string

	// SuccessFeedback and FailureFeedback are the delivery status logging roles
	SuccessFeedback string
	FailureFeedback string
}

// Config holds all environment configuration values for the application.
// These values are loaded from a .env file at startup.
type Config struct {
	// ServerPort is the port the local HTTP server listens on
	ServerPort string

	// CorsOrigins lists the origins allowed by the local server and API responses
	CorsOrigins []string

	// LogLevel and LogFormat configure the logrus logger
	LogLevel  string
	LogFormat string

	// Provider selects the cloud backend: "aws" or "memory"
	Provider string

	// FunctionKind selects which handler the Lambda binary starts
	FunctionKind string

	// RecordStore selects where room and session records live: "object" or "sqlite"
	RecordStore string
	SQLiteDSN   string

	// AWSRegion is used for SDK configuration and log group naming
	AWSRegion string

	// ProjectPrefix is prepended to every topic, queue and log group name
	ProjectPrefix string

	// SharedBucket stores room records and archived event logs
	SharedBucket string

	Roles Roles

	// ArchiverFunctionARN is subscribed to every room topic when set
	ArchiverFunctionARN string

	// StateMachineARN runs the room lifecycle when set
	StateMachineARN string

	// LifecycleFunctionARN is the function each state machine tick invokes
	LifecycleFunctionARN string

	// MetricNamespace receives the dwell time metric of each room log group
	MetricNamespace string

	// UserPoolID is used to resolve author display names
	UserPoolID string

	// AdminIdentityIDs may delete any session
	AdminIdentityIDs []string

	// RoomDuration is how long a room stays open before it is closed
	RoomDuration time.Duration

	// InflightWait is how long a closed room drains before teardown
	InflightWait time.Duration

	// PollWait is the long-poll window of a single poll (at most 20s)
	PollWait time.Duration

	// PollBatchSize is the maximum number of messages returned per poll (at most 10)
	PollBatchSize int

	// OrphanThreshold is the age after which a session of a gone room is swept
	OrphanThreshold time.Duration

	// SweepInterval is how often the local server runs the orphan sweeper
	SweepInterval time.Duration

	// QueueCacheTTL and QueueCacheSize bound the queue URL cache
	QueueCacheTTL  time.Duration
	QueueCacheSize int
}

// Load reads environment variables and returns a populated Config struct.
// It will load from a .env file if present, then read from environment variables.
// Falls back to sensible defaults if values are not set.
func Load() *Config {
	// Attempt to load .env file - not an error if it doesn't exist
	// as we may be running in production with real environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		ServerPort:      getEnv("PORT", "8080"),
		CorsOrigins:     getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		Provider:        strings.ToLower(getEnv("WEBCHAT_PROVIDER", ProviderMemory)),
		FunctionKind:    strings.ToLower(getEnv("WEBCHAT_FUNCTION", FunctionAPI)),
		RecordStore:     strings.ToLower(getEnv("RECORD_STORE", RecordStoreObject)),
		SQLiteDSN:       getEnv("SQLITE_DSN", "file:webchat.db"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		ProjectPrefix:   getEnv("PROJECT_GLOBAL_PREFIX", "web-chat"),
		SharedBucket:    getEnv("SHARED_BUCKET", ""),
		MetricNamespace: getEnv("METRIC_NAMESPACE", "WebChat"),
		Roles: Roles{
			Subscribe:       getEnv("SUBSCRIBE_FUNCTION_ROLE", ""),
			Publish:         getEnv("PUBLISH_FUNCTION_ROLE", ""),
			Poller:          getEnv("SESSION_POLLER_ROLE", ""),
			Acknowledger:    getEnv("ACKNOWLEDGER_FUNCTION_ROLE", ""),
			Lifecycle:       getEnv("ROOM_LIFECYCLE_FUNCTION_ROLE", ""),
			QueueDelete:     getEnv("QUEUE_DELETE_FUNCTION_ROLE", ""),
			TopicDelete:     getEnv("DELETE_ROOM_TOPIC_ROLE", ""),
			Own:             getEnv("OWN_FUNCTION_ROLE", ""),
			SuccessFeedback: getEnv("SNS_SUCCESS_FEEDBACK_ROLE", ""),
			FailureFeedback: getEnv("SNS_FAILURE_FEEDBACK_ROLE", ""),
		},
		ArchiverFunctionARN:  getEnv("ARCHIVER_FUNCTION_ARN", ""),
		StateMachineARN:      getEnv("ROOM_STATE_MACHINE_ARN", ""),
		LifecycleFunctionARN: getEnv("LIFECYCLE_FUNCTION_ARN", ""),
		UserPoolID:           getEnv("COGNITO_USER_POOL_ID", ""),
		AdminIdentityIDs:     getEnvList("ADMIN_IDENTITY_IDS", nil),
		RoomDuration:         getEnvDuration("ROOM_DURATION", time.Hour),
		InflightWait:         getEnvDuration("INFLIGHT_WAIT", 15*time.Second),
		PollWait:             getEnvDuration("POLL_WAIT", 20*time.Second),
		PollBatchSize:        getEnvInt("POLL_BATCH_SIZE", 10),
		OrphanThreshold:      getEnvDuration("ORPHAN_THRESHOLD", 2*time.Hour),
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		QueueCacheTTL:        getEnvDuration("QUEUE_CACHE_TTL", 5*time.Minute),
		QueueCacheSize:       getEnvInt("QUEUE_CACHE_SIZE", 256),
	}

	// The provider caps a long poll at 20 seconds and 10 messages
	if config.PollWait > 20*time.Second {
		log.Printf("WARNING: POLL_WAIT %v exceeds 20s, clamping", config.PollWait)
		config.PollWait = 20 * time.Second
	}
	if config.PollBatchSize < 1 || config.PollBatchSize > 10 {
		log.Printf("WARNING: POLL_BATCH_SIZE %d out of range, using 10", config.PollBatchSize)
		config.PollBatchSize = 10
	}

	return config
}

// Validate reports the settings the selected provider cannot run without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderAWS, ProviderMemory:
	default:
		errs = append(errs, fmt.Errorf("WEBCHAT_PROVIDER %q is not one of aws, memory", c.Provider))
	}
	switch c.RecordStore {
	case RecordStoreObject, RecordStoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("RECORD_STORE %q is not one of object, sqlite", c.RecordStore))
	}
	if c.ProjectPrefix == "" {
		errs = append(errs, errors.New("PROJECT_GLOBAL_PREFIX is not set"))
	}

	if c.Provider == ProviderAWS {
		required := map[string]string{
			"SHARED_BUCKET":                c.SharedBucket,
			"SUBSCRIBE_FUNCTION_ROLE":      c.Roles.Subscribe,
			"PUBLISH_FUNCTION_ROLE":        c.Roles.Publish,
			"SESSION_POLLER_ROLE":          c.Roles.Poller,
			"ACKNOWLEDGER_FUNCTION_ROLE":   c.Roles.Acknowledger,
			"ROOM_LIFECYCLE_FUNCTION_ROLE": c.Roles.Lifecycle,
			"QUEUE_DELETE_FUNCTION_ROLE":   c.Roles.QueueDelete,
			"DELETE_ROOM_TOPIC_ROLE":       c.Roles.TopicDelete,
			"OWN_FUNCTION_ROLE":            c.Roles.Own,
		}
		for _, key := range sortedKeys(required) {
			if required[key] == "" {
				errs = append(errs, fmt.Errorf("%s is not set", key))
			}
		}
	}

	return errors.Join(errs...)
}

// IsAdmin reports whether the identity may act on sessions it does not own.
func (c *Config) IsAdmin(identityID string) bool {
	for _, id := range c.AdminIdentityIDs {
		if id == identityID {
			return true
		}
	}
	return false
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("WARNING: %s=%q is not an integer, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("90s", "1h") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARNING: %s=%q is not a duration, using %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}

// getEnvList splits a comma-separated variable and trims whitespace
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
