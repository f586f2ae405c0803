package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	// CrewFile overrides the embedded crew definition when set.
	CrewFile    string
	TaskTimeout time.Duration
	TraceDir    string

	LLM      LLMConfig
	Search   SearchConfig
	Store    StoreConfig
	Artifact ArtifactConfig
}

type LLMConfig struct {
	Model           string
	Provider        string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	RPS             float64
	Burst           int
	RetryAttempts   int
	CallTimeout     time.Duration
	MaxIters        int
}

type SearchConfig struct {
	Provider     string
	SerperAPIKey string
	SearxngURL   string
	Limit        int
}

type StoreConfig struct {
	// Backend is one of memory, disk, s3, postgres, sqlite.
	Backend     string
	Dir         string
	DatabaseURL string
	SQLitePath  string
}

type ArtifactConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CanUseS3 reports whether every required S3 setting is present.
func (a ArtifactConfig) CanUseS3() bool {
	return a.Endpoint != "" && a.AccessKey != "" && a.SecretKey != "" && a.Bucket != ""
}

// Load reads .env, then the command line, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse(os.Args[1:])
}

// Parse builds a Config from args and the process environment. PORT wins
// over -port.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("api", flag.ContinueOnError)
	port := fs.String("port", ":8081", "server port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}
	cfg := FromEnv()
	cfg.Port = *port
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv reads every setting except the port from the environment.
func FromEnv() Config {
	env := firstNonEmpty(getenv("APP_ENV"), "local")
	return Config{
		Env:         env,
		CrewFile:    getenv("CREW_CONFIG"),
		TaskTimeout: envDuration("TASK_TIMEOUT", 10*time.Minute),
		TraceDir:    firstNonEmpty(getenv("TRACE_DIR"), "tmp/run_logs"),
		LLM: LLMConfig{
			Model:           firstNonEmpty(getenv("MODEL"), "gemini/gemini-2.5-flash"),
			Provider:        getenv("LLM_PROVIDER"),
			GeminiAPIKey:    firstNonEmpty(getenv("GEMINI_API_KEY"), getenv("GOOGLE_API_KEY")),
			OpenAIAPIKey:    getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:   getenv("OPENAI_BASE_URL"),
			AnthropicAPIKey: getenv("ANTHROPIC_API_KEY"),
			RPS:             envFloat("LLM_RPS", 1),
			Burst:           envInt("LLM_BURST", 2),
			RetryAttempts:   envInt("LLM_RETRY_ATTEMPTS", 1),
			CallTimeout:     envDuration("LLM_CALL_TIMEOUT", 2*time.Minute),
			MaxIters:        envInt("AGENT_MAX_ITERS", 6),
		},
		Search: SearchConfig{
			Provider:     strings.ToLower(firstNonEmpty(getenv("SEARCH_PROVIDER"), "serper")),
			SerperAPIKey: getenv("SERPER_API_KEY"),
			SearxngURL:   getenv("SEARXNG_URL"),
			Limit:        envInt("SEARCH_LIMIT", 5),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(firstNonEmpty(getenv("REPORT_STORE"), "disk")),
			Dir:         firstNonEmpty(getenv("REPORT_DIR"), "tmp/reports"),
			DatabaseURL: getenv("DATABASE_URL"),
			SQLitePath:  firstNonEmpty(getenv("SQLITE_PATH"), "tmp/reports.db"),
		},
		Artifact: loadArtifactConfig(env),
	}
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "disk", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: REPORT_STORE=postgres requires DATABASE_URL")
		}
	case "s3":
		if !c.Artifact.CanUseS3() {
			return fmt.Errorf("config: REPORT_STORE=s3 requires ARTIFACT_S3_ENDPOINT, access key, secret key and bucket")
		}
	default:
		return fmt.Errorf("config: unknown REPORT_STORE %q", c.Store.Backend)
	}
	switch c.Search.Provider {
	case "serper", "searxng":
	default:
		return fmt.Errorf("config: unknown SEARCH_PROVIDER %q", c.Search.Provider)
	}
	return nil
}

func loadArtifactConfig(env string) ArtifactConfig {
	local := strings.EqualFold(env, "local")
	endpoint := getenv("ARTIFACT_S3_ENDPOINT")
	if local {
		endpoint = firstNonEmpty(endpoint, getenv("ARTIFACT_MINIO_ENDPOINT"))
	}
	useSSL := !local
	if raw := getenv("ARTIFACT_S3_USE_SSL"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			useSSL = v
		}
	}
	return ArtifactConfig{
		Endpoint:  endpoint,
		Region:    firstNonEmpty(getenv("ARTIFACT_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(getenv("ARTIFACT_S3_ACCESS_KEY"), getenv("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(getenv("ARTIFACT_S3_SECRET_KEY"), getenv("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(getenv("ARTIFACT_S3_BUCKET"), "world-economics-reports"),
		UseSSL:    useSSL,
	}
}

func getenv(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(getenv(key)); err == nil {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(getenv(key), 64); err == nil {
		return v
	}
	return def
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	raw := getenv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
