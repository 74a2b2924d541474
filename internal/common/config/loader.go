package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.{APP_ENVIRONMENT}.yaml over
// it and applies environment overrides. Environment always wins.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading %s config: %w", env, err)
		}
	}

	return finish(v)
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// applyEnvOverrides applies the documented deployment variables on top of
// whatever the YAML files provided.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"DB_HOST":             &cfg.Database.Postgres.Host,
		"DB_NAME":             &cfg.Database.Postgres.Database,
		"DB_USER":             &cfg.Database.Postgres.User,
		"DB_PASSWORD":         &cfg.Database.Postgres.Password,
		"REDIS_ADDRESS":       &cfg.Database.Redis.Address,
		"KRA_CLIENT_ID":       &cfg.KRA.ClientID,
		"KRA_SECRET":          &cfg.KRA.ClientSecret,
		"KRA_BASE_URL":        &cfg.KRA.BaseURL,
		"GOV_API_KEY":         &cfg.Auth.APIKey,
		"MPESA_API_KEY":       &cfg.MPesa.APIKey,
		"NLP_API_KEY":         &cfg.NLP.APIKey,
		"SNS_TOPIC_ARN":       &cfg.Notifications.SNS.TopicARN,
		"FRAUD_MODEL_SERVICE": &cfg.Fraud.ModelServiceURL,
	}
	for name, dst := range strs {
		if val, ok := os.LookupEnv(name); ok && val != "" {
			*dst = val
		}
	}

	if val := os.Getenv("DB_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("DB_PORT must be an integer: %w", err)
		}
		cfg.Database.Postgres.Port = port
	}
	if val := os.Getenv("FRAUD_DETECTION_THRESHOLD"); val != "" {
		threshold, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("FRAUD_DETECTION_THRESHOLD must be a number: %w", err)
		}
		cfg.Fraud.Threshold = threshold
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "kra-assist"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "X-API-KEY"
	}
	if cfg.Auth.RateLimitRPS == 0 {
		cfg.Auth.RateLimitRPS = 10
	}
	if cfg.Auth.RateLimitBurst == 0 {
		cfg.Auth.RateLimitBurst = 20
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "data/knowledge.db"
	}

	if cfg.KRA.BaseURL == "" {
		cfg.KRA.BaseURL = "https://api.kra.go.ke/v1"
	}
	if cfg.KRA.TokenURL == "" {
		cfg.KRA.TokenURL = "https://api.kra.go.ke/oauth/token"
	}
	if cfg.KRA.Timeout == 0 {
		cfg.KRA.Timeout = 10000
	}
	if cfg.KRA.MaxRetries == 0 {
		cfg.KRA.MaxRetries = 3
	}
	if cfg.MPesa.Timeout == 0 {
		cfg.MPesa.Timeout = 10000
	}

	if cfg.NLP.StageTimeout == 0 {
		cfg.NLP.StageTimeout = 5000
	}
	if cfg.NLP.EscalationThreshold == 0 {
		cfg.NLP.EscalationThreshold = 0.65
	}

	if cfg.Dialogue.Backend == "" {
		cfg.Dialogue.Backend = "memory"
	}
	if cfg.Dialogue.TTL == 0 {
		cfg.Dialogue.TTL = 1800
	}
	if cfg.Dialogue.MaxTurns == 0 {
		cfg.Dialogue.MaxTurns = 20
	}

	if cfg.Knowledge.Backend == "" {
		cfg.Knowledge.Backend = "sqlite"
	}
	if cfg.Knowledge.Index == "" {
		cfg.Knowledge.Index = "tax_documents"
	}

	if cfg.Fraud.Threshold == 0 {
		cfg.Fraud.Threshold = 0.85
	}
	if cfg.Fraud.Contamination == 0 {
		cfg.Fraud.Contamination = 0.05
	}
	if cfg.Fraud.NEstimators == 0 {
		cfg.Fraud.NEstimators = 100
	}
	if cfg.Fraud.RandomState == 0 {
		cfg.Fraud.RandomState = 42
	}
	if cfg.Fraud.ModelPath == "" {
		cfg.Fraud.ModelPath = "models/fraud_detection/fraud_model.json"
	}
	if cfg.Fraud.RetrainThreshold == 0 {
		cfg.Fraud.RetrainThreshold = 1000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key (or GOV_API_KEY) is required")
	}
	if cfg.NLP.EscalationThreshold <= 0 || cfg.NLP.EscalationThreshold > 1 {
		return fmt.Errorf("nlp.escalation_threshold must be in (0, 1]")
	}
	if cfg.Fraud.Threshold <= 0 || cfg.Fraud.Threshold > 1 {
		return fmt.Errorf("fraud.threshold must be in (0, 1]")
	}

	switch cfg.Dialogue.Backend {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis dialogue backend")
		}
	default:
		return fmt.Errorf("dialogue.backend must be memory or redis, got %q", cfg.Dialogue.Backend)
	}

	switch cfg.Knowledge.Backend {
	case "sqlite":
	case "elasticsearch":
		if len(cfg.Database.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses is required for the elasticsearch knowledge backend")
		}
	default:
		return fmt.Errorf("knowledge.backend must be sqlite or elasticsearch, got %q", cfg.Knowledge.Backend)
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	return nil
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}

// PostgresConfigured reports whether enough connection details exist to
// attempt a Postgres connection.
func (c *Config) PostgresConfigured() bool {
	return c.Database.Postgres.Host != "" && c.Database.Postgres.Database != ""
}
