package config

import (
	"fmt"
	"time"
)

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Auth          AuthConfig              `mapstructure:"auth"`
	Database      DatabaseConfig          `mapstructure:"database"`
	KRA           KRAConfig               `mapstructure:"kra"`
	MPesa         MPesaConfig             `mapstructure:"mpesa"`
	NLP           NLPConfig               `mapstructure:"nlp"`
	Dialogue      DialogueConfig          `mapstructure:"dialogue"`
	Knowledge     KnowledgeConfig         `mapstructure:"knowledge"`
	Fraud         FraudConfig             `mapstructure:"fraud"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type AuthConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Header         string  `mapstructure:"header"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
	SQLite        SQLiteConfig        `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type KRAConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Timeout      int    `mapstructure:"timeout"` // milliseconds, per attempt
	MaxRetries   int    `mapstructure:"max_retries"`
}

type MPesaConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type NLPConfig struct {
	IntentURL           string  `mapstructure:"intent_url"`
	EntityURL           string  `mapstructure:"entity_url"`
	SentimentURL        string  `mapstructure:"sentiment_url"`
	APIKey              string  `mapstructure:"api_key"`
	StageTimeout        int     `mapstructure:"stage_timeout"` // milliseconds
	RuleBasedEntities   bool    `mapstructure:"rule_based_entities"`
	EscalationThreshold float64 `mapstructure:"escalation_threshold"`
}

type DialogueConfig struct {
	Backend  string `mapstructure:"backend"` // memory | redis
	TTL      int    `mapstructure:"ttl"`     // seconds of inactivity before a history expires
	MaxTurns int    `mapstructure:"max_turns"`
}

type KnowledgeConfig struct {
	Backend string `mapstructure:"backend"` // elasticsearch | sqlite
	Index   string `mapstructure:"index"`
}

type FraudConfig struct {
	Threshold        float64 `mapstructure:"threshold"`
	Contamination    float64 `mapstructure:"contamination"`
	NEstimators      int     `mapstructure:"n_estimators"`
	RandomState      int     `mapstructure:"random_state"`
	ModelPath        string  `mapstructure:"model_path"`
	ModelServiceURL  string  `mapstructure:"model_service_url"`
	RetrainThreshold int     `mapstructure:"retrain_threshold"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type NotificationConfig struct {
	Region string `mapstructure:"region"`
	SNS    struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SES struct {
		Enabled      bool   `mapstructure:"enabled"`
		FromEmail    string `mapstructure:"from_email"`
		SupportEmail string `mapstructure:"support_email"`
	} `mapstructure:"ses"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
