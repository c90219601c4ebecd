package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 10,
		},
		Broker: BrokerConfig{
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "outbox-service",
				Retry:   RetryConfig{Multiplier: 2.0},
			},
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:   "localhost",
				Port:   5432,
				User:   "edihub",
				DBName: "edihub",
			},
		},
		Outbox: OutboxConfig{
			Sender: SenderConfig{
				ActorNumber: "5790001330552",
				ActorRole:   "metered_data_administrator",
			},
		},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:      "port out of range",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantError: "server.port",
		},
		{
			name:      "no kafka brokers",
			mutate:    func(c *Config) { c.Broker.Kafka.Brokers = nil },
			wantError: "broker.kafka.brokers",
		},
		{
			name:      "missing group id",
			mutate:    func(c *Config) { c.Broker.Kafka.GroupID = "" },
			wantError: "broker.kafka.group_id",
		},
		{
			name:      "missing postgres host",
			mutate:    func(c *Config) { c.Database.Postgres.Host = "" },
			wantError: "database.postgres.host",
		},
		{
			name:      "invalid ssl mode",
			mutate:    func(c *Config) { c.Database.Postgres.SSLMode = "maybe" },
			wantError: "database.postgres.sslmode",
		},
		{
			name:      "mongo uri without scheme",
			mutate:    func(c *Config) { c.Database.MongoDB.URI = "localhost:27017" },
			wantError: "database.mongodb.uri",
		},
		{
			name:      "missing sender number",
			mutate:    func(c *Config) { c.Outbox.Sender.ActorNumber = "" },
			wantError: "outbox.sender.actor_number",
		},
		{
			name:      "missing sender role",
			mutate:    func(c *Config) { c.Outbox.Sender.ActorRole = "" },
			wantError: "outbox.sender.actor_role",
		},
		{
			name:      "negative scheduler interval",
			mutate:    func(c *Config) { c.Outbox.SchedulerIntervalSeconds = -1 },
			wantError: "outbox.scheduler_interval_seconds",
		},
		{
			name: "bundling override without document type",
			mutate: func(c *Config) {
				c.Outbox.Bundling = []BundlingPolicyConfig{{MaxSize: 10}}
			},
			wantError: "outbox.bundling[0].document_type",
		},
		{
			name: "negative bundling max size",
			mutate: func(c *Config) {
				c.Outbox.Bundling = []BundlingPolicyConfig{{DocumentType: "NotifyAggregatedMeasureData", MaxSize: -1}}
			},
			wantError: "outbox.bundling[0].max_size",
		},
		{
			name:      "invalid idempotency fallback",
			mutate:    func(c *Config) { c.Idempotency.OnRedisError = "panic" },
			wantError: "idempotency.on_redis_error",
		},
		{
			name:      "negative idempotency ttl",
			mutate:    func(c *Config) { c.Idempotency.TTLSeconds = -1 },
			wantError: "idempotency.ttl_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.wantError == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantError)
			}
		})
	}
}
