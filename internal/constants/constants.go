package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixEnqueue = "enqueue:"
)

const (
	DefaultInputTopic        = "outgoing_messages"
	DefaultNotificationTopic = "bundle_notifications"
)

const (
	DefaultMongoDBName           = "edihub"
	DefaultArchiveCollectionName = "archived_documents"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultIdempotencyTTLSeconds = 3600
)

const (
	DefaultSchedulerIntervalSeconds = 30
	DefaultSchedulerConcurrency     = 4
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
	FallbackError = "error"
)
