package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// NewClient creates and configures a Kafka client with the provided settings.
// It sets up consistent configuration for both producers and consumers.
func NewClient(cfg *Config) (sarama.Client, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	// Consumer settings. Auto-commit is disabled: offsets are only committed
	// after a notice reaches a terminal state or is suppressed as a
	// duplicate, so a worker crash mid-delivery results in redelivery rather
	// than a lost notification.
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	config.Consumer.Group.Member.UserData = []byte(cfg.ClientID)
	config.Consumer.Offsets.AutoCommit.Enable = false

	// Producer settings. WaitForAll keeps a published notice durable across
	// broker failover; the hash partitioner keys by notice ID so redeliveries
	// of the same notice always land on the same partition.
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	config.Version = sarama.V3_6_0_0

	return sarama.NewClient(cfg.Brokers, config)
}
