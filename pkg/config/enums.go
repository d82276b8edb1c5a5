package config

// StateStoreBackend selects where actor state is persisted
type StateStoreBackend string

const (
	// StateStoreMemory keeps state in process memory (single replica, no durability)
	StateStoreMemory StateStoreBackend = "memory"
	// StateStorePostgres stores state in the actor_state table
	StateStorePostgres StateStoreBackend = "postgres"
	// StateStoreRedis stores state as Redis string keys
	StateStoreRedis StateStoreBackend = "redis"
	// StateStoreBadger stores state in an embedded Badger database
	StateStoreBadger StateStoreBackend = "badger"
)

// IsValid checks if the backend is known
func (b StateStoreBackend) IsValid() bool {
	switch b {
	case StateStoreMemory, StateStorePostgres, StateStoreRedis, StateStoreBadger:
		return true
	default:
		return false
	}
}

// RelayBus selects how room events reach connections held by other replicas
type RelayBus string

const (
	// RelayBusLocal delivers in process only
	RelayBusLocal RelayBus = "local"
	// RelayBusPostgres fans out through PostgreSQL LISTEN/NOTIFY
	RelayBusPostgres RelayBus = "postgres"
	// RelayBusRedis fans out through Redis pub/sub
	RelayBusRedis RelayBus = "redis"
)

// IsValid checks if the bus is known
func (b RelayBus) IsValid() bool {
	switch b {
	case RelayBusLocal, RelayBusPostgres, RelayBusRedis:
		return true
	default:
		return false
	}
}

// CommandPublisher selects where embedding commands are sent
type CommandPublisher string

const (
	// CommandPublisherRedis publishes commands on a Redis channel
	CommandPublisherRedis CommandPublisher = "redis"
	// CommandPublisherLog only logs commands (development)
	CommandPublisherLog CommandPublisher = "log"
)

// IsValid checks if the publisher is known
func (p CommandPublisher) IsValid() bool {
	switch p {
	case CommandPublisherRedis, CommandPublisherLog:
		return true
	default:
		return false
	}
}
