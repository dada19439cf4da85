package constants

// viper keys shared across commands
const (
	ConfigFolder  = "CONFIG_FOLDER"
	EncryptionKey = "ENCRYPTION_KEY"
)

const (
	// DefaultPollTimeoutMs bounds one receive call so low-volume streams
	// still reach their periodic commit check.
	DefaultPollTimeoutMs = 1000

	// DefaultCommitIntervalMs matches the consumer-side default commit
	// cadence.
	DefaultCommitIntervalMs = 60000
)
