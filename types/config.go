package types

import (
	"fmt"

	"github.com/mitchellh/hashstructure"
	"github.com/variable-kang/0.9to0.10MirrorMaker/constants"
	"github.com/variable-kang/0.9to0.10MirrorMaker/utils"
)

// Config is the operator-facing configuration of one mirroring process.
type Config struct {
	Source                 SourceConfig      `json:"source"`
	Destination            DestinationConfig `json:"destination"`
	Streams                int               `json:"streams,omitempty"`
	OffsetCommitIntervalMs int64             `json:"offset_commit_interval_ms,omitempty"`
	AbortOnSendFailure     *bool             `json:"abort_on_send_failure,omitempty"`
	ProducerMode           SendMode          `json:"producer_mode,omitempty"`
	MessageHandler         string            `json:"message_handler,omitempty"`
	MessageHandlerArg      string            `json:"message_handler_arg,omitempty"`
	MetricsPort            int               `json:"metrics_port,omitempty"`
}

type SourceConfig struct {
	BootstrapServers   string         `json:"bootstrap_servers" validate:"required"`
	Topics             []string       `json:"topics" validate:"required,min=1,dive,required"`
	ConsumerGroup      string         `json:"consumer_group,omitempty"`
	AutoOffsetReset    string         `json:"auto_offset_reset,omitempty"`
	PollTimeoutMs      int64          `json:"poll_timeout_ms,omitempty"`
	QueueSize          int            `json:"queue_size,omitempty"`
	SessionTimeoutMs   int64          `json:"session_timeout_ms,omitempty"`
	RebalanceTimeoutMs int64          `json:"rebalance_timeout_ms,omitempty"`
	Protocol           ProtocolConfig `json:"protocol"`
}

type ProtocolConfig struct {
	SecurityProtocol string `json:"security_protocol,omitempty"`
	SASLMechanism    string `json:"sasl_mechanism,omitempty"`
	SASLUsername     string `json:"sasl_username,omitempty"`
	SASLPassword     string `json:"sasl_password,omitempty"`
}

type DestinationConfig struct {
	BootstrapServers string `json:"bootstrap_servers" validate:"required"`
	ClientID         string `json:"client_id,omitempty"`
	Acks             string `json:"acks,omitempty" validate:"omitempty,oneof=all -1 0 1"`
	RequestTimeoutMs int32  `json:"request_timeout_ms,omitempty"`
	DialTimeoutMs    int64  `json:"dial_timeout_ms,omitempty"`
	SendRetries      int    `json:"send_retries,omitempty"`
	RetryBackoffMs   int64  `json:"retry_backoff_ms,omitempty"`
	QueueSize        int    `json:"queue_size,omitempty"`
}

func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config invalid: %w", err)
	}
	if err := c.Destination.Validate(); err != nil {
		return fmt.Errorf("destination config invalid: %w", err)
	}
	c.Streams = utils.Ternary(c.Streams <= 0, 1, c.Streams).(int)
	c.OffsetCommitIntervalMs = utils.Ternary(c.OffsetCommitIntervalMs <= 0, int64(constants.DefaultCommitIntervalMs), c.OffsetCommitIntervalMs).(int64)
	c.ProducerMode = utils.Ternary(c.ProducerMode == "", SendModeAsync, c.ProducerMode).(SendMode)
	if c.ProducerMode != SendModeSync && c.ProducerMode != SendModeAsync {
		return fmt.Errorf("producer_mode must be 'sync' or 'async'")
	}
	c.MessageHandler = utils.Ternary(c.MessageHandler == "", "identity", c.MessageHandler).(string)
	if c.AbortOnSendFailure == nil {
		abort := true
		c.AbortOnSendFailure = &abort
	}
	return utils.Validate(c)
}

// Abort reports whether the pipeline stops on the first permanent send failure.
func (c *Config) Abort() bool {
	return c.AbortOnSendFailure == nil || *c.AbortOnSendFailure
}

func (c *SourceConfig) Validate() error {
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "earliest"
	} else if c.AutoOffsetReset != "earliest" && c.AutoOffsetReset != "latest" {
		return fmt.Errorf("auto_offset_reset must be 'earliest' or 'latest'")
	}
	c.PollTimeoutMs = utils.Ternary(c.PollTimeoutMs <= 0, int64(constants.DefaultPollTimeoutMs), c.PollTimeoutMs).(int64)
	c.QueueSize = utils.Ternary(c.QueueSize <= 0, 1024, c.QueueSize).(int)
	c.SessionTimeoutMs = utils.Ternary(c.SessionTimeoutMs <= 0, int64(30000), c.SessionTimeoutMs).(int64)
	c.RebalanceTimeoutMs = utils.Ternary(c.RebalanceTimeoutMs <= 0, int64(60000), c.RebalanceTimeoutMs).(int64)
	if err := c.Protocol.Validate(); err != nil {
		return err
	}
	if c.ConsumerGroup == "" {
		// stable fingerprint so restarts rejoin the same group
		hash, err := hashstructure.Hash(struct {
			Servers string
			Topics  []string
		}{c.BootstrapServers, c.Topics}, nil)
		if err != nil {
			return fmt.Errorf("failed to derive consumer group id: %w", err)
		}
		c.ConsumerGroup = fmt.Sprintf("mirrormaker-%x", hash)
	}
	return utils.Validate(c)
}

func (c *ProtocolConfig) Validate() error {
	c.SecurityProtocol = utils.Ternary(c.SecurityProtocol == "", "PLAINTEXT", c.SecurityProtocol).(string)
	switch c.SecurityProtocol {
	case "PLAINTEXT", "SSL":
		return nil
	case "SASL_PLAINTEXT", "SASL_SSL":
		switch c.SASLMechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return fmt.Errorf("sasl_mechanism must be 'PLAIN', 'SCRAM-SHA-256' or 'SCRAM-SHA-512'")
		}
		if c.SASLUsername == "" || c.SASLPassword == "" {
			return fmt.Errorf("sasl_username and sasl_password are required for %s", c.SecurityProtocol)
		}
		return nil
	default:
		return fmt.Errorf("security_protocol must be one of 'PLAINTEXT', 'SSL', 'SASL_PLAINTEXT', 'SASL_SSL'")
	}
}

func (c *DestinationConfig) Validate() error {
	c.Acks = utils.Ternary(c.Acks == "", "all", c.Acks).(string)
	c.RequestTimeoutMs = utils.Ternary(c.RequestTimeoutMs <= 0, int32(30000), c.RequestTimeoutMs).(int32)
	c.DialTimeoutMs = utils.Ternary(c.DialTimeoutMs <= 0, int64(10000), c.DialTimeoutMs).(int64)
	c.SendRetries = utils.Ternary(c.SendRetries <= 0, 3, c.SendRetries).(int)
	c.RetryBackoffMs = utils.Ternary(c.RetryBackoffMs <= 0, int64(100), c.RetryBackoffMs).(int64)
	c.QueueSize = utils.Ternary(c.QueueSize <= 0, 1024, c.QueueSize).(int)
	return utils.Validate(c)
}

// AcksInt16 maps the operator-facing acks value onto the wire representation.
func (c *DestinationConfig) AcksInt16() int16 {
	switch c.Acks {
	case "0":
		return 0
	case "1":
		return 1
	default: // "all" / "-1"
		return -1
	}
}
