package blobsink

import (
	"fmt"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-utils/v2/env"
)

const (
	// DefaultItemsPerBlock is the number of stream items staged per block when not configured.
	DefaultItemsPerBlock = 500000
	// DefaultQueueDepth is the number of completed blocks buffered between accumulation and upload.
	DefaultQueueDepth = 4
	// DefaultRetryTotal is the retry budget passed through to the backing store.
	DefaultRetryTotal = 10
	// DefaultCompressionLevel is the zstd level used when block compression is enabled.
	DefaultCompressionLevel = 3
)

// Config holds the sink's tuning parameters. Fixed at session creation.
type Config struct {
	// ItemSizeBytes is the byte width of a single stream item. The sink only
	// ever consumes whole items.
	ItemSizeBytes int

	// ItemsPerBlock is how many items make up one staged block.
	// Default: 500000
	ItemsPerBlock int

	// QueueDepth is how many completed blocks to buffer before deferring.
	// Larger numbers require more memory overhead. Default: 4
	QueueDepth int

	// RetryTotal is the per-call retry budget for backing store operations.
	// Default: 10
	RetryTotal int

	// CompressBlocks enables zstd compression of each block before staging.
	CompressBlocks bool

	// CompressionLevel is the zstd compression level used when CompressBlocks
	// is set. Valid values are between 1 and 19. If not provided (0), the
	// default value (3) will be used.
	CompressionLevel int
}

// Input is the env-var driven configuration of the sink.
type Input struct {
	ItemSizeBytes    int  `env:"item_size_bytes,required"`
	ItemsPerBlock    int  `env:"items_per_block"`
	QueueDepth       int  `env:"queue_depth"`
	RetryTotal       int  `env:"retry_total"`
	CompressBlocks   bool `env:"compress_blocks"`
	CompressionLevel int  `env:"compression_level"`
}

// ParseConfig reads the sink configuration from environment variables.
func ParseConfig(envRepo env.Repository) (Config, error) {
	var input Input
	if err := stepconf.NewInputParser(envRepo).Parse(&input); err != nil {
		return Config{}, fmt.Errorf("parse sink inputs: %w", err)
	}

	return createConfig(Config{
		ItemSizeBytes:    input.ItemSizeBytes,
		ItemsPerBlock:    input.ItemsPerBlock,
		QueueDepth:       input.QueueDepth,
		RetryTotal:       input.RetryTotal,
		CompressBlocks:   input.CompressBlocks,
		CompressionLevel: input.CompressionLevel,
	})
}

func createConfig(config Config) (Config, error) {
	if config.ItemsPerBlock == 0 {
		config.ItemsPerBlock = DefaultItemsPerBlock
	}
	if config.QueueDepth == 0 {
		config.QueueDepth = DefaultQueueDepth
	}
	if config.RetryTotal == 0 {
		config.RetryTotal = DefaultRetryTotal
	}
	if config.CompressionLevel == 0 {
		config.CompressionLevel = DefaultCompressionLevel
	}

	if config.ItemSizeBytes < 1 {
		return Config{}, fmt.Errorf("item size should be at least 1 byte")
	}
	if config.ItemsPerBlock < 1 {
		return Config{}, fmt.Errorf("items per block should be at least 1")
	}
	if config.QueueDepth < 1 {
		return Config{}, fmt.Errorf("queue depth should be at least 1")
	}
	if config.RetryTotal < 1 {
		return Config{}, fmt.Errorf("retry total should be at least 1")
	}
	if config.CompressionLevel < 1 || config.CompressionLevel > 19 {
		return Config{}, fmt.Errorf("compression level should be between 1 and 19")
	}

	return config, nil
}

func (c Config) blockSizeBytes() int {
	return c.ItemSizeBytes * c.ItemsPerBlock
}
