package blobsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    Config
		wantErr string
	}{
		{
			name:   "defaults are filled in",
			config: Config{ItemSizeBytes: 8},
			want: Config{
				ItemSizeBytes:    8,
				ItemsPerBlock:    DefaultItemsPerBlock,
				QueueDepth:       DefaultQueueDepth,
				RetryTotal:       DefaultRetryTotal,
				CompressionLevel: DefaultCompressionLevel,
			},
		},
		{
			name: "explicit values are kept",
			config: Config{
				ItemSizeBytes:    4,
				ItemsPerBlock:    1000,
				QueueDepth:       2,
				RetryTotal:       5,
				CompressBlocks:   true,
				CompressionLevel: 9,
			},
			want: Config{
				ItemSizeBytes:    4,
				ItemsPerBlock:    1000,
				QueueDepth:       2,
				RetryTotal:       5,
				CompressBlocks:   true,
				CompressionLevel: 9,
			},
		},
		{
			name:    "item size is required",
			config:  Config{},
			wantErr: "item size should be at least 1 byte",
		},
		{
			name:    "negative items per block",
			config:  Config{ItemSizeBytes: 8, ItemsPerBlock: -1},
			wantErr: "items per block should be at least 1",
		},
		{
			name:    "negative queue depth",
			config:  Config{ItemSizeBytes: 8, QueueDepth: -1},
			wantErr: "queue depth should be at least 1",
		},
		{
			name:    "compression level out of range",
			config:  Config{ItemSizeBytes: 8, CompressionLevel: 22},
			wantErr: "compression level should be between 1 and 19",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := createConfig(tt.config)

			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConfig(t *testing.T) {
	envRepo := fakeEnvRepo{envVars: map[string]string{
		"item_size_bytes": "8",
		"items_per_block": "250000",
		"compress_blocks": "true",
	}}

	config, err := ParseConfig(envRepo)
	require.NoError(t, err)

	assert.Equal(t, 8, config.ItemSizeBytes)
	assert.Equal(t, 250000, config.ItemsPerBlock)
	assert.Equal(t, DefaultQueueDepth, config.QueueDepth)
	assert.Equal(t, DefaultRetryTotal, config.RetryTotal)
	assert.True(t, config.CompressBlocks)
	assert.Equal(t, DefaultCompressionLevel, config.CompressionLevel)
}

func TestParseConfig_MissingItemSize(t *testing.T) {
	envRepo := fakeEnvRepo{envVars: map[string]string{}}

	_, err := ParseConfig(envRepo)
	require.Error(t, err)
}

func TestConfigBlockSizeBytes(t *testing.T) {
	config := Config{ItemSizeBytes: 8, ItemsPerBlock: 500000}
	assert.Equal(t, 4000000, config.blockSizeBytes())
}
