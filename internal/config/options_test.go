package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	opts, err := Load()
	require.NoError(t, err)

	require.Equal(t, "localhost:7946", opts.NodeAddress)
	require.Equal(t, 256, opts.ShardMailboxSize)
	require.Equal(t, 5*time.Minute, opts.SnapshotInterval)
	require.Equal(t, "zstd", opts.PersistenceCompression)
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("ENTITYRT_NODE_ADDRESS", "10.0.4.12:7946")
	t.Setenv("ENTITYRT_SHARD_MAILBOX_SIZE", "1024")
	t.Setenv("ENTITYRT_PERSISTENCE_COMPRESSION", "none")

	opts, err := Load()
	require.NoError(t, err)

	require.Equal(t, "10.0.4.12:7946", opts.NodeAddress)
	require.Equal(t, 1024, opts.ShardMailboxSize)
	require.Equal(t, "none", opts.PersistenceCompression)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RuntimeOptions)
		wantErr string
	}{
		{
			name:    "zero shard mailbox",
			mutate:  func(o *RuntimeOptions) { o.ShardMailboxSize = 0 },
			wantErr: "ENTITYRT_SHARD_MAILBOX_SIZE",
		},
		{
			name:    "negative max concurrent shutdowns",
			mutate:  func(o *RuntimeOptions) { o.MaxConcurrentShutdowns = -1 },
			wantErr: "ENTITYRT_MAX_CONCURRENT_SHUTDOWNS",
		},
		{
			name:    "unknown compression",
			mutate:  func(o *RuntimeOptions) { o.PersistenceCompression = "lz4" },
			wantErr: "ENTITYRT_PERSISTENCE_COMPRESSION",
		},
		{
			name:    "unknown log level",
			mutate:  func(o *RuntimeOptions) { o.LogLevel = "verbose" },
			wantErr: "ENTITYRT_LOG_LEVEL",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := Load()
			require.NoError(t, err)

			tc.mutate(opts)

			err = opts.Validate()
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
