package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Partitions)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)

	cfg, err = Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFull(t *testing.T) {
	yaml := `
partitions:
  - name: events
    path: /var/lib/flashfifo/events.img
    sector_size: 4096
    sectors: 64
    create: true
  - name: telemetry
    path: /var/lib/flashfifo/telemetry.img
    sector_size: 4096
queues:
  - name: sensor-readings
    partition: events
    record_size: 16
    overwrite: true
    recovery_mode: true
logging:
  level: warn
  output: stdout
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	require.Len(t, cfg.Partitions, 2)
	assert.Equal(t, "events", cfg.Partitions[0].Name)
	assert.Equal(t, uint32(4096), cfg.Partitions[0].SectorSize)
	assert.Equal(t, 64, cfg.Partitions[0].Sectors)
	assert.True(t, cfg.Partitions[0].Create)

	require.Len(t, cfg.Queues, 1)
	q := cfg.Queues[0]
	assert.Equal(t, "events", q.Partition)
	assert.Equal(t, uint32(16), q.RecordSize)
	assert.True(t, q.Overwrite)
	assert.True(t, q.RecoveryMode)

	assert.Equal(t, "warn", cfg.Logging.Level)

	p, ok := cfg.Partition("telemetry")
	assert.True(t, ok)
	assert.Equal(t, "/var/lib/flashfifo/telemetry.img", p.Path)
	_, ok = cfg.Partition("absent")
	assert.False(t, ok)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"PartitionWithoutName", "partitions:\n  - path: a.img\n    sector_size: 4096\n"},
		{"PartitionWithoutPath", "partitions:\n  - name: a\n    sector_size: 4096\n"},
		{"PartitionWithoutSectorSize", "partitions:\n  - name: a\n    path: a.img\n"},
		{"DuplicatePartition", "partitions:\n  - name: a\n    path: a.img\n    sector_size: 4096\n  - name: a\n    path: b.img\n    sector_size: 4096\n"},
		{"CreateWithoutSectors", "partitions:\n  - name: a\n    path: a.img\n    sector_size: 4096\n    create: true\n"},
		{"QueueUnknownPartition", "queues:\n  - name: q\n    partition: ghost\n    record_size: 16\n"},
		{"QueueWithoutRecordSize", "partitions:\n  - name: a\n    path: a.img\n    sector_size: 4096\nqueues:\n  - name: q\n    partition: a\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(strings.NewReader("partitions: ["))
	assert.Error(t, err)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile("does-not-exist.yaml")
	assert.Error(t, err)
}
