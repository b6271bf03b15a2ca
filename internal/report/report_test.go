package report

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alshdavid/procmon/internal/config"
	"github.com/alshdavid/procmon/internal/models"
)

var (
	allColumns = Columns{CPU: true, Memory: true, Disk: true}
	msMB       = Units{Time: config.TimeMilliseconds, Memory: config.MemoryMebibytes}
)

func readReport(t *testing.T, s *Sink) [][]string {
	t.Helper()
	f, err := os.Open(s.Path())
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestHeader(t *testing.T) {
	tests := []struct {
		cols  Columns
		units Units
		want  string
	}{
		{allColumns, msMB, "time_ms,cpu,memory_mb,disk_read,disk_write"},
		{Columns{CPU: true}, Units{Time: config.TimeSeconds, Memory: config.MemoryBytes}, "time_s,cpu"},
		{Columns{Memory: true}, Units{Time: config.TimeMilliseconds, Memory: config.MemoryKibibytes}, "time_ms,memory_kb"},
		{Columns{Disk: true}, msMB, "time_ms,disk_read,disk_write"},
		{Columns{CPU: true, Memory: true}, msMB, "time_ms,cpu,memory_mb"},
		{Columns{}, msMB, "time_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, strings.Join(Header(tt.cols, tt.units), ","))
		})
	}
}

func TestFormat_Memory(t *testing.T) {
	raw := uint64(3*1048576 - 1)
	row := models.Row{Memory: &raw}
	cols := Columns{Memory: true}

	tests := []struct {
		unit config.MemoryUnit
		want string
	}{
		{config.MemoryBytes, "3145727"},
		{config.MemoryKibibytes, "3071"},
		{config.MemoryMebibytes, "2"},
	}
	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			line := Format(row, cols, Units{Time: config.TimeMilliseconds, Memory: tt.unit})
			assert.Equal(t, []string{"0", tt.want}, line, "memory must be truncated, never rounded up")
		})
	}
}

func TestFormat_Time(t *testing.T) {
	row := models.Row{Time: 1234567 * time.Microsecond}

	assert.Equal(t, []string{"1234"}, Format(row, Columns{}, Units{Time: config.TimeMilliseconds}))
	assert.Equal(t, []string{"1.234"}, Format(row, Columns{}, Units{Time: config.TimeSeconds}))
	assert.Equal(t, []string{"0.000"}, Format(models.Row{}, Columns{}, Units{Time: config.TimeSeconds}))
}

func TestFormat_DisabledColumnsNeverSerialized(t *testing.T) {
	row := models.Bracket(time.Second)
	line := Format(row, Columns{CPU: true}, msMB)
	assert.Equal(t, []string{"1000", "0"}, line)
}

func TestFormat_MissingValueIsEmpty(t *testing.T) {
	line := Format(models.Row{CPU: models.Uint64(7)}, allColumns, msMB)
	assert.Equal(t, []string{"0", "7", "", "", ""}, line)
}

func TestCreate_WritesHeaderAndRows(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := Create(dir, false, allColumns, Units{Time: config.TimeMilliseconds, Memory: config.MemoryKibibytes}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(models.Bracket(0)))
	require.NoError(t, s.Write(models.Row{
		Time:      150 * time.Millisecond,
		CPU:       models.Uint64(12),
		Memory:    models.Uint64(4096),
		DiskRead:  models.Uint64(100),
		DiskWrite: models.Uint64(200),
	}))

	assert.Equal(t, [][]string{
		{"time_ms", "cpu", "memory_kb", "disk_read", "disk_write"},
		{"0", "0", "0", "0", "0"},
		{"150", "12", "4", "100", "200"},
	}, readReport(t, s))
	assert.Len(t, s.Rows(), 2)
}

func TestCreate_ExistingWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	previous := filepath.Join(dir, CSVName)
	require.NoError(t, os.WriteFile(previous, []byte("old\n"), 0o600))

	_, err := Create(dir, false, allColumns, msMB, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDestinationExists))

	data, err := os.ReadFile(previous)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(data), "destination must be left unmodified")
}

func TestCreate_OverwriteReplaces(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CSVName), []byte(strings.Repeat("stale,line\n", 100)), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChartName), []byte("png"), 0o600))

	s, err := Create(dir, true, Columns{CPU: true}, msMB, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, [][]string{{"time_ms", "cpu"}}, readReport(t, s))
	_, err = os.Stat(filepath.Join(dir, ChartName))
	assert.True(t, os.IsNotExist(err), "stale chart must be removed")
}

func TestSink_ConcurrentWriters(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "out"), false, allColumns, msMB, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				v := uint64(w*perWriter + i)
				assert.NoError(t, s.Write(models.Row{CPU: &v, Memory: &v, DiskRead: &v, DiskWrite: &v}))
			}
		}(w)
	}
	wg.Wait()

	records := readReport(t, s)
	require.Len(t, records, 1+writers*perWriter)
	rows := s.Rows()
	require.Len(t, rows, writers*perWriter)

	seen := map[string]bool{}
	for i, rec := range records[1:] {
		require.Len(t, rec, 5)
		assert.False(t, seen[rec[1]], "duplicated line %v", rec)
		seen[rec[1]] = true
		// File order and history order are the same sequence.
		assert.Equal(t, rec[1], Format(rows[i], allColumns, msMB)[1])
	}
}

func TestSink_WriteAfterFailureIsSticky(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "out"), false, allColumns, msMB, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, s.Write(models.Bracket(0)))
	require.NoError(t, s.Close())

	err = s.Write(models.Bracket(time.Second))
	require.Error(t, err)
	assert.Equal(t, err, s.Write(models.Bracket(2*time.Second)))
	assert.Len(t, s.Rows(), 1, "failed rows must not enter the history")
}

func TestColumnsFor(t *testing.T) {
	s := config.DefaultSettings()
	s.NoDisk = true
	assert.Equal(t, Columns{CPU: true, Memory: true}, ColumnsFor(s))
}

func TestSink_Discard(t *testing.T) {
	t.Run("removes the report and its empty directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		s, err := Create(dir, false, allColumns, msMB, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NoError(t, s.Write(models.Bracket(0)))

		require.NoError(t, s.Discard())
		assert.NoDirExists(t, dir)
	})

	t.Run("keeps a directory it did not create", func(t *testing.T) {
		dir := t.TempDir()
		s, err := Create(dir, true, allColumns, msMB, zaptest.NewLogger(t))
		require.NoError(t, err)

		require.NoError(t, s.Discard())
		assert.NoFileExists(t, filepath.Join(dir, CSVName))
		assert.DirExists(t, dir)
	})

	t.Run("keeps unrelated files", func(t *testing.T) {
		dir := t.TempDir()
		other := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(other, []byte("keep"), 0o600))
		s, err := Create(dir, true, allColumns, msMB, zaptest.NewLogger(t))
		require.NoError(t, err)

		require.NoError(t, s.Discard())
		assert.NoFileExists(t, filepath.Join(dir, CSVName))
		assert.FileExists(t, other)
	})
}
