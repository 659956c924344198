package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCalendarWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "calendar.yaml")
	require.NoError(t, EnsureCalendar(path))

	l, err := NewCalendarLoader(path, false)
	require.NoError(t, err)
	snap := l.Snapshot()
	assert.Equal(t, "XNYS", snap.Exchange)
	assert.Len(t, snap.Holidays, len(DefaultCalendar().Holidays))
	assert.True(t, l.IsHoliday(time.Date(2024, 12, 25, 15, 0, 0, 0, time.UTC)))
	assert.False(t, l.IsHoliday(time.Date(2024, 12, 24, 15, 0, 0, 0, time.UTC)))

	// existing files are left alone
	require.NoError(t, os.WriteFile(path, []byte("exchange: TEST\nholidays: []\n"), 0o644))
	require.NoError(t, EnsureCalendar(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TEST")
}

func TestDefaultCalendarCoversUpcomingYears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, EnsureCalendar(path))
	l, err := NewCalendarLoader(path, false)
	require.NoError(t, err)

	assert.Equal(t, 2027, l.Snapshot().LastYear)
	for _, d := range []string{"2026-04-03", "2026-07-03", "2026-11-26", "2027-03-26", "2027-12-24"} {
		ts, err := time.Parse(time.DateOnly, d)
		require.NoError(t, err)
		assert.True(t, l.IsHoliday(ts.Add(15*time.Hour)), d)
	}
	assert.False(t, l.IsHoliday(time.Date(2026, 7, 6, 15, 0, 0, 0, time.UTC)))
}

func TestCalendarSnapshotTracksLastYear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("holidays:\n  - date: \"2019-12-25\"\n  - date: \"2018-01-01\"\n"), 0o644))
	l, err := NewCalendarLoader(path, false)
	require.NoError(t, err)
	assert.Equal(t, 2019, l.Snapshot().LastYear)
}

func TestCalendarLoaderRejectsBadDates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("holidays:\n  - date: \"12/25/2024\"\n"), 0o644))
	_, err := NewCalendarLoader(path, false)
	assert.Error(t, err)
}

func TestCalendarHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.yaml")
	require.NoError(t, WriteCalendar(path, CalendarFile{Exchange: "XNYS", Holidays: []Holiday{{Date: "2024-07-04"}}}))

	l, err := NewCalendarLoader(path, true)
	require.NoError(t, err)
	updates := make(chan CalendarSnapshot, 4)
	l.Subscribe(func(s CalendarSnapshot) { updates <- s })
	first := <-updates
	assert.EqualValues(t, 1, first.Version)

	require.NoError(t, WriteCalendar(path, CalendarFile{Exchange: "XNYS", Holidays: []Holiday{{Date: "2024-07-04"}, {Date: "2024-11-28"}}}))
	assert.Eventually(t, func() bool {
		return l.IsHoliday(time.Date(2024, 11, 28, 12, 0, 0, 0, time.UTC))
	}, 5*time.Second, 20*time.Millisecond)
}
