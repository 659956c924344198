package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"candlecache/internal/logger"
	"candlecache/internal/market"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Holiday is one exchange closure.
type Holiday struct {
	Date string `mapstructure:"date" yaml:"date"`
	Name string `mapstructure:"name" yaml:"name,omitempty"`
}

// CalendarFile is the on-disk layout of the holiday calendar.
type CalendarFile struct {
	Exchange string    `mapstructure:"exchange" yaml:"exchange"`
	Holidays []Holiday `mapstructure:"holidays" yaml:"holidays"`
}

// CalendarSnapshot is an immutable view of the loaded calendar.
type CalendarSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Exchange string
	Holidays market.Holidays
	// LastYear is the latest year with a listed closure. Later holidays are
	// treated as trading days.
	LastYear int
}

// ChangeListener is called after every successful reload.
type ChangeListener func(CalendarSnapshot)

// CalendarLoader serves the holiday calendar from a YAML file and reloads it
// when the file changes. It satisfies market.HolidayCalendar.
type CalendarLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  CalendarSnapshot
	listeners []ChangeListener
}

// NewCalendarLoader reads path and, when watch is set, follows FS events.
func NewCalendarLoader(path string, watch bool) (*CalendarLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("calendar loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read calendar failed: %w", err)
	}
	loader := &CalendarLoader{path: path, v: v}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	if watch {
		v.OnConfigChange(func(evt fsnotify.Event) {
			if err := loader.reload(); err != nil {
				logger.Errorf("[calendar] reload failed (%s): %v", evt.Name, err)
				return
			}
			loader.notify()
		})
		v.WatchConfig()
	}
	return loader, nil
}

// IsHoliday reports whether date is a closure in the current snapshot.
func (l *CalendarLoader) IsHoliday(date time.Time) bool {
	l.mu.RLock()
	h := l.snapshot.Holidays
	l.mu.RUnlock()
	return h.IsHoliday(date)
}

// Snapshot returns a copy of the current calendar.
func (l *CalendarLoader) Snapshot() CalendarSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Subscribe registers fn and delivers the current snapshot right away.
func (l *CalendarLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go safeCall(fn, snap)
}

func (l *CalendarLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go safeCall(fn, snap)
	}
}

func safeCall(fn ChangeListener, snap CalendarSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[calendar] listener panic: %v", r)
		}
	}()
	fn(snap)
}

func (l *CalendarLoader) reload() error {
	var file CalendarFile
	if err := l.v.Unmarshal(&file); err != nil {
		return fmt.Errorf("parse calendar failed: %w", err)
	}
	dates := make([]string, 0, len(file.Holidays))
	lastYear := 0
	for _, h := range file.Holidays {
		dates = append(dates, h.Date)
		if d, err := time.Parse(time.DateOnly, strings.TrimSpace(h.Date)); err == nil && d.Year() > lastYear {
			lastYear = d.Year()
		}
	}
	holidays, err := market.NewHolidays(dates...)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = CalendarSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Exchange: strings.TrimSpace(file.Exchange),
		Holidays: holidays,
		LastYear: lastYear,
	}
	l.mu.Unlock()
	logger.Infof("[calendar] loaded %d holidays from %s", len(holidays), filepath.Base(l.path))
	if now := time.Now().Year(); lastYear < now {
		logger.Warnf("[calendar] %s lists no closures for %d; extend it or exchange holidays will be fetched as trading days",
			filepath.Base(l.path), now)
	}
	return nil
}

func cloneSnapshot(in CalendarSnapshot) CalendarSnapshot {
	out := in
	out.Holidays = make(market.Holidays, len(in.Holidays))
	for k, v := range in.Holidays {
		out.Holidays[k] = v
	}
	return out
}

// WriteCalendar renders file as YAML at path, sorted by date.
func WriteCalendar(path string, file CalendarFile) error {
	sort.Slice(file.Holidays, func(i, j int) bool { return file.Holidays[i].Date < file.Holidays[j].Date })
	data, err := yaml.Marshal(file)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureCalendar writes DefaultCalendar to path when no file exists yet.
func EnsureCalendar(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	logger.Infof("[calendar] %s missing, writing default NYSE calendar", path)
	return WriteCalendar(path, DefaultCalendar())
}

// DefaultCalendar lists NYSE full-day closures for 2024 through 2027.
func DefaultCalendar() CalendarFile {
	return CalendarFile{
		Exchange: "XNYS",
		Holidays: []Holiday{
			{Date: "2024-01-01", Name: "New Year's Day"},
			{Date: "2024-01-15", Name: "Martin Luther King Jr. Day"},
			{Date: "2024-02-19", Name: "Washington's Birthday"},
			{Date: "2024-03-29", Name: "Good Friday"},
			{Date: "2024-05-27", Name: "Memorial Day"},
			{Date: "2024-06-19", Name: "Juneteenth"},
			{Date: "2024-07-04", Name: "Independence Day"},
			{Date: "2024-09-02", Name: "Labor Day"},
			{Date: "2024-11-28", Name: "Thanksgiving Day"},
			{Date: "2024-12-25", Name: "Christmas Day"},
			{Date: "2025-01-01", Name: "New Year's Day"},
			{Date: "2025-01-09", Name: "National Day of Mourning"},
			{Date: "2025-01-20", Name: "Martin Luther King Jr. Day"},
			{Date: "2025-02-17", Name: "Washington's Birthday"},
			{Date: "2025-04-18", Name: "Good Friday"},
			{Date: "2025-05-26", Name: "Memorial Day"},
			{Date: "2025-06-19", Name: "Juneteenth"},
			{Date: "2025-07-04", Name: "Independence Day"},
			{Date: "2025-09-01", Name: "Labor Day"},
			{Date: "2025-11-27", Name: "Thanksgiving Day"},
			{Date: "2025-12-25", Name: "Christmas Day"},
			{Date: "2026-01-01", Name: "New Year's Day"},
			{Date: "2026-01-19", Name: "Martin Luther King Jr. Day"},
			{Date: "2026-02-16", Name: "Washington's Birthday"},
			{Date: "2026-04-03", Name: "Good Friday"},
			{Date: "2026-05-25", Name: "Memorial Day"},
			{Date: "2026-06-19", Name: "Juneteenth"},
			{Date: "2026-07-03", Name: "Independence Day (observed)"},
			{Date: "2026-09-07", Name: "Labor Day"},
			{Date: "2026-11-26", Name: "Thanksgiving Day"},
			{Date: "2026-12-25", Name: "Christmas Day"},
			{Date: "2027-01-01", Name: "New Year's Day"},
			{Date: "2027-01-18", Name: "Martin Luther King Jr. Day"},
			{Date: "2027-02-15", Name: "Washington's Birthday"},
			{Date: "2027-03-26", Name: "Good Friday"},
			{Date: "2027-05-31", Name: "Memorial Day"},
			{Date: "2027-06-18", Name: "Juneteenth (observed)"},
			{Date: "2027-07-05", Name: "Independence Day (observed)"},
			{Date: "2027-09-06", Name: "Labor Day"},
			{Date: "2027-11-25", Name: "Thanksgiving Day"},
			{Date: "2027-12-24", Name: "Christmas Day (observed)"},
		},
	}
}
