package settings

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wonny/argos/internal/tasks"
)

// dateLayout is the calendar-day format of the last-run marker
const dateLayout = "2006-01-02"

var runAtPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ScheduleSettings is the daily auto-analysis configuration. The
// persisted row is the source of truth; config carries bootstrap values
// only. LastRunDate belongs to the scheduler and survives user saves.
// ⭐ SSOT: 자동 분석 스케줄은 이 행이 유일한 기준
type ScheduleSettings struct {
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	RunAt       string    `json:"run_at" yaml:"run_at"` // HH:MM, local to Timezone
	Timezone    string    `json:"timezone" yaml:"timezone"`
	Workers     int       `json:"workers" yaml:"workers"`
	Universe    []string  `json:"universe" yaml:"universe"`
	LastRunDate string    `json:"last_run_date" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Store persists the single settings row
type Store interface {
	// Get returns the settings row, or nil when none has been saved yet
	Get(ctx context.Context) (*ScheduleSettings, error)
	// Save validates and upserts the row, preserving the last-run marker
	Save(ctx context.Context, s *ScheduleSettings) error
	// MarkRan records the calendar day of the latest auto trigger
	MarkRan(ctx context.Context, date string) error
}

// Defaults returns the built-in bootstrap settings: disabled, morning
// run after the US close, KST
func Defaults() *ScheduleSettings {
	return &ScheduleSettings{
		Enabled:  false,
		RunAt:    "06:30",
		Timezone: "Asia/Seoul",
		Workers:  3,
	}
}

// LoadDefaults reads bootstrap settings from a YAML file, falling back
// to the built-ins when no path is configured. Unknown keys are
// rejected so typos surface at startup instead of silently defaulting.
func LoadDefaults(path string) (*ScheduleSettings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule defaults: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("failed to parse schedule defaults: %w", err)
	}

	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule defaults: %w", err)
	}
	return s, nil
}

// normalize trims the free-text fields and canonicalizes the universe
func (s *ScheduleSettings) normalize() {
	s.RunAt = strings.TrimSpace(s.RunAt)
	s.Timezone = strings.TrimSpace(s.Timezone)
	s.Universe = tasks.NormalizeUniverse(s.Universe)
}

// Validate checks the row is usable by the scheduler
func (s *ScheduleSettings) Validate() error {
	if !runAtPattern.MatchString(s.RunAt) {
		return fmt.Errorf("run_at must be HH:MM (24h), got %q", s.RunAt)
	}
	if s.Workers < tasks.MinWorkers || s.Workers > tasks.MaxWorkers {
		return fmt.Errorf("workers must be between %d and %d, got %d", tasks.MinWorkers, tasks.MaxWorkers, s.Workers)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q", s.Timezone)
	}
	if s.Enabled && len(s.Universe) == 0 {
		return fmt.Errorf("universe must not be empty while the schedule is enabled")
	}
	return nil
}

// Location resolves the configured timezone, validated beforehand
func (s *ScheduleSettings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TargetFor returns the run-at instant on the calendar day that `day`
// falls on in the configured timezone
func (s *ScheduleSettings) TargetFor(day time.Time) (time.Time, error) {
	at, err := time.Parse("15:04", s.RunAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run_at %q: %w", s.RunAt, err)
	}
	loc := s.Location()
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), at.Hour(), at.Minute(), 0, 0, loc), nil
}

// LocalDate formats the calendar day of `now` in the configured
// timezone, the form the last-run marker is stored in
func (s *ScheduleSettings) LocalDate(now time.Time) string {
	return now.In(s.Location()).Format(dateLayout)
}

// Due reports whether the daily trigger should fire: enabled, inside
// the window around today's target time, and not already run today.
// The last-run marker is what makes the trigger at-most-once per
// calendar day; the window only bounds how far a late wakeup may drift.
func (s *ScheduleSettings) Due(now time.Time, window time.Duration) bool {
	if !s.Enabled {
		return false
	}

	local := now.In(s.Location())
	target, err := s.TargetFor(local)
	if err != nil {
		return false
	}
	if local.Before(target.Add(-window)) || local.After(target.Add(window)) {
		return false
	}
	return s.LastRunDate != local.Format(dateLayout)
}
