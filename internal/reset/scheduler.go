package reset

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jeogo/casnos-sub001/internal/events"
	"github.com/jeogo/casnos-sub001/internal/metrics"
	"github.com/jeogo/casnos-sub001/internal/models"
	"github.com/jeogo/casnos-sub001/internal/store"
)

const (
	dateLayout            = "2006-01-02"
	defaultSafetyInterval = time.Hour
)

type Sink interface {
	Publish(ctx context.Context, evts ...events.Event)
}

type Purger interface {
	Purge(ctx context.Context) (int, error)
}

type TempCleaner interface {
	CleanupTempFiles() (int, error)
}

type DedupeResetter interface {
	ResetDedupe()
}

type Options struct {
	Config         Config
	ConfigFile     string
	ArtifactDirs   []string
	LogDirs        []string
	SafetyInterval time.Duration
	Location       *time.Location
	Cache          Purger
	Temp           TempCleaner
	Dedupe         DedupeResetter
	Now            func() time.Time
}

type Result struct {
	Ran              bool   `json:"ran"`
	Date             string `json:"date"`
	TicketsCleared   int64  `json:"ticketsCleared"`
	PDFsRemoved      int    `json:"pdfsRemoved"`
	TempFilesRemoved int    `json:"tempFilesRemoved"`
	CacheKeysRemoved int    `json:"cacheKeysRemoved"`
	OldFilesRemoved  int    `json:"oldFilesRemoved"`
}

type Until struct {
	Hours             int64 `json:"hours"`
	Minutes           int64 `json:"minutes"`
	TotalMilliseconds int64 `json:"total_milliseconds"`
}

type Status struct {
	LastReset          *models.DailyReset `json:"lastReset"`
	Config             Config             `json:"config"`
	Enabled            bool               `json:"enabled"`
	NeedsReset         bool               `json:"needsReset"`
	CurrentDate        string             `json:"currentDate"`
	NextResetTime      time.Time          `json:"nextResetTime"`
	TimeUntilNextReset Until              `json:"timeUntilNextReset"`
}

// Scheduler runs the daily reset at most once per calendar day. The ledger
// row claimed inside the store transaction is what makes that hold across
// the precise timer, the safety ticker and manual triggers.
type Scheduler struct {
	store store.ResetStore
	sink  Sink
	opts  Options

	runMu sync.Mutex

	mu      sync.Mutex
	cfg     Config
	timer   *time.Timer
	nextAt  time.Time
	baseCtx context.Context
}

func NewScheduler(st store.ResetStore, sink Sink, opts Options) *Scheduler {
	if opts.SafetyInterval <= 0 {
		opts.SafetyInterval = defaultSafetyInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfg := opts.Config
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{store: st, sink: sink, opts: opts, cfg: cfg}
}

func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Scheduler) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

func (s *Scheduler) RunIfNeeded(ctx context.Context) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run(ctx, false)
}

// Force clears today's ledger row and runs again, even when disabled.
func (s *Scheduler) Force(ctx context.Context) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if err := s.store.DeleteDailyReset(ctx, s.now().Format(dateLayout)); err != nil {
		return Result{}, err
	}
	return s.run(ctx, true)
}

func (s *Scheduler) run(ctx context.Context, force bool) (Result, error) {
	cfg := s.Config()
	if !cfg.Enabled && !force {
		return Result{}, nil
	}
	now := s.now()
	date := now.Format(dateLayout)
	claim, err := s.store.ClaimDailyReset(ctx, store.DailyResetInput{
		Date:         date,
		Timestamp:    now,
		ResetTickets: cfg.ResetTickets,
		ResetPDFs:    cfg.ResetPDFs,
		ResetCache:   cfg.ResetCache,
	})
	if err != nil {
		return Result{}, err
	}
	if !claim.Claimed {
		return Result{Date: date}, nil
	}

	result := Result{Ran: true, Date: date, TicketsCleared: claim.TicketsCleared}
	s.cleanup(ctx, cfg, now, &result)
	metrics.DailyResets.Inc()
	if s.sink != nil {
		s.sink.Publish(ctx, events.Reset(result.TicketsCleared))
	}
	log.Printf("daily reset date=%s tickets_cleared=%d pdfs_removed=%d temp_removed=%d cache_keys=%d old_files=%d",
		date, result.TicketsCleared, result.PDFsRemoved, result.TempFilesRemoved, result.CacheKeysRemoved, result.OldFilesRemoved)
	return result, nil
}

// cleanup runs after the ledger commit; failures are logged and never undo
// the reset.
func (s *Scheduler) cleanup(ctx context.Context, cfg Config, now time.Time, result *Result) {
	if err := s.store.Maintain(ctx); err != nil {
		log.Printf("daily reset maintenance: %v", err)
	}
	if cfg.ResetPDFs {
		for _, dir := range s.opts.ArtifactDirs {
			removed, err := removeMatching(dir, "*.pdf")
			if err != nil {
				log.Printf("daily reset purge pdfs dir=%s: %v", dir, err)
			}
			result.PDFsRemoved += removed
		}
	}
	if s.opts.Temp != nil {
		removed, err := s.opts.Temp.CleanupTempFiles()
		if err != nil {
			log.Printf("daily reset purge temp: %v", err)
		}
		result.TempFilesRemoved = removed
	}
	if cfg.ResetCache && s.opts.Cache != nil {
		removed, err := s.opts.Cache.Purge(ctx)
		if err != nil {
			log.Printf("daily reset purge cache: %v", err)
		}
		result.CacheKeysRemoved = removed
	}
	cutoff := now.AddDate(0, 0, -cfg.KeepDays)
	dirs := append(append([]string{}, s.opts.LogDirs...), s.opts.ArtifactDirs...)
	for _, dir := range dirs {
		removed, err := removeOlderThan(dir, cutoff)
		if err != nil {
			log.Printf("daily reset prune dir=%s: %v", dir, err)
		}
		result.OldFilesRemoved += removed
	}
	if s.opts.Dedupe != nil {
		s.opts.Dedupe.ResetDedupe()
	}
}

// Start performs the startup check, arms the precise timer and runs the
// safety ticker until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.runAndLog(ctx, "startup")

	s.mu.Lock()
	s.baseCtx = ctx
	s.armLocked()
	s.mu.Unlock()

	ticker := time.NewTicker(s.opts.SafetyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.timer != nil {
				s.timer.Stop()
				s.timer = nil
			}
			s.baseCtx = nil
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.runAndLog(ctx, "safety")
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context, trigger string) {
	result, err := s.RunIfNeeded(ctx)
	if err != nil {
		log.Printf("daily reset trigger=%s: %v", trigger, err)
		return
	}
	if result.Ran {
		log.Printf("daily reset trigger=%s completed", trigger)
	}
}

func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	ctx := s.baseCtx
	if ctx == nil || ctx.Err() != nil {
		return
	}
	hour, minute, err := parseResetTime(s.cfg.ResetTime)
	if err != nil {
		return
	}
	next := nextOccurrence(s.now(), hour, minute)
	s.nextAt = next
	s.timer = time.AfterFunc(time.Until(next), func() {
		s.runAndLog(ctx, "timer")
		s.mu.Lock()
		defer s.mu.Unlock()
		s.armLocked()
	})
}

// UpdateConfig applies a partial update, re-arms the timer and persists the
// result when a config file is configured.
func (s *Scheduler) UpdateConfig(patch ConfigPatch) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := patch.Apply(s.cfg)
	if err := next.Validate(); err != nil {
		return s.cfg, err
	}
	s.cfg = next
	if s.opts.ConfigFile != "" {
		if err := SaveConfigFile(s.opts.ConfigFile, next); err != nil {
			log.Printf("persist reset config %s: %v", s.opts.ConfigFile, err)
		}
	}
	s.armLocked()
	return next, nil
}

func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	cfg := s.Config()
	now := s.now()
	today := now.Format(dateLayout)

	status := Status{Config: cfg, Enabled: cfg.Enabled, CurrentDate: today}
	last, ok, err := s.store.LastDailyReset(ctx)
	if err != nil {
		return Status{}, err
	}
	if ok {
		status.LastReset = &last
	}
	_, doneToday, err := s.store.GetDailyReset(ctx, today)
	if err != nil {
		return Status{}, err
	}
	status.NeedsReset = cfg.Enabled && !doneToday

	hour, minute, err := parseResetTime(cfg.ResetTime)
	if err != nil {
		return Status{}, err
	}
	status.NextResetTime = nextOccurrence(now, hour, minute)
	until := status.NextResetTime.Sub(now)
	status.TimeUntilNextReset = Until{
		Hours:             int64(until / time.Hour),
		Minutes:           int64((until % time.Hour) / time.Minute),
		TotalMilliseconds: until.Milliseconds(),
	}
	return status, nil
}

// nextOccurrence returns the first hh:mm strictly after now, in now's zone.
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func removeMatching(dir, pattern string) (int, error) {
	if strings.TrimSpace(dir) == "" {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func removeOlderThan(dir string, cutoff time.Time) (int, error) {
	if strings.TrimSpace(dir) == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
