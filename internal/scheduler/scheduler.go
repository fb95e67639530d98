package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hunter-volkman/image-emailer/internal/bucket"
	"github.com/hunter-volkman/image-emailer/internal/camera"
	"github.com/hunter-volkman/image-emailer/internal/config"
	"github.com/hunter-volkman/image-emailer/internal/imaging"
	"github.com/hunter-volkman/image-emailer/internal/lock"
	"github.com/hunter-volkman/image-emailer/internal/mailer"
	"github.com/hunter-volkman/image-emailer/internal/models"
	"github.com/hunter-volkman/image-emailer/internal/notify"
	"github.com/hunter-volkman/image-emailer/internal/report"
	"github.com/hunter-volkman/image-emailer/internal/state"
	"github.com/hunter-volkman/image-emailer/internal/storage"
)

// Scheduler decides, at every wake-up, whether a capture or a report send
// is due, and guarantees each executes at most once per logical slot across
// restarts and concurrent processes. The persisted watermark in state.Store
// is the single source of truth for what has already happened; the day
// bucket is advisory.
type Scheduler struct {
	cfg      *config.Config
	clock    clock
	state    *state.Store
	bucket   *bucket.Repository
	lock     *lock.ActionLock
	store    *storage.Store
	camera   camera.Camera
	proc     *imaging.Processor
	reports  *report.Builder
	mailer   mailer.Mailer
	notifier notify.Notifier
	log      zerolog.Logger

	// Send retry accounting, reset implicitly by the day key. Bounded per
	// day; a restart resets the budget, which only ever allows more
	// retries, never a duplicate send.
	sendAttempts map[string]int
}

// clock is the narrow slice of internal/clock the scheduler needs.
type clock interface {
	Now() time.Time
	Location() *time.Location
}

type Deps struct {
	Config   *config.Config
	Clock    clock
	State    *state.Store
	Bucket   *bucket.Repository
	Lock     *lock.ActionLock
	Store    *storage.Store
	Camera   camera.Camera
	Proc     *imaging.Processor
	Reports  *report.Builder
	Mailer   mailer.Mailer
	Notifier notify.Notifier
	Log      zerolog.Logger
}

func New(d Deps) *Scheduler {
	return &Scheduler{
		cfg:          d.Config,
		clock:        d.Clock,
		state:        d.State,
		bucket:       d.Bucket,
		lock:         d.Lock,
		store:        d.Store,
		camera:       d.Camera,
		proc:         d.Proc,
		reports:      d.Reports,
		mailer:       d.Mailer,
		notifier:     d.Notifier,
		log:          d.Log,
		sendAttempts: make(map[string]int),
	}
}

// Startup reconciles the capture watermark against the day bucket and, on
// the very first run, takes a snapshot into the startup directory. The
// snapshot does not enter any day bucket and does not advance the
// watermark, so scheduled captures are unaffected.
func (s *Scheduler) Startup(ctx context.Context) error {
	latest, err := s.bucket.Latest()
	if err != nil {
		return err
	}
	if latest != nil {
		if err := s.state.Reconcile(latest.Timestamp.In(s.clock.Location())); err != nil {
			return err
		}
	}

	if !s.state.Snapshot().LastCaptureTime.IsZero() || latest != nil {
		return nil
	}

	now := s.clock.Now()
	raw, err := s.camera.Capture(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("startup snapshot failed")
		return nil
	}
	processed, err := s.proc.Process(raw, now)
	if err != nil {
		s.log.Warn().Err(err).Msg("startup snapshot processing failed")
		return nil
	}
	path, err := s.store.WriteStartupImage(now, processed)
	if err != nil {
		s.log.Warn().Err(err).Msg("startup snapshot write failed")
		return nil
	}
	s.log.Info().Str("path", path).Msg("saved startup snapshot")
	return nil
}

// Tick runs one decision-and-execute cycle at the clock's current time,
// holding the action lock for the whole decide-execute-commit section.
// Errors in one action never abort its sibling.
func (s *Scheduler) Tick(ctx context.Context) []Outcome {
	release, err := s.lock.Acquire(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("could not acquire action lock, skipping tick")
		return nil
	}
	defer release()

	return s.run(ctx, s.clock.Now())
}

// run executes one tick at the given time. Callers hold the action lock.
func (s *Scheduler) run(ctx context.Context, now time.Time) []Outcome {
	var outcomes []Outcome

	// Capture before send, so a send never misses an image that became due
	// in the same tick.
	if act, due := s.dueCapture(now); due {
		err := s.capture(ctx, now, act)
		outcomes = append(outcomes, Outcome{Action: act, Committed: err == nil, Err: err})
		if err != nil {
			s.log.Error().Err(err).Str("instant", act.Instant.String()).Msg("capture failed, will retry next tick")
		}
	}

	if act, due := s.dueSend(now); due {
		err := s.send(ctx, now)
		outcomes = append(outcomes, Outcome{Action: act, Committed: err == nil, Err: err})
	}

	return outcomes
}

// dueCapture applies the catch-up rule: a capture is due when some
// configured instant has passed that the watermark has not covered. Only
// one fires per tick, labelled with the latest overdue instant; committing
// advances the watermark to now, collapsing older misses.
func (s *Scheduler) dueCapture(now time.Time) (CaptureAction, bool) {
	instants := s.cfg.CaptureInstants(isWeekend(now))
	nowMinutes := minutesOfDay(now)
	st := s.state.Snapshot()

	var due config.TimeOfDay
	found := false
	for _, t := range instants {
		if int(t) > nowMinutes {
			break
		}
		if s.instantUncovered(st, now, t) {
			due = t
			found = true
		}
	}
	return CaptureAction{Instant: due}, found
}

func (s *Scheduler) instantUncovered(st state.State, now time.Time, t config.TimeOfDay) bool {
	if st.LastCaptureTime.IsZero() {
		return true
	}
	last := st.LastCaptureTime.In(s.clock.Location())
	if !sameDay(last, now) {
		return last.Before(now)
	}
	return minutesOfDay(last) < int(t)
}

func (s *Scheduler) capture(ctx context.Context, now time.Time, act CaptureAction) error {
	raw, err := s.camera.Capture(ctx)
	if err != nil {
		return err
	}
	processed, err := s.proc.Process(raw, now)
	if err != nil {
		return err
	}

	day := bucket.DayKey(now)
	path, err := s.store.WriteImage(day, now, processed)
	if err != nil {
		return err
	}

	// Commit: bucket append then watermark advance. If the process dies
	// between the two, startup reconciliation restores the watermark from
	// the bucket's newest record.
	if err := s.bucket.Append(&models.ImageRecord{
		Day:       day,
		Timestamp: now,
		Path:      path,
	}); err != nil {
		return err
	}
	if err := s.state.CommitCapture(now); err != nil {
		return err
	}

	s.log.Info().
		Str("slot", act.Instant.String()).
		Str("path", path).
		Msg("committed capture")
	return nil
}

func (s *Scheduler) dueSend(now time.Time) (SendAction, bool) {
	if minutesOfDay(now) < int(s.cfg.SendInstant()) {
		return SendAction{}, false
	}
	st := s.state.Snapshot()
	if !st.LastSentDate.IsZero() && sameDay(st.LastSentDate.In(s.clock.Location()), now) {
		return SendAction{}, false
	}
	if s.sendAttempts[bucket.DayKey(now)] >= s.cfg.Report.MaxSendAttempts {
		return SendAction{}, false
	}
	return SendAction{Date: now}, true
}

func (s *Scheduler) send(ctx context.Context, now time.Time) error {
	day := bucket.DayKey(now)

	msg, count, err := s.reports.Build(day, now)
	if errors.Is(err, report.ErrNoImages) {
		// Nothing was captured today. Matching the original module, the day
		// is committed as sent so the empty bucket is not retried forever.
		s.log.Warn().Err(err).Str("day", day).Msg("skipping report send")
		s.logReport(day, now, 0, false, models.ReportStatusSkipped, err)
		return s.state.CommitSend(now)
	}
	if err != nil {
		// Repository or assembly failure. The day stays uncommitted and the
		// next tick retries; this is not a dispatch attempt, so the retry
		// budget is untouched.
		s.log.Error().Err(err).Str("day", day).Msg("report assembly failed, will retry next tick")
		return err
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.sendAttempts[day]++
		attempts := s.sendAttempts[day]
		s.logReport(day, now, count, false, models.ReportStatusFailed, err)
		s.log.Error().Err(err).Int("attempt", attempts).Str("day", day).Msg("report dispatch failed")

		if attempts >= s.cfg.Report.MaxSendAttempts {
			if nerr := s.notifier.EscalateSendFailure(day, attempts, err); nerr != nil {
				s.log.Error().Err(nerr).Msg("failed to escalate exhausted send retries")
			}
		}
		return err
	}

	if err := s.state.CommitSend(now); err != nil {
		return err
	}
	s.logReport(day, now, count, false, models.ReportStatusSent, nil)
	s.log.Info().Str("day", day).Int("images", count).Msg("committed report send")
	return nil
}

func (s *Scheduler) logReport(day string, at time.Time, count int, manual bool, status models.ReportStatus, cause error) {
	entry := &models.ReportLog{
		Day:        day,
		AttemptAt:  at,
		Recipients: strings.Join(s.cfg.Report.Recipients, ", "),
		ImageCount: count,
		Manual:     manual,
		Status:     status,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := s.bucket.LogReport(entry); err != nil {
		s.log.Warn().Err(err).Msg("failed to record report attempt")
	}
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

