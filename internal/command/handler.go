package command

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hunter-volkman/image-emailer/internal/bucket"
	"github.com/hunter-volkman/image-emailer/internal/lock"
	"github.com/hunter-volkman/image-emailer/internal/mailer"
	"github.com/hunter-volkman/image-emailer/internal/models"
	"github.com/hunter-volkman/image-emailer/internal/report"
	"github.com/hunter-volkman/image-emailer/internal/state"
)

// Handler routes out-of-band manual requests through the same lock and
// state discipline as scheduled ticks, so a manual command never races a
// tick over the shared state.
type Handler struct {
	clock      clock
	state      *state.Store
	bucket     *bucket.Repository
	lock       *lock.ActionLock
	reports    *report.Builder
	mailer     mailer.Mailer
	recipients []string
	log        zerolog.Logger
}

type clock interface {
	Now() time.Time
	Location() *time.Location
}

func NewHandler(clk clock, st *state.Store, repo *bucket.Repository, l *lock.ActionLock, rb *report.Builder, m mailer.Mailer, recipients []string, log zerolog.Logger) *Handler {
	return &Handler{
		clock:      clk,
		state:      st,
		bucket:     repo,
		lock:       l,
		reports:    rb,
		mailer:     m,
		recipients: recipients,
		log:        log,
	}
}

// SendReport re-runs report assembly and dispatch for an arbitrary date,
// regardless of the sent watermark. Only a resend for today's date updates
// last_sent_date (suppressing that day's automatic send); a resend for any
// other date leaves state untouched.
func (h *Handler) SendReport(ctx context.Context, day string) error {
	date, err := bucket.ParseDayKey(day, h.clock.Location())
	if err != nil {
		return err
	}

	release, err := h.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	msg, count, err := h.reports.Build(day, date)
	if err != nil {
		return err
	}
	if err := h.mailer.Send(ctx, msg); err != nil {
		h.logReport(day, count, models.ReportStatusFailed, err)
		return err
	}

	now := h.clock.Now()
	if day == bucket.DayKey(now) {
		if err := h.state.CommitSend(now); err != nil {
			return err
		}
	}
	h.logReport(day, count, models.ReportStatusSent, nil)
	h.log.Info().Str("day", day).Int("images", count).Msg("manual report sent")
	return nil
}

// BuildArtifact renders the animated artifact for a date's bucket and
// returns the resulting path. Fails with a descriptive error when the
// bucket is empty or absent.
func (h *Handler) BuildArtifact(ctx context.Context, day string) (string, error) {
	if _, err := bucket.ParseDayKey(day, h.clock.Location()); err != nil {
		return "", err
	}

	release, err := h.lock.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	path, err := h.reports.BuildArtifact(day)
	if err != nil {
		return "", err
	}
	h.log.Info().Str("day", day).Str("path", path).Msg("built animated artifact")
	return path, nil
}

func (h *Handler) logReport(day string, count int, status models.ReportStatus, cause error) {
	entry := &models.ReportLog{
		Day:        day,
		AttemptAt:  h.clock.Now(),
		Recipients: strings.Join(h.recipients, ", "),
		ImageCount: count,
		Manual:     true,
		Status:     status,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := h.bucket.LogReport(entry); err != nil {
		h.log.Warn().Err(err).Msg("failed to record manual report attempt")
	}
}
