package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hunter-volkman/image-emailer/internal/bucket"
	"github.com/hunter-volkman/image-emailer/internal/config"
	"github.com/hunter-volkman/image-emailer/internal/database"
	"github.com/hunter-volkman/image-emailer/internal/imaging"
	"github.com/hunter-volkman/image-emailer/internal/lock"
	"github.com/hunter-volkman/image-emailer/internal/mailer"
	"github.com/hunter-volkman/image-emailer/internal/models"
	"github.com/hunter-volkman/image-emailer/internal/report"
	"github.com/hunter-volkman/image-emailer/internal/state"
	"github.com/hunter-volkman/image-emailer/internal/storage"
)

type fakeClock struct {
	now time.Time
	loc *time.Location
}

func (c *fakeClock) Now() time.Time           { return c.now.In(c.loc) }
func (c *fakeClock) Location() *time.Location { return c.loc }
func (c *fakeClock) Set(t time.Time)          { c.now = t }

type fakeCamera struct {
	frame []byte
	err   error
	calls int
}

func (c *fakeCamera) Capture(ctx context.Context) ([]byte, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.frame, nil
}

type fakeMailer struct {
	sent     []*mailer.Message
	failures int
}

func (m *fakeMailer) Send(ctx context.Context, msg *mailer.Message) error {
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeNotifier struct {
	escalations []string
}

func (n *fakeNotifier) EscalateSendFailure(day string, attempts int, lastErr error) error {
	n.escalations = append(n.escalations, fmt.Sprintf("%s/%d", day, attempts))
	return nil
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 10), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type fixture struct {
	sched    *Scheduler
	clock    *fakeClock
	camera   *fakeCamera
	mailer   *fakeMailer
	notifier *fakeNotifier
	state    *state.Store
	bucket   *bucket.Repository
	db       *gorm.DB
}

func newFixture(t *testing.T, weekday []string, sendTime string) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Schedule.Weekday = weekday
	cfg.Schedule.Weekend = weekday
	cfg.Schedule.SendTime = sendTime
	cfg.Report.Recipients = []string{"ops@example.com"}
	cfg.Report.Location = "Test Site"
	cfg.Report.MaxSendAttempts = 3
	require.NoError(t, cfg.Validate())

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	clk := &fakeClock{loc: loc}

	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	store, err := storage.New(filepath.Join(dir, "images"))
	require.NoError(t, err)

	repo := bucket.NewRepository(db)
	stateStore := state.NewStore(store.StatePath(), loc)
	require.NoError(t, stateStore.Load())

	logger := zerolog.Nop()
	cam := &fakeCamera{frame: testJPEG(t)}
	mail := &fakeMailer{}
	notif := &fakeNotifier{}

	sched := New(Deps{
		Config:   cfg,
		Clock:    clk,
		State:    stateStore,
		Bucket:   repo,
		Lock:     lock.New(store.LockPath(), time.Minute, logger),
		Store:    store,
		Camera:   cam,
		Proc:     imaging.NewProcessor(imaging.CropRegion{}),
		Reports:  report.NewBuilder(repo, store, cfg.Report.Recipients, cfg.Report.Location, false, logger),
		Mailer:   mail,
		Notifier: notif,
		Log:      logger,
	})

	return &fixture{
		sched:    sched,
		clock:    clk,
		camera:   cam,
		mailer:   mail,
		notifier: notif,
		state:    stateStore,
		bucket:   repo,
		db:       db,
	}
}

func at(t *testing.T, f *fixture, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, f.clock.loc)
	require.NoError(t, err)
	return ts
}

func tick(f *fixture, now time.Time) []Outcome {
	f.clock.Set(now)
	return f.sched.Tick(context.Background())
}

func TestDailyFlow(t *testing.T) {
	f := newFixture(t, []string{"07:00", "08:00"}, "20:00")

	tick(f, at(t, f, "2025-06-01 07:00"))
	tick(f, at(t, f, "2025-06-01 08:00"))
	tick(f, at(t, f, "2025-06-01 20:00"))

	recs, err := f.bucket.List("20250601")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "Daily Report - Test Site - 2025-06-01", msg.Subject)
	assert.Len(t, msg.Attachments, 2)
	assert.Equal(t, []string{"ops@example.com"}, msg.To)
}

func TestCaptureIdempotentUnderRepeatedTicks(t *testing.T) {
	f := newFixture(t, []string{"07:00"}, "20:00")

	for minute := 0; minute < 5; minute++ {
		tick(f, at(t, f, fmt.Sprintf("2025-06-02 07:%02d", minute)))
	}

	recs, err := f.bucket.List("20250602")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRestartResumesAtNextInstant(t *testing.T) {
	f := newFixture(t, []string{"07:00", "08:00"}, "20:00")

	// Persisted state says 07:00 already fired today.
	require.NoError(t, f.state.CommitCapture(at(t, f, "2025-06-01 07:00")))

	outcomes := tick(f, at(t, f, "2025-06-01 09:30"))

	require.Len(t, outcomes, 1)
	capture, ok := outcomes[0].Action.(CaptureAction)
	require.True(t, ok)
	assert.Equal(t, "08:00", capture.Instant.String())
	assert.True(t, outcomes[0].Committed)

	recs, err := f.bucket.List("20250601")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	// Nothing further is due: the watermark now covers the whole morning.
	assert.Empty(t, tick(f, at(t, f, "2025-06-01 09:31")))
}

func TestMissedInstantsCollapseToOneCatchUp(t *testing.T) {
	f := newFixture(t, []string{"07:00", "08:00", "09:00"}, "20:00")

	outcomes := tick(f, at(t, f, "2025-06-01 10:15"))

	require.Len(t, outcomes, 1)
	capture, ok := outcomes[0].Action.(CaptureAction)
	require.True(t, ok)
	assert.Equal(t, "09:00", capture.Instant.String())

	recs, err := f.bucket.List("20250601")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSendRetriesAndCommitsOnce(t *testing.T) {
	f := newFixture(t, []string{"07:00"}, "20:00")
	f.mailer.failures = 1

	tick(f, at(t, f, "2025-06-01 07:00"))

	outcomes := tick(f, at(t, f, "2025-06-01 20:00"))
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Committed)
	assert.True(t, f.state.Snapshot().LastSentDate.IsZero())

	outcomes = tick(f, at(t, f, "2025-06-01 20:05"))
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Committed)
	assert.Len(t, f.mailer.sent, 1)

	// Further ticks after the commit stay quiet.
	assert.Empty(t, tick(f, at(t, f, "2025-06-01 20:06")))
	assert.Len(t, f.mailer.sent, 1)
}

func TestSendRetryExhaustionEscalates(t *testing.T) {
	f := newFixture(t, []string{"07:00"}, "20:00")
	f.mailer.failures = 10

	tick(f, at(t, f, "2025-06-01 07:00"))
	tick(f, at(t, f, "2025-06-01 20:00"))
	tick(f, at(t, f, "2025-06-01 20:01"))
	tick(f, at(t, f, "2025-06-01 20:02"))

	require.Len(t, f.notifier.escalations, 1)
	assert.Equal(t, "20250601/3", f.notifier.escalations[0])

	// Budget exhausted: no further attempts today.
	assert.Empty(t, tick(f, at(t, f, "2025-06-01 20:03")))
	assert.True(t, f.state.Snapshot().LastSentDate.IsZero())
}

func TestCameraFailureDoesNotBlockSend(t *testing.T) {
	f := newFixture(t, []string{"07:00", "20:30"}, "20:00")

	tick(f, at(t, f, "2025-06-01 07:00"))
	f.camera.err = errors.New("camera unreachable")

	outcomes := tick(f, at(t, f, "2025-06-01 20:30"))

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Committed)
	assert.Error(t, outcomes[0].Err)
	assert.True(t, outcomes[1].Committed)
	assert.Len(t, f.mailer.sent, 1)

	// Failed capture did not advance the watermark; it retries next tick.
	f.camera.err = nil
	outcomes = tick(f, at(t, f, "2025-06-01 20:31"))
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Committed)
}

func TestEmptyDayCommitsSkippedSend(t *testing.T) {
	f := newFixture(t, []string{"07:00"}, "20:00")
	f.camera.err = errors.New("camera unreachable")

	// Nothing was captured all day; the empty bucket is committed as sent
	// rather than retried forever.
	outcomes := tick(f, at(t, f, "2025-06-02 20:00"))

	require.Len(t, outcomes, 2)
	_, isCapture := outcomes[0].Action.(CaptureAction)
	assert.True(t, isCapture)
	assert.False(t, outcomes[0].Committed)
	assert.True(t, outcomes[1].Committed)
	assert.Empty(t, f.mailer.sent)
	assert.False(t, f.state.Snapshot().LastSentDate.IsZero())
}

func TestSendRepositoryFailureDoesNotCommit(t *testing.T) {
	f := newFixture(t, []string{"07:00"}, "20:00")

	tick(f, at(t, f, "2025-06-01 07:00"))

	// The repository dies before send time. The day must stay uncommitted
	// so a later tick can retry; an empty-looking day must not be inferred
	// from a failed lookup.
	require.NoError(t, database.Close(f.db))

	outcomes := tick(f, at(t, f, "2025-06-01 20:00"))

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Committed)
	assert.Error(t, outcomes[0].Err)
	assert.Empty(t, f.mailer.sent)
	assert.True(t, f.state.Snapshot().LastSentDate.IsZero())

	// Not a dispatch failure, so the retry budget is untouched and the
	// send stays due on the next tick.
	outcomes = tick(f, at(t, f, "2025-06-01 20:01"))
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Committed)
}

func TestNextDayStartsFresh(t *testing.T) {
	f := newFixture(t, []string{"07:00"}, "20:00")

	tick(f, at(t, f, "2025-06-01 07:00"))
	tick(f, at(t, f, "2025-06-01 20:00"))

	outcomes := tick(f, at(t, f, "2025-06-02 07:00"))
	require.Len(t, outcomes, 1)
	_, isCapture := outcomes[0].Action.(CaptureAction)
	assert.True(t, isCapture)

	recs, err := f.bucket.List("20250602")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	tick(f, at(t, f, "2025-06-02 20:00"))
	assert.Len(t, f.mailer.sent, 2)
}

func TestStartupReconcilesWatermarkFromBucket(t *testing.T) {
	f := newFixture(t, []string{"07:00", "08:00"}, "20:00")

	// A capture was appended but the process died before the state write.
	captured := at(t, f, "2025-06-01 08:00")
	path, err := f.sched.store.WriteImage("20250601", captured, testJPEG(t))
	require.NoError(t, err)
	require.NoError(t, f.bucket.Append(&models.ImageRecord{
		Day:       "20250601",
		Timestamp: captured,
		Path:      path,
	}))

	f.clock.Set(at(t, f, "2025-06-01 08:05"))
	require.NoError(t, f.sched.Startup(context.Background()))

	assert.Equal(t, captured.Unix(), f.state.Snapshot().LastCaptureTime.Unix())

	// The reconciled watermark suppresses a duplicate for 08:00.
	assert.Empty(t, tick(f, at(t, f, "2025-06-01 08:06")))
}
