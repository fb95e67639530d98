package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/hunter-volkman/image-emailer/internal/bucket"
	"github.com/hunter-volkman/image-emailer/internal/imaging"
	"github.com/hunter-volkman/image-emailer/internal/mailer"
	"github.com/hunter-volkman/image-emailer/internal/storage"
)

// ErrNoImages marks a day whose bucket holds nothing to report. Callers
// distinguish it from repository failures: an empty day is a final answer,
// a failed lookup is not.
var ErrNoImages = errors.New("no images recorded")

// Builder assembles the daily report email from a day bucket.
type Builder struct {
	bucket     *bucket.Repository
	store      *storage.Store
	recipients []string
	location   string
	animated   bool
	log        zerolog.Logger
}

func NewBuilder(repo *bucket.Repository, store *storage.Store, recipients []string, location string, animated bool, log zerolog.Logger) *Builder {
	return &Builder{
		bucket:     repo,
		store:      store,
		recipients: recipients,
		location:   location,
		animated:   animated,
		log:        log,
	}
}

// Build returns the report message for a day, with every committed image
// attached and, when configured, the animated artifact. It fails when the
// bucket has no records.
func (b *Builder) Build(day string, date time.Time) (*mailer.Message, int, error) {
	recs, err := b.bucket.List(day)
	if err != nil {
		return nil, 0, err
	}
	if len(recs) == 0 {
		return nil, 0, fmt.Errorf("%w for %s", ErrNoImages, day)
	}

	msg := &mailer.Message{
		To:      b.recipients,
		Subject: fmt.Sprintf("Daily Report - %s - %s", b.location, date.Format("2006-01-02")),
		Body: fmt.Sprintf("Attached are %d images captured at %s on %s.",
			len(recs), b.location, date.Format("2006-01-02")),
	}

	var frames [][]byte
	for _, rec := range recs {
		data, err := os.ReadFile(rec.Path)
		if err != nil {
			// The bucket is authoritative for what was committed; a missing
			// file is an operator intervention, not a reason to drop the
			// whole report.
			b.log.Warn().Err(err).Str("path", rec.Path).Msg("skipping unreadable image")
			continue
		}
		msg.Attachments = append(msg.Attachments, mailer.Attachment{
			Filename: filepath.Base(rec.Path),
			Data:     data,
		})
		frames = append(frames, data)
	}
	if len(msg.Attachments) == 0 {
		return nil, 0, fmt.Errorf("%w for %s: files unreadable", ErrNoImages, day)
	}

	if b.animated {
		blob, err := imaging.BuildGIF(frames)
		if err != nil {
			b.log.Warn().Err(err).Str("day", day).Msg("skipping animated artifact")
		} else {
			msg.Attachments = append(msg.Attachments, mailer.Attachment{
				Filename: fmt.Sprintf("report_%s.gif", day),
				Data:     blob,
			})
		}
	}

	return msg, len(recs), nil
}

// BuildArtifact renders the day's animated artifact to storage and returns
// its path. It fails when the bucket has no records.
func (b *Builder) BuildArtifact(day string) (string, error) {
	recs, err := b.bucket.List(day)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoImages, day)
	}

	var frames [][]byte
	for _, rec := range recs {
		data, err := os.ReadFile(rec.Path)
		if err != nil {
			b.log.Warn().Err(err).Str("path", rec.Path).Msg("skipping unreadable image")
			continue
		}
		frames = append(frames, data)
	}
	if len(frames) == 0 {
		return "", fmt.Errorf("%w for %s: files unreadable", ErrNoImages, day)
	}

	blob, err := imaging.BuildGIF(frames)
	if err != nil {
		return "", err
	}
	return b.store.WriteArtifact(day, blob)
}
