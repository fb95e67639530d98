package clock

import (
	"fmt"
	"strings"
	"time"
)

// Clock supplies the current time in the reporting timezone. The scheduler
// never reads the host clock directly so that decisions stay independent of
// the machine's timezone configuration and tests can control time.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type realClock struct {
	loc *time.Location
}

// New returns a Clock pinned to the given IANA timezone name.
func New(timezone string) (Clock, error) {
	name := strings.TrimSpace(timezone)
	if name == "" {
		name = "America/New_York"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &realClock{loc: loc}, nil
}

func (c *realClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *realClock) Location() *time.Location {
	return c.loc
}
