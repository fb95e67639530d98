package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// TimeOfDay is a wall-clock instant expressed as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("time %q must be in HH:MM format", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("time %q has an invalid hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time %q has an invalid minute", s)
	}
	return TimeOfDay(hour*60 + minute), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

type Config struct {
	Timezone string `mapstructure:"timezone"`

	Schedule struct {
		Weekday  []string `mapstructure:"weekday"`
		Weekend  []string `mapstructure:"weekend"`
		SendTime string   `mapstructure:"send_time"`
	} `mapstructure:"schedule"`

	Report struct {
		Recipients      []string `mapstructure:"recipients"`
		Location        string   `mapstructure:"location"`
		Animated        bool     `mapstructure:"animated"`
		MaxSendAttempts int      `mapstructure:"max_send_attempts"`
	} `mapstructure:"report"`

	Crop struct {
		Top    int `mapstructure:"top"`
		Left   int `mapstructure:"left"`
		Width  int `mapstructure:"width"`
		Height int `mapstructure:"height"`
	} `mapstructure:"crop"`

	Camera struct {
		URL            string `mapstructure:"url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"camera"`

	SMTP struct {
		Host           string `mapstructure:"host"`
		Port           int    `mapstructure:"port"`
		From           string `mapstructure:"from"`
		Password       string `mapstructure:"password"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"smtp"`

	Storage struct {
		BaseDir string `mapstructure:"base_dir"`
	} `mapstructure:"storage"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Server struct {
		Port   int    `mapstructure:"port"`
		Secret string `mapstructure:"secret"`
	} `mapstructure:"server"`

	Alert struct {
		Slack struct {
			Token   string `mapstructure:"token"`
			Channel string `mapstructure:"channel"`
		} `mapstructure:"slack"`
	} `mapstructure:"alert"`

	Logging struct {
		Enabled    bool   `mapstructure:"enabled"`
		Dir        string `mapstructure:"dir"`
		File       string `mapstructure:"file"`
		Level      string `mapstructure:"level"`
		MaxSize    int    `mapstructure:"max_size"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAge     int    `mapstructure:"max_age"`
		Compress   bool   `mapstructure:"compress"`
	} `mapstructure:"logging"`

	weekday []TimeOfDay
	weekend []TimeOfDay
	send    TimeOfDay
}

// Load reads config.yaml from the given path (or the working directory when
// empty) and validates it. An invalid schedule is fatal: the daemon refuses
// to start rather than run with an undefined schedule.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "America/New_York")
	v.SetDefault("schedule.send_time", "20:00")
	v.SetDefault("report.max_send_attempts", 3)
	v.SetDefault("camera.timeout_seconds", 30)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.timeout_seconds", 60)
	v.SetDefault("storage.base_dir", "data/images")
	v.SetDefault("database.path", "data/imageemailer.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.file", "imageemailer.log")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 30)
}

// Validate parses the schedule strings and checks every structural
// constraint. It must be called before any accessor below.
func (c *Config) Validate() error {
	weekday, err := parseInstants(c.Schedule.Weekday)
	if err != nil {
		return fmt.Errorf("schedule.weekday: %w", err)
	}
	if len(weekday) == 0 {
		return fmt.Errorf("schedule.weekday must list at least one capture time")
	}

	weekend := weekday
	if len(c.Schedule.Weekend) > 0 {
		weekend, err = parseInstants(c.Schedule.Weekend)
		if err != nil {
			return fmt.Errorf("schedule.weekend: %w", err)
		}
	}

	send, err := ParseTimeOfDay(c.Schedule.SendTime)
	if err != nil {
		return fmt.Errorf("schedule.send_time: %w", err)
	}
	for _, t := range weekday {
		if t == send {
			return fmt.Errorf("schedule.send_time %s coincides with a weekday capture time", send)
		}
	}
	for _, t := range weekend {
		if t == send {
			return fmt.Errorf("schedule.send_time %s coincides with a weekend capture time", send)
		}
	}

	if len(c.Report.Recipients) == 0 {
		return fmt.Errorf("report.recipients must list at least one address")
	}
	if c.Report.MaxSendAttempts < 1 {
		return fmt.Errorf("report.max_send_attempts must be at least 1")
	}
	if c.Crop.Top < 0 || c.Crop.Left < 0 || c.Crop.Width < 0 || c.Crop.Height < 0 {
		return fmt.Errorf("crop values must be non-negative")
	}

	c.weekday = weekday
	c.weekend = weekend
	c.send = send
	return nil
}

func parseInstants(raw []string) ([]TimeOfDay, error) {
	instants := make([]TimeOfDay, 0, len(raw))
	for _, s := range raw {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		instants = append(instants, t)
	}
	sorted := sort.SliceIsSorted(instants, func(i, j int) bool { return instants[i] < instants[j] })
	if !sorted {
		sort.Slice(instants, func(i, j int) bool { return instants[i] < instants[j] })
	}
	for i := 1; i < len(instants); i++ {
		if instants[i] == instants[i-1] {
			return nil, fmt.Errorf("capture time %s is duplicated", instants[i])
		}
	}
	return instants, nil
}

// CaptureInstants returns the active capture times for the given day type,
// sorted ascending.
func (c *Config) CaptureInstants(weekend bool) []TimeOfDay {
	if weekend {
		return c.weekend
	}
	return c.weekday
}

func (c *Config) SendInstant() TimeOfDay {
	return c.send
}
