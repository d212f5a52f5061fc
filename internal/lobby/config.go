package lobby

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"lan-lobby/internal/discovery"
	"lan-lobby/internal/proto"
)

const envPrefix = "LAN_LOBBY_"

type Config struct {
	Name    string
	DataDir string
	// NoHistory disables the on-disk sighting history.
	NoHistory bool

	Port      int
	Encoding  string
	ReuseAddr bool

	// Seed for message ids; zero picks a time-based seed.
	Seed             int64
	DedupExpiry      time.Duration
	AnnounceInterval time.Duration
	StaleAfter       time.Duration
	SweepInterval    time.Duration

	ChatRate  float64 // messages per second
	ChatBurst int

	GameID      string
	GameVersion string

	Debug       bool
	MetricsAddr string
}

func DefaultConfig() Config {
	return Config{
		Name:             "player",
		Port:             discovery.DefaultPort,
		Encoding:         "utf-8",
		DedupExpiry:      60 * time.Second,
		AnnounceInterval: 5 * time.Second,
		StaleAfter:       20 * time.Second,
		SweepInterval:    time.Second,
		ChatRate:         2,
		ChatBurst:        5,
		GameID:           "LAN",
		GameVersion:      proto.ProtocolRevision,
	}
}

// LoadConfig starts from DefaultConfig and applies LAN_LOBBY_* settings,
// first from envFile (if it exists) and then from the process environment,
// which wins.
func LoadConfig(envFile string) (Config, error) {
	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", envFile, err)
		}
		if vals != nil {
			fileVals = vals
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			return strings.TrimSpace(v), true
		}
		v, ok := fileVals[envPrefix+key]
		return strings.TrimSpace(v), ok
	}

	cfg := DefaultConfig()
	var errs error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("NAME", &cfg.Name)
	str("DATA_DIR", &cfg.DataDir)
	flag("NO_HISTORY", &cfg.NoHistory)
	num("PORT", &cfg.Port)
	str("ENCODING", &cfg.Encoding)
	flag("REUSE_ADDR", &cfg.ReuseAddr)
	if v, ok := lookup("SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%sSEED: %w", envPrefix, err))
		} else {
			cfg.Seed = seed
		}
	}
	dur("DEDUP_EXPIRY", &cfg.DedupExpiry)
	dur("ANNOUNCE_INTERVAL", &cfg.AnnounceInterval)
	dur("STALE_AFTER", &cfg.StaleAfter)
	dur("SWEEP_INTERVAL", &cfg.SweepInterval)
	if v, ok := lookup("CHAT_RATE"); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%sCHAT_RATE: %w", envPrefix, err))
		} else {
			cfg.ChatRate = r
		}
	}
	num("CHAT_BURST", &cfg.ChatBurst)
	str("GAME_ID", &cfg.GameID)
	str("GAME_VERSION", &cfg.GameVersion)
	flag("DEBUG", &cfg.Debug)
	str("METRICS_ADDR", &cfg.MetricsAddr)

	if errs != nil {
		return Config{}, errs
	}
	return cfg, nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs error
	if strings.TrimSpace(c.Name) == "" {
		errs = multierr.Append(errs, errors.New("name is empty"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := ResolveEncoding(c.Encoding); err != nil {
		errs = multierr.Append(errs, err)
	}
	for name, d := range map[string]time.Duration{
		"dedup expiry":      c.DedupExpiry,
		"announce interval": c.AnnounceInterval,
		"stale after":       c.StaleAfter,
		"sweep interval":    c.SweepInterval,
	} {
		if d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.AnnounceInterval > 0 && c.StaleAfter > 0 && c.StaleAfter <= c.AnnounceInterval {
		errs = multierr.Append(errs, fmt.Errorf("stale after (%s) must exceed announce interval (%s)", c.StaleAfter, c.AnnounceInterval))
	}
	if c.ChatRate <= 0 || c.ChatBurst < 1 {
		errs = multierr.Append(errs, fmt.Errorf("chat rate %.2f/s burst %d: both must be positive", c.ChatRate, c.ChatBurst))
	}
	if strings.TrimSpace(c.GameID) == "" {
		errs = multierr.Append(errs, errors.New("game id is empty"))
	}
	return errs
}

// ResolveEncoding maps a WHATWG encoding label ("utf-8", "windows-1252",
// "latin1", ...) to an encoding. Empty means UTF-8.
func ResolveEncoding(name string) (encoding.Encoding, error) {
	if strings.TrimSpace(name) == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", name, err)
	}
	return enc, nil
}
