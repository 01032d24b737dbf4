package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var (
	ErrMissingVariable = errors.New("missing-environment-variable")
	ErrInvalidVariable = errors.New("invalid-environment-variable")
)

type Config struct {
	AllowedOrigins []string
	JWTKey         string
	// PostgresURL is optional. Without it nothing is persisted and rooms die with the process.
	PostgresURL           string
	ListenAddr            string
	SpeedTurnLimit        time.Duration
	RankedWinPoints       int
	RankedLossPoints      int
	FinishedRoomRetention time.Duration
	RoomIdleTimeout       time.Duration
	MatchRecordRetention  time.Duration
	LogLevel              string
	Debug                 bool
}

// Load reads .env when there is one, then the process environment. Variables already set in
// the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, reading environment variables directly")
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	env := envReader{lookup: lookup}

	cfg := Config{
		AllowedOrigins:        env.list("ALLOWED_ORIGINS"),
		JWTKey:                env.required("JWT_KEY"),
		PostgresURL:           env.str("POSTGRES_URL", ""),
		ListenAddr:            env.str("LISTEN_ADDR", ":5000"),
		SpeedTurnLimit:        env.duration("SPEED_TURN_LIMIT", 3*time.Second),
		RankedWinPoints:       env.integer("RANKED_WIN_POINTS", 25),
		RankedLossPoints:      env.integer("RANKED_LOSS_POINTS", -20),
		FinishedRoomRetention: env.duration("FINISHED_ROOM_RETENTION", 10*time.Minute),
		RoomIdleTimeout:       env.duration("ROOM_IDLE_TIMEOUT", 5*time.Minute),
		MatchRecordRetention:  env.duration("MATCH_RECORD_RETENTION", 7*24*time.Hour),
		LogLevel:              env.str("LOG_LEVEL", "info"),
		Debug:                 env.boolean("DEBUG", false),
	}

	if env.err != nil {
		return Config{}, env.err
	}
	return cfg, nil
}

// envReader keeps the first error so Load can report it after reading everything.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) fail(sentinel error, name, detail string) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s%s", sentinel, name, detail)
	}
}

func (e *envReader) str(name, fallback string) string {
	v, ok := e.lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func (e *envReader) required(name string) string {
	v := e.str(name, "")
	if v == "" {
		e.fail(ErrMissingVariable, name, "")
	}
	return v
}

func (e *envReader) list(name string) []string {
	var out []string
	for _, item := range strings.Split(e.required(name), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (e *envReader) duration(name string, fallback time.Duration) time.Duration {
	v := e.str(name, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.fail(ErrInvalidVariable, name, " must be a positive duration")
		return fallback
	}
	return d
}

func (e *envReader) integer(name string, fallback int) int {
	v := e.str(name, "")
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(ErrInvalidVariable, name, " must be an integer")
		return fallback
	}
	return i
}

func (e *envReader) boolean(name string, fallback bool) bool {
	v := e.str(name, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(ErrInvalidVariable, name, " must be a boolean")
		return fallback
	}
	return b
}
