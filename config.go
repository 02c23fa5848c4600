package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"prism-board/board"
	"prism-board/domain"
)

// boardFile is the optional YAML file named by BOARD_CONFIG_FILE.
type boardFile struct {
	Columns           domain.Layout `yaml:"columns"`
	NotificationDelay string        `yaml:"notificationDelay"`
	MutationTimeout   string        `yaml:"mutationTimeout"`
	SessionIdleTTL    string        `yaml:"sessionIdleTTL"`
}

// defaultSessionIdleTTL is how long an unused owner board stays in memory.
const defaultSessionIdleTTL = 30 * time.Minute

// loadBoardOptions builds controller options from the config file, if any,
// and then applies NOTIFICATION_DELAY and MUTATION_TIMEOUT on top.
func loadBoardOptions(path string, logger *log.Logger) (board.Options, error) {
	opts := board.Options{
		Layout:            domain.DefaultLayout,
		NotificationDelay: board.DefaultNotificationDelay,
		MutationTimeout:   board.DefaultMutationTimeout,
		IdleTTL:           defaultSessionIdleTTL,
		Logger:            logger,
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return opts, fmt.Errorf("read board config: %w", err)
		}
		var f boardFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return opts, fmt.Errorf("parse board config: %w", err)
		}
		if f.Columns.TodoTitle != "" {
			opts.Layout.TodoTitle = f.Columns.TodoTitle
		}
		if f.Columns.InProgressTitle != "" {
			opts.Layout.InProgressTitle = f.Columns.InProgressTitle
		}
		if f.Columns.DoneTitle != "" {
			opts.Layout.DoneTitle = f.Columns.DoneTitle
		}
		if opts.NotificationDelay, err = parseDur(f.NotificationDelay, opts.NotificationDelay); err != nil {
			return opts, fmt.Errorf("notificationDelay: %w", err)
		}
		if opts.MutationTimeout, err = parseDur(f.MutationTimeout, opts.MutationTimeout); err != nil {
			return opts, fmt.Errorf("mutationTimeout: %w", err)
		}
		if opts.IdleTTL, err = parseDur(f.SessionIdleTTL, opts.IdleTTL); err != nil {
			return opts, fmt.Errorf("sessionIdleTTL: %w", err)
		}
	}
	opts.NotificationDelay = envDur("NOTIFICATION_DELAY", opts.NotificationDelay)
	opts.MutationTimeout = envDur("MUTATION_TIMEOUT", opts.MutationTimeout)
	opts.IdleTTL = envDur("SESSION_IDLE_TTL", opts.IdleTTL)
	return opts, nil
}

func parseDur(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, err
	}
	if d <= 0 {
		return def, fmt.Errorf("must be greater than zero")
	}
	return d, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warnf("invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warnf("invalid %s=%q, using %v", key, v, def)
		return def
	}
	return d
}

// parseRedisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func parseRedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func listenAddr() string {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		return v
	}
	return ":" + envString("PORT", "8080")
}
