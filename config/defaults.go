package config

import (
	"time"

	satori "github.com/nonebot/adapter-satori"
)

const (
	defaultHost     = "localhost"
	defaultPort     = 5140
	defaultLogLevel = "info"
	defaultFormat   = "text"
)

func defaults() Config {
	return Config{
		HeartbeatInterval: Duration(satori.DefaultHeartbeatInterval),
		ReconnectDelay:    Duration(satori.DefaultReconnectDelay),
		ConnectTimeout:    Duration(satori.DefaultConnectTimeout),
		ShutdownTimeout:   Duration(satori.DefaultShutdownTimeout),
		Log:               Logging{Level: defaultLogLevel, Format: defaultFormat},
	}
}

// Duration is a time.Duration written as "9s", "1m30s" in files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
