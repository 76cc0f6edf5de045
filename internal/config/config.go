// Package config loads the per-instance JSON configuration (spec.md §6):
// game type, hostnames, key-file paths, listener ports, and client idle
// timeouts. A missing file is not an error — defaults are written out so
// the instance directory is self-documenting on first boot.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/wraithcore/ac5gate/internal/appver"
)

// GameType enumerates the configured server flavor. The wire protocol does
// not vary by game type in this implementation; it is carried through for
// operator-facing labeling only.
type GameType string

const (
	GameTypeNormal GameType = "normal"
	GameTypeEvent  GameType = "event"
)

// Config is one server instance's configuration, matching the JSON shape
// described in spec.md §6.
type Config struct {
	GameType       GameType `koanf:"game_type" json:"game_type"`
	PublicHostname string   `koanf:"public_hostname" json:"public_hostname"`
	PrivateHostname string  `koanf:"private_hostname" json:"private_hostname"`
	Local          bool     `koanf:"local" json:"local"`

	PrivateKeyPath string `koanf:"private_key_path" json:"private_key_path"`
	PublicKeyPath  string `koanf:"public_key_path" json:"public_key_path"`

	LoginPort int `koanf:"login_port" json:"login_port"`
	AuthPort  int `koanf:"auth_port" json:"auth_port"`
	GamePort  int `koanf:"game_port" json:"game_port"`

	// AppVersionMin/Max gate the service-status step (spec.md §4.6 step 2):
	// a client's 8-byte app version, read as a big-endian uint64, must fall
	// within this inclusive range or the connection is rejected.
	AppVersionMin uint64 `koanf:"app_version_min" json:"app_version_min"`
	AppVersionMax uint64 `koanf:"app_version_max" json:"app_version_max"`

	// AdminAddr is the bind address for this instance's operator HTTP
	// surface (SPEC_FULL.md §7 "liveness/metrics surface"): /healthz and
	// /metrics, set per instance. The default is the same for every
	// instance, so two instances under one root that both keep it collide
	// on the admin port.
	AdminAddr string `koanf:"admin_addr" json:"admin_addr"`

	LoginClientTimeoutSeconds int `koanf:"login_client_timeout" json:"login_client_timeout"`
	AuthClientTimeoutSeconds  int `koanf:"auth_client_timeout" json:"auth_client_timeout"`

	LogInfo     bool `koanf:"log_info" json:"log_info"`
	LogWarnings bool `koanf:"log_warnings" json:"log_warnings"`

	// FSDP retransmission/heartbeat/close-grace knobs (SPEC_FULL.md §7
	// "FSDP retransmission/heartbeat knobs"): spec.md §4.8 specifies these
	// "in design terms" only; a real deployment tunes them against
	// observed client round-trip times.
	FSDPRetransmitTimeoutMillis int `koanf:"fsdp_retransmit_timeout_ms" json:"fsdp_retransmit_timeout_ms"`
	FSDPHeartbeatIntervalMillis int `koanf:"fsdp_heartbeat_interval_ms" json:"fsdp_heartbeat_interval_ms"`
	FSDPCloseGraceMultiplier    int `koanf:"fsdp_close_grace_multiplier" json:"fsdp_close_grace_multiplier"`
}

// LoginClientTimeout returns the configured login idle timeout as a
// time.Duration.
func (c Config) LoginClientTimeout() time.Duration {
	return time.Duration(c.LoginClientTimeoutSeconds) * time.Second
}

// AuthClientTimeout returns the configured auth idle timeout as a
// time.Duration.
func (c Config) AuthClientTimeout() time.Duration {
	return time.Duration(c.AuthClientTimeoutSeconds) * time.Second
}

// AppVersionRange converts the configured min/max app-version bounds into
// appver.Version values for the authentication service-status gate.
func (c Config) AppVersionRange() (min, max appver.Version) {
	return appver.FromUint64(c.AppVersionMin), appver.FromUint64(c.AppVersionMax)
}

// FSDPParams converts the configured FSDP timing knobs into a
// fsdp.Params-shaped trio of durations, kept here (rather than importing
// internal/fsdp) so config has no dependency on the protocol packages it
// configures.
func (c Config) FSDPParams() (rto, heartbeat, closeGrace time.Duration) {
	rto = time.Duration(c.FSDPRetransmitTimeoutMillis) * time.Millisecond
	heartbeat = time.Duration(c.FSDPHeartbeatIntervalMillis) * time.Millisecond
	closeGrace = rto * time.Duration(c.FSDPCloseGraceMultiplier)
	return
}

// Default returns a Config populated with the documented defaults
// (spec.md §6).
func Default() Config {
	return Config{
		GameType:        GameTypeNormal,
		PublicHostname:  "",
		PrivateHostname: "",
		Local:           false,
		PrivateKeyPath:  "server.key.pem",
		PublicKeyPath:   "server.pub.pem",
		LoginPort:       50011,
		AuthPort:        50008,
		GamePort:        50030,
		AdminAddr:       "127.0.0.1:9090",
		AppVersionMin:   uint64(appver.BuildTag) << 32,
		AppVersionMax:   uint64(appver.BuildTag)<<32 | 0xFFFFFFFF,
		LoginClientTimeoutSeconds: 30,
		AuthClientTimeoutSeconds:  30,
		LogInfo:                   true,
		LogWarnings:               true,

		FSDPRetransmitTimeoutMillis: 500,
		FSDPHeartbeatIntervalMillis: 5000,
		FSDPCloseGraceMultiplier:    2,
	}
}

// Load reads JSON config from path. A missing file is not an error: the
// defaults are written to path and returned, so the instance directory is
// populated on first boot.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeDefault(path, cfg); writeErr != nil {
				return cfg, writeErr
			}
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: statting %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), koanfjson.Parser()); err != nil {
		return cfg, fmt.Errorf("config: loading %s: %w", path, err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshaling %s: %w", path, err)
	}
	return cfg, nil
}

func writeDefault(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling defaults: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing defaults to %s: %w", path, err)
	}
	return nil
}
