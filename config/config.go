// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package config loads client settings from a configuration file, STOMPCLI_
// environment variables and command line flags, in increasing order of
// precedence.
package config

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vmware/stompclient-go/client"
	"github.com/vmware/stompclient-go/heartbeat"
	"github.com/vmware/stompclient-go/log"
)

const EnvPrefix = "STOMPCLI"

const DefaultURL = "ws://localhost:15674/ws"

// Settings is the file representation of a client configuration.
type Settings struct {
	URL      string `mapstructure:"url"`
	Login    string `mapstructure:"login"`
	Passcode string `mapstructure:"passcode"`
	Host     string `mapstructure:"host"`

	Binary                bool          `mapstructure:"binary"`
	SkipContentLength     bool          `mapstructure:"skip_content_length"`
	MaxConnectAttempt     int           `mapstructure:"max_connect_attempt"`
	TTLConnectAttempt     time.Duration `mapstructure:"ttl_connect_attempt"`
	DisableHeartbeat      bool          `mapstructure:"disable_heartbeat"`
	Heartbeat             Heartbeat     `mapstructure:"heartbeat"`
	MaxTransportFrameSize int           `mapstructure:"max_transport_frame_size"`
	SubscriptionBuffer    int           `mapstructure:"subscription_buffer"`

	Log     log.Options `mapstructure:"log"`
	Metrics Metrics     `mapstructure:"metrics"`
}

// Heartbeat is either the boolean false or the outgoing and incoming
// intervals in milliseconds.
type Heartbeat struct {
	Disabled bool  `mapstructure:"disabled"`
	Outgoing int64 `mapstructure:"outgoing"`
	Incoming int64 `mapstructure:"incoming"`
}

type Metrics struct {
	// Address of the Prometheus endpoint, disabled when empty.
	Address   string `mapstructure:"address"`
	Namespace string `mapstructure:"namespace"`
}

// flag name -> configuration key
var flagKeys = map[string]string{
	"url":                      "url",
	"login":                    "login",
	"passcode":                 "passcode",
	"host":                     "host",
	"binary":                   "binary",
	"skip-content-length":      "skip_content_length",
	"max-connect-attempt":      "max_connect_attempt",
	"ttl-connect-attempt":      "ttl_connect_attempt",
	"disable-heartbeat":        "disable_heartbeat",
	"max-transport-frame-size": "max_transport_frame_size",
	"subscription-buffer":      "subscription_buffer",
	"log-level":                "log.level",
	"log-format":               "log.format",
	"log-output":               "log.output",
	"metrics-address":          "metrics.address",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("url", DefaultURL, "broker url (ws://, wss://, tcp:// or ssl://)")
	fs.String("login", "", "login header of the CONNECT frame")
	fs.String("passcode", "", "passcode header of the CONNECT frame")
	fs.String("host", "", "virtual host header of the CONNECT frame")
	fs.Bool("binary", false, "send frames as binary websocket messages")
	fs.Bool("skip-content-length", false, "leave content-length out of SEND frames")
	fs.Int("max-connect-attempt", client.DefaultMaxConnectAttempt, "consecutive failed connections before giving up, -1 for no limit")
	fs.Duration("ttl-connect-attempt", client.DefaultTTLConnectAttempt, "base delay of the linear reconnect backoff")
	fs.Bool("disable-heartbeat", false, "do not negotiate heart-beats")
	fs.Int("max-transport-frame-size", client.DefaultMaxTransportFrameSize, "split outbound frames larger than this, negative to never split")
	fs.Int("subscription-buffer", client.DefaultSubscriptionBuffer, "channel capacity of subscriptions")
	fs.String("log-level", "info", "log level")
	fs.String("log-format", "text", "log format (text or json)")
	fs.String("log-output", "stderr", "log output (stderr, stdout, null or a file path)")
	fs.String("metrics-address", "", "serve Prometheus metrics on this address")
}

// Load reads the settings. path may be empty, flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.BindEnv("heartbeat"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "unable to read configuration file '%s'", path)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "unable to bind flag '%s'", name)
				}
			}
		}
	}

	var s Settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		heartbeatHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&s, hook); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("url", DefaultURL)
	v.SetDefault("login", "")
	v.SetDefault("passcode", "")
	v.SetDefault("host", "")
	v.SetDefault("binary", false)
	v.SetDefault("skip_content_length", false)
	v.SetDefault("max_connect_attempt", client.DefaultMaxConnectAttempt)
	v.SetDefault("ttl_connect_attempt", client.DefaultTTLConnectAttempt)
	v.SetDefault("disable_heartbeat", false)
	v.SetDefault("max_transport_frame_size", client.DefaultMaxTransportFrameSize)
	v.SetDefault("subscription_buffer", client.DefaultSubscriptionBuffer)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("metrics.address", "")
	v.SetDefault("metrics.namespace", "stompcli")
}

var heartbeatType = reflect.TypeOf(Heartbeat{})

// heartbeatHook turns the boolean form of the heartbeat setting into its
// struct form.
func heartbeatHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != heartbeatType {
		return data, nil
	}
	switch value := data.(type) {
	case bool:
		return map[string]interface{}{"disabled": !value}, nil
	case string:
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return nil, errors.Errorf("heartbeat must be a boolean or an object, got '%s'", value)
		}
		return map[string]interface{}{"disabled": !enabled}, nil
	}
	return data, nil
}

// HeartbeatSettings converts the setting. ok is false when the client
// default applies.
func (h Heartbeat) HeartbeatSettings() (settings heartbeat.Settings, ok bool) {
	if h.Disabled {
		return heartbeat.Disabled, true
	}
	if h.Outgoing <= 0 && h.Incoming <= 0 {
		return heartbeat.Settings{}, false
	}
	return heartbeat.Settings{
		Outgoing: time.Duration(h.Outgoing) * time.Millisecond,
		Incoming: time.Duration(h.Incoming) * time.Millisecond,
	}, true
}

// ClientConfig builds the client configuration. The logger may be nil.
func (s *Settings) ClientConfig(logger *logrus.Entry) client.Config {
	cfg := client.DefaultConfig()
	cfg.MaxConnectAttempt = s.MaxConnectAttempt
	cfg.TTLConnectAttempt = s.TTLConnectAttempt
	cfg.Binary = s.Binary
	cfg.SkipContentLength = s.SkipContentLength
	cfg.MaxTransportFrameSize = s.MaxTransportFrameSize
	cfg.SubscriptionBuffer = s.SubscriptionBuffer
	cfg.DisableHeartbeat = s.DisableHeartbeat
	if hb, ok := s.Heartbeat.HeartbeatSettings(); ok {
		if hb.Enabled() {
			cfg.Heartbeat = hb
		} else {
			cfg.DisableHeartbeat = true
		}
	}
	cfg.Logger = logger
	return cfg
}

// ConnectHeaders returns the CONNECT headers derived from the settings.
func (s *Settings) ConnectHeaders() []string {
	var headers []string
	if s.Login != "" {
		headers = append(headers, "login", s.Login)
	}
	if s.Passcode != "" {
		headers = append(headers, "passcode", s.Passcode)
	}
	if s.Host != "" {
		headers = append(headers, "host", s.Host)
	}
	return headers
}
