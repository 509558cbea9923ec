// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads coordinator and client settings from an
// evhttp.yaml file, with EVHTTP_ environment variable overrides.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gogama/evhttp"
	"github.com/gogama/evhttp/ratelimit"
	"github.com/gogama/evhttp/retry"
	"github.com/gogama/evhttp/timeout"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Name is the base name of the configuration file.
const Name = "evhttp"

// EnvPrefix prefixes the environment variables which override file
// settings. For example EVHTTP_TIMEOUT overrides timeout.
const EnvPrefix = "EVHTTP"

// Settings holds the loaded configuration.
type Settings struct {
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DisableKeepAlives   bool          `mapstructure:"disable_keep_alives"`
	DisableHTTP2        bool          `mapstructure:"disable_http2"`
	DisableProxy        bool          `mapstructure:"disable_proxy"`
	InsecureSkipVerify  bool          `mapstructure:"insecure_skip_verify"`
	// Timeout bounds each attempt. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
	// Retries is the number of retries after the first attempt.
	Retries int    `mapstructure:"retries"`
	Limits  Limits `mapstructure:"limits"`
}

// Limits mirrors ratelimit.Config.
type Limits struct {
	HTTP    []Limit `mapstructure:"http"`
	HTTPS   []Limit `mapstructure:"https"`
	PerHost []Limit `mapstructure:"per_host"`
}

// A Limit admits at most MaxConnections new connections per Period.
type Limit struct {
	MaxConnections int           `mapstructure:"max_connections"`
	Period         time.Duration `mapstructure:"period"`
}

var defaults = map[string]interface{}{
	"max_idle_conns_per_host": 2,
	"idle_conn_timeout":       90 * time.Second,
	"disable_keep_alives":     false,
	"disable_http2":           false,
	"disable_proxy":           false,
	"insecure_skip_verify":    false,
	"timeout":                 5 * time.Second,
	"retries":                 retry.DefaultTimes,
}

// Load reads evhttp.yaml from dir, or the working directory if dir is
// empty. A missing file is not an error: the defaults and environment
// apply.
func Load(dir string) (*Settings, error) {
	v := newViper()
	v.SetConfigName(Name)
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("evhttp/config: %w", err)
		}
	}
	return decode(v)
}

// LoadFile reads the configuration file at path, which must exist.
func LoadFile(path string) (*Settings, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("evhttp/config: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

func decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("evhttp/config: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports the first invalid setting.
func (s *Settings) Validate() error {
	switch {
	case s.MaxIdleConnsPerHost < 0:
		return errors.New("evhttp/config: max_idle_conns_per_host must not be negative")
	case s.IdleConnTimeout < 0:
		return errors.New("evhttp/config: idle_conn_timeout must not be negative")
	case s.Timeout < 0:
		return errors.New("evhttp/config: timeout must not be negative")
	case s.Retries < 0:
		return errors.New("evhttp/config: retries must not be negative")
	}
	groups := []struct {
		name   string
		limits []Limit
	}{
		{"http", s.Limits.HTTP},
		{"https", s.Limits.HTTPS},
		{"per_host", s.Limits.PerHost},
	}
	for _, g := range groups {
		for i, l := range g.limits {
			if l.MaxConnections <= 0 || l.Period <= 0 {
				return fmt.Errorf("evhttp/config: limits.%s[%d] needs positive max_connections and period", g.name, i)
			}
		}
	}
	return nil
}

// Coordinator converts s into a coordinator configuration logging to
// log.
func (s *Settings) Coordinator(log logrus.FieldLogger) evhttp.Config {
	cfg := evhttp.Config{
		Limits: ratelimit.Config{
			HTTP:    limits(s.Limits.HTTP),
			HTTPS:   limits(s.Limits.HTTPS),
			PerHost: limits(s.Limits.PerHost),
		},
		MaxIdleConnsPerHost: s.MaxIdleConnsPerHost,
		IdleConnTimeout:     s.IdleConnTimeout,
		DisableKeepAlives:   s.DisableKeepAlives,
		DisableHTTP2:        s.DisableHTTP2,
		DisableProxy:        s.DisableProxy,
		Logger:              log,
	}
	if s.InsecureSkipVerify {
		cfg.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return cfg
}

// RetryPolicy returns a policy making up to s.Retries retries of
// transient failures and retryable status codes.
func (s *Settings) RetryPolicy() retry.Policy {
	if s.Retries == 0 {
		return retry.Never
	}
	d := retry.Times(s.Retries).And(retry.StatusCode(429, 502, 503, 504).Or(retry.TransientErr))
	return retry.NewPolicy(d, retry.DefaultWaiter)
}

// TimeoutPolicy returns a fixed per-attempt timeout policy.
func (s *Settings) TimeoutPolicy() timeout.Policy {
	return timeout.Fixed(s.Timeout)
}

func limits(in []Limit) []ratelimit.Limit {
	if len(in) == 0 {
		return nil
	}
	out := make([]ratelimit.Limit, len(in))
	for i, l := range in {
		out[i] = ratelimit.Limit{MaxConnections: l.MaxConnections, Period: l.Period}
	}
	return out
}
