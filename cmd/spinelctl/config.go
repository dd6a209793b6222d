package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/spinelctl/internal/gateway"
	"github.com/danmuck/spinelctl/internal/protocol/session"
	"github.com/danmuck/spinelctl/internal/transport/serial"
)

type appConfig struct {
	Serial      serial.Config
	Session     session.Config
	Gateway     gateway.Config
	Descriptors string
}

func defaultAppConfig() appConfig {
	return appConfig{
		Serial:  serial.DefaultConfig(),
		Session: session.DefaultConfig(),
		Gateway: gateway.DefaultConfig(),
	}
}

type fileConfig struct {
	Port           string   `toml:"port"`
	Baud           int      `toml:"baud"`
	AssertLines    bool     `toml:"assert_lines"`
	IID            uint8    `toml:"iid"`
	RequestTimeout string   `toml:"request_timeout"`
	MaxInFlight    int      `toml:"max_in_flight"`
	QueueDepth     int      `toml:"queue_depth"`
	ReadTimeout    string   `toml:"read_timeout"`
	NotifyBuffer   int      `toml:"notify_buffer"`
	Descriptors    string   `toml:"descriptors"`
	GatewayAddr    string   `toml:"gateway_addr"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIToken       string   `toml:"api_token"`
	TLSCertFile    string   `toml:"tls_cert_file"`
	TLSKeyFile     string   `toml:"tls_key_file"`
}

func loadAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load spinelctl config: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.Serial.Path = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		cfg.Serial.Baud = raw.Baud
	}
	if meta.IsDefined("assert_lines") {
		cfg.Serial.AssertLines = raw.AssertLines
	}
	if meta.IsDefined("iid") {
		cfg.Session.IID = raw.IID
	}
	if meta.IsDefined("request_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RequestTimeout))
		if err != nil {
			return appConfig{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.Session.RequestTimeout = d
		cfg.Gateway.RequestTimeout = d
	}
	if meta.IsDefined("max_in_flight") {
		cfg.Session.MaxInFlight = raw.MaxInFlight
	}
	if meta.IsDefined("queue_depth") {
		cfg.Session.QueueDepth = raw.QueueDepth
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return appConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Serial.ReadTimeout = d
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("notify_buffer") {
		cfg.Session.NotifyBuffer = raw.NotifyBuffer
	}
	if meta.IsDefined("descriptors") {
		cfg.Descriptors = strings.TrimSpace(raw.Descriptors)
	}
	if meta.IsDefined("gateway_addr") {
		cfg.Gateway.Addr = strings.TrimSpace(raw.GatewayAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Gateway.CORSOrigins = normalizeOrigins(raw.CORSOrigins)
	}

	if meta.IsDefined("api_token") {
		cfg.Gateway.Token = strings.TrimSpace(raw.APIToken)
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Gateway.TLSCertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Gateway.TLSKeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if (cfg.Gateway.TLSCertFile == "") != (cfg.Gateway.TLSKeyFile == "") {
		return appConfig{}, fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}

	if err := cfg.Session.Validate(); err != nil {
		return appConfig{}, fmt.Errorf("session config: %w", err)
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		v := strings.TrimSpace(o)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
