// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the service configuration from an ini file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/googlegenomics/trackdmp/internal/codec"
	"github.com/googlegenomics/trackdmp/internal/track"
	"gopkg.in/ini.v1"
)

// Config is the complete service configuration.  Each field maps to the ini
// section named by its tag.
type Config struct {
	Server   Server   `ini:"server"`
	Track    Track    `ini:"track"`
	Metadata Metadata `ini:"metadata"`
	Auth     Auth     `ini:"auth"`
	Log      Log      `ini:"log"`
	Storage  Storage  `ini:"storage"`
}

// Server configures the HTTP listener.
type Server struct {
	Port       int    `ini:"port"`
	HTTPSCert  string `ini:"https_cert"`
	HTTPSKey   string `ini:"https_key"`
	TrackUsage bool   `ini:"track_usage"`
}

// Track configures range queries.
type Track struct {
	FileRoot       string `ini:"file_root"`
	Codec          string `ini:"codec"`
	CacheSize      int    `ini:"cache_size"`
	FetchSizeLimit int64  `ini:"fetch_size_limit"`
}

// Metadata configures the file metadata database.
type Metadata struct {
	// Driver is either "sqlite" or "mysql".
	Driver         string        `ini:"driver"`
	DSN            string        `ini:"dsn"`
	ConnectTimeout time.Duration `ini:"connect_timeout"`
}

// Auth lists the accepted bearer tokens as "token:user" pairs.
type Auth struct {
	Tokens []string `ini:"tokens" delim:","`
}

// Log configures the logger.
type Log struct {
	Level       string `ini:"level"`
	Development bool   `ini:"development"`
}

// Storage configures access to Google Cloud Storage paths.
type Storage struct {
	GCS       bool `ini:"gcs"`
	GCSPublic bool `ini:"gcs_public"`
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		Server: Server{Port: 8080},
		Track: Track{
			FileRoot:       ".",
			Codec:          codec.Auto.String(),
			CacheSize:      64,
			FetchSizeLimit: 4 * 1024 * 1024,
		},
		Metadata: Metadata{
			Driver:         "sqlite",
			DSN:            "dmp.db",
			ConnectTimeout: 30 * time.Second,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the ini file at path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("loading %q: %w", path, err)
	}
	if err := f.MapTo(&cfg); err != nil {
		return Config{}, fmt.Errorf("mapping %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be checked by their type alone.
func (c *Config) Validate() error {
	if _, err := codec.Parse(c.Track.Codec); err != nil {
		return fmt.Errorf("track: %w", err)
	}
	if strings.TrimSpace(c.Track.FileRoot) == "" {
		return fmt.Errorf("track: file_root must name a directory")
	}
	if c.Track.CacheSize < 0 {
		return fmt.Errorf("track: negative cache_size %d", c.Track.CacheSize)
	}
	switch c.Metadata.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("metadata: unsupported driver %q", c.Metadata.Driver)
	}
	if _, err := c.Auth.Users(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if (c.Server.HTTPSCert == "") != (c.Server.HTTPSKey == "") {
		return fmt.Errorf("server: https_cert and https_key must be set together")
	}
	return nil
}

// TrackConfig returns the range query service configuration.
func (c *Config) TrackConfig() (track.Config, error) {
	cdc, err := codec.Parse(c.Track.Codec)
	if err != nil {
		return track.Config{}, err
	}
	return track.Config{
		FileRoot:       c.Track.FileRoot,
		Codec:          cdc,
		CacheSize:      c.Track.CacheSize,
		FetchSizeLimit: c.Track.FetchSizeLimit,
	}, nil
}

// Users maps every configured token to its user.
func (a Auth) Users() (map[string]string, error) {
	users := make(map[string]string, len(a.Tokens))
	for _, entry := range a.Tokens {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed token entry %q", entry)
		}
		users[parts[0]] = parts[1]
	}
	return users, nil
}
