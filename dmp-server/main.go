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

// This binary provides the track data management server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/trackdmp/internal/app"
	"github.com/googlegenomics/trackdmp/internal/config"
	"github.com/googlegenomics/trackdmp/internal/logging"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "", "ini configuration file")

	port      = flag.Int("port", 8080, "HTTP service port")
	httpsCert = flag.String("https_cert", "", "HTTPS certificate file")
	httpsKey  = flag.String("https_key", "", "HTTPS key file")
	fileRoot  = flag.String("file_root", "", "directory that contains track files")
	logLevel  = flag.String("log_level", "", "minimum logged level")

	cpuProfile = flag.String("profile", "", "if set, write a CPU profile to this directory")

	// Enable or disable anonymous usage tracking.
	//
	// If enabled, anonymous information about requests handled by the server is
	// logged to Google via Google Analytics.
	//
	// This information helps Google determine how well the software is
	// performing and where improvements should be made.  No user identifying
	// information is ever sent to Google.
	trackUsage = flag.Bool("track_usage", false, "anonymous usage tracking")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if *cpuProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*cpuProfile), profile.NoShutdownHook).Stop()
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer a.Close()

	address := fmt.Sprintf(":%d", cfg.Server.Port)
	handler := a.Handler()
	logger.Info("serving", zap.String("address", address), zap.Bool("https", cfg.Server.HTTPSCert != ""))
	if cfg.Server.HTTPSCert != "" {
		err = http.ListenAndServeTLS(address, cfg.Server.HTTPSCert, cfg.Server.HTTPSKey, handler)
	} else {
		err = http.ListenAndServe(address, handler)
	}
	logger.Error("server returned an error", zap.Error(err))
}

// applyFlags overrides configuration values with explicitly set flags.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "https_cert":
			cfg.Server.HTTPSCert = *httpsCert
		case "https_key":
			cfg.Server.HTTPSKey = *httpsKey
		case "file_root":
			cfg.Track.FileRoot = *fileRoot
		case "log_level":
			cfg.Log.Level = *logLevel
		case "track_usage":
			cfg.Server.TrackUsage = *trackUsage
		}
	})
}
