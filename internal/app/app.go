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

// Package app assembles the track server from its configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/googlegenomics/trackdmp/analytics"
	"github.com/googlegenomics/trackdmp/api"
	"github.com/googlegenomics/trackdmp/internal/config"
	"github.com/googlegenomics/trackdmp/internal/metadata"
	"github.com/googlegenomics/trackdmp/internal/track"
	"github.com/googlegenomics/trackdmp/storage"
	"go.uber.org/zap"
)

// analyticsPropertyID receives anonymous usage events when usage tracking
// is enabled.
const analyticsPropertyID = "UA-103022118-1"

// App holds the long-lived components of a running server.
type App struct {
	Config config.Config
	Server *api.Server
	Store  *metadata.Store
	logger *zap.Logger
}

// New connects to the metadata store and storage backends named by cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	trackConfig, err := cfg.TrackConfig()
	if err != nil {
		return nil, err
	}
	users, err := cfg.Auth.Users()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		logger.Warn("no access tokens configured; authenticated endpoints will reject every request")
	}

	objects, err := NewStorageClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := metadata.Open(ctx, cfg.Metadata.Driver, cfg.Metadata.DSN, cfg.Metadata.ConnectTimeout, logger.Named("metadata"))
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}

	tracks := track.NewService(trackConfig, objects, track.WithLogger(logger.Named("track")))
	server := api.NewServer(tracks, store, users, api.WithLogger(logger.Named("api")))
	return &App{Config: cfg, Server: server, Store: store, logger: logger}, nil
}

// NewStorageClient returns the client resolving registered file paths.
// Paths without a scheme are read below the track file root and gs:// paths
// are read from Google Cloud Storage when enabled.
func NewStorageClient(ctx context.Context, cfg config.Config) (storage.Client, error) {
	router := storage.NewRouter(storage.Local{Root: cfg.Track.FileRoot})
	if !cfg.Storage.GCS {
		return router, nil
	}

	newClient := storage.NewDefaultClient
	if cfg.Storage.GCSPublic {
		newClient = storage.NewPublicClient
	}
	gcs, err := newClient(ctx)
	if err != nil {
		return nil, err
	}
	return router.Handle(storage.GCSScheme, gcs), nil
}

// Handler returns the HTTP handler serving the API.  The gin mode is process
// wide and is left to the binary.
func (a *App) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(a.logger.Named("http")))

	if a.Config.Server.TrackUsage {
		a.logger.Info("enabling anonymous usage tracking")
		client := analytics.NewClient(analyticsPropertyID, uuid.New().String())
		router.Use(analytics.Middleware(client.Tracker(a.logger.Named("analytics"))))
	}

	a.Server.Export(router)
	return router
}

// Close releases the metadata store.
func (a *App) Close() error {
	return a.Store.Close()
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)))
	}
}
