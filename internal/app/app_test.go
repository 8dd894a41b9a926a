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

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/trackdmp/internal/config"
	"github.com/googlegenomics/trackdmp/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Track.FileRoot = dir
	cfg.Metadata.DSN = filepath.Join(dir, "dmp.db")
	cfg.Auth.Tokens = []string{"secret:adam"}
	return cfg
}

func TestHandler(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Track.FileRoot, "notes.txt"), []byte("hello"), 0644))

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	id, err := a.Store.AddFile(context.Background(), &metadata.File{UserID: "adam", FilePath: "notes.txt", FileType: "txt"})
	require.NoError(t, err)

	handler := a.Handler()
	testCases := []struct {
		name   string
		target string
		token  string
		code   int
		body   string
	}{
		{"ping", "/mug/api/dmp/ping", "", http.StatusOK, ""},
		{"original", "/mug/api/dmp/file?output=original&file_id=" + id, "secret", http.StatusOK, "hello"},
		{"unauthenticated", "/mug/api/dmp/file?file_id=" + id, "", http.StatusUnauthorized, ""},
		{"unsupported region query", "/mug/api/dmp/file?file_id=" + id + "&chrom=chr1&start=0&end=10", "secret", http.StatusBadRequest, ""},
		{"unknown route", "/mug/api/other", "", http.StatusNotFound, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"codec", func(cfg *config.Config) { cfg.Track.Codec = "lz4" }},
		{"empty file root", func(cfg *config.Config) { cfg.Track.FileRoot = "" }},
		{"bad token", func(cfg *config.Config) { cfg.Auth.Tokens = []string{"nouser"} }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.modify(&cfg)
			_, err := New(context.Background(), cfg, zap.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestHandlerLeavesGinMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	a.Handler()
	assert.Equal(t, gin.TestMode, gin.Mode())
}

func TestNewStorageClient(t *testing.T) {
	cfg := testConfig(t)
	client, err := NewStorageClient(context.Background(), cfg)
	require.NoError(t, err)

	_, err = client.NewObjectHandle("gs://bucket/object")
	assert.Error(t, err, "gs:// paths must be rejected unless GCS is enabled")

	_, err = client.NewObjectHandle("relative/file.bb")
	assert.NoError(t, err)
}
