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

// Package api implements the track data management REST API served below
// /mug/api/dmp.
//
// Files are registered in a metadata store and addressed by identifier.
// Region queries against indexed annotation (bigBed) and signal (bigWig)
// files are answered by a track.Service and returned as bed or wig text.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/trackdmp/analytics"
	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/googlegenomics/trackdmp/internal/feature"
	"github.com/googlegenomics/trackdmp/internal/genomics"
	"github.com/googlegenomics/trackdmp/internal/metadata"
	"github.com/googlegenomics/trackdmp/internal/track"
	"github.com/googlegenomics/trackdmp/storage"
	"go.uber.org/zap"
)

// BasePath is the prefix of every endpoint registered by Export.
const BasePath = "/mug/api/dmp"

var (
	errMissingToken        = errors.New("missing bearer token")
	errUnknownToken        = errors.New("unknown bearer token")
	errNotOwner            = errors.New("file belongs to another user")
	errIncompleteRegion    = errors.New("chrom, start and end must be given together")
	errMissingFileID       = errors.New("no file_id specified")
	errUnknownUpdateAction = errors.New("type must be add_meta or remove_meta")
)

// MetadataStore is the set of metadata operations used by the server.  It is
// satisfied by *metadata.Store.
type MetadataStore interface {
	GetFileByID(ctx context.Context, id string) (*metadata.File, error)
	GetFilesByUser(ctx context.Context, user string) ([]*metadata.File, error)
	GetFilesByAssembly(ctx context.Context, assembly string) ([]*metadata.File, error)
	GetFileHistory(ctx context.Context, id string) ([]*metadata.File, error)
	AddFile(ctx context.Context, f *metadata.File) (string, error)
	AddMeta(ctx context.Context, id string, meta map[string]string) error
	RemoveMeta(ctx context.Context, id string, keys []string) error
	RemoveFile(ctx context.Context, id string) error
}

// Info describes the service in ping responses.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	License     string `json:"license"`
	Description string `json:"description"`
}

// DefaultInfo is reported unless WithInfo is used.
var DefaultInfo = Info{
	Name:        "dmp",
	Version:     "0.1.0",
	Author:      "Google Inc.",
	License:     "Apache 2.0",
	Description: "Track data management and region query service",
}

// Server provides the track API.  Must be created with NewServer.
type Server struct {
	tracks *track.Service
	files  MetadataStore
	users  map[string]string
	info   Info
	logger *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used to report internal failures.
func WithLogger(logger *zap.Logger) Option {
	return func(server *Server) {
		server.logger = logger
	}
}

// WithInfo replaces the service description returned by the ping endpoint.
func WithInfo(info Info) Option {
	return func(server *Server) {
		server.info = info
	}
}

// NewServer returns a new Server answering region queries with tracks and
// resolving file identifiers with files.  The users map associates bearer
// tokens with user identifiers; requests to authenticated endpoints carrying
// any other token are rejected.
func NewServer(tracks *track.Service, files MetadataStore, users map[string]string, opts ...Option) *Server {
	server := &Server{
		tracks: tracks,
		files:  files,
		users:  users,
		info:   DefaultInfo,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}
	return server
}

// Export registers the API endpoints with router.
func (server *Server) Export(router gin.IRouter) {
	group := router.Group(BasePath, forwardOrigin)
	group.GET("", server.serveRoot)
	group.GET("/ping", server.servePing)

	group.GET("/track", server.serveTrack)
	group.GET("/tracks", server.serveTracks)
	group.GET("/trackHistory", server.serveTrackHistory)

	group.GET("/file", server.serveFile)
	group.POST("/file", server.addFile)
	group.PUT("/file", server.updateFile)
	group.DELETE("/file", server.removeFile)
	group.GET("/files", server.serveFiles)
}

func (server *Server) serveRoot(c *gin.Context) {
	root := baseURL(c.Request)
	c.JSON(http.StatusOK, gin.H{
		"_links": gin.H{
			"_self":            root + BasePath,
			"_getTracks":       root + BasePath + "/tracks",
			"_getTrackHistory": root + BasePath + "/trackHistory",
			"_getFile":         root + BasePath + "/file",
			"_getFiles":        root + BasePath + "/files",
			"_ping":            root + BasePath + "/ping",
			"_parent":          root + strings.TrimSuffix(BasePath, "/dmp"),
		},
	})
}

func (server *Server) servePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ready",
		"name":        server.info.Name,
		"version":     server.info.Version,
		"author":      server.info.Author,
		"license":     server.info.License,
		"description": server.info.Description,
	})
}

// serveTracks lists the files registered by a user.
func (server *Server) serveTracks(c *gin.Context) {
	user := c.Query("user_id")
	if user == "" {
		writeUsage(c, tracksUsage)
		return
	}

	files, err := server.files.GetFilesByUser(c.Request.Context(), user)
	if err != nil {
		server.writeError(c, newTrackError("listing files", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"_links": gin.H{"_self": requestURL(c.Request)},
		"files":  nonNil(files),
	})
}

// serveTrackHistory lists the files a file was derived from.
func (server *Server) serveTrackHistory(c *gin.Context) {
	id := c.Query("file_id")
	if id == "" {
		writeUsage(c, trackHistoryUsage)
		return
	}

	files, err := server.files.GetFileHistory(c.Request.Context(), id)
	if err != nil {
		server.writeError(c, newTrackError("reading file history", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"_links":        gin.H{"_self": requestURL(c.Request)},
		"history_files": nonNil(files),
	})
}

// serveTrack answers region queries.  All of file_id, chrom, start and end
// are required.
func (server *Server) serveTrack(c *gin.Context) {
	query := c.Request.URL.Query()
	if query.Get("file_id") == "" || !hasRegion(query.Get) {
		writeUsage(c, trackUsage)
		return
	}
	user, err := server.authenticate(c.Request)
	if err != nil {
		server.writeError(c, err)
		return
	}
	file, err := server.ownedFile(c.Request.Context(), user, query.Get("file_id"))
	if err != nil {
		server.writeError(c, err)
		return
	}
	server.serveRange(c, file)
}

// serveRange writes the records of file overlapping the requested region.
func (server *Server) serveRange(c *gin.Context, file *metadata.File) {
	chrom, start, end, err := parseRegion(c.Query)
	if err != nil {
		server.writeError(c, err)
		return
	}

	contentType, err := track.ContentType(file.FileType)
	if err != nil {
		server.writeError(c, newTrackError("checking file type", err))
		return
	}

	record := analytics.TrackerFromContext(c.Request.Context())
	record(analytics.Event(analytics.CategoryRange, "Range Request Received", strings.ToLower(file.FileType), nil))

	text, err := server.tracks.GetRange(c.Request.Context(), file.FileType, file.FilePath, chrom, start, end)
	if err != nil {
		server.writeError(c, newTrackError(fmt.Sprintf("querying %s:%d-%d", chrom, start, end), err))
		return
	}
	c.Data(http.StatusOK, contentType, []byte(text))
}

// authenticate returns the user associated with the request's bearer token.
// The Authorization header value may carry a repeated "Authorization:"
// prefix; the token is always its last field.
func (server *Server) authenticate(req *http.Request) (string, error) {
	fields := strings.Fields(req.Header.Get("Authorization"))
	if len(fields) < 2 || !strings.EqualFold(fields[len(fields)-2], "Bearer") {
		return "", newInvalidAuthenticationError("checking authorization", errMissingToken)
	}
	user, ok := server.users[fields[len(fields)-1]]
	if !ok {
		return "", newInvalidAuthenticationError("checking authorization", errUnknownToken)
	}
	return user, nil
}

// ownedFile returns the metadata of the file id after checking that it was
// registered by user.
func (server *Server) ownedFile(ctx context.Context, user, id string) (*metadata.File, error) {
	file, err := server.files.GetFileByID(ctx, id)
	if err != nil {
		return nil, newTrackError("resolving file", err)
	}
	if file.UserID != user {
		return nil, newPermissionDeniedError(fmt.Sprintf("reading file %s", id), errNotOwner)
	}
	return file, nil
}

func hasRegion(get func(string) string) bool {
	return get("chrom") != "" || get("start") != "" || get("end") != ""
}

// parseRegion reads the chrom, start and end query parameters.  The range
// itself is validated by the track service.
func parseRegion(get func(string) string) (string, int64, int64, error) {
	var (
		chrom = get("chrom")
		start = get("start")
		end   = get("end")
	)
	if chrom == "" || start == "" || end == "" {
		return "", 0, 0, newInvalidInputError("parsing region", errIncompleteRegion)
	}
	s, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return "", 0, 0, newInvalidInputError("parsing start", err)
	}
	e, err := strconv.ParseInt(end, 10, 64)
	if err != nil {
		return "", 0, 0, newInvalidInputError("parsing end", err)
	}
	return chrom, s, e, nil
}

func baseURL(req *http.Request) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + req.Host
}

func requestURL(req *http.Request) string {
	return baseURL(req) + req.URL.Path
}

func nonNil(files []*metadata.File) []*metadata.File {
	if files == nil {
		return []*metadata.File{}
	}
	return files
}

// apiError is used to capture errors that have been defined in the API.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func (err *apiError) Unwrap() error {
	return err.cause
}

func newApiError(name string, code int, context string, err error) error {
	return &apiError{name, code, fmt.Errorf("%s: %w", context, err)}
}

func newInvalidAuthenticationError(context string, err error) error {
	return newApiError("InvalidAuthentication", http.StatusUnauthorized, context, err)
}

func newInvalidInputError(context string, err error) error {
	return newApiError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidRangeError(err error) error {
	return &apiError{"InvalidRange", http.StatusBadRequest, err}
}

func newPermissionDeniedError(context string, err error) error {
	return newApiError("PermissionDenied", http.StatusForbidden, context, err)
}

func newUnsupportedFormatError(err error) error {
	return &apiError{"UnsupportedFormat", http.StatusBadRequest, err}
}

func newNotFoundError(context string, err error) error {
	return newApiError("NotFound", http.StatusNotFound, context, err)
}

// newTrackError classifies failures reported by the track service, the
// metadata store and storage backends.  Unrecognized errors are returned
// unchanged and reported as internal errors.
func newTrackError(context string, err error) error {
	var (
		formatErr *bbi.FileFormatError
		blockErr  *bbi.BlockDecodeError
		recordErr *feature.DecodeError
	)
	switch {
	case errors.Is(err, genomics.ErrInvalidRange):
		return newInvalidRangeError(fmt.Errorf("%s: %w", context, err))
	case errors.Is(err, track.ErrUnsupportedFormat):
		return newUnsupportedFormatError(fmt.Errorf("%s: %w", context, err))
	case errors.Is(err, bbi.ErrUnknownChromosome):
		return newApiError("UnknownChromosome", http.StatusNotFound, context, err)
	case errors.Is(err, metadata.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return newNotFoundError(context, err)
	case errors.Is(err, storage.ErrPermissionDenied):
		return newPermissionDeniedError(context, err)
	case errors.As(err, &formatErr):
		return newApiError("FileFormat", http.StatusInternalServerError, context, err)
	case errors.As(err, &blockErr):
		return newApiError("BlockDecode", http.StatusInternalServerError, context, err)
	case errors.As(err, &recordErr):
		return newApiError("Decode", http.StatusInternalServerError, context, err)
	}
	return fmt.Errorf("%s: %w", context, err)
}

// writeError writes either a JSON object or bare HTTP error describing err.
// A JSON object is written only when the error has a name and code defined
// by the API.
func (server *Server) writeError(c *gin.Context, err error) {
	var e *apiError
	if !errors.As(err, &e) {
		server.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		writeHTTPError(c, http.StatusInternalServerError, err)
		return
	}
	if e.code >= http.StatusInternalServerError {
		server.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.AbortWithStatusJSON(e.code, gin.H{
		"error":   e.name,
		"message": fmt.Sprintf("%s: %v", http.StatusText(e.code), e.cause),
	})
}

func writeHTTPError(c *gin.Context, code int, err error) {
	c.String(code, "%s: %v\n", http.StatusText(code), err)
	c.Abort()
}

// forwardOrigin allows cross-origin callers to read responses.
func forwardOrigin(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}
	c.Next()
}
