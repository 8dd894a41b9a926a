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

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/trackdmp/analytics"
	"github.com/googlegenomics/trackdmp/internal/bbi"
	"github.com/googlegenomics/trackdmp/internal/metadata"
	"github.com/googlegenomics/trackdmp/internal/track"
)

const maximumRequestSize = 1 << 20

// usage describes the parameters accepted by an endpoint.  It is returned
// when a request omits them.
type usage struct {
	Endpoint   string            `json:"endpoint"`
	Parameters map[string]string `json:"parameters"`
	Message    string            `json:"message"`
}

var (
	fileUsage = usage{
		Endpoint: BasePath + "/file",
		Parameters: map[string]string{
			"file_id": "Identifier of a registered file",
			"chrom":   "Chromosome name, required for region queries",
			"start":   "Zero-based start of the region, required for region queries",
			"end":     "Exclusive end of the region, required for region queries",
			"output":  "Set to 'original' to download the unmodified file",
		},
		Message: "Provide a file_id to read file metadata, with chrom, start and end to query a region.",
	}
	trackUsage = usage{
		Endpoint: BasePath + "/track",
		Parameters: map[string]string{
			"file_id": "Identifier of a registered bed, bigbed, wig or bigwig file",
			"chrom":   "Chromosome name",
			"start":   "Zero-based start of the region",
			"end":     "Exclusive end of the region",
		},
		Message: "Provide file_id, chrom, start and end.",
	}
	tracksUsage = usage{
		Endpoint:   BasePath + "/tracks",
		Parameters: map[string]string{"user_id": "User whose files are listed"},
		Message:    "Provide a user_id.",
	}
	trackHistoryUsage = usage{
		Endpoint:   BasePath + "/trackHistory",
		Parameters: map[string]string{"file_id": "File whose sources are listed"},
		Message:    "Provide a file_id.",
	}
)

func writeUsage(c *gin.Context, u usage) {
	c.JSON(http.StatusOK, gin.H{"usage": u})
}

// newFileRequest is the body of a file registration.
type newFileRequest struct {
	FilePath   string            `json:"file_path"`
	FileType   string            `json:"file_type"`
	DataType   string            `json:"data_type"`
	TaxonID    int64             `json:"taxon_id"`
	Assembly   string            `json:"assembly"`
	Compressed bool              `json:"compressed"`
	Sources    []string          `json:"source_id"`
	Meta       map[string]string `json:"meta_data"`
}

// updateFileRequest is the body of a metadata update.  MetaData holds an
// object of key/value pairs for add_meta and a list of keys for remove_meta.
type updateFileRequest struct {
	Type     string          `json:"type"`
	MetaData json.RawMessage `json:"meta_data"`
}

func decodeBody(req *http.Request, v interface{}) error {
	if req.Body == nil {
		return newInvalidInputError("reading body", io.ErrUnexpectedEOF)
	}
	if err := json.NewDecoder(io.LimitReader(req.Body, maximumRequestSize)).Decode(v); err != nil {
		return newInvalidInputError("decoding body", err)
	}
	return nil
}

// serveFile returns file metadata, a region of the file or the file itself.
func (server *Server) serveFile(c *gin.Context) {
	id := c.Query("file_id")
	if id == "" {
		writeUsage(c, fileUsage)
		return
	}
	user, err := server.authenticate(c.Request)
	if err != nil {
		server.writeError(c, err)
		return
	}
	file, err := server.ownedFile(c.Request.Context(), user, id)
	if err != nil {
		server.writeError(c, err)
		return
	}

	switch {
	case c.Query("output") == "original":
		server.serveOriginal(c, file)
	case hasRegion(c.Query):
		server.serveRange(c, file)
	default:
		c.JSON(http.StatusOK, file)
	}
}

func (server *Server) serveOriginal(c *gin.Context, file *metadata.File) {
	record := analytics.TrackerFromContext(c.Request.Context())
	record(analytics.Event(analytics.CategoryFile, "Download Request Received", strings.ToLower(file.FileType), nil))

	r, err := server.tracks.Original(c.Request.Context(), file.FilePath)
	if err != nil {
		server.writeError(c, newTrackError("opening file", err))
		return
	}
	defer r.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.ID+"."+strings.ToLower(file.FileType)))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, r); err != nil {
		// The status has already been sent.
		c.Error(err)
	}
}

// addFile registers a file for the authenticated user.
func (server *Server) addFile(c *gin.Context) {
	user, err := server.authenticate(c.Request)
	if err != nil {
		server.writeError(c, err)
		return
	}
	var request newFileRequest
	if err := decodeBody(c.Request, &request); err != nil {
		server.writeError(c, err)
		return
	}
	switch {
	case request.FilePath == "":
		server.writeError(c, newInvalidInputError("registering file", errors.New("no file_path specified")))
		return
	case request.FileType == "":
		server.writeError(c, newInvalidInputError("registering file", errors.New("no file_type specified")))
		return
	}

	file := &metadata.File{
		UserID:     user,
		FilePath:   request.FilePath,
		FileType:   request.FileType,
		DataType:   request.DataType,
		TaxonID:    request.TaxonID,
		Assembly:   request.Assembly,
		Compressed: request.Compressed,
		Sources:    request.Sources,
		Meta:       request.Meta,
	}
	id, err := server.files.AddFile(c.Request.Context(), file)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			err = newInvalidInputError("registering file", err)
		}
		server.writeError(c, err)
		return
	}
	record := analytics.TrackerFromContext(c.Request.Context())
	record(analytics.Event(analytics.CategoryFile, "File Registered", strings.ToLower(request.FileType), nil))
	c.JSON(http.StatusCreated, gin.H{"_id": id})
}

// updateFile adds or removes metadata entries of a file.
func (server *Server) updateFile(c *gin.Context) {
	id := c.Query("file_id")
	if id == "" {
		server.writeError(c, newInvalidInputError("updating file", errMissingFileID))
		return
	}
	user, err := server.authenticate(c.Request)
	if err != nil {
		server.writeError(c, err)
		return
	}
	var request updateFileRequest
	if err := decodeBody(c.Request, &request); err != nil {
		server.writeError(c, err)
		return
	}
	if _, err := server.ownedFile(c.Request.Context(), user, id); err != nil {
		server.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	switch request.Type {
	case "add_meta":
		var meta map[string]string
		if err := json.Unmarshal(request.MetaData, &meta); err != nil || len(meta) == 0 {
			server.writeError(c, newInvalidInputError("decoding meta_data", errors.New("expected a non-empty object")))
			return
		}
		err = server.files.AddMeta(ctx, id, meta)
	case "remove_meta":
		var keys []string
		if err := json.Unmarshal(request.MetaData, &keys); err != nil || len(keys) == 0 {
			server.writeError(c, newInvalidInputError("decoding meta_data", errors.New("expected a non-empty list of keys")))
			return
		}
		err = server.files.RemoveMeta(ctx, id, keys)
	default:
		server.writeError(c, newInvalidInputError("updating file", errUnknownUpdateAction))
		return
	}
	if err != nil {
		server.writeError(c, newTrackError("updating file", err))
		return
	}

	file, err := server.files.GetFileByID(ctx, id)
	if err != nil {
		server.writeError(c, newTrackError("reading file", err))
		return
	}
	c.JSON(http.StatusOK, file)
}

// removeFile unregisters a file.  The stored data is left in place.
func (server *Server) removeFile(c *gin.Context) {
	id := c.Query("file_id")
	if id == "" {
		server.writeError(c, newInvalidInputError("removing file", errMissingFileID))
		return
	}
	user, err := server.authenticate(c.Request)
	if err != nil {
		server.writeError(c, err)
		return
	}
	if _, err := server.ownedFile(c.Request.Context(), user, id); err != nil {
		server.writeError(c, err)
		return
	}
	if err := server.files.RemoveFile(c.Request.Context(), id); err != nil {
		server.writeError(c, newTrackError("removing file", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"_id": id})
}

// serveFiles lists the authenticated user's files, optionally restricted to
// an assembly and to files with records in a region.
func (server *Server) serveFiles(c *gin.Context) {
	user, err := server.authenticate(c.Request)
	if err != nil {
		server.writeError(c, err)
		return
	}
	ctx := c.Request.Context()

	var files []*metadata.File
	if assembly := c.Query("assembly"); assembly != "" {
		all, err := server.files.GetFilesByAssembly(ctx, assembly)
		if err != nil {
			server.writeError(c, newTrackError("listing files", err))
			return
		}
		for _, file := range all {
			if file.UserID == user {
				files = append(files, file)
			}
		}
	} else {
		files, err = server.files.GetFilesByUser(ctx, user)
		if err != nil {
			server.writeError(c, newTrackError("listing files", err))
			return
		}
	}

	if hasRegion(c.Query) {
		chrom, start, end, err := parseRegion(c.Query)
		if err != nil {
			server.writeError(c, err)
			return
		}
		files, err = server.filterByRegion(c, files, chrom, start, end)
		if err != nil {
			server.writeError(c, err)
			return
		}
	}

	record := analytics.TrackerFromContext(ctx)
	count := int64(len(files))
	record(analytics.Event(analytics.CategoryFiles, "Files Listed", "", &count))

	c.JSON(http.StatusOK, gin.H{
		"_links": gin.H{"_self": requestURL(c.Request)},
		"files":  nonNil(files),
	})
}

// filterByRegion keeps the queryable files with at least one record in
// chrom:[start, end).  A file without the chromosome has no such record.
func (server *Server) filterByRegion(c *gin.Context, files []*metadata.File, chrom string, start, end int64) ([]*metadata.File, error) {
	var matched []*metadata.File
	for _, file := range files {
		if !track.Supported(file.FileType) {
			continue
		}
		n, err := server.tracks.Count(c.Request.Context(), file.FileType, file.FilePath, chrom, start, end)
		switch {
		case errors.Is(err, bbi.ErrUnknownChromosome):
			continue
		case err != nil:
			return nil, newTrackError(fmt.Sprintf("searching file %s", file.ID), err)
		}
		if n > 0 {
			matched = append(matched, file)
		}
	}
	return matched, nil
}
