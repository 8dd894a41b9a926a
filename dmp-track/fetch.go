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

package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/googlegenomics/trackdmp/internal/genomics"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	scope    = "https://www.googleapis.com/auth/userinfo.email"
	filePath = "/mug/api/dmp/file"
)

var (
	fetchToken  string
	fetchOutput string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <server> <file_id> [region]",
	Short: "Fetch a region of a registered file from a track server",
	Long: `Fetch records of a registered file from a running track server.

Requests carry the token given by --token or the DMP_TOKEN environment
variable.  Without either, a Google access token from the application
default credentials is used.  Without a region, the original file is
downloaded.

Examples:
  dmp-track fetch https://dmp.example.org 5f1d... chr1:0-100000
  dmp-track fetch https://dmp.example.org 5f1d... -o copy.bb`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := withCABundle(context.Background())
		if err != nil {
			return err
		}
		client, err := newHTTPClient(ctx)
		if err != nil {
			return err
		}

		query := url.Values{"file_id": []string{args[1]}}
		if len(args) == 3 {
			interval, err := genomics.ParseInterval(args[2])
			if err != nil {
				return fmt.Errorf("invalid region: %w", err)
			}
			query.Set("chrom", interval.Chrom)
			query.Set("start", strconv.FormatUint(uint64(interval.Start), 10))
			query.Set("end", strconv.FormatUint(uint64(interval.End), 10))
		} else {
			query.Set("output", "original")
		}
		target := strings.TrimSuffix(args[0], "/") + filePath + "?" + query.Encode()

		w := cmd.OutOrStdout()
		if fetchOutput != "" {
			f, err := os.Create(fetchOutput)
			if err != nil {
				return fmt.Errorf("opening output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		return fetch(ctx, client, target, w)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchToken, "token", "",
		"bearer token sent to the server")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "",
		"output filename")
}

// withCABundle reads the standard cURL certificate authority override from
// the environment, for compatibility with other tools.
func withCABundle(ctx context.Context) (context.Context, error) {
	bundle := os.Getenv("CURL_CA_BUNDLE")
	if bundle == "" {
		return ctx, nil
	}
	pem, err := os.ReadFile(bundle)
	if err != nil {
		return nil, fmt.Errorf("reading CA override file %q: %w", bundle, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("initializing system certificate pool: %w", err)
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in bundle %q", bundle)
	}
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: pool,
			}},
	}), nil
}

func newHTTPClient(ctx context.Context) (*http.Client, error) {
	token := fetchToken
	if token == "" {
		token = os.Getenv("DMP_TOKEN")
	}
	if token != "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			TokenType:   "Bearer",
			AccessToken: token,
		})), nil
	}
	client, err := google.DefaultClient(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	return client, nil
}

func fetch(ctx context.Context, client *http.Client, target string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("copying response: %w", err)
	}
	return nil
}

func errorFromResponse(resp *http.Response) error {
	var v struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil || v.Error == "" {
		return fmt.Errorf("unexpected response status: %q", resp.Status)
	}
	return fmt.Errorf("%s: %s", v.Error, v.Message)
}
