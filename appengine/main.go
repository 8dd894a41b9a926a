// This binary runs the track server on App Engine.  The configuration file is
// named by the DMP_CONFIG environment variable; without it the defaults are
// used with Google Cloud Storage enabled.
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/trackdmp/internal/app"
	"github.com/googlegenomics/trackdmp/internal/config"
	"github.com/googlegenomics/trackdmp/internal/logging"
	"google.golang.org/appengine"
)

func main() {
	cfg := config.Default()
	cfg.Storage.GCS = true
	if path := os.Getenv("DMP_CONFIG"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	http.Handle("/", a.Handler())
	appengine.Main()
}
