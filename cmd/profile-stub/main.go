package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pointsledger/internal/testprofiles"
	"github.com/okian/pointsledger/pkg/logger"
)

// Default configuration constants.
const (
	defaultProfiles     = 25
	defaultTimeout      = 2 * time.Minute
	readHeaderTimeout   = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
	rosterFilePermission = 0o600
)

func main() {
	var (
		addr     = flag.String("addr", ":9090", "Listen address of the profile site")
		public   = flag.String("public", "http://localhost:9090", "Base URL the points service uses to reach this site")
		profiles = flag.Int("profiles", defaultProfiles, "Number of profiles to seed")
		csvPath  = flag.String("csv", "", "Write an upload roster for the seeded profiles to this file")
		smokeURL = flag.String("smoke", "", "Run a smoke upload against the points service at this URL, then exit")
		account  = flag.String("account", "smoke", "Account used by the smoke run")
		timeout  = flag.Duration("timeout", defaultTimeout, "Timeout of the smoke upload")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Named("profile-stub")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	site := testprofiles.NewSite()
	srv := &http.Server{Addr: *addr, Handler: site, ReadHeaderTimeout: readHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "serving profiles", logger.String("addr", *addr), logger.String("public", *public))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if *smokeURL != "" {
		g.Go(func() error {
			defer stop()
			_, err := testprofiles.Smoke(gctx, testprofiles.SmokeConfig{
				ServiceURL: *smokeURL,
				SiteURL:    *public,
				Account:    *account,
				Profiles:   *profiles,
				Timeout:    *timeout,
			}, site)
			return err
		})
	} else {
		ids := testprofiles.Seed(site, *profiles)
		if *csvPath != "" {
			if err := writeRoster(*csvPath, site, *public, ids); err != nil {
				log.Error(ctx, "writing roster", logger.Error(err))
				os.Exit(1)
			}
			log.Info(ctx, "roster written", logger.String("file", *csvPath), logger.Int("profiles", len(ids)))
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error(context.Background(), "profile stub failed", logger.Error(err))
		os.Exit(1)
	}
}

func writeRoster(path string, site *testprofiles.Site, base string, ids []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, rosterFilePermission)
	if err != nil {
		return err
	}
	if err := testprofiles.WriteCSV(f, site, base, ids); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
