package testprofiles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okian/pointsledger/pkg/logger"
)

// ErrMismatch is returned when the service reports points the site did not serve.
var ErrMismatch = errors.New("resolved points do not match the served profiles")

// SmokeConfig drives one end-to-end run against a live service.
type SmokeConfig struct {
	ServiceURL string        // Base URL of the points service
	SiteURL    string        // Base URL the service uses to reach the Site
	Account    string        // Account the upload is made under
	Profiles   int           // Number of profiles to seed
	Timeout    time.Duration // Timeout of the whole upload request
}

// SmokeResult summarises a smoke run.
type SmokeResult struct {
	JobID      string
	Uploaded   int
	Matched    int
	Mismatched []string
	Succeeded  int
	Failed     int
	Duration   time.Duration
}

type descriptor struct {
	Name       string `json:"name"`
	ProfileRef string `json:"profileRef"`
}

type uploadRequest struct {
	Source       string       `json:"source"`
	Participants []descriptor `json:"participants"`
}

type runResponse struct {
	Job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"job"`
	Report struct {
		Entries []struct {
			Name           string `json:"name"`
			ProfileRef     string `json:"profileRef"`
			ResolvedPoints int    `json:"resolvedPoints"`
			Status         string `json:"status"`
		} `json:"entries"`
		Summary struct {
			Succeeded int `json:"succeeded"`
			Failed    int `json:"failed"`
		} `json:"summary"`
	} `json:"report"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Smoke seeds site, uploads the seeded roster to the service with run=true
// and checks every reported value against what the site served.
func Smoke(ctx context.Context, cfg SmokeConfig, site *Site) (*SmokeResult, error) {
	start := time.Now()
	log := logger.Named("smoke")

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServiceURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("X-Account", cfg.Account)

	resp, err := client.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("service health check failed with status: %d", resp.StatusCode())
	}

	ids := Seed(site, cfg.Profiles)
	req := uploadRequest{Source: "smoke", Participants: make([]descriptor, 0, len(ids))}
	for _, id := range ids {
		p, _ := site.Profile(id)
		req.Participants = append(req.Participants, descriptor{Name: p.Name, ProfileRef: URL(cfg.SiteURL, id)})
	}
	log.Info(ctx, "uploading seeded roster", logger.Int("profiles", len(ids)), logger.String("service", cfg.ServiceURL))

	var (
		out  runResponse
		fail apiError
	)
	resp, err = client.R().
		SetContext(ctx).
		SetQueryParam("run", "true").
		SetBody(req).
		SetResult(&out).
		SetError(&fail).
		Post("/jobs")
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("upload failed with status %d: %s: %s", resp.StatusCode(), fail.Code, fail.Message)
	}

	res := &SmokeResult{
		JobID:     out.Job.ID,
		Uploaded:  len(ids),
		Succeeded: out.Report.Summary.Succeeded,
		Failed:    out.Report.Summary.Failed,
	}
	for _, e := range out.Report.Entries {
		id := strings.TrimPrefix(e.ProfileRef, URL(cfg.SiteURL, ""))
		p, ok := site.Profile(id)
		if ok && e.Status == "success" && e.ResolvedPoints == p.Points {
			res.Matched++
			continue
		}
		res.Mismatched = append(res.Mismatched, e.Name)
	}
	res.Duration = time.Since(start)

	log.Info(ctx, "smoke run finished",
		logger.String("jobID", res.JobID),
		logger.Int("matched", res.Matched),
		logger.Int("mismatched", len(res.Mismatched)),
		logger.Duration("duration", res.Duration))

	if len(res.Mismatched) > 0 {
		return res, fmt.Errorf("%w: %s", ErrMismatch, strings.Join(res.Mismatched, ", "))
	}
	return res, nil
}
