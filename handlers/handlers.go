// Package handlers exposes the pipeline over a JSON API. The handlers are
// thin: ingest, reconcile, score, then hand the reconciled tables to the
// views package. Rendering happens entirely client-side and is out of scope
// here.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"github.com/goccy/go-json"
	"github.com/quelan/filmlens/lib/catalog"
	"github.com/quelan/filmlens/lib/ingest"
	"github.com/quelan/filmlens/lib/metrics"
	"github.com/quelan/filmlens/lib/omdb"
	"github.com/quelan/filmlens/lib/radar"
	"github.com/quelan/filmlens/lib/session"
	"github.com/quelan/filmlens/lib/stats"
	"github.com/quelan/filmlens/lib/views"
)

const maxUploadBytes = 64 << 20

// Deps carries the injected collaborators of the upload pipeline.
type Deps struct {
	Logger     *slog.Logger
	Ingestor   *ingest.Ingestor
	Reconciler *catalog.Reconciler
	Scorer     *radar.Scorer
	Stats      stats.Repository
	Metrics    *metrics.Metrics
	SessionDir string
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// uploadResponse is the full result of one processed archive.
type uploadResponse struct {
	SessionID string               `json:"session_id"`
	Username  string               `json:"username"`
	Years     []string             `json:"years"`
	Scores    radar.Scores         `json:"scores"`
	Markers   radar.Markers        `json:"markers"`
	Means     stats.Means          `json:"population_means"`
	Metrics   views.GeneralMetrics `json:"metrics"`
}

// HandleUpload runs the whole pipeline for one archive: extract, parse,
// reconcile against the shared catalog, score against the population, and
// register the session for the view endpoints.
func HandleUpload(d *Deps, reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("archive")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing archive upload")
			return
		}
		defer file.Close()

		sess, err := session.New(d.SessionDir, d.Logger)
		if err != nil {
			d.Logger.Error("failed to create session", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		resp, status, msg := d.process(r, sess, file, header.Filename, reg)
		if resp == nil {
			// Failed sessions are released immediately so a retry
			// starts clean.
			if err := sess.Close(); err != nil {
				d.Logger.Error("failed to close session", slog.Any("error", err))
			}
			d.Metrics.Uploads.WithLabelValues("error").Inc()
			writeError(w, status, msg)
			return
		}

		d.Metrics.Uploads.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, resp)
	}
}

func (d *Deps) process(r *http.Request, sess *session.Session, file io.Reader, filename string, reg *Registry) (*uploadResponse, int, string) {
	ctx := r.Context()

	archivePath := filepath.Join(sess.Dir, "upload.zip")
	out, err := os.Create(archivePath)
	if err != nil {
		d.Logger.Error("failed to store upload", slog.Any("error", err))
		return nil, http.StatusInternalServerError, "failed to store upload"
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		d.Logger.Error("failed to store upload", slog.Any("error", err))
		return nil, http.StatusInternalServerError, "failed to store upload"
	}
	if err := out.Close(); err != nil {
		d.Logger.Error("failed to store upload", slog.Any("error", err))
		return nil, http.StatusInternalServerError, "failed to store upload"
	}

	up, err := d.Ingestor.Ingest(archivePath, sess.Dir)
	if err != nil {
		var missing *ingest.MissingFileError
		switch {
		case errors.Is(err, ingest.ErrBadArchive):
			return nil, http.StatusBadRequest, "this is not a zipfile, please re-upload"
		case errors.As(err, &missing):
			return nil, http.StatusUnprocessableEntity, missing.Error()
		default:
			d.Logger.Error("failed to ingest archive", slog.Any("error", err))
			return nil, http.StatusUnprocessableEntity, "failed to read export files"
		}
	}

	years, err := ingest.Years(up.Profile, time.Now())
	if err != nil {
		return nil, http.StatusUnprocessableEntity, "profile.csv has an unreadable Date Joined"
	}

	result, err := d.Reconciler.Reconcile(ctx, up, filename, func(done, total int) {
		if total > 0 && done%25 == 0 {
			d.Logger.Info("resolving metadata",
				slog.String("session", sess.ID),
				slog.Int("done", done),
				slog.Int("total", total))
		}
	})
	if err != nil {
		switch {
		case errors.Is(err, omdb.ErrOutage):
			return nil, http.StatusServiceUnavailable, "the metadata provider has a problem, you can try later"
		case errors.Is(err, omdb.ErrKeyPoolExhausted):
			d.Logger.Error("API key pool exhausted")
			return nil, http.StatusInternalServerError, "metadata lookups are unavailable right now"
		default:
			d.Logger.Error("reconciliation failed", slog.Any("error", err))
			return nil, http.StatusInternalServerError, "failed to process your lists"
		}
	}

	markers := radar.ComputeMarkers(result, up.Reviews, up.Comments)
	scores, err := d.Scorer.ScoreAndStore(ctx, up.Profile.Username, markers)
	if err != nil {
		d.Logger.Error("scoring failed", slog.Any("error", err))
		return nil, http.StatusInternalServerError, "failed to compute your scores"
	}

	means, err := d.Stats.ReadMeans(ctx)
	if err != nil {
		d.Logger.Error("failed to read population means", slog.Any("error", err))
		return nil, http.StatusInternalServerError, "failed to compute your scores"
	}

	selector := views.NewSelector(result, up.Reviews, d.Logger)
	alltime, err := selector.Select(views.Alltime)
	if err != nil {
		d.Logger.Error("failed to build initial view", slog.Any("error", err))
		return nil, http.StatusInternalServerError, "failed to build views"
	}

	reg.Put(&State{
		Session:  sess,
		Selector: selector,
		Username: up.Profile.Username,
		Years:    years,
		Scores:   scores,
		Markers:  markers,
		Means:    means,
		Profile:  up.Profile,
	})

	return &uploadResponse{
		SessionID: sess.ID,
		Username:  up.Profile.Username,
		Years:     years,
		Scores:    scores,
		Markers:   markers,
		Means:     means,
		Metrics:   alltime.Metrics(),
	}, http.StatusOK, ""
}

// HandleRelease releases a session and its temp storage.
func HandleRelease(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)
		if !reg.Release(id) {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
