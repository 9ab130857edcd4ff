package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	database "github.com/drummonds/pdfview/database"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// InitializeSchedules starts the housekeeping cron job: idle viewer
// sessions are closed, old job records pruned and orphaned thumbnails
// removed. The caller stops the
// returned scheduler on shutdown.
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	interval := serverHandler.ServerConfig.SweepInterval
	if interval < 1 {
		interval = 1
	}
	c := cron.New()
	var sweepJob cron.Job
	sweepJob = cron.FuncJob(func() { serverHandler.sweepJobFunc() })
	sweepJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(sweepJob) //ensure we don't kick off another if old one is still running
	c.AddJob(fmt.Sprintf("@every %dm", interval), sweepJob)
	Logger.Info("Adding session sweep scheduler", "interval_minutes", interval)
	c.Start()
	return c
}

// sweepJobFunc closes idle sessions and prunes finished jobs, recording
// itself as a sweep job.
func (serverHandler *ServerHandler) sweepJobFunc() {
	cfg := serverHandler.ServerConfig
	job, err := serverHandler.DB.CreateJob(database.JobTypeSweep, "", "Sweeping idle sessions")
	if err != nil {
		Logger.Error("Failed to create sweep job", "error", err)
		return
	}
	serverHandler.DB.UpdateJobStatus(job.ID, database.JobStatusRunning, "Sweeping idle sessions")

	idle := time.Duration(cfg.SessionIdleMinutes) * time.Minute
	closed := 0
	if serverHandler.Sessions != nil && idle > 0 {
		closed = serverHandler.Sessions.Sweep(idle)
	}
	serverHandler.DB.UpdateJobProgress(job.ID, 50, "Pruning old jobs")

	pruned := 0
	if cfg.JobRetentionHours > 0 {
		pruned, err = serverHandler.DB.DeleteOldJobs(time.Duration(cfg.JobRetentionHours) * time.Hour)
		if err != nil {
			Logger.Error("Failed to prune old jobs", "error", err)
			serverHandler.DB.UpdateJobError(job.ID, err.Error())
			return
		}
	}
	serverHandler.DB.UpdateJobProgress(job.ID, 75, "Removing orphaned thumbnails")

	thumbs, err := serverHandler.pruneThumbnails()
	if err != nil {
		Logger.Error("Failed to prune thumbnails", "error", err)
		serverHandler.DB.UpdateJobError(job.ID, err.Error())
		return
	}
	if closed > 0 || pruned > 0 || thumbs > 0 {
		Logger.Info("Sweep finished", "sessionsClosed", closed, "jobsPruned", pruned, "thumbnailsRemoved", thumbs)
	}
	serverHandler.DB.CompleteJob(job.ID, fmt.Sprintf(`{"sessionsClosed": %d, "jobsPruned": %d, "thumbnailsRemoved": %d}`, closed, pruned, thumbs))
}

// pruneThumbnails deletes cached thumbnails whose document is no longer
// in the library.
func (serverHandler *ServerHandler) pruneThumbnails() (int, error) {
	dir := filepath.Join(serverHandler.ServerConfig.DocumentPath, "thumbnails")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	docs, err := serverHandler.DB.GetAllDocuments()
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(docs))
	for _, doc := range docs {
		known[doc.ULID.String()] = true
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".png" || known[strings.TrimSuffix(name, ".png")] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			Logger.Warn("Unable to remove thumbnail", "file", name, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
