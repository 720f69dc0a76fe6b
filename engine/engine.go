package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drummonds/pdfbridge/database"
	"github.com/oklog/ulid/v2"
)

// renderJobFuncWithTracking runs a full document render with progress
// tracking. pdfPath is the stored upload named after the job.
func (serverHandler *ServerHandler) renderJobFuncWithTracking(db database.Repository, jobID ulid.ULID, pdfPath string) {
	// Add panic recovery and update job status on panic
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in render job", "panic", r, "jobID", jobID)
			db.UpdateJobError(jobID, fmt.Sprintf("Panic: %v", r))
		}
	}()

	// Mark job as running
	if err := db.UpdateJobStatus(jobID, database.JobStatusRunning, "Preparing render"); err != nil {
		Logger.Error("Failed to update job status", "error", err)
	}

	job, err := db.GetJob(jobID)
	if err != nil {
		Logger.Error("Unable to load render job", "jobID", jobID, "error", err)
		db.UpdateJobError(jobID, fmt.Sprintf("Failed to load job: %v", err))
		return
	}

	width := job.Width
	if width <= 0 {
		width = serverHandler.ServerConfig.RenderWidth
	}

	outputDir := filepath.Join(serverHandler.ServerConfig.RenderPath, jobID.String())
	Logger.Info("Starting render job", "jobID", jobID, "pdfPath", pdfPath, "width", width)

	summary, err := serverHandler.RenderDocumentWithSteps(pdfPath, outputDir, db, jobID, width)
	if err != nil {
		Logger.Error("Render job failed", "jobID", jobID, "error", err)
		db.UpdateJobError(jobID, err.Error())
		// Remove whatever partial output the failed render left behind
		if rmErr := os.RemoveAll(outputDir); rmErr != nil {
			Logger.Warn("Unable to remove partial render output", "dir", outputDir, "error", rmErr)
		}
		return
	}

	result, err := json.Marshal(summary)
	if err != nil {
		Logger.Error("Unable to encode render summary", "jobID", jobID, "error", err)
		db.UpdateJobError(jobID, fmt.Sprintf("Failed to encode summary: %v", err))
		return
	}

	if err := db.CompleteJob(jobID, string(result)); err != nil {
		Logger.Error("Failed to mark job as complete", "error", err)
	}

	Logger.Info("Render job completed", "jobID", jobID, "pages", summary.PageCount, "width", summary.Width)
}

// purgeJobFuncWithTracking deletes expired jobs and their render output
// with job tracking
func (serverHandler *ServerHandler) purgeJobFuncWithTracking(db database.Repository, jobID ulid.ULID) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in purge job", "panic", r, "jobID", jobID)
			db.UpdateJobError(jobID, fmt.Sprintf("Panic: %v", r))
		}
	}()

	// Mark job as running
	db.UpdateJobStatus(jobID, database.JobStatusRunning, "Purging expired renders")

	retention := time.Duration(serverHandler.ServerConfig.JobRetentionHours) * time.Hour

	// Step 1: collect the expired render jobs so their files can go too
	expired, err := serverHandler.expiredRenderIDs(db, retention)
	if err != nil {
		Logger.Error("Failed to list expired renders", "error", err)
		db.UpdateJobError(jobID, fmt.Sprintf("Failed to list expired renders: %v", err))
		return
	}

	db.UpdateJobProgress(jobID, 20, fmt.Sprintf("Removing files of %d expired renders", len(expired)))
	removedDirs := 0
	for _, id := range expired {
		if serverHandler.deleteRenderArtifacts(id) {
			removedDirs++
		}
	}

	// Step 2: drop the expired job rows
	db.UpdateJobProgress(jobID, 60, "Deleting expired job records")
	deletedJobs, err := db.DeleteOldJobs(retention)
	if err != nil {
		Logger.Error("Failed to delete old jobs", "error", err)
		db.UpdateJobError(jobID, fmt.Sprintf("Failed to delete old jobs: %v", err))
		return
	}

	// Step 3: sweep render directories that no longer have a job row
	db.UpdateJobProgress(jobID, 80, "Sweeping orphaned render output")
	orphans, err := serverHandler.deleteOrphanedRenderDirs(db)
	if err != nil {
		Logger.Error("Failed to sweep orphaned render output", "error", err)
		// Continue, the purge already did its main work
	}

	result := fmt.Sprintf(`{"jobsDeleted": %d, "dirsRemoved": %d, "orphansRemoved": %d}`, deletedJobs, removedDirs, orphans)
	if err := db.CompleteJob(jobID, result); err != nil {
		Logger.Error("Failed to mark purge job as complete", "error", err)
	}

	Logger.Info("Purge job completed", "jobID", jobID, "jobsDeleted", deletedJobs, "dirsRemoved", removedDirs, "orphansRemoved", orphans)
}

// expiredRenderIDs lists render jobs that finished longer than retention ago
func (serverHandler *ServerHandler) expiredRenderIDs(db database.Repository, retention time.Duration) ([]ulid.ULID, error) {
	cutoff := time.Now().Add(-retention)

	// Walk the recent jobs in pages; the catalog stays small because the
	// purge itself keeps trimming it
	var expired []ulid.ULID
	offset := 0
	for {
		jobs, err := db.GetRecentJobs(100, offset)
		if err != nil {
			return nil, err
		}
		if len(jobs) == 0 {
			return expired, nil
		}
		for _, job := range jobs {
			if job.Type != database.JobTypeRender {
				continue
			}
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				expired = append(expired, job.ID)
			}
		}
		offset += len(jobs)
	}
}

// deleteRenderArtifacts removes the output directory and stored upload of
// one render. Reports whether an output directory was actually removed.
func (serverHandler *ServerHandler) deleteRenderArtifacts(id ulid.ULID) bool {
	outputDir := filepath.Join(serverHandler.ServerConfig.RenderPath, id.String())
	removed := false
	if _, err := os.Stat(outputDir); err == nil {
		if err := os.RemoveAll(outputDir); err != nil {
			Logger.Error("Unable to remove render output", "dir", outputDir, "error", err)
		} else {
			removed = true
		}
	}

	pdfPath := filepath.Join(serverHandler.ServerConfig.StoragePath, id.String()+".pdf")
	if err := os.Remove(pdfPath); err != nil && !os.IsNotExist(err) {
		Logger.Warn("Unable to remove stored upload", "path", pdfPath, "error", err)
	}

	return removed
}

// deleteOrphanedRenderDirs removes render output directories whose job row
// is gone, for example after a crash between file and row deletion
func (serverHandler *ServerHandler) deleteOrphanedRenderDirs(db database.Repository) (int, error) {
	entries, err := os.ReadDir(serverHandler.ServerConfig.RenderPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := ulid.Parse(entry.Name())
		if err != nil {
			// Not one of ours, leave it alone
			continue
		}
		if _, err := db.GetJob(id); err == nil {
			continue
		}
		orphanDir := filepath.Join(serverHandler.ServerConfig.RenderPath, entry.Name())
		Logger.Info("Removing orphaned render output", "dir", orphanDir)
		if err := os.RemoveAll(orphanDir); err != nil {
			Logger.Error("Unable to remove orphaned render output", "dir", orphanDir, "error", err)
			continue
		}
		removed++
	}

	// The stored uploads live flat in the storage path, named <ulid>.pdf
	uploads, err := os.ReadDir(serverHandler.ServerConfig.StoragePath)
	if err != nil {
		if os.IsNotExist(err) {
			return removed, nil
		}
		return removed, err
	}
	for _, entry := range uploads {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		id, err := ulid.Parse(strings.TrimSuffix(entry.Name(), ".pdf"))
		if err != nil {
			continue
		}
		if _, err := db.GetJob(id); err == nil {
			continue
		}
		orphanFile := filepath.Join(serverHandler.ServerConfig.StoragePath, entry.Name())
		Logger.Info("Removing orphaned upload", "path", orphanFile)
		if err := os.Remove(orphanFile); err != nil {
			Logger.Error("Unable to remove orphaned upload", "path", orphanFile, "error", err)
		}
	}

	return removed, nil
}
