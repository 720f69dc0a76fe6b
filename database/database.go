package database

import (
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Repository defines database operations for the render job catalog. A
// render job row doubles as the render record itself: the job ID names the
// stored upload and the output directory.
type Repository interface {
	Close() error
	CreateJob(jobType JobType, filename string, width int, message string) (*Job, error)
	UpdateJobProgress(jobID ulid.ULID, progress int, currentStep string) error
	UpdateJobStatus(jobID ulid.ULID, status JobStatus, message string) error
	UpdateJobError(jobID ulid.ULID, errorMsg string) error
	UpdateJobPages(jobID ulid.ULID, pageCount int) error
	CompleteJob(jobID ulid.ULID, result string) error
	GetJob(jobID ulid.ULID) (*Job, error)
	GetRecentJobs(limit, offset int) ([]Job, error)
	GetActiveJobs() ([]Job, error)
	DeleteJob(jobID ulid.ULID) error
	DeleteOldJobs(olderThan time.Duration) (int, error)
}

// CalculateUUID builds a ULID for the given timestamp
func CalculateUUID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}

// FetchJob fetches the requested job by its ULID string, returning the
// HTTP status a handler should answer with on failure
func FetchJob(jobIDStr string, db Repository) (*Job, int, error) {
	jobID, err := ulid.Parse(jobIDStr)
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("invalid job ID format")
	}

	job, err := db.GetJob(jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			Logger.Error("Unable to find the requested job", "jobID", jobIDStr, "error", err)
			return nil, http.StatusNotFound, errors.New("job not found")
		}
		Logger.Error("Database error fetching job", "jobID", jobIDStr, "error", err)
		return nil, http.StatusInternalServerError, err
	}
	return job, http.StatusOK, nil
}
