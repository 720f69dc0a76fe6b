package engine

import (
	"fmt"
	"log/slog"

	database "github.com/drummonds/pdfbridge/database"
	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// InitializeSchedules starts all the cron jobs (currently just one)
func (serverHandler *ServerHandler) InitializeSchedules(db database.Repository) {
	serverConfig := serverHandler.ServerConfig

	// Run the purge job immediately at startup in a goroutine
	Logger.Info("Running render purge job at startup")
	go serverHandler.runScheduledPurge(db)

	c := cron.New()
	var purgeJob cron.Job
	purgeJob = cron.FuncJob(func() { serverHandler.runScheduledPurge(db) })
	purgeJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(purgeJob) //ensure we don't kick off another if old one is still running
	c.AddJob(fmt.Sprintf("@every %dm", serverConfig.PurgeInterval), purgeJob)
	Logger.Info("Adding render purge scheduler", "interval_minutes", serverConfig.PurgeInterval)
	c.Start()
}

// runScheduledPurge creates a tracked cleanup job and runs the purge under it
func (serverHandler *ServerHandler) runScheduledPurge(db database.Repository) {
	job, err := db.CreateJob(database.JobTypeCleanup, "", 0, "Scheduled render purge")
	if err != nil {
		Logger.Error("Failed to create purge job", "error", err)
		return
	}
	serverHandler.purgeJobFuncWithTracking(db, job.ID)
}
