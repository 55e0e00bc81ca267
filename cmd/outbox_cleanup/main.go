package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"agrirent/internal/config"
	"agrirent/internal/database"
	"agrirent/internal/logger"
	"agrirent/internal/repository"
)

// outbox_cleanup removes settled outbox rows and read inbox notifications.
// Run it from cron.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	keep := flag.Duration("keep", 30*24*time.Hour, "how long to keep settled rows")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logger.New(cfg.Log)

	db, err := database.Connect(cfg.Database.URL, log)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	store := repository.NewStore(db)

	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-*keep)

	outbox, err := store.Outbox.PurgeDelivered(ctx, cutoff)
	if err != nil {
		log.WithError(err).Fatal("cleanup notification_outbox failed")
	}
	inbox, err := store.Notifications.PurgeRead(ctx, cutoff)
	if err != nil {
		log.WithError(err).Fatal("cleanup notifications failed")
	}

	log.WithFields(logrus.Fields{
		"notification_outbox": outbox,
		"notifications":       inbox,
		"cutoff":              cutoff.Format(time.RFC3339),
	}).Info("outbox cleanup completed")
}
