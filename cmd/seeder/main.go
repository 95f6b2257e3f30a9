// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/zainab674/voiceagents-sub004/internal/config"
	"github.com/zainab674/voiceagents-sub004/internal/contactsource"
	"github.com/zainab674/voiceagents-sub004/internal/db"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
)

// The seeder applies SQL migrations and loads a CSV export into a contact list.
//
//	seeder -migrate migrations
//	seeder -list spring-2024 -file contacts.csv
func main() {
	var (
		migrateDir = flag.String("migrate", "", "directory of .sql files to apply in name order")
		listID     = flag.String("list", "", "contact list to load into")
		file       = flag.String("file", "", "CSV file with a phone column")
		dryRun     = flag.Bool("dry-run", false, "parse and report without writing")
	)
	flag.Parse()

	if *migrateDir == "" && (*listID == "" || *file == "") {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.App.LogLevel, cfg.App.IsProduction())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer database.Close()

	if *migrateDir != "" {
		files, err := filepath.Glob(filepath.Join(*migrateDir, "*.sql"))
		if err != nil {
			logger.Fatal("bad migration dir", zap.Error(err))
		}
		sort.Strings(files)
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				logger.Fatal("failed to read migration", zap.String("file", f), zap.Error(err))
			}
			if _, err := database.ExecContext(ctx, string(content)); err != nil {
				logger.Fatal("failed to apply migration", zap.String("file", f), zap.Error(err))
			}
			logger.Info("applied migration", zap.String("file", f))
		}
	}

	if *listID != "" && *file != "" {
		repo := &repository.ContactRepository{DB: database}
		res, err := loadContacts(ctx, repo, *listID, *file, *dryRun)
		if err != nil {
			logger.Fatal("failed to load contacts", zap.Error(err))
		}
		logger.Info("contacts loaded",
			zap.String("list", *listID),
			zap.Int("inserted", res.Inserted),
			zap.Int("do_not_call", res.DoNotCall),
			zap.Bool("dry_run", *dryRun),
		)
	}
}

type loadResult struct {
	Inserted  int
	DoNotCall int
}

// loadContacts appends every row of path to listID in file order.
func loadContacts(ctx context.Context, repo repository.ContactRepositoryInterface, listID, path string, dryRun bool) (loadResult, error) {
	var res loadResult

	f, err := os.Open(path)
	if err != nil {
		return res, err
	}
	defer f.Close()

	contacts, err := contactsource.ParseCSV(f)
	if err != nil {
		return res, fmt.Errorf("parse %s: %w", path, err)
	}
	for i := range contacts {
		c := contacts[i]
		c.Key = 0
		c.ListID = listID
		if c.DoNotCall {
			res.DoNotCall++
		}
		if !dryRun {
			if err := repo.Insert(ctx, &c); err != nil {
				return res, fmt.Errorf("insert row %d: %w", i+1, err)
			}
		}
		res.Inserted++
	}
	return res, nil
}
