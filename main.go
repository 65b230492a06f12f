package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whoopsync/internal/auth"
	"whoopsync/internal/config"
	"whoopsync/internal/etl"
	"whoopsync/internal/service"
	"whoopsync/internal/store"
	"whoopsync/internal/whoop"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		configPath = flag.String("config", "whoopsync.yaml", "path to the config file")
		doLogin    = flag.Bool("login", false, "run the interactive OAuth login and exit")
		once       = flag.Bool("once", false, "run a single sync and exit")
		startFlag  = flag.String("start", "", "override window start (YYYY-MM-DD)")
		endFlag    = flag.String("end", "", "override window end (YYYY-MM-DD)")
	)
	flag.Parse()

	if err := run(*configPath, *doLogin, *once, *startFlag, *endFlag); err != nil {
		log.Fatalf("whoopsync: %v", err)
	}
}

func run(configPath string, doLogin, once bool, startFlag, endFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warehouse, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer warehouse.Close()

	if err := warehouse.Migrate(ctx); err != nil {
		return err
	}

	source := auth.NewSource(warehouse, auth.Config{
		ClientID:     cfg.Whoop.ClientID,
		ClientSecret: cfg.Whoop.ClientSecret,
		AuthURL:      cfg.Whoop.AuthURL,
		TokenURL:     cfg.Whoop.TokenURL,
		RedirectURI:  cfg.Whoop.RedirectURI,
		Scope:        cfg.Whoop.Scope,
	})

	if doLogin {
		if err := source.Login(ctx, auth.DefaultLoginTimeout); err != nil {
			return err
		}
		log.Printf("login complete, token stored")
		return nil
	}

	client := whoop.NewClient(source, whoop.Options{
		BaseURL:       cfg.Whoop.APIBaseURL,
		CyclesBaseURL: cfg.Whoop.CyclesBaseURL,
		PageSize:      cfg.Pipeline.PageSize,
		RateLimitRPS:  cfg.Pipeline.RateLimitRPS,
	})

	engine := &etl.Engine{
		Fetch:       client,
		Write:       warehouse,
		SnapshotDir: cfg.Pipeline.SnapshotDir,
	}

	svc := service.New(cfg, configPath, warehouse, source, engine)

	override, err := windowOverride(startFlag, endFlag)
	if err != nil {
		return err
	}

	if once || override != nil {
		results, err := svc.RunOnce(ctx, override)
		if err != nil {
			return err
		}
		service.LogSummary(results)
		for _, res := range results {
			if res.Failed() {
				return fmt.Errorf("sync finished with errors")
			}
		}
		return nil
	}

	if cfg.Pipeline.Schedule == "" {
		return fmt.Errorf("no schedule configured; use -once for a single run")
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	log.Printf("whoopsync: running, press Ctrl+C to stop")
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	svc.Stop(stopCtx)
	return nil
}

func windowOverride(startFlag, endFlag string) (*etl.Window, error) {
	if startFlag == "" && endFlag == "" {
		return nil, nil
	}
	if startFlag == "" || endFlag == "" {
		return nil, fmt.Errorf("-start and -end must be given together")
	}
	start, err := time.Parse(dateLayout, startFlag)
	if err != nil {
		return nil, fmt.Errorf("parse -start: %w", err)
	}
	end, err := time.Parse(dateLayout, endFlag)
	if err != nil {
		return nil, fmt.Errorf("parse -end: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("-end must be after -start")
	}
	return &etl.Window{Start: start, End: end}, nil
}
