// Package app wires configuration, providers and services together for the
// server and Lambda binaries.
package app

import (
	"context"
	"fmt"

	"github.com/adi-253/webchat/backend/internal/cloud/awscloud"
	"github.com/adi-253/webchat/backend/internal/cloud/memory"
	"github.com/adi-253/webchat/backend/internal/config"
	"github.com/adi-253/webchat/backend/internal/handlers"
	"github.com/adi-253/webchat/backend/internal/records"
	"github.com/adi-253/webchat/backend/internal/records/sqlite"
	"github.com/adi-253/webchat/backend/internal/services"
	"github.com/sirupsen/logrus"
)

// App holds the wired services.
type App struct {
	Config *config.Config
	Log    logrus.FieldLogger

	Rooms     *services.RoomService
	Sessions  *services.SessionService
	Messages  *services.MessageService
	Lifecycle *services.LifecycleService
	Archive   *services.ArchiveService
	Cleanup   *services.CleanupService
	API       *handlers.API

	// orchestrator is set in memory mode, where lifecycles run in-process.
	orchestrator *memory.Orchestrator
	closers      []func() error
}

// New builds every provider the configuration selects and the services on top.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	deps := services.Deps{
		Config: cfg,
		Log:    log,
		Cache:  services.NewCache(cfg.QueueCacheSize, cfg.QueueCacheTTL),
	}
	a := &App{Config: cfg, Log: log}

	var local *memory.Cloud
	switch cfg.Provider {
	case config.ProviderMemory:
		local = memory.New(memory.WithLogger(log.WithField("component", "cloud")))
		a.orchestrator = memory.NewOrchestrator(log.WithField("component", "orchestrator"))
		deps.Topics, deps.Queues, deps.Objects, deps.LogGroups = local, local, local, local
		deps.Orchestrator = a.orchestrator
		deps.Directory = memory.NewDirectory()
		deps.AccountID = memory.Account
		if cfg.ArchiverFunctionARN == "" {
			cfg.ArchiverFunctionARN = fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s-archiver", memory.Region, memory.Account, cfg.ProjectPrefix)
		}

	case config.ProviderAWS:
		p, err := awscloud.Load(ctx, awscloud.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.SharedBucket,
			StateMachineARN: cfg.StateMachineARN,
			UserPoolID:      cfg.UserPoolID,
		})
		if err != nil {
			return nil, err
		}
		account, err := p.Identity.AccountID(ctx)
		if err != nil {
			return nil, err
		}
		deps.Topics, deps.Queues, deps.Objects, deps.LogGroups = p.Topics, p.Queues, p.Objects, p.LogGroups
		deps.AccountID = account
		if cfg.StateMachineARN != "" {
			deps.Orchestrator = p.Orchestrator
		}
		if cfg.UserPoolID != "" {
			deps.Directory = p.Directory
		}

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	store, err := a.openRecords(ctx, deps)
	if err != nil {
		return nil, err
	}
	deps.Records = store

	a.Rooms = services.NewRoomService(deps)
	a.Sessions = services.NewSessionService(deps, a.Rooms)
	a.Messages = services.NewMessageService(deps, a.Rooms, a.Sessions)
	a.Lifecycle = services.NewLifecycleService(deps, a.Rooms, a.Sessions)
	a.Archive = services.NewArchiveService(deps)
	a.Cleanup = services.NewCleanupService(deps, a.Sessions, cfg.SweepInterval, cfg.OrphanThreshold)
	a.API = handlers.NewAPI(a.Rooms, a.Sessions, a.Messages, a.Archive, log)

	if local != nil {
		a.orchestrator.Bind(a.Lifecycle.Step)
		local.RegisterHandler(cfg.ArchiverFunctionARN, a.Archive.ArchiveDelivery)
	}

	log.WithFields(logrus.Fields{
		"provider":     cfg.Provider,
		"record_store": cfg.RecordStore,
		"account":      deps.AccountID,
	}).Info("Services initialized")
	return a, nil
}

func (a *App) openRecords(ctx context.Context, deps services.Deps) (records.Store, error) {
	switch a.Config.RecordStore {
	case config.RecordStoreSQLite:
		store, err := sqlite.Open(a.Config.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return records.NewObjectStore(deps.Objects), nil
	}
}

// Close stops in-process lifecycles and releases the record store.
func (a *App) Close() error {
	if a.orchestrator != nil {
		a.orchestrator.Stop()
	}
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
