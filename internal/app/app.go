// internal/app/app.go
package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zainab674/voiceagents-sub004/internal/config"
	"github.com/zainab674/voiceagents-sub004/internal/contactsource"
	"github.com/zainab674/voiceagents-sub004/internal/controller"
	"github.com/zainab674/voiceagents-sub004/internal/handler"
	"github.com/zainab674/voiceagents-sub004/internal/logging"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/queue"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
	"github.com/zainab674/voiceagents-sub004/internal/service"
	"github.com/zainab674/voiceagents-sub004/internal/telephony"
)

// Stores groups the persistence ports the engine needs.
type Stores struct {
	Campaigns    repository.CampaignRepositoryInterface
	Calls        repository.CampaignCallRepositoryInterface
	Contacts     repository.ContactRepositoryInterface
	Suppressions repository.SuppressionRepositoryInterface
	Leases       repository.LeaseRepositoryInterface
}

// PostgresStores builds every repository over one connection pool.
func PostgresStores(db *sqlx.DB) Stores {
	return Stores{
		Campaigns:    &repository.CampaignRepository{DB: db},
		Calls:        &repository.CampaignCallRepository{DB: db},
		Contacts:     &repository.ContactRepository{DB: db},
		Suppressions: &repository.SuppressionRepository{DB: db},
		Leases:       &repository.LeaseRepository{DB: db},
	}
}

// MemoryStores backs every port with one in-process store.
func MemoryStores(m *repository.MemoryStore) Stores {
	return Stores{Campaigns: m, Calls: m, Contacts: m, Suppressions: m, Leases: m}
}

func Sources(cfg config.ContactsConfig, s Stores) contactsource.Registry {
	return contactsource.Registry{
		model.SourceList: &contactsource.ListSource{Repo: s.Contacts},
		model.SourceCSV:  &contactsource.CSVSource{Dir: cfg.CSVDir, Suppressions: s.Suppressions},
	}
}

// Engine is the wired campaign engine minus its transport.
type Engine struct {
	Service   *service.CampaignService
	Recorder  *service.Recorder
	Scheduler *service.Scheduler
}

func NewEngine(cfg *config.Config, s Stores, provider telephony.Provider, logger *zap.Logger) *Engine {
	logger = logging.OrNop(logger)
	sources := Sources(cfg.Contacts, s)

	dispatcher := &service.Dispatcher{
		Calls:          s.Calls,
		Provider:       provider,
		Region:         cfg.Telephony.DefaultRegion,
		InterCallDelay: cfg.Scheduler.InterCallDelay,
		Logger:         logger.Named("dispatcher"),
	}
	return &Engine{
		Service: &service.CampaignService{
			CampaignRepo: s.Campaigns,
			CallRepo:     s.Calls,
			Sources:      sources,
			Logger:       logger.Named("campaigns"),
		},
		Recorder: &service.Recorder{
			Calls:   s.Calls,
			Sources: sources,
			Logger:  logger.Named("recorder"),
		},
		Scheduler: service.NewScheduler(cfg.Scheduler, s.Campaigns, s.Leases, sources, dispatcher, logger),
	}
}

// OpenQueue dials RabbitMQ when a URL is configured and otherwise keeps call
// events in process.
func OpenQueue(cfg config.QueueConfig, logger *zap.Logger) (queue.Queue, error) {
	if cfg.AMQPURL == "" {
		logging.OrNop(logger).Info("using in-memory call event queue")
		return queue.NewInMemoryQueue(cfg.MaxRetries, logger), nil
	}
	return queue.DialAMQP(cfg.AMQPURL, cfg.MaxRetries, logger)
}

// RouterDeps are the collaborators mounted on the HTTP surface.
type RouterDeps struct {
	Service *service.CampaignService
	Queue   queue.Queue
	Topic   string
	DB      handler.Pinger
	Logger  *zap.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	health := &handler.HealthHandler{DB: d.DB}
	r.Get("/health", health.Health)
	r.Get("/health/db", health.HealthDB)
	r.Handle("/metrics", promhttp.Handler())

	calls := &handler.CallStatusHandler{Queue: d.Queue, Topic: d.Topic, Logger: d.Logger}
	r.Post("/webhooks/call-status", calls.HandleCallStatus)

	campaigns := &controller.CampaignController{CampaignService: d.Service, Logger: d.Logger}
	campaigns.Routes(r)
	return r
}
