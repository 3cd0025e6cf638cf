package app

import (
	"sync"

	"shadowpool/internal/config"
	"shadowpool/internal/db"
	"shadowpool/internal/events"
	"shadowpool/internal/handlers"
	"shadowpool/internal/ledger"
	"shadowpool/internal/repository"
	"shadowpool/internal/services"
	"shadowpool/internal/zk"

	log "github.com/sirupsen/logrus"
)

// ServiceContainer wires repositories, services and handlers once at
// startup. Handlers hold only what the router needs.
type ServiceContainer struct {
	PoolService *services.PoolService
	PushService *services.WebSocketPushService
	Publisher   *events.NATSPublisher

	PoolHandler        *handlers.PoolHandler
	TransactionHandler *handlers.TransactionHandler
	EventHandler       *handlers.EventHandler
	AdminHandler       *handlers.AdminHandler
	AuthHandler        *handlers.AuthHandler
	WebSocketHandler   *handlers.WebSocketHandler
}

var (
	Container     *ServiceContainer
	containerOnce sync.Once
)

// InitializeContainer builds the global service container. Must be called
// after config and database initialization.
func InitializeContainer() *ServiceContainer {
	containerOnce.Do(func() {
		cfg := config.AppConfig

		poolRepo := repository.NewPoolRepository(db.DB)
		commitmentRepo := repository.NewCommitmentRepository(db.DB)
		nullifierRepo := repository.NewNullifierRepository(db.DB)
		rootRepo := repository.NewRootRepository(db.DB)
		stuckRepo := repository.NewStuckPayoutRepository(db.DB)
		eventRepo := repository.NewEventRepository(db.DB)

		custody := ledger.NewCustodyLedger(db.DB)
		hasher := zk.NewMiMCHasher()

		var verifier zk.ProofVerifier = zk.RejectAllVerifier{}
		if cfg.ZK.VerifyingKeyPath != "" {
			vk, err := zk.LoadVerifyingKey(cfg.ZK.VerifyingKeyPath)
			if err != nil {
				log.WithError(err).Fatal("Failed to load verifying key")
			}
			verifier = zk.NewGroth16Verifier(vk, cfg.Pool.DefaultTreeDepth)
			log.WithField("path", cfg.ZK.VerifyingKeyPath).Info("Verifying key loaded")
		} else {
			log.Warn("No verifying key configured; all withdrawal proofs will be rejected")
		}

		push := services.NewWebSocketPushService()
		publishers := []services.EventPublisher{push}

		var natsPublisher *events.NATSPublisher
		if cfg.NATS.Enabled && cfg.NATS.URL != "" {
			var err error
			natsPublisher, err = events.NewNATSPublisher(cfg.NATS)
			if err != nil {
				log.WithError(err).Warn("NATS unavailable; continuing without message publishing")
			} else {
				publishers = append(publishers, natsPublisher)
			}
		}

		poolService := services.NewPoolService(
			poolRepo, commitmentRepo, nullifierRepo, rootRepo, stuckRepo,
			custody, verifier, hasher,
			cfg.Pool.RootHistorySize,
			publishers...,
		)

		Container = &ServiceContainer{
			PoolService: poolService,
			PushService: push,
			Publisher:   natsPublisher,

			PoolHandler:        handlers.NewPoolHandler(poolService),
			TransactionHandler: handlers.NewTransactionHandler(poolService),
			EventHandler:       handlers.NewEventHandler(eventRepo),
			AdminHandler:       handlers.NewAdminHandler(poolService),
			AuthHandler:        handlers.NewAuthHandler(),
			WebSocketHandler:   handlers.NewWebSocketHandler(push),
		}
	})
	return Container
}
