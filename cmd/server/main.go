package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/KStasi/pixel-map/internal/config/serverConfig"
	"github.com/KStasi/pixel-map/internal/config/settlementConfig"
	"github.com/KStasi/pixel-map/internal/config/storageConfig"
	"github.com/KStasi/pixel-map/internal/infrastructure/kafka"
	natsjs "github.com/KStasi/pixel-map/internal/infrastructure/nats"
	"github.com/KStasi/pixel-map/internal/infrastructure/postgres"
	"github.com/KStasi/pixel-map/internal/pricing"
	"github.com/KStasi/pixel-map/internal/repository"
	"github.com/KStasi/pixel-map/internal/rooms"
	"github.com/KStasi/pixel-map/internal/service"
	"github.com/KStasi/pixel-map/internal/settlement"
	"github.com/KStasi/pixel-map/internal/signatures"
	"github.com/KStasi/pixel-map/internal/signer"
	"github.com/KStasi/pixel-map/internal/transport/ws"
)

func init() {
	err := godotenv.Load(".env")
	if err != nil {
		slog.Error("Error loading .env file")
		os.Exit(1)
	}
}

func main() {

	storageCfg, err := storageConfig.MustLoadStorageConfig()
	if err != nil {
		log.Fatal(err.Error())
	}

	config, err := serverConfig.MustLoadServerConfig()
	if err != nil {
		log.Fatal(err.Error())
	}

	settlementCfg, err := settlementConfig.MustLoadSettlementConfig()
	if err != nil {
		log.Fatal(err.Error())
	}

	dataBase, err := postgres.NewStorage(storageCfg)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	itemRepo := repository.NewItemRepository(dataBase)
	spendRepo := repository.NewSpendRepository(dataBase)
	if err := itemRepo.EnsureItems(context.Background(), config.Server.ItemCount); err != nil {
		slog.Error("cannot seed items", "error", err)
		os.Exit(1)
	}

	defaultPrice, err := decimal.NewFromString(config.Pricing.DefaultPrice)
	if err != nil {
		log.Fatalf("invalid default price %q: %v", config.Pricing.DefaultPrice, err)
	}
	priceModel := pricing.NewModel(defaultPrice, config.Pricing.DecayWindow)

	engineSigner, err := signer.NewEOASigner(settlementCfg.PrivateKey)
	if err != nil {
		log.Fatalf("cannot load settlement key: %v", err)
	}
	slog.Info("engine signer ready", "address", engineSigner.Address())

	broker := settlement.NewClient(settlementCfg.URL, settlementCfg.CallTimeout)
	if err := broker.Connect(context.Background()); err != nil {
		// sessions will fail fast until the peer comes back; the room and
		// item surfaces keep working
		slog.Warn("settlement peer unreachable at startup", "url", settlementCfg.URL, "error", err)
	}
	defer broker.Close()

	deps := service.EngineDeps{
		Registry:  rooms.NewRegistry(),
		Collector: signatures.NewCollector(),
		Broker:    broker,
		Items:     itemRepo,
		Spend:     spendRepo,
		Signer:    engineSigner,
		Verifier:  signer.RecoverVerifier{},
		Pricing:   priceModel,
		Protocol:  settlementCfg.Protocol,
		Asset:     settlementCfg.Asset,
		Challenge: settlementCfg.Challenge,
	}

	if config.Nats.URL != "" {
		events := natsjs.NewJSClient(config.Nats.URL)
		defer events.Conn.Close()
		deps.Events = events
	}

	if config.Kafka.Broker != "" {
		audit := kafka.NewProducer(config.Kafka.Broker, config.Kafka.PurchaseTopic)
		defer audit.Close()
		deps.Audit = audit
	}

	engine := service.NewService(deps)

	if err := ws.RunServer(config.Server, engine); err != nil {
		log.Fatalf("cannot start websocket server: %v", err)
	}

}
