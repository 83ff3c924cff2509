package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/pabfc/membership-payments/internal/audit"
	"github.com/pabfc/membership-payments/internal/config"
	"github.com/pabfc/membership-payments/internal/database"
	"github.com/pabfc/membership-payments/internal/events"
	"github.com/pabfc/membership-payments/internal/mpesa"
	"github.com/pabfc/membership-payments/internal/notify"
	"github.com/pabfc/membership-payments/internal/services"
	"github.com/pabfc/membership-payments/internal/settlement"
	"github.com/pabfc/membership-payments/internal/store"
	rw "github.com/pabfc/membership-payments/internal/worker"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db := database.InitDatabase(cfg.Database)
	defer db.Close()

	redisClient := database.InitRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer c.Close()

	sms, closeSMS, err := newSMSSender(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize SMS sender: %v", err)
	}
	defer closeSMS()

	var publisher settlement.EventPublisher
	if cfg.Kafka.Enabled() {
		p := events.NewPublisher(cfg.Kafka.Broker, cfg.Kafka.Topic)
		defer p.Close()
		publisher = p
		log.Printf("[WORKER] Publishing settlement events to %s", cfg.Kafka.Topic)
	}

	auditLogger := audit.NewAuditLogger()
	paymentStore := store.NewPaymentStore(db)
	activities := settlement.NewActivities(
		paymentStore,
		store.NewPlanStore(db),
		store.NewMemberStore(db),
		store.NewAccountDirectory(db),
		store.NewSettingsStore(db),
		store.NewSettlementStore(db),
		sms,
		publisher,
		auditLogger,
	)

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(settlement.SettlePaymentWorkflow)
	w.RegisterActivity(activities)

	gateway, err := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		PassKey:        cfg.Mpesa.PassKey,
		CallbackURL:    cfg.Mpesa.CallbackURL(),
		HTTPClient:     &http.Client{Timeout: cfg.Mpesa.Timeout},
	}, mpesa.NewTokenCache(redisClient))
	if err != nil {
		log.Fatalf("Failed to initialize M-Pesa client: %v", err)
	}

	trigger := settlement.NewTrigger(c, cfg.Temporal.TaskQueue)
	callbacks := services.NewCallbackService(paymentStore, gateway, trigger, false, auditLogger)
	reconciler := rw.NewReconciler(paymentStore, gateway, callbacks, trigger, cfg.Reconciler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reconciler.Start(ctx)

	log.Printf("[WORKER] Settlement worker listening on %s", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("Unable to start worker: %v", err)
	}
}

func newSMSSender(cfg *config.Config) (notify.Sender, func(), error) {
	switch cfg.SMS.Provider {
	case "africastalking":
		s, err := notify.NewAfricasTalkingSender(notify.AfricasTalkingConfig{
			BaseURL:  cfg.SMS.BaseURL,
			APIKey:   cfg.SMS.APIKey,
			Username: cfg.SMS.Username,
			SenderID: cfg.SMS.SenderID,
		})
		return s, func() {}, err
	case "rabbitmq":
		s, err := notify.DialQueueSender(cfg.RabbitMQ.URL(), cfg.SMS.Queue)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		log.Println("[WORKER] SMS disabled, notifications will be dropped")
		return notify.Nop{}, func() {}, nil
	}
}
