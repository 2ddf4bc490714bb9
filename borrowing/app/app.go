package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/akhmetow/borrowing-service/borrowing/config"
	"github.com/akhmetow/borrowing-service/borrowing/internal/handler"
	"github.com/akhmetow/borrowing-service/borrowing/internal/notify"
	"github.com/akhmetow/borrowing-service/borrowing/internal/payment"
	"github.com/akhmetow/borrowing-service/borrowing/internal/repository"
	"github.com/akhmetow/borrowing-service/borrowing/internal/server"
	"github.com/akhmetow/borrowing-service/borrowing/internal/service"
	"github.com/akhmetow/borrowing-service/borrowing/migrations"
	"github.com/akhmetow/borrowing-service/pkg/circuit_breaker"
	"github.com/akhmetow/borrowing-service/pkg/kafka"
	"github.com/akhmetow/borrowing-service/pkg/logger"
	"github.com/akhmetow/borrowing-service/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "borrowing")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo %v", err)
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("kafka.NewProducer %v", err)
	}
	notifier := notify.NewKafkaNotifier(producer, kafka.NotifyTopic, log)

	processor := payment.NewClient(cfg.Payment, log)
	cb := circuit_breaker.New(10, time.Second*30, 0.5, 3)

	svc := service.NewService(cfg.Service, repo, processor, notifier, cb, log)

	consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.BorrowingConsumerGroup)
	if err != nil {
		return fmt.Errorf("kafka.NewConsumer %v", err)
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go kafka.Consume(bgCtx, consumer, handler.NewConsumer(svc.MarkPaymentResult, log), kafka.PaymentResultTopic)
	go svc.RunOverdueScanner(bgCtx, cfg.Scanner.Interval)

	h := handler.New(svc, log)
	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	bgCancel()
	if err = consumer.Close(); err != nil {
		log.Error("consumer.Close", zap.Error(err))
	}
	if err = producer.Close(); err != nil {
		log.Error("producer.Close", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
	return nil
}
