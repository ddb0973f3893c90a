// Command messaging follows the relay journal on Kafka and logs message
// activity per conversation.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/logging"
	"github.com/sirupsen/logrus"
)

const groupID = "messaging-service-group"

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Messaging consumer stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.JournalEnabled() {
		return errors.New("KAFKA_BROKERS is required")
	}

	log, closer, err := logging.Open(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := NewConsumer(NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, groupID), log)
	defer consumer.Close()

	log.WithFields(logrus.Fields{"topic": cfg.KafkaTopic, "brokers": cfg.KafkaBrokers}).Info("Starting journal consumer")
	err = consumer.Consume(ctx)

	for _, a := range consumer.Activity() {
		log.WithFields(logrus.Fields{
			"conversation": a.ConversationID,
			"messages":     a.Messages,
			"read":         a.Read,
			"last":         a.LastMessageAt,
		}).Info("Conversation activity")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
