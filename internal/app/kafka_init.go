package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/messaging/kafka"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Пустой список даёт nil, nil: сервер работает без Kafka.
func initKafkaProducer(brokers []string, clientID string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := make([]string, 0, len(brokers))
	for _, broker := range brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokerList = append(brokerList, broker)
		}
	}
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList, clientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// revalidationGroupID возвращает отдельную группу для экземпляра, чтобы ревалидацию получали все.
// Префикс группы берётся из client id, чтобы разные развёртывания в одном кластере не пересекались.
func revalidationGroupID(clientID, instanceID string) string {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = "portfolio"
	}
	return clientID + "-revalidate-" + instanceID
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
