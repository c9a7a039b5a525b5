package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/segmentio/kafka-go"

	sharedBus "github.com/davicafu/shoplab/internal/shared/infra/platform/bus"
)

// KafkaForwarder es un handler del bus que reenvía eventos ya entregados
// por el relayer hacia Kafka, para consumidores fuera del proceso. Es un
// colaborador externo más del core: si Kafka falla, el fallo vuelve al
// relayer y el mensaje se reintenta con backoff.
type KafkaForwarder struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaForwarder(writer *kafka.Writer, log *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, log: log}
}

// Handle cumple bus.HandlerFunc. Particiona por agregado cuando el evento
// implementa Keyer, para conservar el orden por agregado también en Kafka.
func (f *KafkaForwarder) Handle(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var key []byte
	if keyer, ok := event.(sharedBus.Keyer); ok {
		key = []byte(keyer.PartitionKey())
	}

	msg := kafka.Message{
		Key:   key,
		Value: data,
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.log.Error("Error publishing to Kafka", zap.Error(err))
		return err
	}

	f.log.Debug("Event forwarded to Kafka", zap.Any("event", event))
	return nil
}

// Verificación estática
var _ sharedBus.HandlerFunc = (*KafkaForwarder)(nil).Handle
