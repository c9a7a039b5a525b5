package events

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler lo implementa cada consumidor concreto (por ejemplo el de
// confirmaciones de pago). No devuelve error: qué hacer con un mensaje malo
// es decisión del consumidor, el adapter solo mueve bytes.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte)
}

// ConsumerAdapter es el bucle de lectura de un topic de Kafka. El offset se
// confirma después de entregar el mensaje al handler, así un crash a mitad
// reprocesa en lugar de perder.
type ConsumerAdapter struct {
	reader  *kafka.Reader
	handler MessageHandler
	log     *zap.Logger
}

func NewConsumerAdapter(reader *kafka.Reader, handler MessageHandler, log *zap.Logger) *ConsumerAdapter {
	return &ConsumerAdapter{
		reader:  reader,
		handler: handler,
		log:     log,
	}
}

// Start inicia el bucle de consumo en una goroutine y retorna.
func (c *ConsumerAdapter) Start(ctx context.Context) {
	c.log.Info("🎧 Consumidor de Kafka iniciado",
		zap.String("topic", c.reader.Config().Topic),
		zap.Strings("brokers", c.reader.Config().Brokers),
	)

	go func() {
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.log.Info("🛑 Consumidor de Kafka detenido", zap.String("topic", c.reader.Config().Topic))
					return
				}
				c.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
				continue
			}

			c.handler.HandleMessage(ctx, string(msg.Key), msg.Value)

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.log.Warn("⚠️ No se pudo confirmar el offset", zap.Error(err))
			}
		}
	}()
}
