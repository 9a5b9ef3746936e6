package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/enersight/services/telemetry/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// PushSender hands digest push notifications off to the mobile-push queue.
// Delivery to handsets is the queue consumer's problem, not ours.
type PushSender interface {
	SendMessage(ctx context.Context, body interface{}) error
	Close() error
}

// serviceBusSender implements PushSender on Azure Service Bus
type serviceBusSender struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
	source    string
}

// NewPushSender creates a new Service Bus push sender
func NewPushSender(cfg config.ServiceBusConfig, source string) (PushSender, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &serviceBusSender{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
		source:    source,
	}, nil
}

// SendMessage sends a message to the push queue
func (s *serviceBusSender) SendMessage(ctx context.Context, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message body: %w", err)
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": s.source,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	return s.sender.SendMessage(ctx, msg, nil)
}

// Close closes the Service Bus client
func (s *serviceBusSender) Close() error {
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}

	if s.client != nil {
		return s.client.Close(context.Background())
	}

	return nil
}
