package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"reflect"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/internal/models"
	"nhooyr.io/websocket"
)

func NewAMQPServiceBusClient(connString string) (*azservicebus.Client, error) {
	newWebSocketConnFn := func(ctx context.Context, args azservicebus.NewWebSocketConnArgs) (net.Conn, error) {
		opts := &websocket.DialOptions{Subprotocols: []string{"amqp"}}
		wssConn, _, err := websocket.Dial(ctx, args.Host, opts)
		if err != nil {
			return nil, err
		}

		return websocket.NetConn(ctx, wssConn, websocket.MessageBinary), nil
	}
	return azservicebus.NewClientFromConnectionString(connString, &azservicebus.ClientOptions{
		NewWebSocketConn: newWebSocketConnFn, // Setting this option so messages are sent to port 443.
	})
}

func NewAzureSubscriber[T Identifiable](ctx context.Context, subConn appconfig.AzureQueueConfig) (*AzureSubscriber[T], error) {
	client, err := NewAMQPServiceBusClient(subConn.ConnectionString)
	if err != nil {
		logger.Error("failed to connect to event service bus", "error", err)
		return nil, err
	}

	var receiver *azservicebus.Receiver
	if subConn.Queue != "" {
		receiver, err = client.NewReceiverForQueue(subConn.Queue, nil)
	} else {
		receiver, err = client.NewReceiverForSubscription(subConn.Topic, subConn.Subscription, nil)
	}
	if err != nil {
		logger.Error("failed to configure event subscriber", "error", err)
		return nil, err
	}

	adminClient, err := admin.NewClientFromConnectionString(subConn.ConnectionString, nil)
	if err != nil {
		logger.Error("failed to connect to service bus admin client", "error", err)
		return nil, err
	}

	maxMessages := subConn.MaxMessages
	if maxMessages == 0 {
		maxMessages = MaxMessages
	}

	return &AzureSubscriber[T]{
		Context:     ctx,
		Receiver:    receiver,
		Config:      subConn,
		AdminClient: adminClient,
		Max:         maxMessages,
	}, nil
}

func NewEventFromServiceBusMessage[T Identifiable](m *azservicebus.ReceivedMessage) (T, error) {
	var e T
	err := json.Unmarshal(m.Body, &e)
	if err != nil {
		return e, err
	}
	if isNil(e) {
		return e, fmt.Errorf("%w: message %s", ErrEmptyEvent, m.MessageID)
	}

	e.SetIdentifier(m.MessageID)

	return e, nil
}

// isNil reports whether v is nil, including a nil pointer held in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

type AzureSubscriber[T Identifiable] struct {
	Context     context.Context
	Receiver    *azservicebus.Receiver
	Config      appconfig.AzureQueueConfig
	AdminClient *admin.Client
	Max         int
}

func (as *AzureSubscriber[T]) name() string {
	if as.Config.Queue != "" {
		return as.Config.Queue
	}
	return as.Config.Topic + "/" + as.Config.Subscription
}

// Listen receives messages one batch at a time and hands them to process in order.
// A message is completed once process returns; only undecodable messages are dead lettered.
func (as *AzureSubscriber[T]) Listen(ctx context.Context, process func(context.Context, T) error) error {
	defer as.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			msgs, err := as.Receiver.ReceiveMessages(ctx, as.Max, nil)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			for _, m := range msgs {
				logger.Debug("received event", "message_id", m.MessageID, "subscription", as.name())

				e, err := NewEventFromServiceBusMessage[T](m)
				if err != nil {
					logger.Error("failed to get event from service bus", "message_id", m.MessageID, "error", err.Error())
					if err := as.Receiver.DeadLetterMessage(ctx, m, nil); err != nil {
						logger.Error("failed to dead letter message", "message_id", m.MessageID, "error", err.Error())
					}
					continue
				}
				if err := process(ctx, e); err != nil {
					logger.Error("failed to process event", "event_id", e.Identifier(), "error", err.Error())
				}
				if err := as.Receiver.CompleteMessage(ctx, m, nil); err != nil {
					logger.Error("failed to ack event", "event_id", e.Identifier(), "error", err)
				}
			}
		}
	}
}

func (as *AzureSubscriber[T]) Close() error {
	return as.Receiver.Close(as.Context)
}

// Length reports the active message count, polled for the queue depth gauge.
func (as *AzureSubscriber[T]) Length(ctx context.Context) (float64, error) {
	if as.Config.Queue != "" {
		resp, err := as.AdminClient.GetQueueRuntimeProperties(ctx, as.Config.Queue, nil)
		if err != nil {
			return 0, err
		}
		if resp == nil {
			return 0, fmt.Errorf("service bus queue %s not found", as.Config.Queue)
		}
		return float64(resp.ActiveMessageCount), nil
	}

	resp, err := as.AdminClient.GetSubscriptionRuntimeProperties(ctx, as.Config.Topic, as.Config.Subscription, nil)
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, fmt.Errorf("service bus subscription %s not found", as.name())
	}
	return float64(resp.ActiveMessageCount), nil
}

func (as *AzureSubscriber[T]) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = fmt.Sprintf("%s %s Event Subscriber", models.SERVICE_BUS, as.name())
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE

	if as.Config.Queue != "" {
		queueResp, err := as.AdminClient.GetQueue(ctx, as.Config.Queue, nil)
		if err != nil {
			return rsp.BuildErrorResponse(err)
		}
		if queueResp == nil {
			return rsp.BuildErrorResponse(fmt.Errorf("service bus queue %s not found", as.Config.Queue))
		}
		if *queueResp.Status != admin.EntityStatusActive {
			return rsp.BuildErrorResponse(fmt.Errorf("service bus queue %s status: %s", as.Config.Queue, *queueResp.Status))
		}
		return rsp
	}

	subResp, err := as.AdminClient.GetSubscription(ctx, as.Config.Topic, as.Config.Subscription, nil)
	if err != nil {
		return rsp.BuildErrorResponse(err)
	}
	if subResp == nil {
		return rsp.BuildErrorResponse(fmt.Errorf("service bus subscription %s not found", as.name()))
	}
	if *subResp.Status != admin.EntityStatusActive {
		return rsp.BuildErrorResponse(fmt.Errorf("service bus subscription %s status: %s", as.Config.Subscription, *subResp.Status))
	}

	return rsp
}
