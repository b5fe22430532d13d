package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
)

// QueuedEvent is the message written to the events queue.
type QueuedEvent struct {
	Room      string `json:"room"`
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// QueueSink mirrors published task events to an Azure Storage queue for
// out-of-process consumers.
type QueueSink struct {
	queue *azqueue.QueueClient
}

func NewQueueSink(connStr, queue string) (*QueueSink, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queue, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueSink{queue: q}, nil
}

func encodeQueuedEvent(room, event string, payload any, at time.Time) (string, error) {
	return sonic.MarshalString(QueuedEvent{Room: room, Event: event, Data: payload, Timestamp: at.UnixNano()})
}

func (s *QueueSink) Send(ctx context.Context, room, event string, payload any) error {
	msg, err := encodeQueuedEvent(room, event, payload, time.Now())
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueMessage(ctx, msg, nil)
	return err
}
