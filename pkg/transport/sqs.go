package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ianmp91/sqs-consumer-producer-micro/pkg/message"
)

// SQSAPI is the subset of the SQS client used by the transport
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSConfig holds long-poll settings for SQS receivers
type SQSConfig struct {
	// MaxMessages per ReceiveMessage call (1-10)
	MaxMessages int32
	// WaitTimeSeconds enables long polling (0-20)
	WaitTimeSeconds int32
	// VisibilityTimeout hides received messages while they are processed
	VisibilityTimeout int32
	Logger            *slog.Logger
}

// DefaultSQSConfig returns long-poll defaults
func DefaultSQSConfig() SQSConfig {
	return SQSConfig{
		MaxMessages:       10,
		WaitTimeSeconds:   20,
		VisibilityTimeout: 30,
	}
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
// A non-empty endpoint overrides the service endpoint (LocalStack, ElasticMQ).
func NewSQSClient(ctx context.Context, region, endpoint string) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// SQS sends and receives envelopes as JSON message bodies on Amazon SQS
type SQS struct {
	client SQSAPI
	config SQSConfig
	logger *slog.Logger

	mu   sync.RWMutex
	urls map[string]string
}

// NewSQS wraps an SQS client. Zero config fields fall back to
// DefaultSQSConfig.
func NewSQS(client SQSAPI, cfg SQSConfig) *SQS {
	def := DefaultSQSConfig()
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > 10 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.WaitTimeSeconds < 0 || cfg.WaitTimeSeconds > 20 {
		cfg.WaitTimeSeconds = def.WaitTimeSeconds
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = def.VisibilityTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SQS{
		client: client,
		config: cfg,
		logger: logger,
		urls:   make(map[string]string),
	}
}

// QueueURL resolves a queue name to its URL. Values that already look like
// URLs are returned unchanged. Resolved names are cached.
func (s *SQS) QueueURL(ctx context.Context, queue string) (string, error) {
	if strings.Contains(queue, "://") {
		return queue, nil
	}

	s.mu.RLock()
	url, ok := s.urls[queue]
	s.mu.RUnlock()
	if ok {
		return url, nil
	}

	out, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queue)})
	if err != nil {
		return "", fmt.Errorf("%w: resolving queue %s: %w", ErrTransport, queue, err)
	}
	if out.QueueUrl == nil {
		return "", fmt.Errorf("%w: no url for queue %s", ErrTransport, queue)
	}

	s.mu.Lock()
	s.urls[queue] = *out.QueueUrl
	s.mu.Unlock()
	return *out.QueueUrl, nil
}

// Send publishes env as a JSON message body on the destination queue.
// The message_type metadata entry is mirrored as an SQS message attribute.
func (s *SQS) Send(ctx context.Context, destination string, env *message.SealedEnvelope) error {
	if env == nil {
		return fmt.Errorf("%w: nil envelope", ErrTransport)
	}
	url, err := s.QueueURL(ctx, destination)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encoding envelope: %w", ErrTransport, err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	}
	if mt, ok := env.Meta(message.MetaMessageType); ok && mt != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			message.MetaMessageType: {
				DataType:    aws.String("String"),
				StringValue: aws.String(mt),
			},
		}
	}

	if _, err := s.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("%w: sending to %s: %w", ErrTransport, destination, err)
	}
	return nil
}

// Receiver returns a long-polling Receiver for the named queue
func (s *SQS) Receiver(queue string) Receiver {
	return &sqsReceiver{sqs: s, queue: queue}
}

type sqsReceiver struct {
	sqs   *SQS
	queue string
}

// Receive performs one long poll. Messages whose body is not a valid
// envelope are logged and left on the queue so the redrive policy can move
// them to a dead-letter queue.
func (r *sqsReceiver) Receive(ctx context.Context) ([]Received, error) {
	s := r.sqs
	url, err := s.QueueURL(ctx, r.queue)
	if err != nil {
		return nil, err
	}

	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(url),
		MaxNumberOfMessages:   s.config.MaxMessages,
		WaitTimeSeconds:       s.config.WaitTimeSeconds,
		VisibilityTimeout:     s.config.VisibilityTimeout,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: receiving from %s: %w", ErrTransport, r.queue, err)
	}

	now := time.Now().UTC()
	batch := make([]Received, 0, len(out.Messages))
	for _, m := range out.Messages {
		id := aws.ToString(m.MessageId)
		env, err := message.Parse([]byte(aws.ToString(m.Body)))
		if err != nil {
			s.logger.Warn("Leaving unparseable message on queue",
				"queue", r.queue,
				"sqs_message_id", id,
				"error", err,
			)
			continue
		}

		handle := aws.String(aws.ToString(m.ReceiptHandle))
		batch = append(batch, Received{
			Delivery: &message.Delivery{
				ID:         id,
				Source:     r.queue,
				Envelope:   env,
				ReceivedAt: now,
			},
			Done: func(ctx context.Context) error {
				_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(url),
					ReceiptHandle: handle,
				})
				if err != nil {
					return fmt.Errorf("%w: deleting %s from %s: %w", ErrTransport, id, r.queue, err)
				}
				return nil
			},
		})
	}
	return batch, nil
}
