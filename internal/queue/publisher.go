package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"forecasting/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// RankingPublisher announces finished ranking runs on an SQS queue.
type RankingPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewRankingPublisher creates a RankingPublisher sending to queueURL.
func NewRankingPublisher(client SQSSender, queueURL string, logger *slog.Logger) *RankingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RankingPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish sends msg. A missing RunID is filled with a fresh uuid so every
// message can be deduplicated downstream.
func (p *RankingPublisher) Publish(ctx context.Context, msg types.RankingCompleted) error {
	if msg.RunID == "" {
		msg.RunID = uuid.New().String()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal RankingCompleted: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"run_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.RunID),
			},
			"ranked": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(fmt.Sprint(msg.Ranked)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send RankingCompleted to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "ranking completion published",
		"queue_url", p.queueURL,
		"run_id", msg.RunID,
		"best", len(msg.Best),
		"ranked", msg.Ranked,
		"failed", msg.Failed,
	)
	return nil
}
