package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/synaptiq/model-gateway/internal/domain"
)

// SQSAPI is the slice of the SQS client the sink uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQS ships usage records to a queue consumed by the downstream cost
// ledger. The queue absorbs bursts so telemetry never backs up into the
// request path.
type SQS struct {
	client   SQSAPI
	queueURL string
}

func NewSQS(cfg aws.Config, queueURL string) *SQS {
	return &SQS{client: sqs.NewFromConfig(cfg), queueURL: queueURL}
}

func NewSQSWithClient(client SQSAPI, queueURL string) *SQS {
	return &SQS{client: client, queueURL: queueURL}
}

func (s *SQS) Enqueue(ctx context.Context, md domain.UsageMetadata) error {
	body, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"UserID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(md.UserID),
			},
			"ModelID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(md.ModelID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send usage record: %w", err)
	}
	return nil
}
