package sms

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type AWSSNSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SenderID        string
}

// SNSPublisher is the slice of the SNS client used for direct SMS.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type AWSSNSProvider struct {
	client   SNSPublisher
	senderID string
}

func NewAWSSNSProvider(ctx context.Context, cfg *AWSSNSConfig) (*AWSSNSProvider, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewAWSSNSProviderFromClient(sns.NewFromConfig(awsCfg), cfg.SenderID), nil
}

func NewAWSSNSProviderFromClient(client SNSPublisher, senderID string) *AWSSNSProvider {
	return &AWSSNSProvider{client: client, senderID: senderID}
}

func (a *AWSSNSProvider) Name() string { return "aws_sns" }

func (a *AWSSNSProvider) SendSMS(ctx context.Context, request *SMSRequest) (*SMSResponse, error) {
	if err := request.validate(); err != nil {
		return failed(err), err
	}

	// Alerts are always transactional so carriers do not throttle them as marketing.
	attrs := map[string]snsTypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	senderID := request.From
	if senderID == "" {
		senderID = a.senderID
	}
	if senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(senderID),
		}
	}

	resp, err := a.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(request.To),
		Message:           aws.String(request.Message),
		MessageAttributes: attrs,
	})
	if err != nil {
		var invalid *snsTypes.InvalidParameterException
		if errors.As(err, &invalid) {
			err = fmt.Errorf("%w: sns: %s", ErrRejectedRecipient, invalid.ErrorMessage())
		} else {
			err = fmt.Errorf("failed to publish SMS via SNS: %w", err)
		}
		return failed(err), err
	}

	return &SMSResponse{
		MessageID: aws.ToString(resp.MessageId),
		Status:    StatusSent,
	}, nil
}
