package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-wallet-auth/internal/config"
	"github.com/go-wallet-auth/internal/infrastructure/awsclient"
)

const eventUserLoggedIn = "user.logged_in"

// LoginEvent is published after every successful login.
type LoginEvent struct {
	UserID    string    `json:"userId"`
	WalletID  string    `json:"walletId"`
	SourceIP  string    `json:"sourceIp,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	At        time.Time `json:"at"`
}

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends login events to an SNS topic.
type Publisher struct {
	client   snsAPI
	topicARN string
}

func NewClient(ctx context.Context, cfg *config.Config) (*sns.Client, error) {
	awsCfg, err := awsclient.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		o.BaseEndpoint = awsclient.BaseEndpoint(cfg)
	}), nil
}

func NewPublisher(client snsAPI, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

// PublishLogin is a no-op when no topic is configured.
func (p *Publisher) PublishLogin(ctx context.Context, ev LoginEvent) error {
	if p == nil || p.topicARN == "" {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode login event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {DataType: aws.String("String"), StringValue: aws.String(eventUserLoggedIn)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish login event: %w", err)
	}
	return nil
}
