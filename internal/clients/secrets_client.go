package clients

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/sirupsen/logrus"
)

// SecretValueGetter is the Secrets Manager call the relayer needs.
type SecretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerClient fetches the relayer key from AWS Secrets Manager.
type SecretsManagerClient struct {
	svc    SecretValueGetter
	logger *logrus.Logger
}

// NewSecretsManagerClient uses the default AWS credential chain. An empty region
// keeps whatever the chain resolves.
func NewSecretsManagerClient(ctx context.Context, region string, logger *logrus.Logger) (*SecretsManagerClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return NewSecretsManagerClientWith(secretsmanager.NewFromConfig(cfg), logger), nil
}

func NewSecretsManagerClientWith(svc SecretValueGetter, logger *logrus.Logger) *SecretsManagerClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SecretsManagerClient{svc: svc, logger: logger}
}

// GetSecretString returns the secret. A JSON object with a single key is unwrapped to its value,
// so both "0xabc..." and {"RELAYER_PRIVATE_KEY":"0xabc..."} work.
func (c *SecretsManagerClient) GetSecretString(ctx context.Context, secretID string) (string, error) {
	result, err := c.svc.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", secretID, err)
	}
	if result.SecretString == nil || *result.SecretString == "" {
		return "", fmt.Errorf("secret %s is empty", secretID)
	}
	raw := *result.SecretString

	var asJSON map[string]string
	if err := json.Unmarshal([]byte(raw), &asJSON); err == nil {
		if len(asJSON) == 1 {
			for key, value := range asJSON {
				c.logger.WithFields(logrus.Fields{"secret_id": secretID, "json_key": key}).Info("secret fetched from Secrets Manager")
				return value, nil
			}
		}
		c.logger.WithFields(logrus.Fields{"secret_id": secretID, "keys": len(asJSON)}).Warn("secret is JSON with several keys, returning raw value")
	}
	return raw, nil
}
