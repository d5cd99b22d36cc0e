// Command link-accounts is the user pool pre-sign-up Lambda that links
// federated identities to existing accounts by email.
package main

import (
	"context"

	"auth-gateway/internal/auth/linking"
	"auth-gateway/internal/config"
	"auth-gateway/internal/logger"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

func main() {
	logger.Init()

	cfg, err := config.LoadTrigger()
	if err != nil {
		logger.Fatal("invalid configuration", map[string]any{
			"error": err.Error(),
		})
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Fatal("failed to load aws config", map[string]any{
			"error": err.Error(),
		})
	}

	var opts []linking.Option
	if cfg.LinkLedgerTable != "" {
		opts = append(opts, linking.WithLedger(
			linking.NewDynamoLedger(dynamodb.NewFromConfig(awsCfg), cfg.LinkLedgerTable),
		))
	}

	linker := linking.New(cip.NewFromConfig(awsCfg), opts...)
	lambda.Start(linker.Handle)
}
