package app

import (
	"context"
	"errors"
	"fmt"

	"auth-gateway/internal/config"
	"auth-gateway/internal/db"
	"auth-gateway/internal/dynamo"
	"auth-gateway/internal/logger"
	"auth-gateway/internal/redis"
	"auth-gateway/internal/session"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
)

type Infra struct {
	AWS     aws.Config
	Cognito *cip.Client
	Redis   *redis.Client
	Dynamo  *dynamo.Client
	DB      *db.DB // nil unless DATABASE_DSN is set
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	infra := &Infra{
		AWS:     awsCfg,
		Cognito: cip.NewFromConfig(awsCfg),
	}

	switch cfg.SessionBackend {
	case "dynamodb":
		infra.Dynamo, err = dynamo.New(ctx, awsCfg, cfg.DynamoDBTable)
		if err != nil {
			return nil, err
		}
		logger.Info("dynamodb ready", map[string]any{"table": cfg.DynamoDBTable})
	default:
		infra.Redis, err = redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		logger.Info("redis ready", nil)
	}

	if cfg.DatabaseDSN != "" {
		infra.DB, err = db.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			_ = infra.Close()
			return nil, err
		}
		logger.Info("database ready", nil)
	}

	return infra, nil
}

// SessionStore returns the store for the configured backend.
func (i *Infra) SessionStore() session.Store {
	if i.Dynamo != nil {
		return session.NewDynamoStore(i.Dynamo.Client, i.Dynamo.Table)
	}
	return session.NewRedisStore(i.Redis.Client)
}

func (i *Infra) Close() error {
	var errs []error
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	if i.DB != nil {
		errs = append(errs, i.DB.Close())
	}
	return errors.Join(errs...)
}
