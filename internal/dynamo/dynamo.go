// Package dynamo opens the DynamoDB table shared by the session store and
// the link ledger.
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type Client struct {
	*dynamodb.Client
	Table string
}

type describer interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// New builds a client from cfg and checks that table exists.
func New(ctx context.Context, cfg aws.Config, table string) (*Client, error) {
	client := dynamodb.NewFromConfig(cfg)
	if err := ping(ctx, client, table); err != nil {
		return nil, err
	}
	return &Client{Client: client, Table: table}, nil
}

func ping(ctx context.Context, api describer, table string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", table, err)
	}
	if out.Table == nil {
		return fmt.Errorf("describe table %s: empty response", table)
	}
	return nil
}
