package linking

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// PutItemAPI is the subset of the DynamoDB client the ledger uses.
type PutItemAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoLedger writes links to the key-value table as
// PK=USER#<destination>, SK=LINK#<provider>#<value>. Re-linking the same
// identity overwrites the same item.
type DynamoLedger struct {
	api   PutItemAPI
	table string
}

func NewDynamoLedger(api PutItemAPI, table string) *DynamoLedger {
	return &DynamoLedger{api: api, table: table}
}

type linkItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	UserPoolID     string `dynamodbav:"user_pool_id"`
	Provider       string `dynamodbav:"provider"`
	AttributeName  string `dynamodbav:"attribute_name"`
	AttributeValue string `dynamodbav:"attribute_value"`
	LinkedAt       string `dynamodbav:"linked_at"`
}

func (d *DynamoLedger) RecordLink(ctx context.Context, link Link) error {
	item, err := attributevalue.MarshalMap(linkItem{
		PK:             "USER#" + link.DestinationUser,
		SK:             "LINK#" + link.Provider + "#" + link.AttributeValue,
		UserPoolID:     link.UserPoolID,
		Provider:       link.Provider,
		AttributeName:  link.AttributeName,
		AttributeValue: link.AttributeValue,
		LinkedAt:       link.LinkedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal link: %w", err)
	}

	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put link: %w", err)
	}
	return nil
}
