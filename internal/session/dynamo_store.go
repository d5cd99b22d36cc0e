package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

const sessionSortKey = "SESSION"

// DynamoStore keeps sessions in the single-table key-value store under
// PK=SESSION#<id>, SK=SESSION. The ttl attribute lets the table expire
// items; Get also checks expiry because TTL deletion lags.
type DynamoStore struct {
	api   DynamoAPI
	table string
	now   func() time.Time
}

type sessionItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	Session
	TTL int64 `dynamodbav:"ttl"`
}

func NewDynamoStore(api DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{api: api, table: table, now: time.Now}
}

func sessionKey(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "SESSION#" + sessionID},
		"SK": &types.AttributeValueMemberS{Value: sessionSortKey},
	}
}

func (d *DynamoStore) Create(ctx context.Context, s Session) error {
	if err := s.validate(); err != nil {
		return err
	}
	return d.put(ctx, s)
}

func (d *DynamoStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            sessionKey(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("session: dynamodb get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	if !d.now().Before(item.ExpiresAt) {
		return nil, nil
	}
	return &item.Session, nil
}

func (d *DynamoStore) Update(ctx context.Context, s Session) error {
	if s.SessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}
	if !d.now().Before(s.ExpiresAt) {
		return d.Delete(ctx, s.SessionID)
	}
	return d.put(ctx, s)
}

func (d *DynamoStore) Delete(ctx context.Context, sessionID string) error {
	_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       sessionKey(sessionID),
	})
	if err != nil {
		return fmt.Errorf("session: dynamodb delete: %w", err)
	}
	return nil
}

func (d *DynamoStore) put(ctx context.Context, s Session) error {
	item, err := attributevalue.MarshalMap(sessionItem{
		PK:      "SESSION#" + s.SessionID,
		SK:      sessionSortKey,
		Session: s,
		TTL:     s.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("session: dynamodb put: %w", err)
	}
	return nil
}
