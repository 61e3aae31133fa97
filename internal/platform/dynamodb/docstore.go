// Package dynamodb provides the DynamoDB-backed document store. A document
// path maps onto the table's composite key: the directory part becomes the
// partition key and the file name the sort key, so all daily documents of a
// month share one partition and can be listed with a single query.
package dynamodb

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/claimdesk/expense-ledger/internal/docstore"
	"github.com/claimdesk/expense-ledger/internal/domain/errors"
	"github.com/claimdesk/expense-ledger/internal/platform/dynamodb/client"
)

// DocumentStore implements docstore.Store on a single DynamoDB table.
type DocumentStore struct {
	client client.Client
	table  string
	logger *slog.Logger
}

// NewDocumentStore creates a new DynamoDB document store.
func NewDocumentStore(client client.Client, table string, logger *slog.Logger) *DocumentStore {
	return &DocumentStore{
		client: client,
		table:  table,
		logger: logger,
	}
}

type documentItem struct {
	Path      string    `dynamodbav:"Path"`
	Type      string    `dynamodbav:"Type"`
	Document  string    `dynamodbav:"Document"`
	UpdatedAt time.Time `dynamodbav:"UpdatedAt"`
}

func (s *DocumentStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	pk, sk := splitPath(path)
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return nil, errors.NewIOError("failed to read document", err).WithDetail("path", path)
	}
	if len(result.Item) == 0 {
		return nil, errors.NewNotFoundError("document not found").WithDetail("path", path)
	}

	var item documentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, errors.NewInternalError("failed to unmarshal document item", err).
			WithDetail("path", path)
	}
	return json.RawMessage(item.Document), nil
}

func (s *DocumentStore) Put(ctx context.Context, path string, doc json.RawMessage) error {
	pk, sk := splitPath(path)
	item, err := attributevalue.MarshalMap(documentItem{
		Path:      path,
		Type:      "ledger_document",
		Document:  string(doc),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.NewInternalError("failed to marshal document item", err).
			WithDetail("path", path)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}

	// Whole-document replacement; no condition expression.
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return errors.NewIOError("failed to write document", err).WithDetail("path", path)
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context, dir string) ([]string, error) {
	keyCondition := expression.Key("PK").Equal(expression.Value(dir))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, errors.NewInternalError("failed to build expression", err)
	}

	var paths []string
	var startKey map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, errors.NewIOError("failed to list documents", err).WithDetail("dir", dir)
		}
		for _, raw := range result.Items {
			var item documentItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				s.logger.Warn("skipping unreadable document item", "dir", dir, "error", err)
				continue
			}
			paths = append(paths, item.Path)
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return paths, nil
}

// splitPath separates a document path into its directory (partition key) and
// file name (sort key).
func splitPath(path string) (pk, sk string) {
	idx := strings.LastIndex(path, "/")
	return path[:idx], path[idx+1:]
}

var _ docstore.Store = (*DocumentStore)(nil)
