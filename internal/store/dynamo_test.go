package store

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

// fakeDynamo implements the calls Dynamo issues against an in-memory table.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func stringAttr(av map[string]types.AttributeValue, name string) string {
	if s, ok := av[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[stringAttr(in.Item, "id")] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[stringAttr(in.Key, "id")]}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := stringAttr(in.ExpressionAttributeValues, ":ref")
	out := &dynamodb.QueryOutput{}
	for _, item := range f.items {
		if stringAttr(item, "external_ref") == ref {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := stringAttr(in.Key, "id")
	item, ok := f.items[id]
	if !ok || stringAttr(item, "state") != stringAttr(in.ExpressionAttributeValues, ":persisted") {
		return nil, &types.ConditionalCheckFailedException{Message: new(string)}
	}
	updated := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		updated[k] = v
	}
	updated["external_ref"] = in.ExpressionAttributeValues[":ref"]
	updated["state"] = in.ExpressionAttributeValues[":linked"]
	f.items[id] = updated
	return &dynamodb.UpdateItemOutput{}, nil
}

func TestDynamoStore(t *testing.T) {
	exerciseStore(t, Dynamo{Client: newFakeDynamo(), Table: "quotes"})
}

func TestDynamoRecordUsesStringDecimals(t *testing.T) {
	fake := newFakeDynamo()
	s := Dynamo{Client: fake, Table: "quotes"}
	q := sampleQuote("q-attrs")
	require.NoError(t, s.Save(context.Background(), q, ""))

	var rec dynamoQuote
	require.NoError(t, attributevalue.UnmarshalMap(fake.items["q-attrs"], &rec))
	require.Equal(t, q.Total.String(), rec.Total)
	require.Len(t, rec.Items, 4)
	require.Equal(t, "29.5", rec.Items[2].Price)
	require.Equal(t, "heater_stone_package", rec.Items[2].TagKind)
	require.Equal(t, "10", rec.CampaignValue)
	require.Empty(t, rec.ExternalRef)
}
