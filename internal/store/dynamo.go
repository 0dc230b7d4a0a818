package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/quote-engine/internal/discount"
	"github.com/noah-isme/quote-engine/internal/quote"
)

// ExternalRefIndex is the global secondary index on external_ref.
const ExternalRefIndex = "external_ref-index"

// DynamoAPI is the subset of the DynamoDB client used by Dynamo.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Dynamo stores each quote as a single DynamoDB item keyed by id.
//
// Table requirements:
//   - PK: id (string)
//   - GSI external_ref-index on external_ref (string)
type Dynamo struct {
	Client DynamoAPI
	Table  string
}

type dynamoItem struct {
	StepID      string  `dynamodbav:"step_id"`
	StepName    string  `dynamodbav:"step_name"`
	OptionID    string  `dynamodbav:"option_id"`
	Title       string  `dynamodbav:"title"`
	Description string  `dynamodbav:"description,omitempty"`
	Price       string  `dynamodbav:"price"`
	Quantity    string  `dynamodbav:"quantity"`
	VATRate     *string `dynamodbav:"vat_rate,omitempty"`
	TagKind     string  `dynamodbav:"tag_kind,omitempty"`
	Packages    string  `dynamodbav:"tag_packages,omitempty"`
	Resolved    bool    `dynamodbav:"tag_resolved,omitempty"`
	Factor      int     `dynamodbav:"tag_factor,omitempty"`
	BaseOption  string  `dynamodbav:"tag_base_option_id,omitempty"`
}

type dynamoQuote struct {
	ID                  string            `dynamodbav:"id"`
	ExternalRef         string            `dynamodbav:"external_ref,omitempty"`
	ProductID           string            `dynamodbav:"product_id"`
	ProductName         string            `dynamodbav:"product_name"`
	CustomerEmail       string            `dynamodbav:"customer_email"`
	CustomerName        string            `dynamodbav:"customer_name,omitempty"`
	CustomerPhone       string            `dynamodbav:"customer_phone,omitempty"`
	Items               []dynamoItem      `dynamodbav:"items"`
	Subtotal            string            `dynamodbav:"subtotal"`
	Discount            string            `dynamodbav:"discount"`
	DiscountDescription string            `dynamodbav:"discount_description,omitempty"`
	CampaignID          string            `dynamodbav:"campaign_id,omitempty"`
	CampaignName        string            `dynamodbav:"campaign_name,omitempty"`
	CampaignType        string            `dynamodbav:"campaign_type,omitempty"`
	CampaignValue       string            `dynamodbav:"campaign_value,omitempty"`
	Tax                 string            `dynamodbav:"tax"`
	TaxRate             string            `dynamodbav:"tax_rate"`
	Total               string            `dynamodbav:"total"`
	Currency            string            `dynamodbav:"currency"`
	State               string            `dynamodbav:"state"`
	Notes               string            `dynamodbav:"notes,omitempty"`
	CreatedAt           string            `dynamodbav:"created_at"`
	ExpiresAt           string            `dynamodbav:"expires_at,omitempty"`
}

// NewDynamoClient builds a DynamoDB client. A non-empty endpoint targets a
// local DynamoDB with static credentials.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Save writes q, replacing any earlier version.
func (d Dynamo) Save(ctx context.Context, q quote.Quote, externalRef string) error {
	q.ExternalRef = strings.TrimSpace(externalRef)
	if q.ExternalRef != "" {
		if owner, err := d.GetByExternalRef(ctx, q.ExternalRef); err == nil && owner.ID != q.ID {
			return fmt.Errorf("%w: %s", ErrRefTaken, q.ExternalRef)
		}
	}
	av, err := attributevalue.MarshalMap(toDynamo(q))
	if err != nil {
		return fmt.Errorf("store: marshal quote: %w", err)
	}
	if _, err := d.Client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(d.Table), Item: av}); err != nil {
		return fmt.Errorf("store: put quote: %w", err)
	}
	return nil
}

// Get returns the quote with id.
func (d Dynamo) Get(ctx context.Context, id string) (quote.Quote, error) {
	out, err := d.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.Table),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return quote.Quote{}, fmt.Errorf("store: get quote: %w", err)
	}
	if len(out.Item) == 0 {
		return quote.Quote{}, quote.ErrNotFound
	}
	return decodeDynamo(out.Item)
}

// GetByExternalRef returns the quote linked to ref via the external_ref index.
func (d Dynamo) GetByExternalRef(ctx context.Context, ref string) (quote.Quote, error) {
	out, err := d.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.Table),
		IndexName:              aws.String(ExternalRefIndex),
		KeyConditionExpression: aws.String("external_ref = :ref"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ref": &types.AttributeValueMemberS{Value: ref},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return quote.Quote{}, fmt.Errorf("store: query external ref: %w", err)
	}
	if len(out.Items) == 0 {
		return quote.Quote{}, quote.ErrNotFound
	}
	return decodeDynamo(out.Items[0])
}

// Link sets the external reference of a persisted quote and marks it linked.
func (d Dynamo) Link(ctx context.Context, id, externalRef string) error {
	_, err := d.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.Table),
		Key:                 map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConditionExpression: aws.String("attribute_exists(#id) AND #state = :persisted"),
		UpdateExpression:    aws.String("SET #ref = :ref, #state = :linked"),
		ExpressionAttributeNames: map[string]string{
			"#id":    "id",
			"#ref":   "external_ref",
			"#state": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ref":       &types.AttributeValueMemberS{Value: strings.TrimSpace(externalRef)},
			":linked":    &types.AttributeValueMemberS{Value: string(quote.StateLinked)},
			":persisted": &types.AttributeValueMemberS{Value: string(quote.StatePersisted)},
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			if _, getErr := d.Get(ctx, id); getErr != nil {
				return getErr
			}
			return fmt.Errorf("%w: quote %s is not persisted", quote.ErrInvalidTransition, id)
		}
		return fmt.Errorf("store: link quote: %w", err)
	}
	return nil
}

func decodeDynamo(av map[string]types.AttributeValue) (quote.Quote, error) {
	var rec dynamoQuote
	if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
		return quote.Quote{}, fmt.Errorf("store: unmarshal quote: %w", err)
	}
	return fromDynamo(rec)
}

func toDynamo(q quote.Quote) dynamoQuote {
	rec := dynamoQuote{
		ID:                  q.ID,
		ExternalRef:         q.ExternalRef,
		ProductID:           q.ProductID,
		ProductName:         q.ProductName,
		CustomerEmail:       q.Customer.Email,
		CustomerName:        q.Customer.Name,
		CustomerPhone:       q.Customer.Phone,
		Items:               make([]dynamoItem, len(q.Items)),
		Subtotal:            q.Subtotal.String(),
		Discount:            q.Discount.String(),
		DiscountDescription: q.DiscountDescription,
		Tax:                 q.Tax.String(),
		TaxRate:             q.TaxRate.String(),
		Total:               q.Total.String(),
		Currency:            q.Currency,
		State:               string(q.State),
		Notes:               q.Notes,
		CreatedAt:           q.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if q.ExpiresAt != nil {
		rec.ExpiresAt = q.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	if a := q.AppliedDiscount; a != nil {
		rec.CampaignID, rec.CampaignName = a.CampaignID, a.Name
		rec.CampaignType, rec.CampaignValue = string(a.Type), a.Value.String()
	}
	for i, it := range q.Items {
		item := dynamoItem{
			StepID:      it.StepID,
			StepName:    it.StepName,
			OptionID:    it.OptionID,
			Title:       it.Title,
			Description: it.Description,
			Price:       it.Price.String(),
			Quantity:    it.Quantity.String(),
			VATRate:     decimalOrNil(it.VATRate),
			TagKind:     string(it.Tag.Kind),
			Resolved:    it.Tag.Resolved,
			Factor:      it.Tag.Factor,
			BaseOption:  it.Tag.BaseOptionID,
		}
		if !it.Tag.Packages.IsZero() {
			item.Packages = it.Tag.Packages.String()
		}
		rec.Items[i] = item
	}
	return rec
}

func fromDynamo(rec dynamoQuote) (quote.Quote, error) {
	q := quote.Quote{
		ID:                  rec.ID,
		ExternalRef:         rec.ExternalRef,
		ProductID:           rec.ProductID,
		ProductName:         rec.ProductName,
		Customer:            quote.Customer{Email: rec.CustomerEmail, Name: rec.CustomerName, Phone: rec.CustomerPhone},
		Items:               make([]quote.Item, len(rec.Items)),
		DiscountDescription: rec.DiscountDescription,
		Currency:            rec.Currency,
		State:               quote.State(rec.State),
		Notes:               rec.Notes,
	}
	if err := parseDecimals(
		field{rec.Subtotal, &q.Subtotal}, field{rec.Discount, &q.Discount}, field{rec.Tax, &q.Tax},
		field{rec.TaxRate, &q.TaxRate}, field{rec.Total, &q.Total},
	); err != nil {
		return quote.Quote{}, err
	}
	if rec.CampaignType != "" {
		value, err := decimal.NewFromString(rec.CampaignValue)
		if err != nil {
			return quote.Quote{}, fmt.Errorf("store: campaign value: %w", err)
		}
		q.AppliedDiscount = &discount.Applied{
			CampaignID: rec.CampaignID,
			Name:       rec.CampaignName,
			Type:       discount.Type(rec.CampaignType),
			Value:      value,
		}
	}
	created, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("store: created_at: %w", err)
	}
	q.CreatedAt = created
	if rec.ExpiresAt != "" {
		exp, err := time.Parse(time.RFC3339Nano, rec.ExpiresAt)
		if err != nil {
			return quote.Quote{}, fmt.Errorf("store: expires_at: %w", err)
		}
		q.ExpiresAt = &exp
	}
	for i, item := range rec.Items {
		it := quote.Item{
			StepID:      item.StepID,
			StepName:    item.StepName,
			OptionID:    item.OptionID,
			Title:       item.Title,
			Description: item.Description,
			Tag: quote.Tag{
				Kind:         quote.TagKind(item.TagKind),
				Resolved:     item.Resolved,
				Factor:       item.Factor,
				BaseOptionID: item.BaseOption,
			},
		}
		if err := parseDecimals(field{item.Price, &it.Price}, field{item.Quantity, &it.Quantity}); err != nil {
			return quote.Quote{}, err
		}
		if item.Packages != "" {
			if err := parseDecimals(field{item.Packages, &it.Tag.Packages}); err != nil {
				return quote.Quote{}, err
			}
		}
		if item.VATRate != nil {
			rate, err := decimal.NewFromString(*item.VATRate)
			if err != nil {
				return quote.Quote{}, fmt.Errorf("store: vat rate: %w", err)
			}
			it.VATRate = &rate
		}
		q.Items[i] = it
	}
	return q, nil
}
