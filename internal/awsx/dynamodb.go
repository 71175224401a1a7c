package awsx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/civichealth/interviewrelay/internal/interview"
)

// DynamoStatusStore keeps one item per tracked file, keyed by the original
// object key. Creation is guarded by a conditional put so concurrent
// ingestion runs cannot overwrite each other.
type DynamoStatusStore struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoStatusStore(client *dynamodb.Client, table string) *DynamoStatusStore {
	return &DynamoStatusStore{client: client, table: table}
}

func (s *DynamoStatusStore) Create(ctx context.Context, rec interview.FileRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling record %s: %w", rec.Key, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: %s", interview.ErrDuplicateKey, rec.Key)
		}
		return fmt.Errorf("creating record %s: %w", rec.Key, err)
	}
	return nil
}

func (s *DynamoStatusStore) Get(ctx context.Context, key string) (interview.FileRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       recordKey(key),
	})
	if err != nil {
		return interview.FileRecord{}, fmt.Errorf("getting record %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return interview.FileRecord{}, fmt.Errorf("%w: %s", interview.ErrNotFound, key)
	}
	var rec interview.FileRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return interview.FileRecord{}, fmt.Errorf("unmarshaling record %s: %w", key, err)
	}
	return rec, nil
}

func (s *DynamoStatusStore) Update(ctx context.Context, key string, update interview.RecordUpdate) error {
	expr, values := buildUpdateExpression(update)
	if expr == "" {
		return nil
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       recordKey(key),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: %s", interview.ErrNotFound, key)
		}
		return fmt.Errorf("updating record %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStatusStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 recordKey(key),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: %s", interview.ErrNotFound, key)
		}
		return fmt.Errorf("deleting record %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStatusStore) Scan(ctx context.Context, statuses ...interview.ProcessingStatus) ([]interview.FileRecord, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.table)}
	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		values := map[string]ddbtypes.AttributeValue{}
		for i, status := range statuses {
			name := fmt.Sprintf(":s%d", i)
			placeholders = append(placeholders, name)
			values[name] = &ddbtypes.AttributeValueMemberS{Value: string(status)}
		}
		input.FilterExpression = aws.String("processing_status IN (" + strings.Join(placeholders, ", ") + ")")
		input.ExpressionAttributeValues = values
	}

	var out []interview.FileRecord
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.table, err)
		}
		var records []interview.FileRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &records); err != nil {
			return nil, fmt.Errorf("unmarshaling scan page of %s: %w", s.table, err)
		}
		out = append(out, records...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func recordKey(key string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"id": &ddbtypes.AttributeValueMemberS{Value: key},
	}
}

func buildUpdateExpression(update interview.RecordUpdate) (string, map[string]ddbtypes.AttributeValue) {
	var clauses []string
	values := map[string]ddbtypes.AttributeValue{}
	if update.Status != "" {
		clauses = append(clauses, "processing_status = :status")
		values[":status"] = &ddbtypes.AttributeValueMemberS{Value: string(update.Status)}
	}
	if update.AudioExtractionAttempts != nil {
		clauses = append(clauses, "audio_extraction_attempts = :aea")
		values[":aea"] = &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", *update.AudioExtractionAttempts)}
	}
	if update.SDHSTransferAttempts != nil {
		clauses = append(clauses, "sdhs_transfer_attempts = :sta")
		values[":sta"] = &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", *update.SDHSTransferAttempts)}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "SET " + strings.Join(clauses, ", "), values
}

// DynamoAuditStore is the archive table the cleaner copies records into.
type DynamoAuditStore struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoAuditStore(client *dynamodb.Client, table string) *DynamoAuditStore {
	return &DynamoAuditStore{client: client, table: table}
}

func (s *DynamoAuditStore) Archive(ctx context.Context, rec interview.FileRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling archived record %s: %w", rec.Key, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: %s", interview.ErrDuplicateArchive, rec.Key)
		}
		return fmt.Errorf("archiving record %s: %w", rec.Key, err)
	}
	return nil
}

// DynamoProjectStore reads the project metadata table maintained by the
// research operations tooling.
type DynamoProjectStore struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoProjectStore(client *dynamodb.Client, table string) *DynamoProjectStore {
	return &DynamoProjectStore{client: client, table: table}
}

func (s *DynamoProjectStore) ActiveProjects(ctx context.Context) ([]interview.Project, error) {
	var out []interview.Project
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.table, err)
		}
		var projects []interview.Project
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &projects); err != nil {
			return nil, fmt.Errorf("unmarshaling scan page of %s: %w", s.table, err)
		}
		for _, p := range projects {
			if p.Active() {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Acronym < out[j].Acronym })
	return out, nil
}
