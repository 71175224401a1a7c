package awsx

import (
	"testing"

	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/civichealth/interviewrelay/internal/interview"
)

func TestBuildUpdateExpression(t *testing.T) {
	attempts := 3
	expr, values := buildUpdateExpression(interview.RecordUpdate{
		Status:                  interview.StatusExtractionSubmitted,
		AudioExtractionAttempts: &attempts,
	})
	if expr != "SET processing_status = :status, audio_extraction_attempts = :aea" {
		t.Errorf("expr = %q", expr)
	}
	status, ok := values[":status"].(*ddbtypes.AttributeValueMemberS)
	if !ok || status.Value != string(interview.StatusExtractionSubmitted) {
		t.Errorf(":status = %#v", values[":status"])
	}
	aea, ok := values[":aea"].(*ddbtypes.AttributeValueMemberN)
	if !ok || aea.Value != "3" {
		t.Errorf(":aea = %#v", values[":aea"])
	}
}

func TestBuildUpdateExpressionEmpty(t *testing.T) {
	expr, values := buildUpdateExpression(interview.RecordUpdate{})
	if expr != "" || values != nil {
		t.Errorf("expr = %q, values = %v", expr, values)
	}
}
