package awscloud

import (
	"errors"
	"testing"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/aws/smithy-go"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{"sns authorization", "AuthorizationError", cloud.ErrUnauthorized},
		{"sns invalid parameter", "InvalidParameter", cloud.ErrInvalidParameter},
		{"sqs query protocol", "AWS.SimpleQueueService.NonExistentQueue", cloud.ErrNotFound},
		{"sqs json protocol", "QueueDoesNotExist", cloud.ErrNotFound},
		{"logs missing group", "ResourceNotFoundException", cloud.ErrNotFound},
		{"s3 missing key", "NoSuchKey", cloud.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := &smithy.GenericAPIError{Code: tt.code, Message: "boom"}
			err := classify("op", apiErr)

			if !errors.Is(err, tt.want) {
				t.Errorf("classify(%s) = %v, want %v", tt.code, err, tt.want)
			}
			var got smithy.APIError
			if !errors.As(err, &got) || got.ErrorCode() != tt.code {
				t.Errorf("classify(%s) lost the original API error", tt.code)
			}
		})
	}
}

func TestClassifyUnknownAndNil(t *testing.T) {
	if classify("op", nil) != nil {
		t.Fatal("classify(nil) must be nil")
	}

	err := classify("op", &smithy.GenericAPIError{Code: "Throttling"})
	for _, sentinel := range []error{cloud.ErrNotFound, cloud.ErrUnauthorized, cloud.ErrInvalidParameter} {
		if errors.Is(err, sentinel) {
			t.Errorf("unknown code matched %v", sentinel)
		}
	}

	plain := errors.New("dial tcp: timeout")
	if !errors.Is(classify("op", plain), plain) {
		t.Error("non-API error was not wrapped")
	}
}

func TestParseAuthProvider(t *testing.T) {
	raw := "cognito-idp.us-east-1.amazonaws.com/us-east-1_AbC,cognito-idp.us-east-1.amazonaws.com/us-east-1_AbC:CognitoSignIn:1234-abcd"
	pool, sub, ok := parseAuthProvider(raw)
	if !ok || pool != "us-east-1_AbC" || sub != "1234-abcd" {
		t.Fatalf("parseAuthProvider() = %q, %q, %v", pool, sub, ok)
	}

	for _, bad := range []string{"", "no-comma", "a/b,c:d"} {
		if _, _, ok := parseAuthProvider(bad); ok {
			t.Errorf("parseAuthProvider(%q) accepted", bad)
		}
	}
}
