package awscloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Identity looks up the account the functions run in.
type Identity struct {
	client *sts.Client
}

// AccountID returns the caller's account. Lambda entry points call it once at
// cold start; the account never changes for a running function.
func (i *Identity) AccountID(ctx context.Context) (string, error) {
	out, err := i.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", classify("sts get caller identity", err)
	}
	return aws.ToString(out.Account), nil
}

// Directory resolves author names from a Cognito user pool.
type Directory struct {
	client     *cognitoidentityprovider.Client
	userPoolID string
}

// DisplayName resolves the e-mail address of the user behind a Cognito
// authentication provider string of the form
// "cognito-idp.<region>.amazonaws.com/<pool>,cognito-idp.<region>.amazonaws.com/<pool>:CognitoSignIn:<sub>".
// The pool named in the string wins over the configured one.
func (d *Directory) DisplayName(ctx context.Context, authProvider string) (string, error) {
	poolID, sub, ok := parseAuthProvider(authProvider)
	if !ok {
		return "", fmt.Errorf("cognito display name: %w", cloud.ErrInvalidParameter)
	}
	if poolID == "" {
		poolID = d.userPoolID
	}
	if poolID == "" {
		return "", fmt.Errorf("cognito display name: no user pool: %w", cloud.ErrNotFound)
	}

	out, err := d.client.ListUsers(ctx, &cognitoidentityprovider.ListUsersInput{
		UserPoolId:      aws.String(poolID),
		Filter:          aws.String(fmt.Sprintf("sub = %q", sub)),
		AttributesToGet: []string{"email"},
		Limit:           aws.Int32(1),
	})
	if err != nil {
		return "", classify("cognito list users", err)
	}

	for _, user := range out.Users {
		for _, attr := range user.Attributes {
			if aws.ToString(attr.Name) == "email" {
				return aws.ToString(attr.Value), nil
			}
		}
	}
	return "", fmt.Errorf("cognito display name: %w", cloud.ErrNotFound)
}

func parseAuthProvider(s string) (poolID, sub string, ok bool) {
	provider, signIn, found := strings.Cut(s, ",")
	if !found {
		return "", "", false
	}
	if _, pool, found := strings.Cut(provider, "/"); found {
		poolID = pool
	}
	parts := strings.Split(signIn, ":")
	if len(parts) < 3 || parts[2] == "" {
		return "", "", false
	}
	return poolID, parts[2], true
}
