// SPDX-FileCopyrightText: qwqVictor and oss-fe-proxy contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package signer computes AWS SigV4 request signatures for GETs against any
// S3-compatible object store. It is a thin wrapper around aws-sdk-go-v2's
// own signer/v4 implementation rather than a hand-rolled canonicalizer: the
// upstream library already sorts the canonical query string, restricts
// signed headers to whatever is present on the request, and derives the
// signing key chain exactly as the AWS SigV4 specification requires.
package signer

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// EmptyPayloadHash is the SHA-256 hex digest of the empty string. The proxy
// never sends a request body to the object store, so every signed GET uses
// this fixed payload hash rather than UNSIGNED-PAYLOAD. The contract only
// holds as long as no body is ever sent.
const EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Credentials are the access key pair used to sign a request.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Service is always "s3": every supported provider speaks the S3 signing
// dialect regardless of its actual brand.
const Service = "s3"

// Signer signs GET requests against an S3-compatible upstream with SigV4.
type Signer struct {
	inner *v4.Signer
}

// New constructs a Signer.
func New() *Signer {
	return &Signer{inner: v4.NewSigner()}
}

// Sign adds the X-Amz-Content-Sha256, X-Amz-Date and Authorization headers
// to req so it can be sent as-is to the object store. req must not carry a
// body. signTime is normally time.Now(), parameterized for deterministic
// tests.
func (s *Signer) Sign(ctx context.Context, req *http.Request, creds Credentials, region string, signTime time.Time) error {
	req.Header.Set("X-Amz-Content-Sha256", EmptyPayloadHash)

	awsCreds := aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
	}

	return s.inner.SignHTTP(ctx, awsCreds, req, EmptyPayloadHash, Service, region, signTime.UTC())
}
