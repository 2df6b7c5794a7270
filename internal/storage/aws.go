package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/bleepstore/objio/internal/auth"
	"github.com/bleepstore/objio/internal/config"
	"github.com/bleepstore/objio/internal/engine"
	ioerrors "github.com/bleepstore/objio/internal/errors"
	"github.com/bleepstore/objio/internal/request"
)

// S3Manager reads and writes objects in an S3-compatible bucket with
// SigV4-signed requests.
//
// Key mapping:
//
//	Objects:  {prefix}/{objectName}
//
// Requests go to https://{bucket}.s3.{region}.amazonaws.com unless an
// endpoint is configured, in which case path-style addressing is used:
// {endpoint}/{bucket}/{prefix}/{objectName}.
type S3Manager struct {
	*manager

	Bucket string
	Region string
	Prefix string

	endpoint *url.URL
	creds    aws.CredentialsProvider
	now      func() time.Time
}

// NewS3Manager creates an S3Manager. Static keys in cfg take precedence;
// otherwise, when UseDefaultChain is set, credentials are resolved
// through the AWS SDK default chain. Without either, every request fails
// with a configuration error.
func NewS3Manager(ctx context.Context, cfg config.AWSConfig, opts engine.Options) (*S3Manager, error) {
	var creds aws.CredentialsProvider
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		creds = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	case cfg.UseDefaultChain:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		creds = awsCfg.Credentials
	}
	return newS3Manager(cfg, creds, engine.NewHTTPTransport(opts.ConcurrencyCap), opts)
}

func newS3Manager(cfg config.AWSConfig, creds aws.CredentialsProvider, t engine.Transport, opts engine.Options) (*S3Manager, error) {
	m := &S3Manager{
		manager: newManager(config.AWS, t, opts),
		Bucket:  cfg.Bucket,
		Region:  cfg.Region,
		Prefix:  strings.Trim(cfg.Prefix, "/"),
		creds:   creds,
		now:     time.Now,
	}
	if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil || u.Host == "" {
			m.Close()
			return nil, fmt.Errorf("parsing S3 endpoint %q: invalid URL", cfg.Endpoint)
		}
		m.endpoint = u
	}
	return m, nil
}

// address returns the host header value and the unescaped request path
// for objectName.
func (m *S3Manager) address(objectName string) (host, path, scheme string) {
	key := joinKey(m.Prefix, objectName)
	if m.endpoint != nil {
		return m.endpoint.Host, "/" + m.Bucket + "/" + key, m.endpoint.Scheme
	}
	return m.Bucket + ".s3." + m.Region + ".amazonaws.com", "/" + key, "https"
}

// signer returns the SignFunc for one request. Credentials are resolved
// and the request is signed on every attempt, on the engine side.
func (m *S3Manager) signer(method, path, host string, headers []auth.Header, payloadHash string) engine.SignFunc {
	return func(ctx context.Context) ([]auth.Header, error) {
		c, err := m.creds.Retrieve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ioerrors.Config("resolving AWS credentials: %v", err)
		}
		signed := auth.SignS3(method, path, headers, payloadHash, auth.S3Context{
			Region:       m.Region,
			Host:         host,
			Timestamp:    auth.AmzTimestamp(m.now()),
			AccessKey:    c.AccessKeyID,
			SecretKey:    c.SecretAccessKey,
			SessionToken: c.SessionToken,
		})
		if len(signed) == 0 {
			return nil, ioerrors.Config("resolved AWS credentials are empty")
		}
		return signed, nil
	}
}

// configured reports whether requests can be signed at all. It never
// blocks; credential lookups happen at send time.
func (m *S3Manager) configured() bool {
	return m.creds != nil && m.Bucket != ""
}

func (m *S3Manager) read(objectName string, h request.Handler, method string, r request.IORange) *request.Request {
	if !m.configured() {
		return m.failDownload(objectName, h, ioerrors.Config("S3 credentials or destination are not configured"))
	}
	host, path, scheme := m.address(objectName)
	sign := m.signer(method, path, host, rangeHeaders(r), auth.EmptyPayloadHash)
	return m.signedDownload(objectName, h, method, scheme+"://"+host+auth.EscapePath(path), sign)
}

// ReadObjectInfo issues a signed HEAD for objectName.
func (m *S3Manager) ReadObjectInfo(objectName string, h request.Handler) *request.Request {
	return m.read(objectName, h, http.MethodHead, request.IORange{})
}

// ReadObject issues a signed GET for objectName, ranged when r selects
// part of the object.
func (m *S3Manager) ReadObject(objectName string, h request.Handler, r request.IORange) *request.Request {
	return m.read(objectName, h, http.MethodGet, r)
}

// WriteObject issues a signed PUT with the payload hash, content headers
// and x-amz-meta-* metadata.
func (m *S3Manager) WriteObject(objectName, contentDispositionFilename, contentType string, metadata []Metadata, data [][]byte, done request.CompletionFunc) *request.Request {
	if !m.configured() {
		return m.failUpload(objectName, done, ioerrors.Config("S3 credentials or destination are not configured"))
	}
	host, path, scheme := m.address(objectName)

	headers := []auth.Header{
		{Name: "content-type", Value: detectContentType(contentType, data)},
		{Name: "content-length", Value: strconv.FormatInt(totalSize(data), 10)},
		{Name: "expect", Value: "100-continue"},
	}
	if cd := contentDisposition(contentDispositionFilename); cd != "" {
		headers = append(headers, auth.Header{Name: "content-disposition", Value: cd})
	}
	for _, md := range metadata {
		headers = append(headers, auth.Header{Name: "x-amz-meta-" + strings.ToLower(md.Key), Value: md.Value})
	}

	sign := m.signer(http.MethodPut, path, host, headers, auth.HashPayload(data))
	return m.signedUpload(objectName, done, scheme+"://"+host+auth.EscapePath(path), sign, data)
}

var _ IOManager = (*S3Manager)(nil)
