package metadata

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/admitly/admissions/pkg/options"
)

// Source produces an option catalog.
type Source interface {
	Name() string
	Load(ctx context.Context) (options.Catalog, error)
}

// Fetcher is the CRM call backing the crm source.
type Fetcher interface {
	Metadata(ctx context.Context) (options.Catalog, error)
}

type crmSource struct {
	f Fetcher
}

// CRM returns a source that asks the CRM metadata method.
func CRM(f Fetcher) Source {
	return crmSource{f: f}
}

func (s crmSource) Name() string { return "crm" }

func (s crmSource) Load(ctx context.Context) (options.Catalog, error) {
	return s.f.Metadata(ctx)
}

//go:embed defaults.json
var defaultsJSON []byte

type embeddedSource struct{}

// Embedded returns the defaults bundled with the binary.
func Embedded() Source {
	return embeddedSource{}
}

func (embeddedSource) Name() string { return "embedded" }

func (embeddedSource) Load(context.Context) (options.Catalog, error) {
	return options.ParseCatalog(defaultsJSON)
}

// Defaults returns the bundled catalog. The document is part of the binary,
// so a parse failure is a build defect.
func Defaults() options.Catalog {
	c, err := options.ParseCatalog(defaultsJSON)
	if err != nil {
		panic(fmt.Sprintf("metadata: bundled defaults: %v", err))
	}
	return c
}

// ObjectGetter is the part of the S3 client the s3 source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a defaults document from object storage.
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string
}

// NewS3Source returns a source reading bucket/key through client.
func NewS3Source(client ObjectGetter, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// Name implements Source.
func (s *S3Source) Name() string { return "s3" }

// Load implements Source.
func (s *S3Source) Load(ctx context.Context) (options.Catalog, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(out.Body, 8<<20)); err != nil {
		return nil, fmt.Errorf("s3 read %s/%s: %w", s.bucket, s.key, err)
	}
	return options.ParseCatalog(buf.Bytes())
}
