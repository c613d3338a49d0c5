// Package storage archives live-fetched bundles in S3-compatible object
// storage so a page scraped once can be inspected or restored later.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

const (
	prefix     = "bundles/"
	keyTime    = "20060102T150405Z"
	gzipSuffix = ".json.gz"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Client is the bundle archive. It doubles as a live fetch sink.
type Client struct {
	mc     *minio.Client
	bucket string
}

func NewClient(cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "partscout-bundles"
	}
	return &Client{mc: mc, bucket: bucket}, nil
}

// Init creates the bucket on first start.
func (c *Client) Init(ctx context.Context) error {
	ok, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if ok {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	logger.Info("archive bucket created", "bucket", c.bucket)
	return nil
}

func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.mc.BucketExists(ctx, c.bucket)
	return err == nil
}

func (c *Client) Name() string { return "archive" }

// Archived describes one stored bundle.
type Archived struct {
	Key       string
	PSNumber  string
	FetchedAt time.Time
	Size      int64
}

// BundleKey is bundles/<PS number>/<UTC fetch time>.json.gz, so a lexical
// listing of one part is chronological.
func BundleKey(b *partsdb.Bundle) string {
	at := b.FetchedAt
	if at.IsZero() {
		at = time.Now()
	}
	return path.Join(prefix, b.Part.PSNumber, at.UTC().Format(keyTime)+gzipSuffix)
}

// Store gzips the bundle JSON and tags the object with the part's number
// and appliance type.
func (c *Client) Store(ctx context.Context, b *partsdb.Bundle) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(b); err != nil {
		return fmt.Errorf("encode bundle %s: %w", b.Part.PSNumber, err)
	}
	if err := zw.Close(); err != nil {
		return err
	}

	key := BundleKey(b)
	_, err := c.mc.PutObject(ctx, c.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType:     "application/json",
		ContentEncoding: "gzip",
		UserMetadata: map[string]string{
			"ps-number": b.Part.PSNumber,
			"appliance": b.Part.ApplianceType,
		},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}

	logger.Debug("bundle archived", "key", key, "models", len(b.Models), "annotations", len(b.Annotations))
	return nil
}

// List returns the archived bundles of one part, oldest first.
func (c *Client) List(ctx context.Context, psNumber string) ([]Archived, error) {
	ps := partsdb.NormalizePSNumber(psNumber)

	var out []Archived
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix + ps + "/", Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", ps, obj.Err)
		}
		a, ok := parseKey(obj.Key)
		if !ok {
			continue
		}
		a.Size = obj.Size
		out = append(out, a)
	}

	slices.SortFunc(out, func(x, y Archived) int { return x.FetchedAt.Compare(y.FetchedAt) })
	return out, nil
}

func parseKey(key string) (Archived, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return Archived{}, false
	}
	ps, file, ok := strings.Cut(rest, "/")
	if !ok {
		return Archived{}, false
	}
	stamp, ok := strings.CutSuffix(file, gzipSuffix)
	if !ok {
		return Archived{}, false
	}
	at, err := time.Parse(keyTime, stamp)
	if err != nil {
		return Archived{}, false
	}
	return Archived{Key: key, PSNumber: ps, FetchedAt: at}, true
}

// Latest downloads the newest bundle of a part.
func (c *Client) Latest(ctx context.Context, psNumber string) (*partsdb.Bundle, error) {
	all, err := c.List(ctx, psNumber)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no archived bundle for %s", psNumber)
	}
	return c.Get(ctx, all[len(all)-1].Key)
}

func (c *Client) Get(ctx context.Context, key string) (*partsdb.Bundle, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	return decodeBundle(obj)
}

func decodeBundle(r io.Reader) (*partsdb.Bundle, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	defer zr.Close()

	var b partsdb.Bundle
	if err := json.NewDecoder(zr).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}
