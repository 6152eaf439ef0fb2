package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vj-go/internal/config"
	"vj-go/internal/model"
	"vj-go/internal/vj"
)

const (
	s3LinkTTL          = 4 * time.Hour
	clientModifiedMeta = "client-modified"
)

// S3API is the subset of *s3.Client used by S3Remote.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Presigner is the subset of *s3.PresignClient used by S3Remote.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Remote is a vj.RemoteStore backed by an S3 bucket (or any S3-compatible
// service). Remote paths map to keys under prefix; "/" delimits folders.
// Temporary links are presigned GET URLs. Uploads go through the multipart
// upload manager and record client_modified as object metadata.
type S3Remote struct {
	name      string
	bucket    string
	prefix    string
	client    S3API
	presigner S3Presigner
	uploader  *manager.Uploader

	// Keys are case-sensitive but callers address files by path_lower.
	mu   sync.RWMutex
	keys map[string]string
}

// NewS3Remote creates a remote over an existing client.
func NewS3Remote(name, bucket, prefix string, client S3API, presigner S3Presigner) *S3Remote {
	return &S3Remote{
		name:      name,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		client:    client,
		presigner: presigner,
		uploader:  manager.NewUploader(client),
		keys:      make(map[string]string),
	}
}

// NewS3RemoteFromConfig loads AWS configuration (static keys when configured,
// otherwise the default credential chain) and builds an S3Remote.
func NewS3RemoteFromConfig(ctx context.Context, cfg config.RemoteConfig) (*S3Remote, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})
	return NewS3Remote(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client, s3.NewPresignClient(client)), nil
}

// ListFiles lists the immediate children of folder.
func (r *S3Remote) ListFiles(ctx context.Context, folder string) ([]model.RemoteEntry, error) {
	folderKey := r.key(folder)
	listPrefix := ""
	if folderKey != "" {
		listPrefix = folderKey + "/"
	}

	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
	})

	var entries []model.RemoteEntry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", r.bucket, listPrefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			key := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			entries = append(entries, r.entry(key, model.EntryFolder))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == listPrefix || strings.HasSuffix(key, "/") {
				continue
			}
			entry := r.entry(key, model.EntryFile)
			entry.Rev = strings.Trim(aws.ToString(obj.ETag), `"`)
			entry.Size = aws.ToInt64(obj.Size)
			if obj.LastModified != nil {
				entry.ServerModified = obj.LastModified.UTC().Format(time.RFC3339)
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// DownloadLink presigns a GET for the object at p.
func (r *S3Remote) DownloadLink(ctx context.Context, p string) (string, error) {
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.resolve(p)),
	}, s3.WithPresignExpires(s3LinkTTL))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", p, err)
	}
	if req == nil || req.URL == "" {
		return "", fmt.Errorf("%s: %w", p, vj.ErrNoTemporaryLink)
	}
	return req.URL, nil
}

// UploadFile uploads the local file to remotePath, overwriting any existing object.
func (r *S3Remote) UploadFile(ctx context.Context, localPath, remotePath string, modified *time.Time) (*model.UploadResult, error) {
	remotePath = vj.SanitizeRemotePath(remotePath)
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	key := r.resolve(remotePath)
	input := &s3.PutObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if modified != nil {
		input.Metadata = map[string]string{clientModifiedMeta: modified.UTC().Format(time.RFC3339)}
	}
	if _, err := r.uploader.Upload(ctx, input); err != nil {
		return nil, fmt.Errorf("uploading s3://%s/%s: %w", r.bucket, key, err)
	}

	head, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("reading uploaded object: %w", err)
	}

	entry := r.entry(key, model.EntryFile)
	res := &model.UploadResult{
		ID:        entry.ID,
		Rev:       strings.Trim(aws.ToString(head.ETag), `"`),
		Name:      entry.Name,
		PathLower: entry.PathLower,
	}
	if head.LastModified != nil {
		res.ServerModified = head.LastModified.UTC().Format(time.RFC3339)
	}
	return res, nil
}

// key maps a remote path to an object key without leading or trailing slashes.
func (r *S3Remote) key(p string) string {
	rel := strings.TrimPrefix(cleanRemote(p), "/")
	switch {
	case r.prefix == "":
		return rel
	case rel == "":
		return r.prefix
	default:
		return r.prefix + "/" + rel
	}
}

// resolve returns the real key for p, using the case recorded by listings.
func (r *S3Remote) resolve(p string) string {
	k := r.key(p)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if real, ok := r.keys[strings.ToLower(k)]; ok {
		return real
	}
	return k
}

// entry builds a RemoteEntry for an object key and remembers its case.
func (r *S3Remote) entry(key, tag string) model.RemoteEntry {
	r.mu.Lock()
	r.keys[strings.ToLower(key)] = key
	r.mu.Unlock()

	display := "/" + strings.TrimPrefix(strings.TrimPrefix(key, r.prefix), "/")
	lower := strings.ToLower(display)
	sum := sha256.Sum256([]byte(r.bucket + ":" + strings.ToLower(key)))
	return model.RemoteEntry{
		Tag:         tag,
		ID:          "id:" + hex.EncodeToString(sum[:8]),
		Name:        path.Base(display),
		PathLower:   lower,
		PathDisplay: display,
	}
}

// Compile-time check that S3Remote implements vj.RemoteStore
var _ vj.RemoteStore = (*S3Remote)(nil)
