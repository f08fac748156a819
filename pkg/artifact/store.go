// Package artifact reads the input artifacts of a synthesis request (feature
// model documents, trace tables, preset catalogs) from local files or S3,
// and computes content digests used as memoization keys.
package artifact

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported artifact scheme")
	ErrInvalidURI        = errors.New("invalid artifact uri")
)

// Store reads an artifact by URI
type Store interface {
	Read(ctx context.Context, uri string) ([]byte, error)
}

// Location is a parsed artifact URI
type Location struct {
	Scheme string // "file" or "s3"
	Bucket string
	Path   string
}

// ParseURI splits an artifact URI. Plain paths are treated as local files.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("%w: empty", ErrInvalidURI)
	}
	scheme, rest, found := strings.Cut(uri, "://")
	if !found {
		return Location{Scheme: "file", Path: uri}, nil
	}
	switch scheme {
	case "file":
		return Location{Scheme: "file", Path: rest}, nil
	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return Location{}, fmt.Errorf("%w: %s needs bucket and key", ErrInvalidURI, uri)
		}
		return Location{Scheme: "s3", Bucket: bucket, Path: key}, nil
	default:
		return Location{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// FileStore reads artifacts from the local filesystem. Relative paths are
// resolved against Root when it is set.
type FileStore struct {
	Root string
}

func (f FileStore) Read(ctx context.Context, uri string) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != "file" {
		return nil, fmt.Errorf("%w: file store cannot read %s", ErrUnsupportedScheme, uri)
	}
	path := loc.Path
	if f.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.Root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// S3API is the subset of the S3 client used by S3Store
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads artifacts from s3://bucket/key URIs
type S3Store struct {
	client S3API
}

// NewS3Store wraps an existing client
func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

// NewS3StoreFromEnv builds a client from the default AWS credential chain
func NewS3StoreFromEnv(ctx context.Context) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg)), nil
}

func (s *S3Store) Read(ctx context.Context, uri string) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != "s3" {
		return nil, fmt.Errorf("%w: s3 store cannot read %s", ErrUnsupportedScheme, uri)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Path),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", uri, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", uri, err)
	}
	return data, nil
}

// Router dispatches on URI scheme. The S3 store is created on first use
// unless one was supplied.
type Router struct {
	Files FileStore

	mu sync.Mutex
	s3 Store
}

// NewRouter creates a router over local files rooted at root
func NewRouter(root string) *Router {
	return &Router{Files: FileStore{Root: root}}
}

// WithS3 installs an explicit S3 store
func (r *Router) WithS3(s Store) *Router {
	r.mu.Lock()
	r.s3 = s
	r.mu.Unlock()
	return r
}

func (r *Router) Read(ctx context.Context, uri string) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if loc.Scheme == "file" {
		return r.Files.Read(ctx, uri)
	}

	r.mu.Lock()
	if r.s3 == nil {
		store, err := NewS3StoreFromEnv(ctx)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.s3 = store
	}
	store := r.s3
	r.mu.Unlock()

	return store.Read(ctx, uri)
}

// Digest returns a hex BLAKE2b-256 digest over the given artifact contents.
// Each part is length-prefixed so that part boundaries are significant.
func Digest(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
