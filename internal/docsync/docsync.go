// Package docsync pulls a published release of the localized welcome
// documents from S3 into the project root.
//
// The current release id lives in an SSM parameter. A release is a
// manifest at {prefix}/{release}/manifest.json listing each file with its
// sha256, an optional detached signature at manifest.json.sig, and the
// files themselves under {prefix}/{release}/. Every file is downloaded and
// checked before any of them is written.
package docsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/markdown"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/xerrors"
)

const (
	MaxFileBytes     = 1 << 20
	maxManifestBytes = 64 << 10
	maxSignature     = 4 << 10
	maxFiles         = 256

	ManifestName = "manifest.json"
	SignatureExt = ".sig"
)

var (
	tracer = otel.Tracer("linnemanlabs/docsync")

	releasePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	namePattern    = regexp.MustCompile(`^chainlit_[A-Za-z0-9_-]{1,64}\.md$`)

	ErrUnsigned = errors.New("release manifest is not signed")
)

// SSMAPI and S3API are the parts of the AWS clients the syncer calls.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Options struct {
	Logger log.Logger

	// SSMParam holds the current release id.
	SSMParam string
	Bucket   string
	Prefix   string
	// Root is where the documents are written.
	Root string

	// Verifier, when set, makes the manifest signature mandatory.
	Verifier cryptoutil.Verifier

	// Clients default to ones built from AWSConfig, or the default AWS
	// config chain when that is nil too.
	SSM       SSMAPI
	S3        S3API
	AWSConfig *aws.Config

	// OnSync reports each run: result is "success" or "error".
	OnSync func(result, release string, files int, took time.Duration)
}

type Manifest struct {
	Release string `json:"release"`
	Files   []File `json:"files"`
}

type File struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
}

type Result struct {
	Release string
	// Files are the names written into Root.
	Files []string
}

type Syncer struct {
	opts   Options
	ssm    SSMAPI
	s3     S3API
	logger log.Logger
}

func New(ctx context.Context, opts Options) (*Syncer, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("docsync: SSMParam is required")
	}
	if opts.Bucket == "" {
		return nil, xerrors.New("docsync: Bucket is required")
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	opts.Prefix = strings.Trim(opts.Prefix, "/")

	s := &Syncer{opts: opts, ssm: opts.SSM, s3: opts.S3, logger: opts.Logger}
	if s.ssm == nil || s.s3 == nil {
		var awsCfg aws.Config
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			if awsCfg, err = config.LoadDefaultConfig(ctx); err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		if s.ssm == nil {
			s.ssm = ssm.NewFromConfig(awsCfg)
		}
		if s.s3 == nil {
			s.s3 = s3.NewFromConfig(awsCfg)
		}
	}
	return s, nil
}

// CurrentRelease reads the release id from SSM.
func (s *Syncer) CurrentRelease(ctx context.Context) (string, error) {
	out, err := s.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", s.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", s.opts.SSMParam)
	}
	release := strings.TrimSpace(*out.Parameter.Value)
	if !ValidRelease(release) {
		return "", xerrors.Newf("SSM parameter %s holds invalid release id %q", s.opts.SSMParam, release)
	}
	return release, nil
}

// Sync installs the release currently named in SSM.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	start := time.Now()
	release, err := s.CurrentRelease(ctx)
	if err != nil {
		s.report("error", "", 0, start)
		return Result{}, err
	}
	return s.syncRelease(ctx, release, start)
}

// SyncRelease installs a specific release.
func (s *Syncer) SyncRelease(ctx context.Context, release string) (Result, error) {
	return s.syncRelease(ctx, release, time.Now())
}

func (s *Syncer) syncRelease(ctx context.Context, release string, start time.Time) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "docsync.Sync", trace.WithAttributes(
		attribute.String("docsync.release", release),
		attribute.String("docsync.bucket", s.opts.Bucket),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			s.report("error", release, 0, start)
			return
		}
		s.report("success", release, len(res.Files), start)
	}()

	if !ValidRelease(release) {
		return Result{}, xerrors.Newf("invalid release id %q", release)
	}

	m, err := s.manifest(ctx, release)
	if err != nil {
		return Result{}, err
	}

	contents := make([][]byte, len(m.Files))
	for i, f := range m.Files {
		b, err := s.fetch(ctx, s.key(release, f.Name), MaxFileBytes)
		if err != nil {
			return Result{}, err
		}
		if got := cryptoutil.SHA256Hex(b); !cryptoutil.HashEqual(got, f.SHA256) {
			return Result{}, xerrors.Newf("checksum mismatch for %s: manifest %s, got %s", f.Name, f.SHA256, got)
		}
		contents[i] = b
	}

	// every file is staged before any is renamed into place
	staged := make([]stagedFile, 0, len(m.Files))
	defer func() {
		for _, f := range staged {
			_ = os.Remove(f.tmp)
		}
	}()
	for i, f := range m.Files {
		sf, err := s.stage(f.Name, contents[i])
		if err != nil {
			return Result{}, err
		}
		staged = append(staged, sf)
	}

	res.Release = release
	for i, sf := range staged {
		if err := os.Rename(sf.tmp, sf.dest); err != nil {
			return res, xerrors.Wrapf(err, "rename into %s", sf.dest)
		}
		res.Files = append(res.Files, m.Files[i].Name)
	}

	s.logger.Info(ctx, "synced markdown release",
		"release", release,
		"files", len(res.Files),
		"root", s.opts.Root,
	)
	return res, nil
}

func (s *Syncer) report(result, release string, files int, start time.Time) {
	if s.opts.OnSync != nil {
		s.opts.OnSync(result, release, files, time.Since(start))
	}
}

func (s *Syncer) key(release, name string) string {
	if s.opts.Prefix == "" {
		return path.Join(release, name)
	}
	return path.Join(s.opts.Prefix, release, name)
}

func (s *Syncer) manifest(ctx context.Context, release string) (*Manifest, error) {
	key := s.key(release, ManifestName)
	raw, err := s.fetch(ctx, key, maxManifestBytes)
	if err != nil {
		return nil, err
	}

	if s.opts.Verifier != nil {
		sig, err := s.fetch(ctx, key+SignatureExt, maxSignature)
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, xerrors.Wrapf(ErrUnsigned, "s3://%s/%s", s.opts.Bucket, key)
		}
		if err != nil {
			return nil, err
		}
		if err := s.opts.Verifier.VerifySignature(ctx, raw, sig); err != nil {
			return nil, xerrors.Wrapf(err, "verify manifest signature for release %s", release)
		}
		s.logger.Debug(ctx, "manifest signature verified", "release", release)
	}

	m, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}
	if m.Release != release {
		return nil, xerrors.Newf("manifest names release %q, expected %q", m.Release, release)
	}
	return m, nil
}

// fetch reads an object, failing if it is larger than limit.
func (s *Syncer) fetch(ctx context.Context, key string, limit int64) ([]byte, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get s3://%s/%s", s.opts.Bucket, key)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read s3://%s/%s", s.opts.Bucket, key)
	}
	if int64(len(b)) > limit {
		return nil, xerrors.Newf("s3://%s/%s exceeds %d bytes", s.opts.Bucket, key, limit)
	}
	return b, nil
}

type stagedFile struct {
	tmp, dest string
}

// stage writes data to a temp file in root, ready to be renamed over
// root/name. dest must be absent or a regular file.
func (s *Syncer) stage(name string, data []byte) (stagedFile, error) {
	root := s.opts.Root
	dest := filepath.Join(root, name)
	if !pathutil.IsPathInside(dest, root) {
		return stagedFile{}, xerrors.Newf("refusing to write %s outside %s", dest, root)
	}
	if fi, err := os.Lstat(dest); err == nil && !fi.Mode().IsRegular() {
		return stagedFile{}, xerrors.Newf("refusing to replace %s: not a regular file", dest)
	}

	tmp, err := os.CreateTemp(root, ".docsync-*.tmp")
	if err != nil {
		return stagedFile{}, xerrors.Wrapf(err, "create temp file in %s", root)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return stagedFile{}, xerrors.Wrapf(err, "write %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return stagedFile{}, xerrors.Wrapf(err, "close %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return stagedFile{}, xerrors.Wrapf(err, "chmod %s", tmpPath)
	}
	ok = true
	return stagedFile{tmp: tmpPath, dest: dest}, nil
}

// ParseManifest decodes and validates a manifest. Unknown fields are
// rejected.
func ParseManifest(raw []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, xerrors.Wrap(err, "decode manifest")
	}
	if len(m.Files) == 0 {
		return nil, xerrors.New("manifest lists no files")
	}
	if len(m.Files) > maxFiles {
		return nil, xerrors.Newf("manifest lists %d files, limit is %d", len(m.Files), maxFiles)
	}

	seen := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		if !ValidName(f.Name) {
			return nil, xerrors.Newf("manifest file name %q is not a markdown document name", f.Name)
		}
		if seen[f.Name] {
			return nil, xerrors.Newf("manifest lists %s twice", f.Name)
		}
		seen[f.Name] = true
		if !cryptoutil.ValidSHA256Hex(f.SHA256) {
			return nil, xerrors.Newf("manifest sha256 for %s is malformed", f.Name)
		}
	}
	return &m, nil
}

// ValidName accepts chainlit.md and chainlit_<tag>.md.
func ValidName(name string) bool {
	if pathutil.HasDotSegments(name) {
		return false
	}
	return name == markdown.DefaultFile || namePattern.MatchString(name)
}

func ValidRelease(id string) bool {
	return releasePattern.MatchString(id) && !strings.Contains(id, "..")
}
