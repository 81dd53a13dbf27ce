package markdown

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/pathutil"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/xerrors"
)

var tracer = otel.Tracer("linnemanlabs/markdown")

type Options struct {
	// Root is the project directory; empty means the working directory.
	Root   string
	Logger log.Logger

	// OnResolve is called after every Get with the selected tier and
	// whether a document was returned.
	OnResolve func(tier Tier, found bool)
	// OnCreate is called when Init writes the default document.
	OnCreate func()
}

// Resolver is safe for concurrent use; it holds no mutable state.
type Resolver struct {
	root      string
	logger    log.Logger
	onResolve func(Tier, bool)
	onCreate  func()
}

func New(opts Options) *Resolver {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Resolver{
		root:      opts.Root,
		logger:    opts.Logger,
		onResolve: opts.OnResolve,
		onCreate:  opts.OnCreate,
	}
}

func (r *Resolver) Root() string { return r.root }

// DefaultPath is root/chainlit.md.
func (r *Resolver) DefaultPath() string { return filepath.Join(r.root, DefaultFile) }

// Init writes DefaultMarkdown to the default path unless something already
// exists there. It reports whether it created the file.
//
// The content goes to a temp file in root which is then hard-linked into
// place, so a concurrent reader never sees a partial file and a concurrent
// Init that loses the race leaves the winner's file alone.
func (r *Resolver) Init(ctx context.Context) (bool, error) {
	path := r.DefaultPath()

	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, xerrors.Wrapf(err, "stat %s", path)
	}

	created, err := publish(r.root, path, []byte(DefaultMarkdown))
	if err != nil {
		return false, err
	}
	if !created {
		r.logger.Debug(ctx, "default markdown file appeared concurrently", "path", path)
		return false, nil
	}

	r.logger.Info(ctx, "created default chainlit markdown file", "path", path)
	if r.onCreate != nil {
		r.onCreate()
	}
	return true, nil
}

func publish(dir, path string, data []byte) (bool, error) {
	tmp, err := os.CreateTemp(dir, ".chainlit-*.md.tmp")
	if err != nil {
		return false, xerrors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, xerrors.Wrapf(err, "write %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return false, xerrors.Wrapf(err, "close %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return false, xerrors.Wrapf(err, "chmod %s", tmpPath)
	}

	err = os.Link(tmpPath, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}

	// some filesystems refuse hard links; exclusive create still keeps
	// the first writer's file
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Wrapf(err, "create %s", path)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, xerrors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return false, xerrors.Wrapf(err, "close %s", path)
	}
	return true, nil
}

// Select picks the candidate Get would read, without reading it. The
// default candidate is returned when neither language file qualifies, even
// if it does not exist.
func (r *Resolver) Select(ctx context.Context, language string) Candidate {
	cands := Candidates(r.root, language)
	general := GeneralLanguage(language)

	for _, c := range cands[:2] {
		// containment first: never stat a name that points outside root
		if !pathutil.IsPathInside(c.Path, r.root) {
			r.logger.Debug(ctx, "ignoring language file outside project root",
				"language", language,
				"path", c.Path,
			)
			continue
		}
		if !isFile(c.Path) {
			continue
		}
		if c.Tier == TierGeneral {
			r.logger.Info(ctx, "specific language file not found, using general version",
				"language", language,
				"general_language", general,
			)
		}
		return c
	}

	r.logger.Warn(ctx, "language-specific markdown file not found, defaulting to chainlit.md",
		"language", language,
		"general_language", general,
	)
	return cands[2]
}

// Get resolves and reads the document for language. ok is false only when
// the selected candidate, and therefore the default, does not exist.
func (r *Resolver) Get(ctx context.Context, language string) (doc Document, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "markdown.Get",
		trace.WithAttributes(attribute.String("markdown.language", language)),
	)
	defer span.End()

	c := r.Select(ctx, language)
	span.SetAttributes(attribute.String("markdown.tier", c.Tier.String()))

	defer func() {
		if err == nil && r.onResolve != nil {
			r.onResolve(c.Tier, ok)
		}
	}()

	if !isFile(c.Path) {
		return Document{}, false, nil
	}

	b, err := os.ReadFile(c.Path)
	if err != nil {
		span.RecordError(err)
		return Document{}, false, xerrors.Wrapf(err, "read %s", c.Path)
	}
	return Document{Content: string(b), Path: c.Path, Tier: c.Tier}, true, nil
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// InitMarkdown bootstraps root with a Resolver that logs to the logger in ctx.
func InitMarkdown(ctx context.Context, root string) error {
	_, err := New(Options{Root: root, Logger: log.FromContext(ctx)}).Init(ctx)
	return err
}

// GetMarkdownStr returns the document content for language under root, with
// ok false when there is none.
func GetMarkdownStr(ctx context.Context, root, language string) (string, bool, error) {
	doc, ok, err := New(Options{Root: root, Logger: log.FromContext(ctx)}).Get(ctx, language)
	return doc.Content, ok, err
}
