package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/a-h/pkgpipe/cmd/globals"
	"github.com/a-h/pkgpipe/ident"
	"github.com/a-h/pkgpipe/metrics"
	"github.com/a-h/pkgpipe/objectstore"
	"github.com/a-h/pkgpipe/orchestrator"
	"github.com/a-h/pkgpipe/registrydb"
	"github.com/a-h/pkgpipe/store"
)

type CLI struct {
	globals.Globals
	Version VersionCmd    `cmd:"" help:"Show version information"`
	Publish PublishCmd    `cmd:"" help:"Ingest an uploaded tarball and run it through the publish pipeline"`
	Resume  ResumeCmd     `cmd:"" help:"Resume a publish task that did not reach a terminal state"`
	Yank    YankCmd       `cmd:"" help:"Mark a published version as yanked"`
	Unyank  UnyankCmd     `cmd:"" help:"Clear a version's yanked flag"`
	Rebuild RebuildNpmCmd `cmd:"" help:"Rebuild the npm-compat tarball for an already published version"`
}

var Version = "dev"

type VersionCmd struct{}

func (cmd *VersionCmd) Run(globals *globals.Globals) error {
	fmt.Printf("%s", Version)
	return nil
}

// S3Flags mirrors the teacher's embeddable S3 connection flags.
type S3Flags struct {
	Bucket          string `help:"S3 bucket name (required when storage-type=s3)" env:"PKGPIPE_S3_BUCKET"`
	Region          string `help:"S3 region" default:"us-east-1" env:"PKGPIPE_S3_REGION"`
	Endpoint        string `help:"S3 endpoint URL (for MinIO/custom endpoints)" env:"PKGPIPE_S3_ENDPOINT"`
	AccessKeyID     string `help:"S3 access key ID (uses IAM role if not set)" env:"PKGPIPE_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `help:"S3 secret access key (uses IAM role if not set)" env:"PKGPIPE_S3_SECRET_ACCESS_KEY"`
	ForcePathStyle  bool   `help:"Use path-style S3 URLs (required for MinIO)" env:"PKGPIPE_S3_FORCE_PATH_STYLE"`
}

// StoreFlags are the database/object-store connection flags shared by
// every subcommand that touches persistent state.
type StoreFlags struct {
	DatabaseType              string  `help:"Choice of database (sqlite, rqlite or postgres)" default:"sqlite" enum:"sqlite,rqlite,postgres" env:"PKGPIPE_DATABASE_TYPE"`
	DatabaseURL               string  `help:"Database connection URL" default:"" env:"PKGPIPE_DATABASE_URL"`
	StorePath                 string  `help:"Path to file store (storage-type=fs)" default:"" env:"PKGPIPE_STORE_PATH"`
	StorageType               string  `help:"Object storage backend (fs or s3)" default:"fs" enum:"fs,s3" env:"PKGPIPE_STORAGE_TYPE"`
	S3                        S3Flags `embed:"" prefix:"s3-"`
	MetricsListenAddr         string  `help:"Address for the metrics endpoint" default:":9090" env:"PKGPIPE_METRICS_LISTEN_ADDR"`
	EcosystemScope            string  `help:"Ecosystem scope prefix used for npm-compat mapped names" default:"jsr" env:"PKGPIPE_ECOSYSTEM_SCOPE"`
	RegistryBaseURL           string  `help:"Public base URL the registry is served from" default:"https://jsr.io" env:"PKGPIPE_REGISTRY_BASE_URL"`
	MaxPublishAttemptsPerWeek int     `help:"Rolling 7-day publish-attempt cap per scope (0 disables)" default:"0" env:"PKGPIPE_MAX_PUBLISH_ATTEMPTS_PER_WEEK"`
	UploadConcurrency         int     `help:"Bound on in-flight object-store uploads per publish" default:"0" env:"PKGPIPE_UPLOAD_CONCURRENCY"`
}

func (f *StoreFlags) databaseURL() string {
	if f.DatabaseURL != "" {
		return f.DatabaseURL
	}
	return fmt.Sprintf("file:%s?cache=shared&mode=rwc&_busy_timeout=5000&_txlock=immediate&_journal_mode=DELETE", filepath.Join(f.StorePath, "pkgpipe.db"))
}

func (f *StoreFlags) buildObjectStore(ctx context.Context) (objectstore.Store, error) {
	switch f.StorageType {
	case "s3":
		if f.S3.Bucket == "" {
			return nil, fmt.Errorf("--s3-bucket must also be set when --storage-type=s3")
		}
		return objectstore.NewS3(ctx, objectstore.S3Config{
			Bucket:          f.S3.Bucket,
			Region:          f.S3.Region,
			Endpoint:        f.S3.Endpoint,
			AccessKeyID:     f.S3.AccessKeyID,
			SecretAccessKey: f.S3.SecretAccessKey,
			ForcePathStyle:  f.S3.ForcePathStyle,
		})
	case "fs":
		if f.StorePath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			f.StorePath = filepath.Join(home, "pkgpipe-store")
		}
		if err := os.MkdirAll(f.StorePath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		return objectstore.NewFileSystem(filepath.Join(f.StorePath, "objects")), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %q - expected 'fs' or 's3'", f.StorageType)
	}
}

// buildOrchestrator wires a store, object store and metrics exporter into
// an Orchestrator, the way ServeCmd.Run wires depot's storage/routes.
func (f *StoreFlags) buildOrchestrator(ctx context.Context, log *slog.Logger) (o *orchestrator.Orchestrator, objects objectstore.Store, closer func() error, err error) {
	kvStore, closer, err := store.New(ctx, f.DatabaseType, f.databaseURL())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	objects, err = f.buildObjectStore(ctx)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}

	m, err := metrics.New()
	if err != nil {
		closer()
		return nil, nil, nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	go func() {
		if err := metrics.ListenAndServe(f.MetricsListenAddr); err != nil {
			log.Error("metrics server exited", slog.String("addr", f.MetricsListenAddr), slog.String("error", err.Error()))
		}
	}()

	db := registrydb.New(kvStore)
	o = orchestrator.New(db, objects, orchestrator.Config{
		MaxPublishAttemptsPerWeek: f.MaxPublishAttemptsPerWeek,
		UploadConcurrency:         f.UploadConcurrency,
		EcosystemScope:            f.EcosystemScope,
		RegistryBaseURL:           f.RegistryBaseURL,
	}, log).WithMetrics(m)
	return o, objects, closer, nil
}

func newLogger(verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// packageArgs are the identifying triple every subcommand below an
// already-created task operates on.
type packageArgs struct {
	Scope   string `arg:"" help:"Package scope, without the leading @"`
	Package string `arg:"" help:"Package name"`
	Version string `arg:"" help:"Package version"`
}

func (a packageArgs) parse() (scope ident.Scope, pkg ident.Package, version ident.Version, err error) {
	if scope, err = ident.NewScope(a.Scope); err != nil {
		return
	}
	if pkg, err = ident.NewPackage(a.Package); err != nil {
		return
	}
	if version, err = ident.NewVersion(a.Version); err != nil {
		return
	}
	return
}

// PublishCmd stages a local tarball at the pipeline's well-known upload
// key, creates its publishing task, and drives it to a terminal state.
// This is the CLI-driven stand-in for the out-of-scope HTTP upload
// surface spec.md §1 excludes.
type PublishCmd struct {
	StoreFlags
	packageArgs
	Tarball        string `arg:"" help:"Path to the gzip-compressed tarball to publish" type:"existingfile"`
	ConfigFilePath string `help:"Path to the config file within the tarball" default:"/jsr.json"`
	UserID         string `help:"Publishing user's identifier" default:""`
}

func (cmd *PublishCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	log := newLogger(g.Verbose)

	scope, pkg, version, err := cmd.packageArgs.parse()
	if err != nil {
		return fmt.Errorf("invalid package identifier: %w", err)
	}

	o, objects, closer, err := cmd.StoreFlags.buildOrchestrator(ctx, log)
	if err != nil {
		return err
	}
	defer closer()

	data, err := os.ReadFile(cmd.Tarball)
	if err != nil {
		return fmt.Errorf("failed to read tarball: %w", err)
	}

	if err := objects.Put(ctx, orchestrator.TarballObjectKey(scope, pkg, version), bytes.NewReader(data), objectstore.PutOptions{ContentType: "application/gzip"}); err != nil {
		return fmt.Errorf("failed to stage tarball: %w", err)
	}

	task, err := o.CreateTask(ctx, scope, pkg, version, cmd.ConfigFilePath, cmd.UserID)
	if err != nil {
		return fmt.Errorf("failed to create publishing task: %w", err)
	}
	log.Info("publishing task created", slog.String("id", task.ID), slog.String("state", string(task.State)))

	if err := o.RunPublish(ctx, scope, pkg, version); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	log.Info("publish complete", slog.String("scope", scope.String()), slog.String("package", pkg.String()), slog.String("version", version.String()))
	return nil
}

// ResumeCmd re-enters RunPublish for a task that was interrupted by a
// crash or an operator-recoverable system error.
type ResumeCmd struct {
	StoreFlags
	packageArgs
}

func (cmd *ResumeCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	log := newLogger(g.Verbose)

	scope, pkg, version, err := cmd.packageArgs.parse()
	if err != nil {
		return fmt.Errorf("invalid package identifier: %w", err)
	}

	o, _, closer, err := cmd.StoreFlags.buildOrchestrator(ctx, log)
	if err != nil {
		return err
	}
	defer closer()

	return o.RunPublish(ctx, scope, pkg, version)
}

// YankCmd marks a published version as yanked and regenerates the
// package's public manifest.
type YankCmd struct {
	StoreFlags
	packageArgs
}

func (cmd *YankCmd) Run(g *globals.Globals) error {
	return setYanked(cmd.StoreFlags, cmd.packageArgs, g, true)
}

// UnyankCmd clears a version's yanked flag.
type UnyankCmd struct {
	StoreFlags
	packageArgs
}

func (cmd *UnyankCmd) Run(g *globals.Globals) error {
	return setYanked(cmd.StoreFlags, cmd.packageArgs, g, false)
}

func setYanked(flags StoreFlags, args packageArgs, g *globals.Globals, yanked bool) error {
	ctx := context.Background()
	log := newLogger(g.Verbose)

	scope, pkg, version, err := args.parse()
	if err != nil {
		return fmt.Errorf("invalid package identifier: %w", err)
	}

	o, _, closer, err := flags.buildOrchestrator(ctx, log)
	if err != nil {
		return err
	}
	defer closer()

	return o.SetYanked(ctx, scope, pkg, version, yanked)
}

// RebuildNpmCmd re-derives the npm-compat artifact for an already
// published version at the builder's current revision.
type RebuildNpmCmd struct {
	StoreFlags
	packageArgs
}

func (cmd *RebuildNpmCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	log := newLogger(g.Verbose)

	scope, pkg, version, err := cmd.packageArgs.parse()
	if err != nil {
		return fmt.Errorf("invalid package identifier: %w", err)
	}

	o, _, closer, err := cmd.StoreFlags.buildOrchestrator(ctx, log)
	if err != nil {
		return err
	}
	defer closer()

	return o.RebuildNpmCompat(ctx, scope, pkg, version)
}

func main() {
	cli := CLI{
		Globals: globals.Globals{},
	}

	ctx := kong.Parse(&cli,
		kong.Name("pkgpipe"),
		kong.Description("Run a JSR-style registry's publish pipeline"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
