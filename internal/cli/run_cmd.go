package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lakegate/internal/config"
	"lakegate/internal/db"
	"lakegate/internal/db/repository"
	"lakegate/internal/domain"
	"lakegate/internal/lakehouse"
	"lakegate/internal/lakehouse/local"
	"lakegate/internal/source"
	"lakegate/internal/wap"
)

type runFlags struct {
	source           string
	pattern          string
	namespace        string
	table            string
	onSuccess        string
	onFailure        string
	branchNaming     string
	branchSuffix     string
	baseRef          string
	checksFile       string
	metaDB           string
	auditConcurrency int
	local            bool
	localPath        string
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one write-audit-publish pipeline run",
		Long: `Stage raw objects on an isolated branch, build the published table
from them, audit the staged result, and publish by policy. The run
record is stored in the local SQLite run history either way.

The command exits 1 when the run finishes unsuccessful: a failed
audit with on-failure=delete, or any aborted phase.`,
		Example: `  # Audit a batch and merge it when all checks pass
  lakegate run --source s3://lake/telemetry/raw/ --on-success merge --on-failure delete

  # Development run against the embedded store
  lakegate run --local --source file:///var/lake/raw

  # Keep the branch for inspection regardless of the verdict
  lakegate run --source s3://lake/telemetry/raw/ --on-success inspect`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.source, "source", "", "Source URI with raw objects (s3://, az://, gs://, file://)")
	cmd.Flags().StringVar(&flags.pattern, "pattern", "", "Glob matched against object base names (default *.parquet)")
	cmd.Flags().StringVar(&flags.namespace, "namespace", "", "Lakehouse namespace of the target table")
	cmd.Flags().StringVar(&flags.table, "table", "", "Published table name")
	cmd.Flags().StringVar(&flags.onSuccess, "on-success", "", "Publish policy when audits pass: merge or inspect")
	cmd.Flags().StringVar(&flags.onFailure, "on-failure", "", "Publish policy when audits fail: keep or delete")
	cmd.Flags().StringVar(&flags.branchNaming, "branch-naming", "", "Staging branch naming: fixed or unique")
	cmd.Flags().StringVar(&flags.branchSuffix, "branch-suffix", "", "Staging branch suffix")
	cmd.Flags().StringVar(&flags.baseRef, "base-ref", "", "Ref the staging branch forks from and merges into")
	cmd.Flags().StringVar(&flags.checksFile, "checks-file", "", "YAML check suite (default: built-in checks)")
	cmd.Flags().StringVar(&flags.metaDB, "meta-db", "", "SQLite run-history path")
	cmd.Flags().IntVar(&flags.auditConcurrency, "audit-concurrency", 0, "Max audit queries in flight")
	cmd.Flags().BoolVar(&flags.local, "local", false, "Use the embedded DuckDB store instead of the lakehouse service")
	cmd.Flags().StringVar(&flags.localPath, "local-path", "", "Database file for --local (default: in-memory)")

	return cmd
}

func runPipeline(cmd *cobra.Command, flags runFlags) error {
	ctx := cmd.Context()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	applyOverrides(cmd, flags, cfg)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	registry, err := loadRegistry(cfg.ChecksFile)
	if err != nil {
		return err
	}

	var (
		client   domain.TableClient
		delegate domain.WriteDelegate
	)
	if flags.local {
		store, err := local.NewStore(ctx, flags.localPath, logger)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		if err := store.Bootstrap(ctx, cfg.Namespace, cfg.TargetTable); err != nil {
			return err
		}
		if cfg.HasS3Config() {
			if err := store.InstallExtensions(ctx, "httpfs"); err != nil {
				return err
			}
			if err := store.ConfigureS3(ctx, *cfg.S3KeyID, *cfg.S3Secret, *cfg.S3Endpoint, *cfg.S3Region, "path"); err != nil {
				return err
			}
		}
		if cfg.AzureAccount != nil && cfg.AzureKey != nil {
			if err := store.InstallExtensions(ctx, "azure"); err != nil {
				return err
			}
			if err := store.ConfigureAzure(ctx, azureConnString(*cfg.AzureAccount, *cfg.AzureKey)); err != nil {
				return err
			}
		}
		client, delegate = store, store
	} else {
		if cfg.LakehouseURL == "" {
			return fmt.Errorf("LAKEHOUSE_URL is not set; pass --local to use the embedded store")
		}
		remote, err := lakehouse.NewClient(lakehouse.ClientConfig{
			BaseURL:      cfg.LakehouseURL,
			APIKey:       cfg.LakehouseAPIKey,
			Timeout:      cfg.HTTPTimeout,
			MaxAttempts:  cfg.RetryMaxAttempts,
			BaseDelay:    cfg.RetryBaseDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			RateLimitRPS: cfg.RateLimitRPS,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		client, delegate = remote, remote
	}

	writeDB, readDB, err := db.OpenSQLitePair(cfg.MetaDBPath, 0)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer writeDB.Close() //nolint:errcheck
	defer readDB.Close()  //nolint:errcheck
	if err := db.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("migrate run store: %w", err)
	}

	coordinator := wap.NewCoordinator(wap.Deps{
		Client:   client,
		Delegate: delegate,
		Registry: registry,
		Source:   inventoryFor(cfg, logger),
		Store:    repository.NewRunRepo(writeDB),
		Branch: wap.BranchPolicy{
			Naming: cfg.BranchNaming,
			Tenant: cfg.Tenant,
			Suffix: cfg.BranchSuffix,
		},
		Defaults: wap.Defaults{
			SourceURI:     cfg.SourceURI,
			SourcePattern: cfg.SourcePattern,
			Namespace:     cfg.Namespace,
			TargetTable:   cfg.TargetTable,
			OnSuccess:     cfg.OnSuccess,
			OnFailure:     cfg.OnFailure,
			BaseRef:       cfg.BaseRef,
		},
		AuditLimit: cfg.AuditConcurrency,
		Logger:     logger,
	})

	run, err := coordinator.Run(ctx, domain.RunRequest{})
	if err != nil {
		return err
	}

	if getOutputFormat(cmd) == "json" {
		if err := printJSON(os.Stdout, run); err != nil {
			return err
		}
	} else {
		printRunSummary(os.Stdout, run)
	}

	if !run.Success {
		return fmt.Errorf("run %s finished %s", run.ID, run.State)
	}
	return nil
}

// applyOverrides layers explicit flags over the environment config.
func applyOverrides(cmd *cobra.Command, flags runFlags, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("source") {
		cfg.SourceURI = flags.source
	}
	if set("pattern") {
		cfg.SourcePattern = flags.pattern
	}
	if set("namespace") {
		cfg.Namespace = flags.namespace
	}
	if set("table") {
		cfg.TargetTable = flags.table
	}
	if set("on-success") {
		cfg.OnSuccess = flags.onSuccess
	}
	if set("on-failure") {
		cfg.OnFailure = flags.onFailure
	}
	if set("branch-naming") {
		cfg.BranchNaming = flags.branchNaming
	}
	if set("branch-suffix") {
		cfg.BranchSuffix = flags.branchSuffix
	}
	if set("base-ref") {
		cfg.BaseRef = flags.baseRef
	}
	if set("checks-file") {
		cfg.ChecksFile = flags.checksFile
	}
	if set("meta-db") {
		cfg.MetaDBPath = flags.metaDB
	}
	if set("audit-concurrency") {
		cfg.AuditConcurrency = flags.auditConcurrency
	}
}

// inventoryFor wires the source preflight only when the URI's scheme can
// actually be listed with the configured credentials. A nil inventory
// skips preflight instead of failing runs the lakehouse service could
// still ingest with its own credentials.
func inventoryFor(cfg *config.Config, logger *slog.Logger) domain.SourceInventory {
	switch source.Scheme(cfg.SourceURI) {
	case "s3":
		if !cfg.HasS3Config() {
			logger.Debug("source preflight disabled", "reason", "s3 credentials not configured")
			return nil
		}
	case "az", "abfss":
		if cfg.AzureAccount == nil || cfg.AzureKey == nil {
			logger.Debug("source preflight disabled", "reason", "azure credentials not configured")
			return nil
		}
	case "gs":
		if cfg.GCSKeyFile == nil && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			logger.Debug("source preflight disabled", "reason", "gcs credentials not configured")
			return nil
		}
	}

	return source.NewResolver(source.Credentials{
		S3KeyID:      strVal(cfg.S3KeyID),
		S3Secret:     strVal(cfg.S3Secret),
		S3Endpoint:   strVal(cfg.S3Endpoint),
		S3Region:     strVal(cfg.S3Region),
		AzureAccount: strVal(cfg.AzureAccount),
		AzureKey:     strVal(cfg.AzureKey),
		GCSKeyFile:   strVal(cfg.GCSKeyFile),
	})
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func azureConnString(account, key string) string {
	return fmt.Sprintf(
		"DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		account, key)
}
