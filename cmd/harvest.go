package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/adapter"
	"github.com/ksaito/jobharvest/internal/api"
	"github.com/ksaito/jobharvest/internal/browser"
	"github.com/ksaito/jobharvest/internal/clock/system"
	"github.com/ksaito/jobharvest/internal/config"
	"github.com/ksaito/jobharvest/internal/fetch"
	"github.com/ksaito/jobharvest/internal/harvest"
	"github.com/ksaito/jobharvest/internal/identity"
	"github.com/ksaito/jobharvest/internal/logging"
	"github.com/ksaito/jobharvest/internal/pipeline"
	"github.com/ksaito/jobharvest/internal/progress"
	"github.com/ksaito/jobharvest/internal/publisher/pubsub"
	"github.com/ksaito/jobharvest/internal/scheduler"
	"github.com/ksaito/jobharvest/internal/storage/gcs"
	"github.com/ksaito/jobharvest/internal/storage/local"
	storagememory "github.com/ksaito/jobharvest/internal/storage/memory"
	"github.com/ksaito/jobharvest/internal/store"
)

type harvestFlags struct {
	keywords     []string
	areas        []string
	sources      []string
	maxPages     int
	concurrency  int
	fetchDetails bool
}

func newHarvestCmd() *cobra.Command {
	var flags harvestFlags
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs one crawl over the configured sources",
		Long: `Searches every selected source for each keyword and area combination,
paginates through the results, and writes the filtered records to the
configured store. A single interrupt stops the run gracefully after the
pages in flight; a second one aborts it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.keywords, "keywords", nil, "search keywords (required)")
	cmd.Flags().StringSliceVar(&flags.areas, "areas", nil, "area names or codes to search in")
	cmd.Flags().StringSliceVar(&flags.sources, "sources", nil, "sources to crawl (default from config)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "pages per search (default from config)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "concurrent tasks (default from config)")
	cmd.Flags().BoolVar(&flags.fetchDetails, "fetch-details", false, "visit each listing's detail page")
	_ = cmd.MarkFlagRequired("keywords")
	return cmd
}

func runHarvest(cmd *cobra.Command, flags harvestFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.concurrency > 0 {
		cfg.Crawler.Concurrency = flags.concurrency
	}
	if flags.maxPages > 0 {
		cfg.Crawler.MaxPages = flags.maxPages
	}
	if flags.fetchDetails {
		cfg.Crawler.FetchDetails = true
	}
	if len(flags.sources) > 0 {
		cfg.Sources = flags.sources
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sites, err := buildSites(cfg.Sources)
	if err != nil {
		return err
	}

	blobs, err := buildBlobStore(ctx, cfg.Snapshots)
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}

	recStore, closeStore, err := buildRecordStore(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	defer closeStore()

	var pub harvest.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicID != "" {
		p, err := pubsub.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
		defer func() {
			if cerr := p.Close(); cerr != nil {
				logger.Warn("publisher close failed", zap.Error(cerr))
			}
		}()
		pub = p
	}

	machine := fetch.New(fetch.Config{
		PageAttempts: cfg.Crawler.PageAttempts,
		Snapshots:    cfg.Crawler.SnapshotPages,
	}, logger.Named("fetch"), blobs)

	engine := scheduler.New(scheduler.Deps{
		Sites:     sites,
		Rendered:  browser.NewChromeFactory(logger.Named("chrome")),
		Static:    browser.NewStaticFactory(cfg.NavTimeout()),
		Fetcher:   machine,
		Pool:      identity.NewPool(cfg.Identity.UserAgents, cfg.Identity.Proxies),
		Limiter:   scheduler.NewHostLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Store:     recStore,
		Publisher: pub,
		Reporter:  progress.Multi{progress.NewLog(logger.Named("progress")), progress.Counter{}},
		Rules:     filterRules(cfg.Filter),
		Clock:     system.New(),
		Logger:    logger,
	}, scheduler.Options{
		Concurrency:       cfg.Crawler.Concurrency,
		MaxPages:          cfg.Crawler.MaxPages,
		Stagger:           cfg.Stagger(),
		FetchDetails:      cfg.Crawler.FetchDetails,
		DetailConcurrency: cfg.Crawler.DetailConcurrency,
		Topic:             cfg.PubSub.TopicID,
	})

	// First interrupt asks the engine to finish the pages in flight, the
	// second cancels outright.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			logger.Info("interrupt received, finishing pages in flight")
			engine.Cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigs:
			logger.Warn("second interrupt, aborting")
			cancel()
		case <-ctx.Done():
		}
	}()

	var opsServer *api.Server
	var httpSrv *http.Server
	if cfg.Server.Enabled {
		opsServer = api.NewServer(sites, logger.Named("api"))
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           opsServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("ops server started", zap.Int("port", cfg.Server.Port))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server error", zap.Error(err))
			}
		}()
	}

	run, err := engine.Run(ctx, buildTasks(cfg, flags))
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	if opsServer != nil {
		opsServer.RecordRun(run)
	}

	printRunSummary(cmd, run)

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown failed", zap.Error(err))
		}
	}
	if run.Failed() {
		return errors.New("no source produced any records")
	}
	return nil
}

func buildSites(names []string) (map[string]adapter.Site, error) {
	builtin := adapter.Builtin()
	sites := make(map[string]adapter.Site, len(names))
	for _, name := range names {
		site, ok := builtin[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q (available: %v)", name, adapter.BuiltinNames())
		}
		sites[name] = site
	}
	return sites, nil
}

func buildBlobStore(ctx context.Context, cfg config.SnapshotsConfig) (harvest.BlobStore, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "local":
		return local.New(local.Config{BaseDir: cfg.BaseDir})
	case "memory":
		return storagememory.NewBlobStore(), nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	default:
		return nil, fmt.Errorf("unknown snapshot provider %q", cfg.Provider)
	}
}

func buildRecordStore(ctx context.Context, cfg config.DBConfig) (harvest.RecordStore, func(), error) {
	if cfg.DSN == "" {
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(ctx, store.PostgresConfig{
		DSN:      cfg.DSN,
		Table:    cfg.Table,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func filterRules(cfg config.FilterConfig) pipeline.Rules {
	return pipeline.Rules{
		StaffingKeywords:      cfg.StaffingKeywords,
		Industries:            cfg.Industries,
		Locations:             cfg.Locations,
		PhonePrefixes:         cfg.PhonePrefixes,
		LargeCompanyThreshold: cfg.LargeCompanyThreshold,
		SourcePriority:        cfg.SourcePriority,
	}
}

func buildTasks(cfg config.Config, flags harvestFlags) []harvest.CrawlTask {
	areas := flags.areas
	if len(areas) == 0 {
		areas = []string{""}
	}
	var tasks []harvest.CrawlTask
	for _, source := range cfg.Sources {
		for _, keyword := range flags.keywords {
			for _, area := range areas {
				tasks = append(tasks, harvest.CrawlTask{
					Source:       source,
					Keyword:      keyword,
					Area:         area,
					MaxPages:     cfg.Crawler.MaxPages,
					FetchDetails: cfg.Crawler.FetchDetails,
				})
			}
		}
	}
	return tasks
}

func printRunSummary(cmd *cobra.Command, run harvest.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s finished in %s\n", run.RunID, run.Finished.Sub(run.Started).Round(time.Second))
	for _, t := range run.Tasks {
		fmt.Fprintf(out, "  %-12s %-16s %-8s %-8s records=%d pages=%d",
			t.Task.Source, t.Task.Keyword, t.Task.Area, t.Status, len(t.Records), t.PagesFetched)
		if t.Err != nil {
			fmt.Fprintf(out, " error=%v", t.Err)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "records: %d raw, %d kept, %d new, %d saved\n",
		run.RawCount, run.FinalCount, run.NewCount, run.SavedCount)
}
