// -----------------------------------------------------------------------
// Convoca CLI - ingestion pipeline and semantic search for the grants registry
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/convoca/internal/app"
	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: convoca [flags] <command> [command flags]

Commands:
  ingest       Walk the registry listing and stage new grants
  process-pdf  Download and extract text for pending staging items
  llm          Run LLM summarisation and field extraction
  embed        Generate embeddings for extracted text
  search       Semantic search over the embedded corpus
  similar      Find grants similar to a reference grant
  stats        Show pipeline and index statistics
  requeue      Reset a terminal staging item back to pending
  serve        Run the stage worker pools until interrupted

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Convoca version %s\n", common.GetVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	// Startup sequence: config (defaults -> files -> env), logger, banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("convoca.toml"); err == nil {
			configFiles = append(configFiles, "convoca.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner()

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	// Per-item failures are reported in command output, not exit codes;
	// only unrecoverable setup errors exit non-zero
	if err := runCommand(application, args[0], args[1:]); err != nil {
		logger.Error().Err(err).Str("command", args[0]).Msg("Command failed")
		os.Exit(1)
	}
}

func runCommand(application *app.App, command string, args []string) error {
	ctx := context.Background()

	switch command {
	case "ingest":
		return cmdIngest(ctx, application, args)
	case "process-pdf":
		return cmdProcessPDF(ctx, application, args)
	case "llm":
		return cmdLLM(ctx, application, args)
	case "embed":
		return cmdEmbed(ctx, application, args)
	case "search":
		return cmdSearch(ctx, application, args)
	case "similar":
		return cmdSimilar(ctx, application, args)
	case "stats":
		return cmdStats(application)
	case "requeue":
		return cmdRequeue(application, args)
	case "serve":
		return cmdServe(application, args)
	default:
		usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func cmdIngest(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	maxItems := fs.Int("max", 0, "Maximum items to ingest (0 = no limit)")
	finalidad := fs.String("finalidad", "", "Purpose code filter")
	onlyOpen := fs.Bool("open", false, "Only grants with an open application window")
	fs.Parse(args)

	coordinator, err := application.Coordinator(false, false)
	if err != nil {
		return err
	}

	result, err := coordinator.Ingest(ctx, models.SearchOptions{
		PurposeCode: *finalidad,
		OnlyOpen:    *onlyOpen,
	}, *maxItems)
	if err != nil {
		return err
	}

	fmt.Printf("Batch %s: %d inserted, %d duplicates, %d errors\n",
		result.BatchID, result.Inserted, result.Duplicates, result.Errors)
	return nil
}

func cmdProcessPDF(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("process-pdf", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Maximum items to process (0 = all pending)")
	fs.Parse(args)

	coordinator, err := application.Coordinator(false, false)
	if err != nil {
		return err
	}

	result, err := coordinator.ProcessPDFBatch(ctx, *limit)
	if err != nil {
		return err
	}
	printBatchResult("PDF", result.Processed, result.Skipped, result.Retried, result.Failed, result.Errors)
	return nil
}

func cmdLLM(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("llm", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Maximum extractions to process (0 = all)")
	force := fs.Bool("force", false, "Reprocess extractions already tagged with the current model")
	fs.Parse(args)

	coordinator, err := application.Coordinator(true, false)
	if err != nil {
		return err
	}

	result, err := coordinator.LLMBatch(ctx, *limit, *force)
	if err != nil {
		return err
	}
	printBatchResult("LLM", result.Processed, result.Skipped, result.Retried, result.Failed, result.Errors)
	return nil
}

func cmdEmbed(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	limit := fs.Int("limit", 0, "Maximum extractions to embed (0 = all)")
	reprocess := fs.Bool("reprocess", false, "Replace existing embeddings")
	fs.Parse(args)

	coordinator, err := application.Coordinator(false, true)
	if err != nil {
		return err
	}

	result, err := coordinator.EmbedBatch(ctx, *limit, *reprocess)
	if err != nil {
		return err
	}
	printBatchResult("Embed", result.Processed, result.Skipped, result.Retried, result.Failed, result.Errors)
	return nil
}

func cmdSearch(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	k := fs.Int("k", 10, "Number of results")
	minSimilarity := fs.Float64("min-similarity", 0.0, "Minimum similarity score")
	organismo := fs.String("organismo", "", "Filter: organisation substring")
	ambito := fs.String("ambito", "", "Filter: scope")
	finalidad := fs.String("finalidad", "", "Filter: purpose code")
	onlyOpen := fs.Bool("open", false, "Filter: open application window only")
	fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return fmt.Errorf("search requires a query")
	}

	searchService, err := application.SearchService()
	if err != nil {
		return err
	}

	filters := &models.SearchFilters{
		Organismo: *organismo,
		Ambito:    *ambito,
		Finalidad: *finalidad,
		OnlyOpen:  *onlyOpen,
	}

	hits, err := searchService.Search(ctx, query, *k, *minSimilarity, filters)
	if err != nil {
		return err
	}
	printHits(hits)
	return nil
}

func cmdSimilar(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	k := fs.Int("k", 10, "Number of results")
	minSimilarity := fs.Float64("min-similarity", 0.0, "Minimum similarity score")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("similar requires a grant external ID")
	}

	grant, err := application.Storage.GrantStorage().GetGrantByExternalID(fs.Arg(0))
	if err != nil {
		return err
	}

	searchService, err := application.SearchService()
	if err != nil {
		return err
	}

	hits, err := searchService.FindSimilar(ctx, grant.ID, *k, *minSimilarity)
	if err != nil {
		return err
	}
	printHits(hits)
	return nil
}

func cmdStats(application *app.App) error {
	coordinator, err := application.Coordinator(false, false)
	if err != nil {
		return err
	}

	stats, err := coordinator.Stats()
	if err != nil {
		return err
	}

	fmt.Println("Staging:")
	for _, status := range []models.StagingStatus{
		models.StagingPending, models.StagingProcessing, models.StagingCompleted,
		models.StagingFailed, models.StagingSkipped,
	} {
		fmt.Printf("  %-12s %d\n", status, stats.StagingByStatus[status])
	}
	fmt.Printf("Grants:      %d\n", stats.Grants)
	fmt.Printf("Extractions: %d\n", stats.Extractions)
	fmt.Printf("Embeddings:  %d\n", stats.Embeddings)
	fmt.Printf("Index:       %d vectors, dimension %d, ready=%v\n",
		stats.IndexSize, stats.IndexDimension, stats.IndexReady)

	if len(stats.FailedItems) > 0 {
		fmt.Println("Failed items:")
		for _, item := range stats.FailedItems {
			fmt.Printf("  %s  stage=%s retries=%d  %s\n",
				item.ExternalID, item.LastStage, item.RetryCount, item.ErrorMessage)
		}
	}
	return nil
}

func cmdRequeue(application *app.App, args []string) error {
	fs := flag.NewFlagSet("requeue", flag.ExitOnError)
	all := fs.Bool("all", false, "Requeue every failed staging item")
	fs.Parse(args)

	coordinator, err := application.Coordinator(false, false)
	if err != nil {
		return err
	}

	if *all {
		count, err := coordinator.RequeueAllFailed()
		if err != nil {
			return err
		}
		fmt.Printf("Requeued %d failed items\n", count)
		return nil
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("requeue requires a grant external ID (or -all)")
	}
	item, err := coordinator.Requeue(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("Requeued %s (staging %s)\n", item.ExternalID, item.ID)
	return nil
}

func cmdServe(application *app.App, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fetch := fs.Bool("fetch", false, "Enqueue a fetch task on startup")
	maxItems := fs.Int("max", 0, "Maximum items for the startup fetch (0 = no limit)")
	onlyOpen := fs.Bool("open", false, "Startup fetch: only grants with an open window")
	fs.Parse(args)

	coordinator, err := application.Coordinator(true, true)
	if err != nil {
		return err
	}

	if *fetch {
		if err := coordinator.EnqueueFetch(models.SearchOptions{OnlyOpen: *onlyOpen}, *maxItems); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Interrupt signal received, draining workers")
		cancel()
	}()

	return coordinator.RunWorkers(ctx)
}

func printBatchResult(stage string, processed, skipped, retried, failed, errors int) {
	fmt.Printf("%s: %d processed, %d skipped, %d retried, %d failed, %d errors\n",
		stage, processed, skipped, retried, failed, errors)
}

func printHits(hits []*models.SearchHit) {
	if len(hits) == 0 {
		fmt.Println("No results")
		return
	}
	for i, hit := range hits {
		fmt.Printf("%2d. [%.3f] %s  %s\n", i+1, hit.Score, hit.Grant.ExternalID, hit.Grant.Titulo)
		if hit.Grant.Organismo != "" {
			fmt.Printf("     %s\n", hit.Grant.Organismo)
		}
		if hit.Extraction != nil && hit.Extraction.ExtractedSummary != "" {
			summary := hit.Extraction.ExtractedSummary
			if len(summary) > 200 {
				summary = summary[:200] + "..."
			}
			fmt.Printf("     %s\n", summary)
		}
	}
}
