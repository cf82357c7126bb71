package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aihub/retrieval-go/internal/config"
	"github.com/aihub/retrieval-go/internal/di"
	"github.com/aihub/retrieval-go/internal/logger"
	"github.com/aihub/retrieval-go/internal/metrics"
	"github.com/aihub/retrieval-go/internal/retrieval"
	"go.uber.org/zap"
)

const usage = `Usage: retrieval <command> [flags]

Commands:
  ingest   -owner <owner> -title <title> [-file <path>]   upsert a document (reads stdin without -file)
  query    -q <text> [-owner <owner>] [-scope <owner>]    retrieve top-K chunks
  stats    [-owner <owner>]                               corpus statistics
  delete   -owner <owner> -title <title>                  delete a document
  serve    [-addr <host:port>]                            expose /metrics
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if _, err := config.LoadConfig(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.InitLogger(); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 打分参数支持热更新，结构性参数需要重启
	config.WatchScoringConfig(func(next config.RagConfig) {
		logger.Info("scoring config reloaded",
			zap.Float64("semantic_weight", next.SemanticWeight),
			zap.Float64("lexical_weight", next.LexicalWeight),
			zap.Float64("rerank_lambda", next.RerankLambda))
	})

	container := di.InitContainer()
	if err := di.RegisterProviders(container); err != nil {
		log.Fatalf("failed to register providers: %v", err)
	}

	command := os.Args[1]
	args := os.Args[2:]

	err := di.Invoke(func(engine *retrieval.Engine) error {
		ctx := context.Background()
		switch command {
		case "ingest":
			return runIngest(ctx, engine, args)
		case "query":
			return runQuery(ctx, engine, args)
		case "stats":
			return runStats(ctx, engine, args)
		case "delete":
			return runDelete(ctx, engine, args)
		case "serve":
			return runServe(args)
		default:
			fmt.Fprint(os.Stderr, usage)
			return fmt.Errorf("unknown command: %s", command)
		}
	})
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
}

func runIngest(ctx context.Context, engine *retrieval.Engine, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	owner := fs.String("owner", "", "document owner (empty means global)")
	title := fs.String("title", "", "document title")
	file := fs.String("file", "", "content file path (stdin when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var content []byte
	var err error
	if *file != "" {
		content, err = os.ReadFile(*file)
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	doc, err := engine.Upsert(ctx, *owner, *title, string(content))
	if err != nil {
		return err
	}

	fmt.Printf("upserted document %d (%s / %s)\n", doc.ID, doc.Owner, doc.Title)
	return nil
}

func runQuery(ctx context.Context, engine *retrieval.Engine, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	query := fs.String("q", "", "query text")
	owner := fs.String("owner", "", "owner namespace (global corpus is always included)")
	scope := fs.String("scope", "", "additional scoped owner namespace")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*query) == "" {
		return fmt.Errorf("query text is required")
	}

	var results []retrieval.ScoredChunk
	var err error
	if *scope != "" {
		results, err = engine.RetrieveScoped(ctx, *query, *owner, *scope)
	} else {
		results, err = engine.RetrieveForOwner(ctx, *query, *owner)
	}
	if err != nil {
		return err
	}

	return printJSON(engine.Sources(results))
}

func runStats(ctx context.Context, engine *retrieval.Engine, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	owner := fs.String("owner", "", "owner namespace")
	if err := fs.Parse(args); err != nil {
		return err
	}

	stats, err := engine.Stats(ctx, *owner)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runDelete(ctx context.Context, engine *retrieval.Engine, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	owner := fs.String("owner", "", "document owner")
	title := fs.String("title", "", "document title")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := engine.DeleteDocument(ctx, *owner, *title); err != nil {
		return err
	}
	fmt.Printf("deleted document %q for owner %q\n", *title, *owner)
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":9090", "metrics listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics server listening", zap.String("addr", *addr))
	return server.ListenAndServe()
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
