package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fabfab/docrag/api"
	"github.com/fabfab/docrag/config"
	"github.com/fabfab/docrag/ingestion"
	"github.com/fabfab/docrag/query"
	"github.com/fabfab/docrag/store"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(logger, os.Args[2:])
	case "upload":
		uploadCmd(logger, os.Args[2:])
	case "query":
		queryCmd(logger, os.Args[2:])
	case "clear":
		clearCmd(logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := flags.String("config", "", "path to YAML config file")
	addr := flags.String("addr", "", "listen address (overrides config)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer st.Close(context.Background())

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(cfg, st, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s (store backend %s)", cfg.Server.Addr, cfg.Store.Backend)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
		logger.Println("server stopped")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}
}

func uploadCmd(logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("upload", flag.ExitOnError)
	cfgPath := flags.String("config", "", "path to YAML config file")
	file := flags.String("file", "", "path to the document to upload")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse upload flags: %v", err)
	}

	if strings.TrimSpace(*file) == "" {
		logger.Fatal("upload requires -file")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatalf("read document: %v", err)
	}

	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer st.Close(context.Background())

	svc := ingestion.NewService(st, cfg.Chunking.Size, cfg.Chunking.Overlap, logger)
	receipt, err := svc.Upload(ctx, filepath.Base(*file), data)
	if err != nil {
		logger.Fatalf("upload failed: %v", err)
	}

	fmt.Printf("%s: %d chunks stored\n", receipt.DocumentName, receipt.Chunks)
}

func queryCmd(logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("query", flag.ExitOnError)
	cfgPath := flags.String("config", "", "path to YAML config file")
	q := flags.String("query", "", "search query")
	limit := flags.Int("limit", query.DefaultLimit, "number of results to return")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse query flags: %v", err)
	}

	if strings.TrimSpace(*q) == "" {
		fmt.Print("Enter your query: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*q = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read query: %v", err)
		}
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer st.Close(context.Background())

	svc := query.NewService(st, logger)
	resp, err := svc.Search(ctx, *q, *limit)
	if err != nil {
		logger.Fatalf("query failed: %v", err)
	}

	if len(resp.Results) == 0 {
		fmt.Println("no results")
		return
	}

	for i, result := range resp.Results {
		fmt.Printf("%d. [%.3f] %s (chunk %d/%d)\n", i+1, result.RelevanceScore, result.DocumentName, result.ChunkID+1, result.TotalChunks)
		fmt.Printf("   %s\n", snippet(result.Text, 200))
	}
}

func clearCmd(logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	cfgPath := flags.String("config", "", "path to YAML config file")
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete all stored document chunks. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer st.Close(context.Background())

	if err := st.Reset(ctx); err != nil {
		logger.Fatalf("clear failed: %v", err)
	}

	logger.Println("all stored documents deleted")
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load(), nil
	}
	return config.LoadFile(path)
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}

func printUsage() {
	fmt.Println("Usage: docrag <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  upload   Upload one document into the vector store")
	fmt.Println("  query    Search the stored documents")
	fmt.Println("  clear    Remove all stored documents")
}
