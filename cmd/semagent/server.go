package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/semagent/internal/api"
	"github.com/kalambet/semagent/internal/semantic"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a dataset over HTTP and, optionally, MCP on stdio",
	Long: `Resolve the semantic schema of a dataset and serve it.

The HTTP API listens on 127.0.0.1:<server.port>. With --mcp the MCP tools
get_schema, train, run_query and recall are also served on stdin/stdout;
logs then go to stderr only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, name := dataFlags(cmd)
		if path == "" {
			return fmt.Errorf("--data is required")
		}
		withMCP, _ := cmd.Flags().GetBool("mcp")
		port, _ := cmd.Flags().GetInt("port")
		return runServer(path, name, port, withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running server, local storage and stored training data",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := showStatus(cmd.Context(), client); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return showLocalStatus(cmd.Context(), a)
	},
}

func init() {
	addDataFlags(serveCmd)
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdio")
	serveCmd.Flags().Int("port", 0, "HTTP port (default server.port)")
}

func runServer(path, name string, port int, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "semagent version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ag, err := a.newAgent(ctx, path, name, false)
	if err != nil {
		return err
	}
	defer ag.Close()
	if err := ag.InitQueryEngine(ctx); err != nil {
		return err
	}
	slog.Info("schema ready", "dataset", ag.Dataset().Name(), "tables", len(ag.Schema()))

	deps := api.Deps{
		Agent: ag,
		TopK:  cfg.Retrieval.TopK,
		Token: cfg.Server.APIToken,
	}
	if a.training != nil {
		deps.Recall = a.training
	}
	if deps.Token == "" {
		slog.Warn("server.api_token not set, HTTP API is unauthenticated")
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHTTPHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "semagent listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	var health map[string]string
	if err := decodeJSON(resp, &health); err != nil {
		printStatus("Server", "error (%v)", err)
		return nil
	}
	printStatus("Server", "running at %s", client.baseURL)

	resp, err = client.get(ctx, "/schema")
	if err != nil {
		return err
	}
	var schema semantic.Schema
	if err := decodeJSON(resp, &schema); err != nil {
		printStatus("Schema", "unavailable (%v)", err)
		return nil
	}
	for _, t := range schema {
		printStatus("Table "+t.Name, "%d measures, %d dimensions, %d joins", len(t.Measures), len(t.Dimensions), len(t.Joins))
	}
	return nil
}

func showLocalStatus(ctx context.Context, a *app) error {
	versions, err := a.store.AppliedMigrations()
	if err != nil {
		return fmt.Errorf("reading storage version: %w", err)
	}
	printStatus("Storage", "%s (migrations %v)", a.cfg.Storage.DataDir, versions)

	if a.training == nil {
		printStatus("Training", "disabled, provider %q cannot embed", a.cfg.LLM.Provider)
		return nil
	}
	qa, docs, err := a.training.Counts(ctx)
	if err != nil {
		return fmt.Errorf("counting training data: %w", err)
	}
	printStatus("Training", "%d examples, %d documents", qa, docs)
	return nil
}
