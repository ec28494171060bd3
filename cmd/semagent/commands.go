package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/semagent/internal/agent"
	"github.com/kalambet/semagent/internal/api"
	"github.com/kalambet/semagent/internal/config"
	"github.com/kalambet/semagent/internal/docs"
	"github.com/kalambet/semagent/internal/ollama"
	"github.com/kalambet/semagent/internal/storage"
)

func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().String("data", "", "CSV file holding the dataset")
	cmd.Flags().String("name", "", "dataset (table) name; defaults to the file name")
}

func dataFlags(cmd *cobra.Command) (path, name string) {
	path, _ = cmd.Flags().GetString("data")
	name, _ = cmd.Flags().GetString("name")
	return path, name
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate (or load from cache) the semantic schema of a dataset",
	Long: `Generate the semantic schema of a dataset.

Examples:
  semagent schema --data ./countries.csv
  semagent schema --data ./orders.csv --name orders
  semagent schema --data ./countries.csv --refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, name := dataFlags(cmd)
		if path == "" {
			return fmt.Errorf("--data is required")
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

		refresh, _ := cmd.Flags().GetBool("refresh")
		ag, err := a.newAgent(cmd.Context(), path, name, refresh)
		if err != nil {
			return err
		}
		defer ag.Close()

		return printJSON(cmd.OutOrStdout(), ag.Schema())
	},
}

func init() {
	addDataFlags(schemaCmd)
	schemaCmd.Flags().Bool("refresh", false, "ignore the cached schema and ask the language model again")
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Store example questions with their semantic queries, and documentation",
	Long: `Store training data for later recall.

Questions and answers are paired by position. Documents may be given inline
or loaded from text, HTML or PDF files.

Examples:
  semagent train --question "total gdp by country" \
      --answer '{"measures":["Countries.total_gdp"],"dimensions":["Countries.country"]}'
  semagent train --doc "gdp is reported in current US dollars"
  semagent train --doc-file ./glossary.pdf --doc-file ./notes.html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		questions, _ := cmd.Flags().GetStringArray("question")
		answers, _ := cmd.Flags().GetStringArray("answer")
		inline, _ := cmd.Flags().GetStringArray("doc")
		files, _ := cmd.Flags().GetStringArray("doc-file")
		chunk, _ := cmd.Flags().GetInt("chunk-size")

		if len(questions) == 0 && len(answers) == 0 && len(inline) == 0 && len(files) == 0 {
			return fmt.Errorf("one of --question/--answer, --doc or --doc-file is required")
		}

		loaded, err := docs.LoadAll(files, chunk)
		if err != nil {
			return err
		}
		documents := append(append([]string(nil), inline...), loaded...)

		path, name := dataFlags(cmd)
		if path == "" {
			return fmt.Errorf("--data is required")
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

		ag, err := a.newAgent(cmd.Context(), path, name, false)
		if err != nil {
			return err
		}
		defer ag.Close()

		printStep("Embedding %d question/answer pairs and %d document chunks...", len(questions), len(documents))
		if err := ag.Train(cmd.Context(), questions, answers, documents); err != nil {
			return err
		}
		printSuccess("Training data stored")
		return nil
	},
}

func init() {
	addDataFlags(trainCmd)
	trainCmd.Flags().StringArray("question", nil, "example question (repeatable)")
	trainCmd.Flags().StringArray("answer", nil, "semantic query JSON answering the question at the same position (repeatable)")
	trainCmd.Flags().StringArray("doc", nil, "documentation text (repeatable)")
	trainCmd.Flags().StringArray("doc-file", nil, "documentation file: .txt, .md, .html or .pdf (repeatable)")
	trainCmd.Flags().Int("chunk-size", docs.DefaultChunkSize, "maximum characters per document chunk")
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <semantic-query-json>",
	Short: "Compile a semantic query to SQL and run it on the dataset",
	Long: `Compile a semantic query to SQL and run it on the dataset.

Examples:
  semagent query --data ./countries.csv '{"measures":["Countries.total_gdp"],"dimensions":["Countries.country"],"limit":5}'
  semagent query --data ./countries.csv --sql-only --dialect postgres '{"measures":["Countries.count"]}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sqlOnly, _ := cmd.Flags().GetBool("sql-only")
		dialectName, _ := cmd.Flags().GetString("dialect")
		asJSON, _ := cmd.Flags().GetBool("json")

		d, err := api.ParseDialect(dialectName)
		if err != nil {
			return err
		}
		if remote, _ := cmd.Flags().GetBool("remote"); remote {
			return remoteQuery(cmd, args[0], sqlOnly, dialectName)
		}
		path, name := dataFlags(cmd)
		if path == "" {
			return fmt.Errorf("--data is required")
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

		ag, err := a.newAgent(cmd.Context(), path, name, false)
		if err != nil {
			return err
		}
		defer ag.Close()

		out := cmd.OutOrStdout()
		if sqlOnly {
			sql, err := ag.BuildSQL(args[0], d)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, sql)
			return nil
		}

		res, err := ag.RunQuery(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if records, _ := cmd.Flags().GetBool("records"); records {
			data, err := res.MarshalRows()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		if asJSON {
			return printJSON(out, res)
		}
		printResult(out, res)
		printStatus("Query log", "%s", res.LogID)
		return nil
	},
}

func init() {
	addDataFlags(queryCmd)
	queryCmd.Flags().Bool("sql-only", false, "print the compiled SQL without running it")
	queryCmd.Flags().String("dialect", "postgres", "SQL dialect for --sql-only: postgres or sqlite")
	queryCmd.Flags().Bool("json", false, "print the result as JSON")
	queryCmd.Flags().Bool("records", false, "print rows as a JSON array of column-keyed objects")
	queryCmd.Flags().Bool("remote", false, "send the query to a running semagent server instead of loading --data")
}

func remoteQuery(cmd *cobra.Command, query string, sqlOnly bool, dialect string) error {
	if !json.Valid([]byte(query)) {
		return fmt.Errorf("query is not valid JSON")
	}
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.post(cmd.Context(), "/query", api.QueryRequest{
		Query:   json.RawMessage(query),
		SQLOnly: sqlOnly,
		Dialect: dialect,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sqlOnly {
		var built struct {
			SQL string `json:"sql"`
		}
		if err := decodeJSON(resp, &built); err != nil {
			return err
		}
		fmt.Fprintln(out, built.SQL)
		return nil
	}
	var res agent.Result
	if err := decodeJSON(resp, &res); err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, res)
	}
	printResult(out, &res)
	return nil
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <question>",
	Short: "Find stored training questions and documents similar to a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if limit <= 0 {
			limit = cfg.Retrieval.TopK
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.training == nil {
			return fmt.Errorf("recall needs an embedding-capable provider (ollama or openai), got %q", cfg.LLM.Provider)
		}

		qa, err := a.training.RelevantQA(cmd.Context(), query, limit)
		if err != nil {
			return err
		}
		documents, err := a.training.RelevantDocs(cmd.Context(), query, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(qa) == 0 && len(documents) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}
		for i, r := range qa {
			fmt.Fprintf(out, "\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Example %d", i+1)), r.Score)
			fmt.Fprintf(out, "  Q: %s\n  A: %s\n", r.Question, r.Answer)
		}
		for i, d := range documents {
			fmt.Fprintf(out, "\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Document %d", i+1)), d.Score)
			fmt.Fprintf(out, "  %s\n", truncate(d.Text, 500))
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().Int("limit", 0, "maximum number of results per kind (default retrieval.top_k)")
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs [query-log-id]",
	Short: "List recently executed queries, or show one in full",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			l, err := a.store.GetQueryLog(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no query log with id %q", args[0])
			}
			if err != nil {
				return err
			}
			printQueryLog(out, l)
			return nil
		}

		logs, err := a.store.RecentQueryLogs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Fprintln(out, "No queries found.")
			return nil
		}
		for _, l := range logs {
			fmt.Fprintf(out, "%s  %s  %-10s %s  %s\n",
				colorize(colorCyan, shortID(l.ID)),
				l.CreatedAt.Format("2006-01-02 15:04:05"),
				l.Dataset,
				logStatus(l.Status),
				truncate(l.QueryJSON, 80),
			)
			if l.Error != "" {
				fmt.Fprintf(out, "    %s\n", l.Error)
			}
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().Int("limit", 20, "maximum number of queries to list")
}

func logStatus(status string) string {
	if status == storage.StatusSucceeded {
		return colorize(colorGreen, status)
	}
	return colorize(colorRed, status)
}

func printQueryLog(w io.Writer, l storage.QueryLog) {
	fmt.Fprintf(w, "id:       %s\n", l.ID)
	fmt.Fprintf(w, "time:     %s\n", l.CreatedAt.Local().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(w, "dataset:  %s\n", l.Dataset)
	fmt.Fprintf(w, "status:   %s\n", logStatus(l.Status))
	fmt.Fprintf(w, "rows:     %d\n", l.RowCount)
	fmt.Fprintf(w, "duration: %dms\n", l.DurationMs)
	fmt.Fprintf(w, "query:    %s\n", l.QueryJSON)
	if l.SQL != "" {
		fmt.Fprintf(w, "sql:      %s\n", l.SQL)
	}
	if l.Error != "" {
		fmt.Fprintf(w, "error:    %s\n", l.Error)
	}
}

// --- training ---

var trainingCmd = &cobra.Command{
	Use:   "training",
	Short: "Inspect or prune stored training data",
}

var trainingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored question/answer pairs and documents, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withTraining(cmd, func(a *app) error {
			records, err := a.training.Export(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No training data stored.")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(out, "%s  %-3s  %s\n", colorize(colorCyan, r.ID), r.SourceType, r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				if r.Question != "" {
					fmt.Fprintf(out, "  Q: %s\n  A: %s\n", r.Question, truncate(r.TextChunk, 200))
				} else {
					fmt.Fprintf(out, "  %s\n", truncate(r.TextChunk, 200))
				}
			}
			return nil
		})
	},
}

var trainingForgetCmd = &cobra.Command{
	Use:   "forget <record-id>...",
	Short: "Remove stored training records by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTraining(cmd, func(a *app) error {
			for _, id := range args {
				if err := a.training.Forget(cmd.Context(), id); err != nil {
					return err
				}
				printSuccess("Removed %s", id)
			}
			return nil
		})
	},
}

func init() {
	trainingListCmd.Flags().Bool("json", false, "print records as JSON")
	trainingCmd.AddCommand(trainingListCmd)
	trainingCmd.AddCommand(trainingForgetCmd)
}

// withTraining opens the app and runs fn when training is available.
func withTraining(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.training == nil {
		return fmt.Errorf("training needs an embedding-capable provider (ollama or openai), got %q", cfg.LLM.Provider)
	}
	return fn(a)
}

// --- setup ---

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Check the local Ollama server and pull the configured models",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.LLM.Provider != "ollama" {
			printWarning("llm.provider is %q; nothing to set up", cfg.LLM.Provider)
			return nil
		}

		printStep("Checking Ollama at %s", cfg.LLM.BaseURL)
		c := ollama.New(cfg.LLM.BaseURL)
		if err := ollama.EnsureModels(cmd.Context(), c, []string{cfg.LLM.Model, cfg.LLM.EmbedModel}, messages); err != nil {
			return err
		}
		printSuccess("Models %s and %s are ready", cfg.LLM.Model, cfg.LLM.EmbedModel)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
