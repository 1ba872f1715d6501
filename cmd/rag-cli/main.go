// Package main provides the RAG engine CLI entrypoint.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	outputJSON bool

	httpClient = &http.Client{Timeout: 5 * time.Minute}
)

var rootCmd = &cobra.Command{
	Use:   "rag-cli",
	Short: "RAG engine CLI for ingestion, retrieval, and diagnostics",
	Long: `rag-cli talks to a running RAG engine API server.

Use this tool to:
- Upload documents for ingestion and watch job progress
- Ask questions and inspect citations
- Run retrieval-only searches
- Fetch debug artifacts for a trace
- Check server health

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if env := os.Getenv("RAG_SERVER_URL"); env != "" && !cmd.Flags().Changed("server") {
			serverURL = env
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "API server base URL")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output raw JSON")

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newRetrieveCmd())
	rootCmd.AddCommand(newArtifactsCmd())
	rootCmd.AddCommand(newHealthCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newIngestCmd() *cobra.Command {
	var (
		sync bool
		wait bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload documents for ingestion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				part, err := writer.CreateFormFile("files", filepath.Base(path))
				if err != nil {
					f.Close()
					return err
				}
				if _, err := io.Copy(part, f); err != nil {
					f.Close()
					return fmt.Errorf("read %s: %w", path, err)
				}
				f.Close()
			}
			if err := writer.Close(); err != nil {
				return err
			}

			endpoint := serverURL + "/api/ingest/upload"
			if sync {
				endpoint = serverURL + "/ingest"
			}
			req, err := http.NewRequest(http.MethodPost, endpoint, body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", writer.FormDataContentType())

			var result map[string]interface{}
			if err := doRequest(req, &result); err != nil {
				return err
			}
			if outputJSON || sync {
				return printJSON(result)
			}

			ingestionID, _ := result["ingestion_id"].(string)
			color.Green("Upload accepted: %s", ingestionID)
			if !wait {
				fmt.Printf("Check progress with: rag-cli status %s\n", ingestionID)
				return nil
			}
			return waitForJob(cmd.Context(), ingestionID)
		},
	}

	cmd.Flags().BoolVar(&sync, "sync", false, "run ingestion synchronously")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the job finishes")
	return cmd
}

func waitForJob(ctx context.Context, ingestionID string) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}

		job, err := fetchJob(ingestionID)
		if err != nil {
			return err
		}

		if pct, ok := job["progress_percent"].(float64); ok {
			_ = bar.Set(int(pct))
		}
		status, _ := job["status"].(string)
		switch status {
		case "completed":
			_ = bar.Finish()
			fmt.Println()
			color.Green("Ingestion completed")
			return printJSON(job)
		case "failed":
			fmt.Println()
			color.Red("Ingestion failed at stage %v: %v", job["error_stage"], job["error_message"])
			return fmt.Errorf("ingestion failed")
		}
	}
}

func fetchJob(ingestionID string) (map[string]interface{}, error) {
	req, err := http.NewRequest(http.MethodGet, serverURL+"/api/ingest/status/"+ingestionID, nil)
	if err != nil {
		return nil, err
	}
	var job map[string]interface{}
	if err := doRequest(req, &job); err != nil {
		return nil, err
	}
	return job, nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <ingestion-id>",
		Short: "Show the status of an ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := fetchJob(args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(job)
			}

			status, _ := job["status"].(string)
			switch status {
			case "completed":
				color.Green("Status: %s", status)
			case "failed":
				color.Red("Status: %s (stage %v: %v)", status, job["error_stage"], job["error_message"])
			default:
				color.Yellow("Status: %s (%v%%)", status, job["progress_percent"])
			}
			return printJSON(job["metrics"])
		},
	}
}

func newQueryCmd() *cobra.Command {
	var (
		topK           int
		timeoutSeconds int
		noSources      bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over the ingested documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"query":           args[0],
				"top_k":           topK,
				"timeout_seconds": timeoutSeconds,
				"include_sources": !noSources,
			}
			var result map[string]interface{}
			if err := postJSON("/api/query", payload, &result); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(result)
			}

			answer, _ := result["answer"].(string)
			fmt.Println(answer)
			fmt.Println()
			if citations, ok := result["citations"].([]interface{}); ok && len(citations) > 0 {
				color.Cyan("Sources:")
				for _, c := range citations {
					cm, _ := c.(map[string]interface{})
					color.Cyan("  [Source %v] %v (page %v, similarity %.3f)",
						cm["source_index"], cm["source_file"], cm["page"],
						toFloat(cm["similarity_score"]))
				}
			}
			if conf, ok := result["confidence"].(float64); ok {
				fmt.Printf("Confidence: %.3f\n", conf)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "number of chunks to retrieve")
	cmd.Flags().IntVarP(&timeoutSeconds, "timeout", "t", 30, "pipeline timeout in seconds")
	cmd.Flags().BoolVar(&noSources, "no-sources", false, "omit citations from the response")
	return cmd
}

func newRetrieveCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "retrieve <question>",
		Short: "Run similarity search without answer generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"query": args[0],
				"top_k": topK,
			}
			var result map[string]interface{}
			if err := postJSON("/retrieve", payload, &result); err != nil {
				return err
			}
			if outputJSON {
				return printJSON(result)
			}

			chunks, _ := result["retrieved_chunks"].([]interface{})
			fmt.Printf("%d chunks\n", len(chunks))
			for _, c := range chunks {
				cm, _ := c.(map[string]interface{})
				content, _ := cm["content"].(string)
				if len(content) > 120 {
					content = content[:120] + "..."
				}
				color.Cyan("#%v (%.3f)", cm["rank"], toFloat(cm["similarity_score"]))
				fmt.Println("  " + content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 10, "number of chunks to retrieve")
	return cmd
}

func newArtifactsCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "artifacts <trace-id>",
		Short: "Fetch debug artifacts for a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("RAG_DEBUG_TOKEN")
			}
			req, err := http.NewRequest(http.MethodGet,
				serverURL+"/api/debug/artifacts?trace_id="+args[0], nil)
			if err != nil {
				return err
			}
			req.Header.Set("X-Debug-Token", token)

			var result map[string]interface{}
			if err := doRequest(req, &result); err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "debug access token (default: RAG_DEBUG_TOKEN)")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodGet, serverURL+"/health", nil)
			if err != nil {
				return err
			}
			var result map[string]interface{}
			err = doRequest(req, &result)
			if outputJSON {
				return printJSON(result)
			}
			if err != nil {
				color.Red("unhealthy: %v", err)
				return err
			}
			color.Green("Status: %v", result["status"])
			if deps, ok := result["dependencies"].(map[string]interface{}); ok {
				for name, state := range deps {
					if state == "ok" {
						fmt.Printf("  %s: %v\n", name, state)
					} else {
						color.Yellow("  %s: %v", name, state)
					}
				}
			}
			return nil
		},
	}
}

func postJSON(path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req, out)
}

func doRequest(req *http.Request, out interface{}) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(payload, &envelope) == nil && envelope.Error.Message != "" {
			return fmt.Errorf("%s (%d): %s", envelope.Error.Type, resp.StatusCode, envelope.Error.Message)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(payload, out)
	}
	return nil
}

func printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func toFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
