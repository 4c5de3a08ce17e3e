package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/igoryan-dao/quill/cmd/cli/client"
	"github.com/igoryan-dao/quill/internal/protocol"
)

var (
	serverAddr string
	docID      string
)

var rootCmd = &cobra.Command{
	Use:   "quill-cli",
	Short: "Terminal client for a quill daemon",
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Run the pipeline for a question and stream progress",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ask(strings.Join(args, " "))
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a document into the knowledge store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		upload(args[0])
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Run: func(cmd *cobra.Command, args []string) {
		getAndPrint("/status")
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available providers and models",
	Run: func(cmd *cobra.Command, args []string) {
		getAndPrint("/models")
	},
}

var tracesCmd = &cobra.Command{
	Use:   "traces [trace-id]",
	Short: "List recent traces, or show one",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 1 {
			getAndPrint("/traces/" + args[0])
			return
		}
		getAndPrint("/traces")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "localhost:8000", "Address of the quill daemon")
	askCmd.Flags().StringVarP(&docID, "doc", "d", "", "Restrict retrieval to one document id")
	rootCmd.AddCommand(askCmd, uploadCmd, statusCmd, modelsCmd, tracesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func ask(question string) {
	c := client.New(serverAddr)
	done := make(chan bool, 1)
	pretty := isatty.IsTerminal(os.Stdout.Fd())

	var renderer *glamour.TermRenderer
	if pretty {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
	}

	start := time.Now()
	c.OnMessage = func(msg protocol.RPCMessage) {
		switch msg.Type {
		case protocol.TypePlan:
			var plan protocol.PlanEvent
			if err := json.Unmarshal(msg.Payload, &plan); err == nil {
				agents := make([]string, 0, len(plan.Steps))
				for _, s := range plan.Steps {
					agents = append(agents, s.Agent)
				}
				fmt.Fprintf(os.Stderr, "Plan: %s\n", strings.Join(agents, " → "))
			}

		case protocol.TypeStep:
			var step protocol.StepEvent
			if err := json.Unmarshal(msg.Payload, &step); err == nil {
				fmt.Fprintf(os.Stderr, "  step %d: %s (%.1fs)\n", step.Step, step.Agent, step.DurationS)
			}

		case protocol.TypeOutput:
			var out protocol.GenerateResponse
			if err := json.Unmarshal(msg.Payload, &out); err != nil {
				fmt.Fprintf(os.Stderr, "Bad output payload: %v\n", err)
				return
			}
			if out.Blocked {
				fmt.Fprintln(os.Stderr, out.Output)
				return
			}
			if renderer != nil {
				if rendered, err := renderer.Render(out.Output); err == nil {
					fmt.Print(rendered)
					return
				}
			}
			fmt.Println(out.Output)

		case protocol.TypeError:
			fmt.Fprintf(os.Stderr, "Error: %s\n", msg.Error)
			done <- true

		case protocol.TypeDone:
			fmt.Fprintf(os.Stderr, "Done in %.1fs\n", time.Since(start).Seconds())
			done <- true
		}
	}
	c.OnClosed = func() {
		select {
		case done <- true:
		default:
		}
	}

	if err := c.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		fmt.Fprintln(os.Stderr, "Make sure 'quill --server' is running.")
		os.Exit(1)
	}
	defer c.Close()

	c.Generate(question, docID)
	<-done
}

func upload(path string) {
	c := client.New(serverAddr)
	result, err := c.Upload(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded %s\n  doc_id: %s\n  chunks: %d\n  pages: %d\n  type: %s\n",
		result.Filename, result.DocID, result.Chunks, result.Pages, result.DocType)
}

func getAndPrint(path string) {
	c := client.New(serverAddr)
	var out any
	if err := c.GetJSON(path, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to format response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(pretty))
}
