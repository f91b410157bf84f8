package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manaxbt/manaonsol/internal/knowledge"
	"github.com/spf13/cobra"
)

func init() {
	var (
		namespace string
		category  string
		title     string
		tags      []string
	)
	ingest := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Add documents to the knowledge base (reads stdin when no file is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				inputs, err := readInputs(args)
				if err != nil {
					return err
				}
				reports := make([]knowledge.AddReport, 0, len(inputs))
				for _, in := range inputs {
					md := map[string]any{"category": category}
					if len(tags) > 0 {
						md["tags"] = tags
					}
					switch {
					case title != "":
						md["title"] = title
					case in.name != "":
						md["title"] = strings.TrimSuffix(filepath.Base(in.name), filepath.Ext(in.name))
					}
					report, err := a.kb.AddDocumentReport(cmd.Context(), in.text, md, namespace)
					if err != nil {
						return fmt.Errorf("ingest %s: %w", in.name, err)
					}
					reports = append(reports, report)
				}
				return printJSON(reports)
			})
		},
	}
	ingest.Flags().StringVarP(&namespace, "namespace", "n", "", "Target namespace (default: knowledge.default_namespace)")
	ingest.Flags().StringVar(&category, "category", "general", "Category stored with each chunk")
	ingest.Flags().StringVar(&title, "title", "", "Title stored with each chunk (default: file name)")
	ingest.Flags().StringSliceVar(&tags, "tags", nil, "Comma-separated tags")

	var threshold float64
	similar := &cobra.Command{
		Use:   "similar",
		Short: "Group near-duplicate concepts in the default namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				return printJSON(a.kb.FindSimilarConcepts(cmd.Context(), threshold))
			})
		},
	}
	similar.Flags().Float64Var(&threshold, "threshold", knowledge.DefaultSimilarityThreshold, "Minimum Jaccard word similarity")

	documents := &cobra.Command{
		Use:   "documents <namespace>",
		Short: "List the documents stored in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				docs, err := a.kb.Documents(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(docs)
			})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show vector counts per namespace and ledger statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				return printJSON(map[string]any{
					"namespaces":     a.kb.Stats(cmd.Context()),
					"total_concepts": a.kb.TotalConcepts(cmd.Context()),
					"tweets":         a.ledger.Size(),
					"themes":         a.ledger.ThemeStatistics(),
				})
			})
		},
	}

	contextCmd := &cobra.Command{
		Use:   "context <theme>",
		Short: "Print the generation context assembled for a theme",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				fmt.Println(a.assembler.GetContext(cmd.Context(), strings.Join(args, " ")))
				return nil
			})
		},
	}

	rootCmd.AddCommand(ingest, similar, documents, stats, contextCmd)
}

type input struct {
	name string
	text string
}

func readInputs(paths []string) ([]input, error) {
	if len(paths) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []input{{text: string(data)}}, nil
	}
	out := make([]input, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, input{name: p, text: string(data)})
	}
	return out, nil
}
