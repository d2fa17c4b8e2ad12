package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/chatflow/internal/diagram"
	"github.com/rendis/chatflow/internal/store"
	"github.com/rendis/chatflow/pkg/parser"
	"github.com/rendis/chatflow/pkg/schema"
)

func newGraphCmd(a *app) *cobra.Command {
	var format, runID, output string
	cmd := &cobra.Command{
		Use:   "graph <script>",
		Short: "Draw which flows engage which, optionally overlaid with a recorded run",
		Example: `  chatflow graph examples/guess.flow
  chatflow graph examples/guess.flow --run 0b6f... --format png -o run.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			src, err := os.ReadFile(path)
			if err != nil {
				return schema.NewErrorf(schema.ErrCodeNotFound, "read script %s", path).WithCause(err)
			}
			script, err := parser.Parse(string(src))
			if err != nil {
				return err
			}

			var tr *store.Transcript
			if runID != "" {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()
				if tr, err = store.NewEventLog(st).Replay(cmd.Context(), runID); err != nil {
					return err
				}
			}

			model, err := diagram.Build(script, tr)
			if err != nil {
				return err
			}

			var out []byte
			switch format {
			case "ascii":
				out = []byte(diagram.RenderASCII(model))
			case "mermaid":
				out = []byte(diagram.RenderMermaid(model))
			case diagram.FormatPNG, diagram.FormatSVG, diagram.FormatDOT:
				if out, err = diagram.RenderImage(cmd.Context(), model, format); err != nil {
					return err
				}
			default:
				return schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q", format)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return schema.NewErrorf(schema.ErrCodeIO, "write %s", output).WithCause(err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "ascii", "ascii, mermaid, png, svg or dot")
	cmd.Flags().StringVar(&runID, "run", "", "overlay the recorded run with this ID")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}
