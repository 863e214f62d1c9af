package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bi-agent/internal/engine"
	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/narrate"
)

var (
	askJSON    bool
	updateJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from freshly fetched data",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := strings.Join(args, " ")

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := refresh(ctx, env.Service); err != nil {
			return err
		}
		ans, _, err := env.Service.Ask(question, nil)
		if err != nil {
			return explain(err)
		}
		if askJSON {
			return writeIndented(os.Stdout, ans)
		}

		text, err := env.Narrator.Narrate(ctx, narrate.Request{Question: question, Answer: ans})
		if err != nil {
			return eris.Wrap(err, "narrate")
		}
		fmt.Fprintln(os.Stdout, text)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Print the leadership update",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := refresh(ctx, env.Service); err != nil {
			return err
		}
		s, err := env.Service.Update()
		if err != nil {
			return explain(err)
		}
		if updateJSON {
			return writeIndented(os.Stdout, s)
		}
		fmt.Fprintln(os.Stdout, narrate.Render(engine.Answer{Summary: &s}))
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch, clean and link both collections and record the run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := refresh(ctx, env.Service)
		if err != nil {
			return err
		}
		formatRefresh(os.Stdout, rec)
		return nil
	},
}

// refresh loads a fresh snapshot for a one-shot command.
func refresh(ctx context.Context, svc *engine.Service) (*model.Refresh, error) {
	rec, err := svc.Refresh(ctx, "cli")
	if err != nil {
		return rec, explain(err)
	}
	return rec, nil
}

// explain rewrites a data shape error into a message naming the missing
// fields.
func explain(err error) error {
	if dse, ok := model.AsDataShapeError(err); ok {
		return eris.Errorf("cannot compute %s: the %s collection has no field for %v", dse.Capability, dse.Collection, dse.Missing)
	}
	return err
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatRefresh(w io.Writer, rec *model.Refresh) {
	fmt.Fprintf(w, "Refresh %s: %s\n", rec.ID, rec.Status)
	if rec.Stats == nil {
		return
	}
	st := rec.Stats
	fmt.Fprintf(w, "  pipeline:   %d retained of %d\n", st.PipelineRetained, st.PipelineRaw)
	fmt.Fprintf(w, "  execution:  %d retained of %d\n", st.ExecutionRetained, st.ExecutionRaw)
	fmt.Fprintf(w, "  links:      %d exact, %d fuzzy, %d work orders unlinked\n",
		st.Links.Exact, st.Links.Fallback, st.Links.UnlinkedExecution)
	fmt.Fprintf(w, "  duration:   %dms\n", st.DurationMs)
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the computed answer as JSON instead of prose")
	updateCmd.Flags().BoolVar(&updateJSON, "json", false, "print the structured summary as JSON")
	rootCmd.AddCommand(askCmd, updateCmd, refreshCmd)
}
