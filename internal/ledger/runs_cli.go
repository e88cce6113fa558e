package ledger

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"time"
)

// RunRunsCommand handles the 'runs' subcommand. Without a run id it lists
// recent runs; with one it prints that run's epochs, checkpoints and the
// final state of every input it touched.
func RunRunsCommand(args []string, s *Store, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(out)
	kind := fs.String("kind", "", "Only list runs of this kind (preprocess, train, predict)")
	limit := fs.Int("n", 20, "Maximum number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch fs.NArg() {
	case 0:
		return listRuns(s, *kind, *limit, out)
	case 1:
		return showRun(s, fs.Arg(0), out)
	}
	return fmt.Errorf("usage: landcover runs [-kind kind] [-n limit] [run-id]")
}

func listRuns(s *Store, kind string, limit int, out io.Writer) error {
	runs, err := s.ListRuns(kind, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %-10s  %-8s  %-20s  %-20s  %s\n", "RUN", "KIND", "STATUS", "EXPERIMENT", "STARTED", "ELAPSED")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-10s  %-8s  %-20s  %-20s  %s\n",
			r.RunID, r.Kind, r.Status, r.Experiment, started(r), s.Elapsed(r).Round(time.Millisecond))
	}
	return nil
}

func showRun(s *Store, runID string, out io.Writer) error {
	r, err := s.GetRun(runID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run:        %s\n", r.RunID)
	fmt.Fprintf(out, "Kind:       %s\n", r.Kind)
	fmt.Fprintf(out, "Experiment: %s\n", r.Experiment)
	fmt.Fprintf(out, "Status:     %s\n", r.Status)
	fmt.Fprintf(out, "Started:    %s\n", started(r))
	fmt.Fprintf(out, "Elapsed:    %s\n", s.Elapsed(r).Round(time.Millisecond))

	epochs, err := s.Epochs(runID)
	if err != nil {
		return err
	}
	if len(epochs) > 0 {
		fmt.Fprintf(out, "\n%5s  %10s  %10s  %8s  %10s\n", "EPOCH", "TRAIN", "VAL", "VAL ACC", "LR")
		for _, e := range epochs {
			mark := ""
			if e.Improved {
				mark = "  *"
			}
			fmt.Fprintf(out, "%5d  %10.5f  %10.5f  %8.4f  %10.3g%s\n", e.Epoch, e.TrainLoss, e.ValLoss, e.ValAcc, e.LearningRate, mark)
		}
	}
	ckpts, err := s.Checkpoints(runID)
	if err != nil {
		return err
	}
	for _, c := range ckpts {
		fmt.Fprintf(out, "Checkpoint: %s\n", c)
	}

	states, err := s.FinalStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}
	transitions, err := s.Transitions(runID)
	if err != nil {
		return err
	}
	detail := make(map[string]string, len(states))
	for _, t := range transitions {
		detail[t.InputPath] = t.Detail
	}
	fmt.Fprintln(out)
	inputs := make([]string, 0, len(states))
	for in := range states {
		inputs = append(inputs, in)
	}
	slices.Sort(inputs)
	for _, in := range inputs {
		if d := detail[in]; d != "" {
			fmt.Fprintf(out, "%-14s %s  (%s)\n", states[in], in, d)
		} else {
			fmt.Fprintf(out, "%-14s %s\n", states[in], in)
		}
	}
	return nil
}

func started(r *Run) string {
	return time.Unix(0, r.StartedNs).UTC().Format(time.DateTime)
}
