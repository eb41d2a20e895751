package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/stagegate/rules"
)

type factsOptions struct {
	path   string
	derive bool
	json   bool
}

func (o *factsOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.path, "facts", "f", "", "JSON file of facts, - for stdin (default: no facts)")
	cmd.Flags().BoolVar(&o.derive, "derive", true, "Apply derived facts before evaluating")
	cmd.Flags().BoolVar(&o.json, "json", false, "Output JSON")
}

// load reads the facts file and applies derived facts when enabled
func (o *factsOptions) load(cmd *cobra.Command, rs *rules.RuleSet) (rules.Facts, error) {
	facts := rules.Facts{}

	if o.path != "" {
		var (
			data []byte
			err  error
		)
		if o.path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(o.path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read facts: %w", err)
		}

		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&facts); err != nil {
			return nil, fmt.Errorf("failed to parse facts: %w", err)
		}
		if facts == nil {
			facts = rules.Facts{}
		}
	}

	if !o.derive {
		return facts, nil
	}

	derived, err := rs.Deriver.Apply(facts)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	return derived, nil
}

func newEvaluateCommand(loadRules func() (*rules.RuleSet, error)) *cobra.Command {
	var (
		stage string
		opts  factsOptions
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Report which prerequisites of a stage are unmet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRules()
			if err != nil {
				return err
			}
			facts, err := opts.load(cmd, rs)
			if err != nil {
				return err
			}

			verdict, err := rules.NewEvaluator(rs.Table).Evaluate(rules.Stage(stage), facts)
			if err != nil {
				return err
			}

			if opts.json {
				return writeJSON(cmd, verdict)
			}
			printVerdict(cmd.OutOrStdout(), rules.Stage(stage), verdict)
			return nil
		},
	}

	cmd.Flags().StringVarP(&stage, "stage", "s", "", "Target stage")
	_ = cmd.MarkFlagRequired("stage")
	opts.register(cmd)
	return cmd
}

func newAuthorizeCommand(loadRules func() (*rules.RuleSet, error)) *cobra.Command {
	var (
		from, to string
		opts     factsOptions
	)

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Decide whether a job may move between two stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRules()
			if err != nil {
				return err
			}
			facts, err := opts.load(cmd, rs)
			if err != nil {
				return err
			}

			decision, err := rules.NewAuthorizer(rs.Table).Authorize(rules.Stage(from), rules.Stage(to), facts)
			if err != nil {
				return err
			}

			if opts.json {
				return writeJSON(cmd, decision)
			}

			out := cmd.OutOrStdout()
			if decision.Allowed {
				fmt.Fprintf(out, "allowed: %s -> %s\n", from, to)
				return nil
			}
			fmt.Fprintf(out, "denied (%s): %s\n", decision.Reason, decision.Detail)
			if decision.Reason == rules.ReasonPrerequisitesUnmet {
				printVerdict(out, rules.Stage(to), decision.Verdict)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Current stage")
	cmd.Flags().StringVar(&to, "to", "", "Target stage")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	opts.register(cmd)
	return cmd
}

func printVerdict(w io.Writer, stage rules.Stage, verdict rules.Verdict) {
	if verdict.CanProgress {
		fmt.Fprintf(w, "ready for %s\n", stage)
		return
	}

	rows := make([][]string, 0, len(verdict.Unmet))
	for _, u := range verdict.Unmet {
		rows = append(rows, []string{u.Field, u.Message})
	}
	fmt.Fprintf(w, "not ready for %s\n", stage)
	fmt.Fprintln(w, renderTable([]string{"Field", "Message"}, rows))
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
