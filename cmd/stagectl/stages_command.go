package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/stagegate/rules"
)

func newStagesCommand(loadRules func() (*rules.RuleSet, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages and their prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRules()
			if err != nil {
				return err
			}

			rows := make([][]string, 0)
			for i, sr := range rs.Table.Stages() {
				flags := make([]string, 0, 2)
				if sr.CanSkip {
					flags = append(flags, "skippable")
				}
				if rs.Table.IsUnrestricted(sr.Stage) {
					flags = append(flags, "unrestricted")
				}

				checks := make([]string, 0, len(sr.Prerequisites))
				for _, p := range sr.Prerequisites {
					checks = append(checks, describePrerequisite(p))
				}
				if len(checks) == 0 {
					checks = append(checks, "-")
				}

				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					string(sr.Stage),
					sr.Label,
					strings.Join(checks, "\n"),
					strings.Join(flags, ", "),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Stage", "Label", "Prerequisites", "Flags"},
				rows,
				1,
			))

			if names := rs.Deriver.Names(); len(names) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Derived facts: %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func describePrerequisite(p rules.Prerequisite) string {
	switch c := p.Check.(type) {
	case rules.Equals:
		return fmt.Sprintf("%s %s %v", p.Field, c.Kind(), c.Value)
	case rules.HasRelated:
		return fmt.Sprintf("%s %s %s.%s", p.Field, c.Kind(), c.Table, c.Field)
	default:
		return fmt.Sprintf("%s %s", p.Field, p.Check.Kind())
	}
}

func newCheckCommand(loadRules func() (*rules.RuleSet, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate a rule file without starting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := loadRules()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d stages, %d unrestricted, %d derived facts\n",
				len(rs.Table.Stages()), len(rs.Table.Unrestricted()), len(rs.Deriver.Names()))
			return nil
		},
	}
}
