package main

import (
	"github.com/spf13/cobra"

	"github.com/liamcoop/stagegate/internal/config"
	"github.com/liamcoop/stagegate/internal/logger"
	"github.com/liamcoop/stagegate/rules"
)

func newRootCommand() *cobra.Command {
	var rulesFlag string

	rootCmd := &cobra.Command{
		Use:           "stagectl",
		Short:         "Inspect and exercise the job stage pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadLog()
			if err != nil {
				return err
			}
			return logger.Configure(cmd.Context(), logger.Options{
				Level:       cfg.Level,
				SampleRate:  cfg.SampleRate,
				OTELEnabled: cfg.OTELEnabled,
				ServiceName: cfg.ServiceName,
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&rulesFlag, "rules", "r", "", "Rule file (defaults to the built-in pipeline)")

	loadRules := func() (*rules.RuleSet, error) {
		if rulesFlag == "" {
			return rules.DefaultRuleSet()
		}
		return rules.LoadRuleFile(rulesFlag)
	}

	rootCmd.AddCommand(newStagesCommand(loadRules))
	rootCmd.AddCommand(newCheckCommand(loadRules))
	rootCmd.AddCommand(newEvaluateCommand(loadRules))
	rootCmd.AddCommand(newAuthorizeCommand(loadRules))
	rootCmd.AddCommand(newMigrateCommand())

	return rootCmd
}
