package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"michi-relay/internal/domain"
)

func newClassifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text...>",
		Short: "Print the category and device payload for a transcript",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier, err := newClassifier(c.cfg.Intent)
			if err != nil {
				return err
			}

			category := classifier.Classify(strings.Join(args, " "))
			payload, err := domain.NewDeviceCommand(category).Encode()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "category: %s\npayload:  %s\n", category, payload)
			return nil
		},
	}
}

func newWakeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "wake <text...>",
		Short: "Report whether a transcript contains a wake phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier, err := newClassifier(c.cfg.Intent)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wakeword_detected: %t\n", classifier.IsWake(strings.Join(args, " ")))
			return nil
		},
	}
}
