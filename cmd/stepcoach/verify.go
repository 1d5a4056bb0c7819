package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/logging"
	"github.com/vincentbai/stepcoach/internal/replay"
	"github.com/vincentbai/stepcoach/internal/xpath"
)

var (
	verifySnapshot string
	verifyRemote   string
	verifyHeadful  bool
	verifyNoInput  bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <walkthrough-id>",
	Short: "Check that a walkthrough's elements can still be found",
	Long: `Replay a stored walkthrough and report, step by step, whether the
recorded xpath still locates an element of the recorded tag.

With --snapshot the steps are checked against a saved HTML file instead of a
live browser.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var xpathCmd = &cobra.Command{
	Use:   "xpath <file.html> [xpath]",
	Short: "Resolve an xpath against a saved page",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runXPath,
}

func init() {
	verifyCmd.Flags().StringVar(&verifySnapshot, "snapshot", "", "saved HTML page to check against")
	verifyCmd.Flags().StringVar(&verifyRemote, "remote", "", "DevTools URL of an already running browser")
	verifyCmd.Flags().BoolVar(&verifyHeadful, "headful", false, "show the browser window")
	verifyCmd.Flags().BoolVar(&verifyNoInput, "no-interact", false, "only locate elements, never click or type")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Sync()

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	walkthrough, err := db.GetWalkthrough(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("walkthrough %s: %w", args[0], err)
	}

	var report *replay.Report
	if verifySnapshot != "" {
		file, err := os.Open(verifySnapshot)
		if err != nil {
			return err
		}
		defer file.Close()
		root, err := xpath.Parse(file)
		if err != nil {
			return err
		}
		report = replay.VerifySnapshot(walkthrough, root)
	} else {
		opts := replay.DefaultOptions()
		opts.RemoteURL = verifyRemote
		opts.Headless = !verifyHeadful
		opts.Interact = !verifyNoInput
		report, err = replay.Verify(cmd.Context(), walkthrough, opts)
		if err != nil {
			return err
		}
	}

	if err := printJSON(cmd, report); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d steps could not be located", report.Missing, len(report.Results))
	}
	return nil
}

func runXPath(cmd *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()
	root, err := xpath.Parse(file)
	if err != nil {
		return err
	}

	// Without an xpath, list every element's locator.
	if len(args) == 1 {
		for _, element := range xpath.Elements(root) {
			fmt.Fprintln(cmd.OutOrStdout(), xpath.Build(element))
		}
		return nil
	}

	node := xpath.Resolve(root, args[1])
	if node == nil {
		return fmt.Errorf("no element at %s", args[1])
	}
	return printJSON(cmd, xpath.Describe(node))
}

func printJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
