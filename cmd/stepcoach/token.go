package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vincentbai/stepcoach/internal/config"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/tokens"
)

var (
	tokenUser        string
	tokenOrg         string
	tokenTTL         time.Duration
	tokenWalkthrough string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint extension and share tokens",
	Long: `Mint tokens signed with auth.token_secret.

Available subcommands:
  extension - token the browser extension sends as a bearer token
  share     - token for a public walkthrough link`,
}

var tokenExtensionCmd = &cobra.Command{
	Use:   "extension",
	Short: "Mint an extension token",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, signer, err := loadSigner()
		if err != nil {
			return err
		}
		token, err := signer.ExtensionToken(tokenUser, tokenOrg, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenShareCmd = &cobra.Command{
	Use:   "share",
	Short: "Share a ready walkthrough and print its token",
	Long: `Mark a ready walkthrough as shared, which locks its metadata like
sharing from the dashboard does, then print the share token and link.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, signer, err := loadSigner()
		if err != nil {
			return err
		}
		db, err := database.NewDatabase(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		walkthrough, err := db.MarkShared(cmd.Context(), tokenOrg, tokenWalkthrough)
		if err != nil {
			return fmt.Errorf("walkthrough %s: %w", tokenWalkthrough, err)
		}
		token, err := signer.ShareToken(walkthrough.ID, walkthrough.OrgID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n/api/share/%s\n", token, token)
		return nil
	},
}

func init() {
	tokenExtensionCmd.Flags().StringVar(&tokenUser, "user", "", "user id")
	tokenExtensionCmd.Flags().StringVar(&tokenOrg, "org", "", "organization id")
	tokenExtensionCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")
	tokenExtensionCmd.MarkFlagRequired("user")
	tokenExtensionCmd.MarkFlagRequired("org")

	tokenShareCmd.Flags().StringVar(&tokenWalkthrough, "walkthrough", "", "walkthrough id")
	tokenShareCmd.Flags().StringVar(&tokenOrg, "org", "", "organization id")
	tokenShareCmd.MarkFlagRequired("walkthrough")
	tokenShareCmd.MarkFlagRequired("org")

	tokenCmd.AddCommand(tokenExtensionCmd, tokenShareCmd)
}

func loadSigner() (*config.Config, *tokens.Signer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	signer, err := tokens.NewSigner([]byte(cfg.Auth.TokenSecret))
	return cfg, signer, err
}
