package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	httpmiddleware "github.com/wolfman30/mealprep-intake/internal/http/middleware"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token for the /admin order dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if secret == "" {
				return errors.New("--secret or ADMIN_JWT_SECRET is required")
			}
			if !slices.Contains(httpmiddleware.AdminRoles, role) {
				return fmt.Errorf("role must be one of %v", httpmiddleware.AdminRoles)
			}
			token, err := httpmiddleware.IssueAdminToken(secret, args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("secret", os.Getenv("ADMIN_JWT_SECRET"), "HMAC secret shared with the API")
	cmd.Flags().String("role", "operator", "Role claim (admin or operator)")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}
