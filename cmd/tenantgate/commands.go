package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "tenantgate",
		Short:        "Multi-tenant access control gateway",
		Long:         `tenantgate serves the tenancy, role and billing API behind a session gate. Without a subcommand it runs the server.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(serveCmd(), migrateCmd(), rolesCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the API and health servers",
		SilenceUsage: true,
		RunE:         runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"version": version,
		"mode":    cfg.Tenancy.Mode,
	}).Info("Starting tenantgate")

	if err := run(cmd.Context(), cfg, logger); err != nil {
		logger.WithError(err).Error("tenantgate stopped with an error")
		return err
	}
	logger.Info("tenantgate stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply pending schema migrations and exit",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			cfg.Database.MigrateOnBoot = true

			db, err := openDatabase(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func rolesCmd() *cobra.Command {
	var showPermissions bool
	cmd := &cobra.Command{
		Use:          "roles",
		Short:        "Print the system role ladder",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printRoles(cmd, rbac.NewRegistry(), showPermissions)
		},
	}
	cmd.Flags().BoolVarP(&showPermissions, "permissions", "p", false, "list the permissions of each role")
	return cmd
}

func printRoles(cmd *cobra.Command, registry *rbac.Registry, showPermissions bool) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tLEVEL\tPERMISSIONS\tDEFAULT")
	for _, role := range registry.Roles() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%t\n", role.ID, role.Level, len(role.Permissions), role.IsDefault)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if showPermissions {
		for _, role := range registry.Roles() {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n  %s\n", role.ID, strings.Join(role.Permissions, "\n  "))
		}
	}

	for _, v := range registry.HierarchyViolations() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is missing %s from %s\n", v.Higher, strings.Join(v.Missing, ", "), v.Lower)
	}
	return nil
}

func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, observability.LogFormat(cfg.Observability.LogFormat), os.Stdout)
	return cfg, logger, nil
}
