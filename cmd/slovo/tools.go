package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/slovoapp/slovo/internal/domain/models"
)

const toolListLimit = 100

// toolCmd groups the non-interactive tool lifecycle commands
func toolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Manage tool manifests",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list [pending]",
			Short: "List tool manifests",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := toolRuntime(cmd.Context())
				if err != nil {
					return err
				}
				defer rt.close()
				pendingOnly := len(args) > 0 && args[0] == "pending"
				return printTools(cmd.Context(), rt, pendingOnly)
			},
		},
		&cobra.Command{
			Use:   "import <path>",
			Short: "Import a tool manifest from a JSON or YAML file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := toolRuntime(cmd.Context())
				if err != nil {
					return err
				}
				defer rt.close()
				return runToolCommand(cmd.Context(), rt, "import", args)
			},
		},
		&cobra.Command{
			Use:   "openapi <url>",
			Short: "Import a tool manifest from an OpenAPI specification",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := toolRuntime(cmd.Context())
				if err != nil {
					return err
				}
				defer rt.close()
				return runToolCommand(cmd.Context(), rt, "openapi", args)
			},
		},
		&cobra.Command{
			Use:   "approve <id>",
			Short: "Approve a pending tool manifest",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := toolRuntime(cmd.Context())
				if err != nil {
					return err
				}
				defer rt.close()
				return runToolCommand(cmd.Context(), rt, "approve", args)
			},
		},
		&cobra.Command{
			Use:   "revoke <id>",
			Short: "Revoke a tool manifest and remove its volume",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := toolRuntime(cmd.Context())
				if err != nil {
					return err
				}
				defer rt.close()
				return runToolCommand(cmd.Context(), rt, "revoke", args)
			},
		},
		&cobra.Command{
			Use:   "logs <id> [n]",
			Short: "Show recent executions of a tool",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := toolRuntime(cmd.Context())
				if err != nil {
					return err
				}
				defer rt.close()
				return runToolCommand(cmd.Context(), rt, "logs", args)
			},
		},
	)

	return cmd
}

// toolRuntime wires the runtime and fails when the tool service is absent
func toolRuntime(ctx context.Context) (*runtime, error) {
	rt, err := initRuntime(ctx)
	if err != nil {
		return nil, err
	}
	if rt.tools == nil {
		rt.close()
		return nil, fmt.Errorf("tool service unavailable (is Postgres running?)")
	}
	return rt, nil
}

func printTools(ctx context.Context, rt *runtime, pendingOnly bool) error {
	var status models.ManifestStatus
	if pendingOnly {
		status = models.ManifestPendingApproval
	}

	manifests, err := rt.tools.List(ctx, status, toolListLimit, 0)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Println("No tools found.")
		return nil
	}

	for _, m := range manifests {
		fmt.Printf("%-28s %-20s %-8s %s\n", m.ID, m.Name, m.Version, m.Status)
		if m.Description != "" {
			fmt.Printf("  %s\n", m.Description)
		}
	}
	return nil
}

func runToolCommand(ctx context.Context, rt *runtime, verb string, args []string) error {
	switch verb {
	case "import":
		manifest, err := rt.tools.Import(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s %s (%s), status %s\n", manifest.Name, manifest.Version, manifest.ID, manifest.Status)
		return nil

	case "openapi":
		manifest, err := rt.tools.ImportOpenAPI(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %s %s (%s) from OpenAPI, status %s\n", manifest.Name, manifest.Version, manifest.ID, manifest.Status)
		return nil

	case "approve":
		if err := rt.tools.Approve(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Approved %s\n", args[0])
		return nil

	case "revoke":
		if err := rt.tools.Revoke(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Revoked %s\n", args[0])
		return nil

	case "logs":
		limit := 10
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
				limit = n
			}
		}
		executions, err := rt.tools.ExecutionLogs(ctx, args[0], limit)
		if err != nil {
			return err
		}
		if len(executions) == 0 {
			fmt.Println("No executions recorded.")
			return nil
		}
		for _, e := range executions {
			fmt.Printf("%s  %-8s  %6dms  %s\n", e.StartedAt.Format("2006-01-02 15:04:05"), e.Status, e.DurationMs, e.ID)
			if e.Error != "" {
				fmt.Printf("  error: %s\n", e.Error)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown tool command %q", verb)
	}
}
