package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cori-do/cori/internal/approval"
	"github.com/cori-do/cori/internal/audit"
	"github.com/cori-do/cori/internal/dynamictool"
	"github.com/cori-do/cori/internal/metrics"
	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/cori-do/cori/internal/sqlgen"
	"github.com/prometheus/client_golang/prometheus"
)

func approvalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "Inspect and decide on pending approval requests",
	}
	cmd.AddCommand(
		approvalListCommand(),
		approvalApproveCommand(),
		approvalRejectCommand(),
	)
	return cmd
}

func approvalListCommand() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending approval requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail("loading config: %w", err)
			}
			store, err := approval.Open(cfg.Approval.LogDir)
			if err != nil {
				return fail("opening approval store: %w", err)
			}
			pending, err := store.ListPending(tenant)
			if err != nil {
				return fail("listing pending approvals: %w", err)
			}
			for _, req := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\ttool=%s\ttenant=%s\trole=%s\tfields=%v\texpires_at=%s\n",
					req.ID, req.ToolName, req.Tenant, req.Role, req.ApprovalFields, req.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "restrict to a tenant (empty lists every tenant)")
	return cmd
}

func approvalApproveCommand() *cobra.Command {
	var id, by, reason string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a pending request and execute its mutation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return decideAndExecute(cmd.Context(), id, by, reason, true)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "approval request id")
	cmd.Flags().StringVar(&by, "by", "", "identity of the approver")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the decision")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("by")
	return cmd
}

func approvalRejectCommand() *cobra.Command {
	var id, by, reason string
	cmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject a pending request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return decideAndExecute(cmd.Context(), id, by, reason, false)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "approval request id")
	cmd.Flags().StringVar(&by, "by", "", "identity of the rejector")
	cmd.Flags().StringVar(&reason, "reason", "", "reason for the decision")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("by")
	return cmd
}

func decideAndExecute(ctx context.Context, id, by, reason string, approve bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fail("loading config: %w", err)
	}
	logger := newLogger(cfg)

	store, err := approval.Open(cfg.Approval.LogDir)
	if err != nil {
		return fail("opening approval store: %w", err)
	}

	if !approve {
		if _, err := store.Reject(id, by, reason); err != nil {
			return fail("rejecting request: %w", err)
		}
		return nil
	}

	req, err := store.Approve(id, by, reason)
	if err != nil {
		return fail("approving request: %w", err)
	}

	sch, err := schema.Load(cfg.Database.SchemaPath)
	if err != nil {
		return fail("loading schema: %w", err)
	}
	role, err := permission.LoadRole(cfg.Database.RolePath)
	if err != nil {
		return fail("loading role: %w", err)
	}
	rules, err := permission.LoadRules(cfg.Database.RulesPath)
	if err != nil {
		return fail("loading rules: %w", err)
	}
	model, err := permission.NewModel(role, rules, sch)
	if err != nil {
		return fail("building permission model: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return fail("connecting to database: %w", err)
	}
	defer pool.Close()
	emitter := sqlgen.New(model, sch, sqlgen.NewPoolExecutor(pool))

	auditWriter, err := audit.NewFileWriter(cfg.Approval.LogDir + "/audit.log")
	if err != nil {
		return fail("opening audit log: %w", err)
	}
	sink := audit.NewQueueSink(auditWriter, 1024, logger)
	defer sink.Close()

	reg := metrics.New(prometheus.NewRegistry())
	result, err := dynamictool.ExecuteApproved(ctx, emitter, model, sink, reg, req)
	if err != nil {
		return fail("executing approved request: %w", err)
	}
	var pretty map[string]any
	if jsonErr := json.Unmarshal(result, &pretty); jsonErr == nil {
		if b, marshalErr := json.MarshalIndent(pretty, "", "  "); marshalErr == nil {
			result = b
		}
	}
	if err := store.AttachResult(id, result); err != nil {
		return fail("recording execution result: %w", err)
	}
	fmt.Println(string(result))
	return nil
}
