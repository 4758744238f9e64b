package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/controlplane/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/controlplane/internal/catalog/domain"
	"github.com/smallbiznis/controlplane/internal/migration"
	obscontext "github.com/smallbiznis/controlplane/internal/observability/context"
	"github.com/smallbiznis/controlplane/internal/seed"
	subscriptiondomain "github.com/smallbiznis/controlplane/internal/subscription/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewRootCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tenantctl",
		Short:         "operate control plane tenants and plans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		newMigrateCmd(open),
		newSeedPlansCmd(open),
		newProvisionCmd(open),
		newDropCmd(open),
		newDeactivateCmd(open),
		newDeleteCmd(open),
		newRenewCmd(open),
		newSetStatusCmd(open),
		newRecountCmd(open),
	)
	return cmd
}

// run opens the services for one command and always releases them.
func run(cmd *cobra.Command, open Opener, fn func(ctx context.Context, svc *Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeOperator), "tenantctl")
	svc, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, svc)
}

func newMigrateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply catalog migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, open, func(_ context.Context, svc *Services) error {
				if err := migration.Migrate(svc.DB); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "catalog migrated")
				return nil
			})
		},
	}
}

func newSeedPlansCmd(open Opener) *cobra.Command {
	var update bool
	cmd := &cobra.Command{
		Use:   "seed-plans <file>",
		Short: "load plans from a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *Services) error {
				var opts []seed.Option
				if !update {
					opts = append(opts, seed.CreateOnly())
				}
				summary, err := seed.SeedPlansFromFile(ctx, svc.Catalog, args[0], svc.Log.Named("seed"), opts...)
				if errors.Is(err, catalogdomain.ErrPlanExists) {
					return fmt.Errorf("%w: rerun with --update to overwrite", err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "plans created=%d updated=%d\n", summary.Created, summary.Updated)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&update, "update", false, "overwrite plans whose slug already exists")
	return cmd
}

func newProvisionCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "provision <schema>",
		Short: "create or migrate a tenant namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *Services) error {
				if err := svc.Provisioner.Provision(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "namespace %s provisioned (%s)\n", args[0], svc.Provisioner.Strategy())
				return nil
			})
		},
	}
}

func newDropCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <schema>",
		Short: "drop a tenant namespace and its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *Services) error {
				if err := svc.Provisioner.Drop(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "namespace %s dropped\n", args[0])
				return nil
			})
		},
	}
}

func newDeactivateCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <tenant>",
		Short: "stop serving a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *Services) error {
				tenant, err := lookupTenant(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if err := svc.Catalog.DeactivateTenant(ctx, tenant.ID); err != nil {
					return err
				}
				recordAudit(ctx, svc, tenant.ID, auditdomain.ActionTenantDeactivate, nil)
				svc.Log.Info("tenant deactivated", zap.String("tenant_id", tenant.ID.String()))
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s deactivated\n", tenant.ID)
				return nil
			})
		},
	}
}

func newDeleteCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant>",
		Short: "drop a tenant namespace and its catalog rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *Services) error {
				tenant, err := lookupTenant(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if err := svc.Catalog.DeleteTenant(ctx, tenant.ID); err != nil {
					return err
				}
				recordAudit(ctx, svc, tenant.ID, auditdomain.ActionTenantDelete, nil)
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s deleted\n", tenant.ID)
				return nil
			})
		},
	}
}

func newRenewCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "renew <tenant> <days>",
		Short: "extend a subscription period from now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			days, err := strconv.Atoi(args[1])
			if err != nil || days <= 0 {
				return fmt.Errorf("days must be a positive integer, got %q", args[1])
			}
			return run(cmd, open, func(ctx context.Context, svc *Services) error {
				tenant, err := lookupTenant(ctx, svc, args[0])
				if err != nil {
					return err
				}
				sub, err := svc.Subscriptions.Renew(ctx, tenant.ID, days)
				if err != nil {
					return err
				}
				recordAudit(ctx, svc, tenant.ID, auditdomain.ActionTenantRenew, map[string]any{
					"days":       days,
					"status":     string(sub.Status),
					"period_end": sub.PeriodEnd,
				})
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s %s until %s\n", tenant.ID, sub.Status, sub.PeriodEnd.Format("2006-01-02T15:04:05Z07:00"))
				return nil
			})
		},
	}
}

func newSetStatusCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <tenant> <active|past_due|canceled|expired>",
		Short: "force a subscription transition the provider never reported",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *Services) error {
				tenant, err := lookupTenant(ctx, svc, args[0])
				if err != nil {
					return err
				}
				var transition func(context.Context, snowflake.ID) (*subscriptiondomain.Subscription, error)
				switch subscriptiondomain.Status(args[1]) {
				case subscriptiondomain.StatusActive:
					transition = svc.Subscriptions.Activate
				case subscriptiondomain.StatusPastDue:
					transition = svc.Subscriptions.MarkPastDue
				case subscriptiondomain.StatusCanceled:
					transition = svc.Subscriptions.MarkCanceled
				case subscriptiondomain.StatusExpired:
					transition = svc.Subscriptions.MarkExpired
				default:
					return fmt.Errorf("%w: %q", subscriptiondomain.ErrInvalidStatus, args[1])
				}
				sub, err := transition(ctx, tenant.ID)
				if err != nil {
					return err
				}
				recordAudit(ctx, svc, tenant.ID, auditdomain.ActionSubscriptionStatus, map[string]any{
					"status":     string(sub.Status),
					"period_end": sub.PeriodEnd,
				})
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s %s until %s\n", tenant.ID, sub.Status, sub.PeriodEnd.Format("2006-01-02T15:04:05Z07:00"))
				return nil
			})
		},
	}
}

func newRecountCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "recount <tenant>",
		Short: "rebuild quota counters from the tenant namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(ctx context.Context, svc *Services) error {
				tenant, err := lookupTenant(ctx, svc, args[0])
				if err != nil {
					return err
				}
				counts, err := svc.Registry.Recount(ctx, tenant)
				if err != nil {
					return err
				}
				recordAudit(ctx, svc, tenant.ID, auditdomain.ActionTenantRecount, nil)
				fmt.Fprintf(cmd.OutOrStdout(), "users=%d companies=%d branches=%d storage_mb=%d\n",
					counts.Users, counts.Companies, counts.Branches, counts.StorageMB)
				return nil
			})
		},
	}
}

func recordAudit(ctx context.Context, svc *Services, tenantID snowflake.ID, action string, metadata map[string]any) {
	if svc.Audit == nil {
		return
	}
	if err := svc.Audit.Record(ctx, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     action,
		TargetType: "tenant",
		TargetID:   tenantID.String(),
		Metadata:   metadata,
	}); err != nil {
		svc.Log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

// lookupTenant accepts a tenant id, a schema name or a host.
func lookupTenant(ctx context.Context, svc *Services, ref string) (*catalogdomain.Tenant, error) {
	ref = strings.TrimSpace(ref)
	if id, err := snowflake.ParseString(ref); err == nil && id != 0 {
		return svc.Catalog.GetTenant(ctx, id)
	}
	if strings.Contains(ref, ".") {
		return svc.Catalog.ResolveByHost(ctx, ref)
	}
	return svc.Catalog.GetTenantBySchema(ctx, ref)
}
