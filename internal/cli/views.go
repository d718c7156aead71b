package cli

import (
	"context"
	"errors"
	"fmt"

	"partner-portal/internal/api"
	"partner-portal/internal/audit"
	"partner-portal/internal/httperr"
	"partner-portal/internal/rbac"

	"github.com/spf13/cobra"
)

// adminLookupSize is how many referrals are fetched to resolve reference numbers in
// the audit log.
const adminLookupSize = 500

func (a *App) referralsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "referrals",
		Aliases: []string{"refs"},
		Short:   "List your referrals",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cl, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			refs, err := cl.MyReferrals(cmd.Context())
			if err != nil {
				return userError(err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(a.out, refs)
			}
			if len(refs) == 0 {
				fmt.Fprintln(a.out, "No referrals yet.")
				return nil
			}
			rows := make([][]string, 0, len(refs))
			for _, r := range refs {
				rows = append(rows, []string{orDash(r.RefNo), r.Company, orDash(r.Status), when(r.CreatedAt)})
			}
			return renderTable(a.out, []string{"Ref", "Company", "Status", "Created"}, rows)
		},
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func (a *App) adminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator views",
	}
	cmd.AddCommand(a.adminUsersCommand(), a.adminReferralsCommand())
	return cmd
}

// admin runs the session check and then requires the live role to be admin.
func (a *App) admin(ctx context.Context) (*api.Client, error) {
	u, cl, err := a.signedIn(ctx)
	if err != nil {
		return nil, err
	}
	if !rbac.IsAdmin(u.Role) {
		return nil, errors.New(httperr.MsgForbidden)
	}
	return cl, nil
}

func pageFlags(cmd *cobra.Command, limit int) {
	cmd.Flags().Int("limit", limit, "page size")
	cmd.Flags().Int("offset", 0, "rows to skip")
	cmd.Flags().Bool("json", false, "output as JSON")
}

func pageOf(cmd *cobra.Command) (limit, offset int, asJSON bool) {
	limit, _ = cmd.Flags().GetInt("limit")
	offset, _ = cmd.Flags().GetInt("offset")
	asJSON, _ = cmd.Flags().GetBool("json")
	if offset < 0 {
		offset = 0
	}
	return limit, offset, asJSON
}

func (a *App) adminUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List portal users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.admin(cmd.Context())
			if err != nil {
				return err
			}
			limit, offset, asJSON := pageOf(cmd)
			page, err := cl.AdminUsers(cmd.Context(), limit, offset)
			if err != nil {
				return userError(err)
			}
			if asJSON {
				return writeJSON(a.out, page)
			}
			rows := make([][]string, 0, len(page.Items))
			for _, u := range page.Items {
				active := u.IsActive == nil || *u.IsActive
				rows = append(rows, []string{u.Email, u.DisplayName(), u.Role.String(), yesNo(active), yesNo(u.MFAEnabled)})
			}
			return renderTable(a.out, []string{"Email", "Name", "Role", "Active", "MFA"}, rows)
		},
	}
	pageFlags(cmd, 50)
	return cmd
}

func (a *App) adminReferralsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "referrals",
		Short: "List every referral",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := a.admin(cmd.Context())
			if err != nil {
				return err
			}
			limit, offset, asJSON := pageOf(cmd)
			page, err := cl.AdminReferrals(cmd.Context(), limit, offset)
			if err != nil {
				return userError(err)
			}
			if asJSON {
				return writeJSON(a.out, page)
			}
			rows := make([][]string, 0, len(page.Items))
			for _, r := range page.Items {
				rows = append(rows, []string{orDash(r.RefNo), r.Company, orDash(r.Status), orDash(r.AgentID), when(r.CreatedAt)})
			}
			return renderTable(a.out, []string{"Ref", "Company", "Status", "Agent", "Created"}, rows)
		},
	}
	pageFlags(cmd, 50)
	return cmd
}

func (a *App) auditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show audit activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			u, cl, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			limit, offset, asJSON := pageOf(cmd)
			refNos, err := a.refNumbers(ctx, cl, u.Role)
			if err != nil {
				a.log.Debug("reference numbers unavailable", "error", err)
			}
			entries, err := audit.NewService(cl).Page(ctx, limit, offset, refNos)
			if err != nil {
				return userError(err)
			}
			if asJSON {
				return writeJSON(a.out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No activity.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{when(&e.CreatedAt), e.Action, e.Label})
			}
			return renderTable(a.out, []string{"When", "Action", "Activity"}, rows)
		},
	}
	pageFlags(cmd, audit.DefaultPageSize)
	return cmd
}

// refNumbers maps referral ids to reference numbers for the audit labels.
func (a *App) refNumbers(ctx context.Context, cl *api.Client, role rbac.Role) (map[string]string, error) {
	var refs []api.Referral
	if rbac.IsAdmin(role) {
		page, err := cl.AdminReferrals(ctx, adminLookupSize, 0)
		if err != nil {
			return nil, err
		}
		refs = page.Items
	} else {
		mine, err := cl.MyReferrals(ctx)
		if err != nil {
			return nil, err
		}
		refs = mine
	}
	out := make(map[string]string, len(refs))
	for _, r := range refs {
		if r.RefNo != "" {
			out[r.ID] = r.RefNo
		}
	}
	return out, nil
}
