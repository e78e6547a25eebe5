package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	activityservice "certhub/internal/activity/service"
	activitystore "certhub/internal/activity/store"
	adminservice "certhub/internal/admin/service"
	"certhub/internal/auth/models"
	userstore "certhub/internal/auth/store/user"
	certservice "certhub/internal/certificate/service"
	certstore "certhub/internal/certificate/store"
	inststore "certhub/internal/institution/store"
	"certhub/internal/platform/database"
	id "certhub/pkg/domain"
)

func (c *cli) migrateCmd() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := c.db(ctx)
			if err != nil {
				return err
			}
			if !status {
				if err := database.Migrate(ctx, db); err != nil {
					return err
				}
			}
			v, err := database.Version(ctx, db)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "schema version %s\n", color.GreenString("%d", v))
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print the current version without migrating")
	return cmd
}

func (c *cli) adminService(cmd *cobra.Command) (*adminservice.Service, error) {
	db, err := c.db(cmd.Context())
	if err != nil {
		return nil, err
	}
	activity := activityservice.New(activitystore.NewPostgres(db), activityservice.WithLogger(c.logger))
	return adminservice.New(userstore.NewPostgres(db), adminservice.StatsSources{},
		adminservice.WithLogger(c.logger),
		adminservice.WithActivityLogger(activity),
	), nil
}

func (c *cli) createAdminCmd() *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Create an administrator account. Without --password a temporary
password is generated and printed once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.adminService(cmd)
			if err != nil {
				return err
			}
			created, err := svc.CreateUser(operatorContext(cmd.Context()), adminservice.CreateUserCommand{
				Email:    email,
				Name:     name,
				Password: password,
				Role:     id.RoleAdmin,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "created admin %s (%s)\n", color.CyanString(created.User.Email), created.User.ID)
			if created.TemporaryPassword != "" {
				fmt.Fprintf(c.out, "temporary password: %s\n", color.YellowString(created.TemporaryPassword))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&name, "name", "", "display name (derived from the email when empty)")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) usersCmd() *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Inspect user accounts",
	}
	var (
		role     string
		search   string
		inactive bool
		limit    int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := models.Filter{Search: search, Limit: limit}
			if role != "" {
				r, err := id.ParseRole(role)
				if err != nil {
					return err
				}
				f.Role = r
			}
			if inactive {
				active := false
				f.Active = &active
			}
			svc, err := c.adminService(cmd)
			if err != nil {
				return err
			}
			page, err := svc.ListUsers(operatorContext(cmd.Context()), f)
			if err != nil {
				return err
			}
			if len(page.Items) == 0 {
				fmt.Fprintln(c.out, "No users found.")
				return nil
			}
			renderUsers(c.out, page.Items)
			fmt.Fprintf(c.out, "%d of %d users\n", len(page.Items), page.Total)
			return nil
		},
	}
	list.Flags().StringVar(&role, "role", "", "filter by role (ADMIN, INSTITUTION, USER)")
	list.Flags().StringVar(&search, "search", "", "match email or name")
	list.Flags().BoolVar(&inactive, "inactive", false, "only deactivated accounts")
	list.Flags().IntVar(&limit, "limit", models.DefaultPageSize, "maximum rows")
	users.AddCommand(list)
	return users
}

func renderUsers(w io.Writer, users []*models.User) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Email", "Name", "Role", "Active", "Last login"})
	table.SetAutoWrapText(false)
	for _, u := range users {
		lastLogin := "-"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.UTC().Format(time.DateTime)
		}
		active := color.GreenString("yes")
		if !u.Active {
			active = color.RedString("no")
		}
		table.Append([]string{u.ID.String(), u.Email, u.Name, string(u.Role), active, lastLogin})
	}
	table.Render()
}

func (c *cli) purgeLogsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge-logs",
		Short: "Delete activity logs older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				days = c.cfg.Activity.RetentionDays
			}
			db, err := c.db(cmd.Context())
			if err != nil {
				return err
			}
			svc := activityservice.New(activitystore.NewPostgres(db), activityservice.WithLogger(c.logger))
			n, err := svc.Purge(operatorContext(cmd.Context()), time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "purged %s activity logs older than %d days\n", color.GreenString(strconv.FormatInt(n, 10)), days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (defaults to ACTIVITY_RETENTION_DAYS)")
	return cmd
}

func (c *cli) expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-certificates",
		Short: "Mark certificates past their expiry date as EXPIRED",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.db(cmd.Context())
			if err != nil {
				return err
			}
			activity := activityservice.New(activitystore.NewPostgres(db), activityservice.WithLogger(c.logger))
			svc := certservice.New(certstore.NewPostgres(db), inststore.NewPostgres(db), userstore.NewPostgres(db),
				certservice.WithLogger(c.logger),
				certservice.WithActivityLogger(activity),
			)
			n, err := svc.ExpireDue(operatorContext(cmd.Context()))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "expired %s certificates\n", color.GreenString(strconv.Itoa(n)))
			return nil
		},
	}
}
