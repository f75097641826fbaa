// Command manage runs administrative tasks against the library database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"library-api/pkg/auth"
	"library-api/pkg/circulation"
	"library-api/pkg/config"
	"library-api/pkg/database"
	"library-api/pkg/filters"
	"library-api/pkg/importer"
	"library-api/pkg/models"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"
)

const passwordEnv = "LIBRARY_SUPERUSER_PASSWORD"

type app struct {
	open         func(ctx context.Context) (*gorm.DB, error)
	readPassword func(prompt string) (string, error)
	db           *gorm.DB
}

func main() {
	a := &app{open: openFromConfig, readPassword: readPassword}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func openFromConfig(ctx context.Context) (*gorm.DB, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	return database.Connect(ctx, cfg.DB, false, 3, 2*time.Second)
}

// readPassword reads a password from the terminal without echo.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "manage",
		Short:         "Library administration commands",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.db != nil {
				return nil
			}
			db, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
	}
	root.AddCommand(
		a.migrateCmd(),
		a.createSuperuserCmd(),
		a.seedGroupsCmd(),
		a.addToGroupCmd(),
		a.markOverdueCmd(),
		a.importBooksCmd(),
	)
	return root
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Migrate(cmd.Context(), a.db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

func (a *app) createSuperuserCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an account with every permission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				first, err := a.readPassword("Password: ")
				if err != nil {
					return err
				}
				again, err := a.readPassword("Password (again): ")
				if err != nil {
					return err
				}
				if first != again {
					return errors.New("passwords didn't match")
				}
				password = first
			}
			for _, problem := range auth.ValidatePassword(password, email) {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", problem)
			}
			user, err := auth.CreateSuperuser(cmd.Context(), a.db, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Superuser %s created.\n", user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address used to log in")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty, or read from "+passwordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) seedGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-groups",
		Short: "Create the Member and Librarian groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.SeedGroups(cmd.Context(), a.db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Groups %s and %s are up to date.\n", models.MemberGroup, models.LibrarianGroup)
			return nil
		},
	}
}

func (a *app) addToGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-to-group <email> <group>",
		Short: "Add a user to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.AddToGroup(cmd.Context(), a.db, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s.\n", args[0], args[1])
			return nil
		},
	}
}

func (a *app) markOverdueCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "mark-overdue",
		Short: "Flag active loans whose due date has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := circulation.NewService(a.db)
			asOf := svc.Now()
			if date != "" {
				t, err := time.Parse(filters.DateLayout, date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				asOf = t
			}
			n, err := svc.MarkOverdue(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d borrow record(s) overdue.\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "treat this day (YYYY-MM-DD) as today")
	return cmd
}

func (a *app) importBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-books <file.csv>",
		Short: "Import books from a CSV file",
		Long:  "Import books from a CSV file with the header " + strings.Join(importer.Columns, ",") + ".\nAuthors are separated by ';'.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return runImport(cmd.Context(), cmd.OutOrStdout(), importer.New(a.db), f)
		},
	}
}

func runImport(ctx context.Context, out io.Writer, im *importer.Importer, r io.Reader) error {
	res, err := im.ImportBooks(ctx, r)
	if err != nil {
		return err
	}
	for _, rowErr := range res.Errors {
		fmt.Fprintf(out, "ERROR - %v\n", rowErr)
	}
	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d books\n", res.Imported)
	fmt.Fprintf(out, "Skipped (already present): %d\n", res.Skipped)
	fmt.Fprintf(out, "Errors: %d\n", len(res.Errors))
	return nil
}
