package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	auth "github.com/goliatone/go-hr-auth"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	cmd.AddCommand(newUserCreateCmd(opts))

	return cmd
}

func newUserCreateCmd(opts *rootOptions) *cobra.Command {
	msg := auth.RegisterUserMessage{}
	var passwordFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account in the server database",
		Example: `  hrauth user create --name "Jane Doe" --email jane@example.com --role "human resources manager"
  hrauth user create --name Bob --email bob@example.com --phone "+1 415 555 2671" --password-file pw.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := auth.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}

			password, err := readPassword(passwordFile, true)
			if err != nil {
				return err
			}
			msg.Password = password

			user, err := createUser(cmd.Context(), cfg, msg)
			if err != nil {
				if fields := auth.ValidationErrorFields(err); len(fields) > 0 {
					for field, errs := range fields {
						fmt.Fprintf(os.Stderr, "  %s: %s\n", field, strings.Join(errs, ", "))
					}
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s <%s> id=%s role=%q\n", user.Name, user.Email, user.ID, user.Role)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&msg.Name, "name", "", "full name")
	flags.StringVar(&msg.Email, "email", "", "email address")
	flags.StringVar(&msg.Username, "username", "", "username, defaults to the email local part")
	flags.StringVar(&msg.Phone, "phone", "", "phone number")
	flags.StringVar(&msg.Region, "region", auth.DefaultPhoneRegion, "region used to parse the phone number")
	flags.StringVar(&msg.Role, "role", string(auth.RoleCollaborator), "role")
	flags.BoolVar(&msg.UseHashid, "hashid", false, "derive the user id from the email")
	flags.StringVar(&passwordFile, "password-file", "", "read the password from a file, - prompts")

	return cmd
}

func createUser(ctx context.Context, cfg *auth.BaseConfig, msg auth.RegisterUserMessage) (*auth.User, error) {
	db, closeDB, err := auth.OpenMigratedDB(ctx, cfg.GetPersistence())
	if err != nil {
		return nil, err
	}
	defer closeDB()

	return auth.NewRegisterUserHandler(auth.NewRepositoryManager(db)).Execute(ctx, msg)
}

// readPassword reads from path, or prompts on the terminal with echo off
func readPassword(path string, confirm bool) (string, error) {
	if path != "" && path != "-" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal available for the password prompt, use --password-file")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm password: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		if string(first) != string(second) {
			return "", fmt.Errorf("passwords do not match")
		}
	}

	return string(first), nil
}
