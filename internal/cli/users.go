package cli

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/ogulcanaydogan/aeris/internal/config"
	"github.com/ogulcanaydogan/aeris/pkg/account"
	"github.com/ogulcanaydogan/aeris/pkg/model"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered users",
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new user",
	RunE:  runUsersAdd,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	RunE:  runUsersList,
}

var usersLinkCmd = &cobra.Command{
	Use:   "link <username> <chat-id>",
	Short: "Link a user to a notification endpoint",
	Args:  cobra.ExactArgs(2),
	RunE:  runUsersLink,
}

var usersLocateCmd = &cobra.Command{
	Use:   "locate <username> <latitude> <longitude>",
	Short: "Set the location checked for a user",
	Args:  cobra.ExactArgs(3),
	RunE:  runUsersLocate,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersLinkCmd)
	usersCmd.AddCommand(usersLocateCmd)

	usersAddCmd.Flags().StringP("username", "u", "", "Username")
	usersAddCmd.Flags().StringP("email", "e", "", "Email address")
	usersAddCmd.Flags().StringP("password", "p", "", "Password")
	usersAddCmd.Flags().String("mode", "", "Alert mode (default Low)")
	usersAddCmd.Flags().String("chat-id", "", "Notification endpoint, e.g. a Telegram chat id")
	_ = usersAddCmd.MarkFlagRequired("username")
	_ = usersAddCmd.MarkFlagRequired("email")
	_ = usersAddCmd.MarkFlagRequired("password")
}

func runUsersAdd(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("username")
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	mode, _ := cmd.Flags().GetString("mode")
	chatID, _ := cmd.Flags().GetString("chat-id")

	return withStore(cmd.Context(), func(_ *config.Config, accounts *account.Service) error {
		u, err := accounts.Register(cmd.Context(), account.Registration{
			Username:       username,
			Email:          email,
			Password:       password,
			Mode:           mode,
			TelegramChatID: chatID,
		})
		if err != nil {
			return fmt.Errorf("register user: %w", err)
		}

		fmt.Printf("User %q registered (id %s)\n", u.Username, u.ID)
		return nil
	})
}

func runUsersList(cmd *cobra.Command, _ []string) error {
	return withStore(cmd.Context(), func(_ *config.Config, accounts *account.Service) error {
		users, err := accounts.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		if len(users) == 0 {
			fmt.Println("No users registered. Use 'aeris users add' to create one.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "USERNAME\tEMAIL\tMODE\tLINKED\tLOCATION\tLAST ALERT\n")
		for _, u := range users {
			loc := "-"
			if u.Location != nil {
				loc = fmt.Sprintf("%.4f,%.4f", u.Location.Lat, u.Location.Lon)
			}
			last := u.LastAlertAt
			if last == "" {
				last = "never"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", u.Username, u.Email, u.Mode, u.Linked(), loc, last)
		}
		return w.Flush()
	})
}

func runUsersLink(cmd *cobra.Command, args []string) error {
	chatID := args[1]
	return updateProfile(cmd, args[0], model.ProfileUpdate{TelegramChatID: &chatID})
}

func runUsersLocate(cmd *cobra.Command, args []string) error {
	lat, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude %q: %w", args[1], err)
	}
	lon, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude %q: %w", args[2], err)
	}
	return updateProfile(cmd, args[0], model.ProfileUpdate{Location: &model.Location{Lat: lat, Lon: lon}})
}

func updateProfile(cmd *cobra.Command, username string, update model.ProfileUpdate) error {
	return withStore(cmd.Context(), func(_ *config.Config, accounts *account.Service) error {
		u, err := accounts.UpdateProfile(cmd.Context(), username, update)
		if err != nil {
			return fmt.Errorf("update %s: %w", username, err)
		}
		fmt.Printf("User %q updated (eligible for alerts: %t)\n", u.Username, u.Eligible())
		return nil
	})
}
