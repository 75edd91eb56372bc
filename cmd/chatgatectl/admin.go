package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/memohai/chatgate/internal/admin"
)

func newUserCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage backend users"}

	var email, password string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a backend user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			in := admin.NewUser{Username: args[0], Password: password, Email: email}
			var ref admin.Ref
			err := a.run(cmd,
				func(ops *admin.Operations) (err error) {
					ref, err = ops.CreateUser(cmd.Context(), in)
					return err
				},
				func(ops *admin.Operations) bool { return ops.TryCreateUser(cmd.Context(), in) },
			)
			if err != nil || a.opts.quiet {
				return err
			}
			return a.print(ref)
		},
	}
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(
		create,
		userAction(a, "activate", "Reactivate a backend user",
			(*admin.Operations).ActivateUser, (*admin.Operations).TryActivateUser),
		userAction(a, "deactivate", "Deactivate a backend user",
			(*admin.Operations).DeactivateUser, (*admin.Operations).TryDeactivateUser),
	)
	return cmd
}

func userAction(
	a *app,
	verb, short string,
	strict func(*admin.Operations, context.Context, string) error,
	try func(*admin.Operations, context.Context, string) bool,
) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <user>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.run(cmd,
				func(ops *admin.Operations) error { return strict(ops, cmd.Context(), args[0]) },
				func(ops *admin.Operations) bool { return try(ops, cmd.Context(), args[0]) },
			)
			if err == nil {
				a.done("user %s: %sd", args[0], verb)
			}
			return err
		},
	}
}

func newTeamCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "team", Short: "Manage teams"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a team and join the admin to it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var ref admin.Ref
				err := a.run(cmd,
					func(ops *admin.Operations) (err error) {
						ref, err = ops.CreateJoinTeam(cmd.Context(), args[0])
						return err
					},
					func(ops *admin.Operations) bool { return ops.TryCreateJoinTeam(cmd.Context(), args[0]) },
				)
				if err != nil || a.opts.quiet {
					return err
				}
				return a.print(ref)
			},
		},
		&cobra.Command{
			Use:   "remove <team>",
			Short: "Delete a team",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				err := a.run(cmd,
					func(ops *admin.Operations) error { return ops.RemoveTeam(cmd.Context(), args[0]) },
					func(ops *admin.Operations) bool { return ops.TryRemoveTeam(cmd.Context(), args[0]) },
				)
				if err == nil {
					a.done("team %s: removed", args[0])
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "add-user <user>",
			Short: "Add a user to a team",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				err := a.run(cmd,
					func(ops *admin.Operations) error { return ops.AddUserToTeam(cmd.Context(), args[0], a.opts.team) },
					func(ops *admin.Operations) bool { return ops.TryAddUserToTeam(cmd.Context(), args[0], a.opts.team) },
				)
				if err == nil {
					a.done("user %s: added to team", args[0])
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List teams",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ops, err := a.admin(cmd.Context())
				if err != nil {
					return err
				}
				teams, err := ops.ListTeams(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(teams)
			},
		},
	)
	return cmd
}

func newChannelCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "channel", Short: "Manage channels"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a public channel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var ref admin.Ref
				err := a.run(cmd,
					func(ops *admin.Operations) (err error) {
						ref, err = ops.CreateJoinChannel(cmd.Context(), args[0], a.opts.team)
						return err
					},
					func(ops *admin.Operations) bool {
						return ops.TryCreateJoinChannel(cmd.Context(), args[0], a.opts.team)
					},
				)
				if err != nil || a.opts.quiet {
					return err
				}
				return a.print(ref)
			},
		},
		&cobra.Command{
			Use:   "remove <channel>",
			Short: "Delete a channel",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				err := a.run(cmd,
					func(ops *admin.Operations) error { return ops.RemoveChannel(cmd.Context(), args[0], a.opts.team) },
					func(ops *admin.Operations) bool { return ops.TryRemoveChannel(cmd.Context(), args[0], a.opts.team) },
				)
				if err == nil {
					a.done("channel %s: removed", args[0])
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "add-user <channel> <user>",
			Short: "Add a user to a channel",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				err := a.run(cmd,
					func(ops *admin.Operations) error {
						return ops.AddUserToChannel(cmd.Context(), args[0], args[1], a.opts.team)
					},
					func(ops *admin.Operations) bool {
						return ops.TryAddUserToChannel(cmd.Context(), args[0], args[1], a.opts.team)
					},
				)
				if err == nil {
					a.done("user %s: added to channel %s", args[1], args[0])
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List public channels",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ops, err := a.admin(cmd.Context())
				if err != nil {
					return err
				}
				channels, err := ops.ListPublicChannels(cmd.Context(), a.opts.team)
				if err != nil {
					return err
				}
				return a.print(channels)
			},
		},
	)
	return cmd
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
