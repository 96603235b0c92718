package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"lendingapi/internal/borrow"
	"lendingapi/internal/client"
)

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrator commands for the borrowing workflow",
	}

	var (
		f   client.BorrowFilter
		all bool
	)
	list := &cobra.Command{
		Use:   "borrows",
		Short: "List every member's borrowings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listBorrowings(cmd, a.api.ListBorrowings, f, all)
		},
	}
	borrowFilterFlags(list, &f, &all)
	list.Flags().StringVar(&f.UserID, "user", "", "only this member")

	cmd.AddCommand(
		list,
		newReviewCmd(a, "approve", "Approve a pending request", (*client.Client).Approve),
		newReviewCmd(a, "reject", "Reject a pending request", (*client.Client).Reject),
		newReviewCmd(a, "confirm-borrow", "Record that an approved copy was handed out", (*client.Client).ConfirmBorrow),
		newReviewCmd(a, "confirm-return", "Record that a borrowed copy came back", (*client.Client).ConfirmReturn),
	)
	return cmd
}

type reviewFunc func(c *client.Client, ctx context.Context, id, notes string) (borrow.View, error)

func newReviewCmd(a *app, use, short string, review reviewFunc) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   use + " <borrowing-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := review(a.api, cmd.Context(), args[0], notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %s for %q is now %s\n", v.ID, v.BookTitle, v.Status)
			fmt.Fprintf(cmd.OutOrStdout(), "Next: %s\n", actionList(v.Actions))
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "note kept on the request")
	return cmd
}
