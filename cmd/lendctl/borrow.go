package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lendingapi/internal/borrow"
	"lendingapi/internal/client"
)

const dateLayout = "2006-01-02"

func newBorrowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "borrow",
		Aliases: []string{"borrowings"},
		Short:   "Borrow and return books",
	}
	cmd.AddCommand(
		newBorrowRequestCmd(a),
		newBorrowNowCmd(a),
		newBorrowCancelCmd(a),
		newBorrowReturnCmd(a),
		newBorrowMineCmd(a),
		newBorrowStatusCmd(a),
		newBorrowShowCmd(a),
	)
	return cmd
}

func newBorrowRequestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "request <book-id>",
		Short: "Ask an administrator to lend you a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.api.RequestBorrow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %s for %q is %s\n", v.ID, v.BookTitle, v.Status)
			return nil
		},
	}
}

func newBorrowNowCmd(a *app) *cobra.Command {
	var from, due string
	cmd := &cobra.Command{
		Use:   "now <book-id>",
		Short: "Borrow a free copy straight away",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			borrowDate, err := parseDay(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			dueDate, err := parseDay(due)
			if err != nil {
				return fmt.Errorf("--due: %w", err)
			}

			v, err := a.api.BorrowBook(cmd.Context(), args[0], borrowDate, dueDate)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Borrowed %q, due %s\n", v.BookTitle, day(v.DueDate))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "borrow date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD (default one loan period)")
	return cmd
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(dateLayout, s, time.Local)
}

func newBorrowCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <borrowing-id>",
		Short: "Withdraw a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.api.CancelBorrowing(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %s is %s\n", v.ID, v.Status)
			return nil
		},
	}
}

func newBorrowReturnCmd(a *app) *cobra.Command {
	var byBook bool
	cmd := &cobra.Command{
		Use:   "return <borrowing-id>",
		Short: "Return a borrowed copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ret := a.api.ReturnBook
			if byBook {
				ret = a.api.ReturnByBook
			}
			v, err := ret(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Returned %q\n", v.BookTitle)
			return nil
		},
	}
	cmd.Flags().BoolVar(&byBook, "book", false, "the argument is a book id, not a borrowing id")
	return cmd
}

func newBorrowMineCmd(a *app) *cobra.Command {
	var (
		f   client.BorrowFilter
		all bool
	)
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List your borrowings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listBorrowings(cmd, a.api.ListMyBorrowings, f, all)
		},
	}
	borrowFilterFlags(cmd, &f, &all)
	return cmd
}

func newBorrowStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <book-id>",
		Short: "Show your active borrowing of a book, if any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.api.BorrowStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if v == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "You have no active borrowing of this book.")
				return nil
			}
			printBorrowing(cmd.OutOrStdout(), *v)
			return nil
		},
	}
}

func newBorrowShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <borrowing-id>",
		Short: "Show one borrowing and what can happen to it next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.api.GetBorrowing(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printBorrowing(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func borrowFilterFlags(cmd *cobra.Command, f *client.BorrowFilter, all *bool) {
	cmd.Flags().StringVar(&f.Status, "status", "", "pending, approved, rejected, borrowed, returned or cancelled")
	cmd.Flags().BoolVar(&f.Active, "active", false, "only pending, approved or borrowed")
	cmd.Flags().StringVar(&f.BookID, "book", "", "only this book")
	cmd.Flags().StringVarP(&f.Search, "search", "s", "", "match book title, author or member")
	cmd.Flags().StringVar(&f.Cursor, "cursor", "", "continue from a previous page")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "rows per page")
	cmd.Flags().BoolVar(all, "all", false, "follow cursors until the last page")
}

type borrowLister func(ctx context.Context, f client.BorrowFilter) (client.BorrowPage, error)

func listBorrowings(cmd *cobra.Command, list borrowLister, f client.BorrowFilter, all bool) error {
	var views []borrow.View
	for {
		page, err := list(cmd.Context(), f)
		if err != nil {
			return err
		}
		views = append(views, page.Items...)
		if !all || page.NextCursor == "" {
			f.Cursor = page.NextCursor
			break
		}
		f.Cursor = page.NextCursor
	}

	out := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(out, "No borrowings found.")
		return nil
	}
	printBorrowings(out, views)
	if f.Cursor != "" {
		fmt.Fprintf(out, "\nMore results: --cursor %s\n", f.Cursor)
	}
	return nil
}
