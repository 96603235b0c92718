package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lendingapi/internal/book"
	"lendingapi/internal/client"
)

func newBooksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "books",
		Aliases: []string{"book"},
		Short:   "Browse and manage the catalogue",
	}
	cmd.AddCommand(
		newBooksListCmd(a),
		newBooksShowCmd(a),
		newBooksAddCmd(a),
		newBooksEditCmd(a),
		newBooksDeleteCmd(a),
		newBooksImportCmd(a),
		newBooksStockCmd(a),
	)
	return cmd
}

func newBooksListCmd(a *app) *cobra.Command {
	var f client.BookFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := a.api.ListBooks(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(page.Items) == 0 {
				fmt.Fprintln(out, "No books found.")
				return nil
			}
			printBooks(out, page.Items)
			fmt.Fprintf(out, "\nPage %d of %d (%d books)\n", page.Page, page.TotalPages, page.Total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.Search, "search", "s", "", "match title, author, ISBN or genre")
	cmd.Flags().StringVar(&f.Genre, "genre", "", "filter by genre")
	cmd.Flags().StringVar(&f.Author, "author", "", "filter by author")
	cmd.Flags().BoolVar(&f.AvailableOnly, "available", false, "only books with a free copy")
	cmd.Flags().StringVar(&f.Sort, "sort", "", "title, created_at, year or available")
	cmd.Flags().BoolVar(&f.Desc, "desc", false, "reverse the sort order")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.PageSize, "page-size", 20, "books per page")
	return cmd
}

func newBooksShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.api.FindBookByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printBook(cmd.OutOrStdout(), b)
			return nil
		},
	}
}

func newBooksAddCmd(a *app) *cobra.Command {
	var (
		in   book.CreateInput
		year int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book (administrators)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("year") {
				in.PublicationYear = &year
			}
			b, err := a.api.CreateBook(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q (%s) with %d copies\n", b.Title, b.ID, b.TotalCopies)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ISBN, "isbn", "", "ISBN-10 or ISBN-13")
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Author, "author", "", "author")
	cmd.Flags().StringVar(&in.Genre, "genre", "", "genre")
	cmd.Flags().StringVar(&in.Publisher, "publisher", "", "publisher")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().IntVar(&year, "year", 0, "publication year")
	cmd.Flags().IntVar(&in.TotalCopies, "copies", 1, "number of copies")
	for _, name := range []string{"isbn", "title", "author"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newBooksEditCmd(a *app) *cobra.Command {
	var (
		title, author, genre, publisher, description string
		year, total, available                       int
	)
	cmd := &cobra.Command{
		Use:   "edit <book-id>",
		Short: "Change book details or copy counts (administrators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in book.UpdateInput
			flags := cmd.Flags()
			if flags.Changed("title") {
				in.Title = &title
			}
			if flags.Changed("author") {
				in.Author = &author
			}
			if flags.Changed("genre") {
				in.Genre = &genre
			}
			if flags.Changed("publisher") {
				in.Publisher = &publisher
			}
			if flags.Changed("description") {
				in.Description = &description
			}
			if flags.Changed("year") {
				in.PublicationYear = &year
			}
			if flags.Changed("total") {
				in.TotalCopies = &total
			}
			if flags.Changed("available") {
				in.AvailableCopies = &available
			}
			if in == (book.UpdateInput{}) {
				return fmt.Errorf("nothing to change; pass at least one flag")
			}

			b, err := a.api.UpdateBook(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			printBook(cmd.OutOrStdout(), b)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&author, "author", "", "author")
	cmd.Flags().StringVar(&genre, "genre", "", "genre")
	cmd.Flags().StringVar(&publisher, "publisher", "", "publisher")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&year, "year", 0, "publication year")
	cmd.Flags().IntVar(&total, "total", 0, "total copies owned")
	cmd.Flags().IntVar(&available, "available", 0, "copies on the shelf")
	return cmd
}

func newBooksDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete a book with no active borrowings (administrators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.api.DeleteBook(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted book %s\n", args[0])
			return nil
		},
	}
}

func newBooksImportCmd(a *app) *cobra.Command {
	var copies int
	cmd := &cobra.Command{
		Use:   "import <isbn>",
		Short: "Add a book from its Open Library record (administrators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.api.ImportBook(cmd.Context(), args[0], copies)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %q by %s (%s)\n", b.Title, b.Author, b.ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&copies, "copies", 1, "number of copies")
	return cmd
}

func newBooksStockCmd(a *app) *cobra.Command {
	var delta int
	cmd := &cobra.Command{
		Use:   "stock <book-id> --delta N",
		Short: "Add copies, or remove them with a negative delta (administrators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if delta == 0 {
				return fmt.Errorf("delta must be a non-zero integer")
			}
			b, err := a.api.AdjustStock(cmd.Context(), args[0], delta)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d available of %d\n", b.Title, b.AvailableCopies, b.TotalCopies)
			return nil
		},
	}
	cmd.Flags().IntVar(&delta, "delta", 0, "copies to add, negative to remove")
	_ = cmd.MarkFlagRequired("delta")
	return cmd
}
