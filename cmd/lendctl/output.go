package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"lendingapi/internal/book"
	"lendingapi/internal/borrow"
)

func printBooks(w io.Writer, books []book.Book) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tISBN\tTITLE\tAUTHOR\tAVAILABLE")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\n",
			b.ID, b.ISBN, truncate(b.Title, 40), truncate(b.Author, 25), b.AvailableCopies, b.TotalCopies)
	}
	tw.Flush()
}

func printBook(w io.Writer, b book.Book) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", b.ID)
	fmt.Fprintf(tw, "ISBN:\t%s\n", b.ISBN)
	fmt.Fprintf(tw, "Title:\t%s\n", b.Title)
	fmt.Fprintf(tw, "Author:\t%s\n", b.Author)
	if b.Genre != "" {
		fmt.Fprintf(tw, "Genre:\t%s\n", b.Genre)
	}
	if b.Publisher != "" {
		fmt.Fprintf(tw, "Publisher:\t%s\n", b.Publisher)
	}
	if b.PublicationYear != nil {
		fmt.Fprintf(tw, "Year:\t%d\n", *b.PublicationYear)
	}
	fmt.Fprintf(tw, "Copies:\t%d available of %d\n", b.AvailableCopies, b.TotalCopies)
	tw.Flush()
	if b.Description != "" {
		fmt.Fprintf(w, "\n%s\n", b.Description)
	}
}

func printBorrowings(w io.Writer, views []borrow.View) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBOOK\tMEMBER\tSTATUS\tDUE")
	for _, v := range views {
		status := string(v.Status)
		if v.Overdue {
			status += " (overdue)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, truncate(v.BookTitle, 35), v.Username, status, day(v.DueDate))
	}
	tw.Flush()
}

func printBorrowing(w io.Writer, v borrow.View) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", v.ID)
	fmt.Fprintf(tw, "Book:\t%s (%s)\n", v.BookTitle, v.BookID)
	if v.Username != "" {
		fmt.Fprintf(tw, "Member:\t%s <%s>\n", v.Username, v.UserEmail)
	}
	status := string(v.Status)
	if v.Overdue {
		status += " (overdue)"
	}
	fmt.Fprintf(tw, "Status:\t%s\n", status)
	for _, d := range []struct {
		label string
		at    *time.Time
	}{
		{"Requested:", v.RequestDate},
		{"Approved:", v.ApprovalDate},
		{"Borrowed:", v.BorrowDate},
		{"Due:", v.DueDate},
		{"Returned:", v.ReturnDate},
	} {
		if d.at != nil {
			fmt.Fprintf(tw, "%s\t%s\n", d.label, day(d.at))
		}
	}
	if v.AdminNotes != "" {
		fmt.Fprintf(tw, "Notes:\t%s\n", v.AdminNotes)
	}
	fmt.Fprintf(tw, "Next:\t%s\n", actionList(v.Actions))
	tw.Flush()
}

func actionList(actions []borrow.Action) string {
	if len(actions) == 0 {
		return "none"
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func day(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
