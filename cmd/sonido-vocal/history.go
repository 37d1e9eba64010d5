package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/RyanBlaney/sonido-vocal/store"
	"github.com/RyanBlaney/sonido-vocal/store/sqlite"
)

func runHistory(ctx context.Context, e *env, args []string) error {
	fs, configPath := newFlagSet("history", e)
	exerciseID := fs.String("exercise", "", "only list takes of this exercise id")
	limit := fs.Int("n", 20, "number of takes to list")
	takeID := fs.String("take", "", "print one take as JSON instead of the list")
	asJSON := fs.Bool("json", false, "print the list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := e.setup(*configPath); err != nil {
		return err
	}
	if e.cfg.Store.Path == "" {
		return errors.New("store.path is not configured")
	}

	db, err := sqlite.Open(e.cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if *takeID != "" {
		take, found, err := db.Get(ctx, *takeID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("take %q not found", *takeID)
		}
		return writeJSON(e.stdout, take)
	}

	rows, err := db.Recent(ctx, *exerciseID, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(e.stdout, rows)
	}
	return printHistory(e.stdout, rows)
}

func printHistory(w io.Writer, rows []store.Summary) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no takes stored")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tEXERCISE\tSCORE\tTENDENCY\tOFFSET MS\tALIGNMENT\tTAKE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%.1f\t%s %.2f\t%s\n",
			r.RecordedAt.Local().Format(time.DateTime),
			r.ExerciseID,
			r.Overall,
			r.Tendency,
			r.OffsetMs,
			r.Strategy, r.Confidence,
			r.ID,
		)
	}
	return tw.Flush()
}
