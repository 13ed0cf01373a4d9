package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/anchors"
	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/services"
	"github.com/custodia-labs/marginalia/internal/headings"
)

// threadReport is one row of the threads listing
type threadReport struct {
	ID         string              `json:"id"`
	Status     domain.ThreadStatus `json:"status"`
	Messages   int                 `json:"messages"`
	AnchorText string              `json:"anchor_text"`
	Resolution *anchors.Resolution `json:"resolution,omitempty"`
}

func threadsCommand() *cli.Command {
	return &cli.Command{
		Name:  "threads",
		Usage: "List a document's threads and where their anchors resolve today",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "document",
				Aliases:  []string{"d"},
				Usage:    "Document `ID`",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print JSON instead of a table",
			},
		},
		Action: runThreads,
	}
}

func runThreads(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	b, err := openStorage(c.Context, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer b.Close()

	docID := c.String("document")
	threads, err := b.threads.Load(c.Context, docID)
	if err != nil {
		return fmt.Errorf("load threads: %w", err)
	}
	text, err := b.documents.Read(c.Context, docID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("read document: %w", err)
	}

	parser := headings.DefaultRegistry().Get(cfg.MIMETypeFor(docID))
	reports := make([]threadReport, 0, len(threads))
	for _, t := range threads {
		r := threadReport{
			ID:         t.ID,
			Status:     t.Status,
			Messages:   len(t.Messages),
			AnchorText: t.Anchor.AnchorText,
		}
		if res, ok := anchors.Resolve(t.Anchor, text, parser); ok {
			r.Resolution = &res
		}
		reports = append(reports, r)
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, reports)
	}
	return writeThreadTable(c.App.Writer, reports)
}

func writeThreadTable(w io.Writer, reports []threadReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMSGS\tANCHOR\tRANGE\tMATCH")
	for _, r := range reports {
		rng, match := "-", "orphaned"
		if r.Resolution != nil {
			rng = fmt.Sprintf("%d-%d", r.Resolution.Start, r.Resolution.End)
			match = string(r.Resolution.Kind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%q\t%s\t%s\n", r.ID, r.Status, r.Messages, truncate(r.AnchorText, 40), rng, match)
	}
	return tw.Flush()
}

func reanchorCommand() *cli.Command {
	return &cli.Command{
		Name:  "reanchor",
		Usage: "Re-resolve a document's stored threads against its current text and save them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "document",
				Aliases:  []string{"d"},
				Usage:    "Document `ID`",
				Required: true,
			},
		},
		Action: runReanchor,
	}
}

func runReanchor(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	b, err := openStorage(c.Context, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer b.Close()

	svc := services.NewThreadSyncService(services.ThreadSyncConfig{
		ThreadStore:    b.threads,
		Documents:      b.documents,
		HeadingParsers: headings.DefaultRegistry(),
		MIMETypeFor:    cfg.MIMETypeFor,
	})
	docID := c.String("document")
	if err := svc.SetActiveDocument(c.Context, docID); err != nil {
		return err
	}
	// Activation re-anchors quietly; this surfaces a read or save failure.
	if err := svc.Reanchor(c.Context); err != nil {
		return err
	}

	threads := svc.GetThreads()
	orphaned := 0
	for _, t := range threads {
		if t.Orphaned {
			orphaned++
		}
	}
	fmt.Fprintf(c.App.Writer, "%s: %d threads, %d orphaned\n", docID, len(threads), orphaned)
	return nil
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve an anchor against a document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "document", Aliases: []string{"d"}, Usage: "Document `ID` in the configured store"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read the document from `PATH` instead"},
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Anchor text", Required: true},
			&cli.IntFlag{Name: "start", Usage: "Recorded start offset"},
			&cli.IntFlag{Name: "end", Usage: "Recorded end offset"},
			&cli.StringFlag{Name: "heading", Usage: "Recorded section heading"},
		},
		Action: runResolve,
	}
}

func runResolve(c *cli.Context) error {
	var text, mimeType string
	switch {
	case c.String("file") != "":
		path := c.String("file")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		text, mimeType = string(data), headings.MIMETypeForPath(path)

	case c.String("document") != "":
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		b, err := openStorage(c.Context, cfg, zap.NewNop())
		if err != nil {
			return err
		}
		defer b.Close()
		docID := c.String("document")
		if text, err = b.documents.Read(c.Context, docID); err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		mimeType = cfg.MIMETypeFor(docID)

	default:
		return fmt.Errorf("%w: one of --document or --file is required", domain.ErrInvalidInput)
	}

	anchor := domain.TextAnchor{
		AnchorText:     c.String("text"),
		StartOffset:    c.Int("start"),
		EndOffset:      c.Int("end"),
		SectionHeading: c.String("heading"),
	}
	res, ok := anchors.Resolve(anchor, text, headings.DefaultRegistry().Get(mimeType))
	if !ok {
		return fmt.Errorf("%w: anchor %q does not resolve", domain.ErrNotFound, anchor.AnchorText)
	}
	return writeJSON(c.App.Writer, res)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
