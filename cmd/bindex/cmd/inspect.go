package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/segment"
)

// termSampleSize is how many documents a term lookup lists.
const termSampleSize = 10

type inspectFlags struct {
	terms  []string
	top    int
	doc    int64
	verify bool
	json   bool
}

type termReport struct {
	Term             string           `json:"term"`
	Found            bool             `json:"found"`
	Documents        uint32           `json:"documents"`
	TotalOccurrences uint32           `json:"total_occurrences"`
	Sample           []index.Document `json:"sample,omitempty"`
}

type topTermReport struct {
	Term             string `json:"term"`
	Documents        uint32 `json:"documents"`
	TotalOccurrences uint32 `json:"total_occurrences"`
}

type inspectReport struct {
	Path     string          `json:"path"`
	Header   segment.Header  `json:"header"`
	Verified bool            `json:"verified,omitempty"`
	Document *index.Document `json:"document,omitempty"`
	Terms    []termReport    `json:"terms,omitempty"`
	Top      []topTermReport `json:"top,omitempty"`
}

func newInspectCmd(_ *globalOptions) *cobra.Command {
	var flags inspectFlags
	cmd := &cobra.Command{
		Use:   "inspect <index_file>",
		Short: "Show the header, terms, and documents of a BIND file",
		Long: `Inspect validates and opens an index file and prints its header.
--term looks up exact dictionary terms (no normalization), --top lists the
terms with the most occurrences, and --doc prints one document record.
--verify also decodes every posting list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.OutOrStdout(), args[0], flags)
		},
	}
	cmd.Flags().StringArrayVar(&flags.terms, "term", nil, "exact term to look up (repeatable)")
	cmd.Flags().IntVar(&flags.top, "top", 0, "list the N terms with the most occurrences")
	cmd.Flags().Int64Var(&flags.doc, "doc", -1, "print the document with this id")
	cmd.Flags().BoolVar(&flags.verify, "verify", false, "decode every posting list")
	cmd.Flags().BoolVar(&flags.json, "json", false, "output as JSON")
	return cmd
}

func runInspect(out io.Writer, path string, flags inspectFlags) error {
	r, err := segment.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	report := inspectReport{Path: path, Header: r.Header()}
	if flags.verify {
		if _, err := r.Load(); err != nil {
			return err
		}
		report.Verified = true
	}
	if flags.doc >= 0 {
		doc, ok := r.Document(uint32(flags.doc))
		if flags.doc > int64(^uint32(0)) || !ok {
			return fmt.Errorf("document %d not in index (%d documents)", flags.doc, r.DocCount())
		}
		report.Document = &doc
	}
	for _, term := range flags.terms {
		tr, err := lookupTerm(r, term)
		if err != nil {
			return err
		}
		report.Terms = append(report.Terms, tr)
	}
	for _, t := range r.TopTerms(flags.top) {
		report.Top = append(report.Top, topTermReport{
			Term:             t.Term,
			Documents:        t.DocCount(),
			TotalOccurrences: t.TotalOccurrences,
		})
	}

	if flags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printInspect(out, report)
	return nil
}

func lookupTerm(r *segment.Reader, term string) (termReport, error) {
	info, ok := r.Lookup(term)
	if !ok {
		return termReport{Term: term}, nil
	}
	ids, err := r.Postings(term)
	if err != nil {
		return termReport{}, err
	}
	if len(ids) > termSampleSize {
		ids = ids[:termSampleSize]
	}
	tr := termReport{
		Term:             term,
		Found:            true,
		Documents:        info.DocCount(),
		TotalOccurrences: info.TotalOccurrences,
	}
	for _, id := range ids {
		doc, _ := r.Document(id)
		tr.Sample = append(tr.Sample, doc)
	}
	return tr, nil
}

func printInspect(out io.Writer, rep inspectReport) {
	h := rep.Header
	fmt.Fprintf(out, "%s: BIND v%d, %s\n", rep.Path, h.Version, humanize.Bytes(uint64(h.FileSize)))
	fmt.Fprintf(out, "  documents: %s\n", humanize.Comma(int64(h.DocCount)))
	fmt.Fprintf(out, "  terms:     %s\n", humanize.Comma(int64(h.TermCount)))
	fmt.Fprintf(out, "  sections:  docs@%d dict@%d postings@%d\n", h.DocTableOffset, h.TermDictOffset, h.PostingOffset)
	if rep.Verified {
		fmt.Fprintln(out, "  postings:  verified")
	}
	if d := rep.Document; d != nil {
		fmt.Fprintf(out, "\nDocument %d: %s (%s, %s tokens, %s)\n",
			d.ID, d.Title, d.Path, humanize.Comma(int64(d.TokenCount)), humanize.Bytes(uint64(d.ByteSize)))
	}
	for _, t := range rep.Terms {
		if !t.Found {
			fmt.Fprintf(out, "\nTerm %q: not found\n", t.Term)
			continue
		}
		fmt.Fprintf(out, "\nTerm %q: %d documents, %d occurrences\n", t.Term, t.Documents, t.TotalOccurrences)
		for _, d := range t.Sample {
			fmt.Fprintf(out, "  %d\t%s\n", d.ID, d.Path)
		}
		if uint32(len(t.Sample)) < t.Documents {
			fmt.Fprintf(out, "  ... and %d more\n", t.Documents-uint32(len(t.Sample)))
		}
	}
	if len(rep.Top) > 0 {
		fmt.Fprintf(out, "\nTop %d terms by occurrences:\n", len(rep.Top))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  TERM\tOCCURRENCES\tDOCS")
		for _, t := range rep.Top {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.Term, humanize.Comma(int64(t.TotalOccurrences)), humanize.Comma(int64(t.Documents)))
		}
		tw.Flush()
	}
}
