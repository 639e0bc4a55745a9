package crawler

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVHeader lists the columns written by WriteCSV.
var CSVHeader = []string{"title", "year", "authors", "publication_link", "author_links", "abstract", "page_number"}

// WriteCSV encodes records as UTF-8 CSV with a header row.
func WriteCSV(w io.Writer, records []PublicationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		p := rec.Payload()
		row := []string{
			p.Title,
			strconv.Itoa(p.Year),
			p.Authors,
			p.PublicationLink,
			p.AuthorLinks,
			p.Abstract,
			strconv.Itoa(rec.PageIndex),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
