package commands

import (
	"io"
	"strconv"
	"time"

	"github.com/AnishMulay/sandsync/internal/file_record"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func recordRow(r file_record.FileRecord) []string {
	return []string{
		r.Name,
		strconv.FormatInt(r.Size, 10),
		time.Unix(r.Mtime, 0).Format(time.RFC3339),
		r.Checksum,
	}
}

func printRecords(w io.Writer, records []file_record.FileRecord) {
	table := newTable(w)
	table.SetHeader([]string{"Name", "Size", "Modified", "Checksum"})
	for _, r := range records {
		table.Append(recordRow(r))
	}
	table.Render()
}
