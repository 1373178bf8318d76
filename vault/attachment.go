package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// parsePDFAttachment extracts plain text from a PDF so attachments are
// searchable alongside markdown notes. Attachments carry no outgoing links.
func parsePDFAttachment(path, rel string) (*Note, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(raw)

	text, err := extractPDFText(path)
	if err != nil {
		return nil, fmt.Errorf("extracting pdf text: %w", err)
	}

	return &Note{
		Path:    rel,
		Title:   titleFromPath(rel),
		Content: text,
		Hash:    hex.EncodeToString(hash[:]),
	}, nil
}

// parseXLSXAttachment renders each sheet as a markdown table so spreadsheet
// cells are indexed and searchable. Like PDFs, spreadsheets carry no links.
func parseXLSXAttachment(path, rel string) (*Note, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(raw)

	text, err := extractXLSXText(path)
	if err != nil {
		return nil, fmt.Errorf("extracting xlsx text: %w", err)
	}

	return &Note{
		Path:    rel,
		Title:   titleFromPath(rel),
		Content: text,
		Hash:    hex.EncodeToString(hash[:]),
	}, nil
}

func extractXLSXText(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## " + sheet + "\n\n")
		for _, row := range rows {
			sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
	}
	return sb.String(), nil
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}
