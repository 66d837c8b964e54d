package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"pdf-chat/internal/models"
)

// ErrFileNotFound is returned when the document path does not exist.
var ErrFileNotFound = errors.New("file not found")

// ExtractPages extracts plain text from a document, one PageText per
// page (or sheet) with non-empty content. Formats without pages are
// mapped onto single or per-sheet pages, 1-based.
func ExtractPages(filePath string) ([]models.PageText, error) {
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	var pages []models.PageText
	var err error
	switch ext {
	case ".pdf":
		pages, err = extractPDF(filePath)
	case ".docx":
		pages, err = extractDOCX(filePath)
	case ".xlsx":
		pages, err = extractXLSX(filePath)
	case ".ods":
		pages, err = extractODS(filePath)
	case ".txt":
		pages, err = extractText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to process %s: %w", filePath, err)
	}

	log.Info().Int("pages", len(pages)).Str("file", filepath.Base(filePath)).Msg("Extracted pages")
	return pages, nil
}

func newPage(text string, pageNumber int, filePath string) models.PageText {
	return models.PageText{
		Text:       strings.TrimSpace(text),
		PageNumber: pageNumber,
		Filename:   filepath.Base(filePath),
		Filepath:   filePath,
	}
}

func extractPDF(filePath string) ([]models.PageText, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var pages []models.PageText
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		pages = append(pages, newPage(pageText, i, filePath))
	}
	return pages, nil
}

func extractDOCX(filePath string) ([]models.PageText, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	// DOCX has no page numbers; the whole document is page 1.
	return []models.PageText{newPage(content, 1, filePath)}, nil
}

func extractXLSX(filePath string) ([]models.PageText, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []models.PageText
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		if strings.TrimSpace(text.String()) == "Sheet: "+sheet.Name {
			continue
		}
		pages = append(pages, newPage(text.String(), sheetNum+1, filePath))
	}
	return pages, nil
}

func extractODS(filePath string) ([]models.PageText, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.PageText
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		empty := true
		for _, row := range rows {
			for _, cell := range row {
				if strings.TrimSpace(cell) != "" {
					empty = false
				}
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		if empty {
			continue
		}
		pages = append(pages, newPage(text.String(), sheetNum+1, filePath))
	}
	return pages, nil
}

func extractText(filePath string) ([]models.PageText, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return []models.PageText{newPage(string(data), 1, filePath)}, nil
}
