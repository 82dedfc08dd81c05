package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sanitiza-group/cert-cli/internal/normalize"
)

// Spreadsheets exported by some customers leave Nome Fantasia blank, which
// the document engine rejects. fillFantasia copies Razão Social into the
// empty cells, matching headers accent-insensitively.

// sanitizeSpreadsheet repairs known export defects in the workbook at path,
// saving in place. It reports whether anything changed.
func sanitizeSpreadsheet(path string) (bool, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return false, eris.Wrap(err, "ingest: open spreadsheet")
	}

	changed := false
	for _, sheet := range f.Sheets {
		if fillFantasia(sheet) {
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	if err := f.Save(path); err != nil {
		return false, eris.Wrap(err, "ingest: save sanitized spreadsheet")
	}
	return true, nil
}

func fillFantasia(sheet *xlsx.Sheet) bool {
	if len(sheet.Rows) == 0 {
		return false
	}

	fantasiaCol, razaoCol := -1, -1
	for j, cell := range sheet.Rows[0].Cells {
		switch normalize.Fold(cell.String()) {
		case "nome fantasia":
			fantasiaCol = j
		case "razao social":
			razaoCol = j
		}
	}
	if fantasiaCol < 0 || razaoCol < 0 {
		return false
	}

	changed := false
	for _, row := range sheet.Rows[1:] {
		if razaoCol >= len(row.Cells) {
			continue
		}
		razao := strings.TrimSpace(row.Cells[razaoCol].String())
		if razao == "" {
			continue
		}

		for len(row.Cells) <= fantasiaCol {
			row.AddCell()
		}
		if strings.TrimSpace(row.Cells[fantasiaCol].String()) == "" {
			row.Cells[fantasiaCol].SetString(razao)
			changed = true
		}
	}
	return changed
}
