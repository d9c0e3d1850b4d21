package extract

import (
	"io"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

// ParseLots extracts one Lot per data row of the lots table, in row order.
// Cells beyond the header row are ignored.
func ParseLots(r io.Reader) ([]tender.Lot, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return nil, err
	}
	container := doc.Find("div.table-responsive").First()
	if container.Length() == 0 {
		return nil, structureError("lots tab has no table container")
	}
	table := container.Find("table").First()
	if table.Length() == 0 {
		return nil, structureError("lots container has no table")
	}
	rows := table.Find("tr")
	if rows.Length() == 0 {
		return nil, structureError("lots table has no header row")
	}

	var keys []string
	rows.First().Find("th").Each(func(_ int, th *goquery.Selection) {
		keys = append(keys, canonicalKey(lotLabels, stripText(th)))
	})

	lots := make([]tender.Lot, 0, rows.Length()-1)
	rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		lots = append(lots, parseLotRow(row, keys))
	})
	return lots, nil
}

func parseLotRow(row *goquery.Selection, keys []string) tender.Lot {
	lot := tender.NewLot()
	row.Find("td").EachWithBreak(func(i int, cell *goquery.Selection) bool {
		if i >= len(keys) {
			return false
		}
		key := keys[i]
		switch key {
		case tender.KeyLotNumber:
			if anchor := cell.Find("a.btn-select-lot").First(); anchor.Length() > 0 {
				if id, ok := anchor.Attr("data-lot-id"); ok {
					lot.Set(tender.KeyLotID, id)
				}
			}
			lot.Set(key, stripText(cell))
		case tender.KeyPrevPlan:
			lot.Set(key, cell.Find(`input[type="checkbox"][disabled]`).Length() > 0)
		default:
			lot.Set(key, stripText(cell))
		}
		return true
	})
	return lot
}
