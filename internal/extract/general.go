package extract

import (
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

// General is the fragment extracted from the general tab.
type General struct {
	AdvertView        *tender.Fields
	ApplicationsCount int
	GeneralInfo       *tender.Fields
	Organizer         *tender.Fields
}

// ParseGeneral extracts the advert view block, the application count, the
// general info table and the organizer representative table.
func ParseGeneral(r io.Reader) (General, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return General{}, err
	}

	count, err := applicationsCount(doc.Selection)
	if err != nil {
		return General{}, err
	}

	panels := doc.Find("div.panel-body")
	if panels.Length() < 2 {
		return General{}, structureError("general tab has %d panel bodies, want 2", panels.Length())
	}
	tables := panels.Eq(1).Find("table")
	if tables.Length() < 2 {
		return General{}, structureError("general info panel has %d tables, want 2", tables.Length())
	}

	return General{
		AdvertView:        parseAdvertView(panels.Eq(0)),
		ApplicationsCount: count,
		GeneralInfo:       parseGeneralInfo(tables.Eq(0)),
		Organizer:         parseHeaderRows(tables.Eq(1), organizerLabels),
	}, nil
}

// applicationsCount reads "...: N" from the info label. A missing label means zero.
func applicationsCount(sel *goquery.Selection) (int, error) {
	label := sel.Find("label.label.label-info").First()
	if label.Length() == 0 {
		return 0, nil
	}
	text := stripText(label)
	parts := strings.Split(text, ":")
	n, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return 0, structureError("applications count %q is not a number", text)
	}
	return n, nil
}

func parseAdvertView(panel *goquery.Selection) *tender.Fields {
	fields := tender.NewFields()
	panel.Find("div.form-group").Each(func(_ int, group *goquery.Selection) {
		label := group.Find("label.control-label").First()
		input := group.Find("input.form-control").First()
		if label.Length() == 0 || input.Length() == 0 {
			return
		}
		key := canonicalKey(advertViewLabels, stripText(label))
		if value, ok := input.Attr("value"); ok {
			fields.Set(key, value)
		} else {
			fields.Set(key, nil)
		}
	})
	return fields
}

func parseGeneralInfo(table *goquery.Selection) *tender.Fields {
	fields := tender.NewFields()
	eachHeaderRow(table, func(header, data *goquery.Selection) {
		key := canonicalKey(generalInfoLabels, stripText(header))
		if key == tender.KeyAttributes {
			fields.Set(key, attributeList(data))
			return
		}
		fields.Set(key, stripText(data))
	})
	return fields
}

// attributeList returns the list item texts, the cell text as a single item
// when there are no list items, or nil when the cell is empty.
func attributeList(data *goquery.Selection) []string {
	items := data.Find("li")
	if items.Length() > 0 {
		values := make([]string, 0, items.Length())
		items.Each(func(_ int, li *goquery.Selection) {
			values = append(values, stripText(li))
		})
		return values
	}
	if text := stripText(data); text != "" {
		return []string{text}
	}
	return nil
}

func parseHeaderRows(table *goquery.Selection, labels map[string]string) *tender.Fields {
	fields := tender.NewFields()
	eachHeaderRow(table, func(header, data *goquery.Selection) {
		fields.Set(canonicalKey(labels, stripText(header)), stripText(data))
	})
	return fields
}

// eachHeaderRow visits rows carrying both a th and a td.
func eachHeaderRow(table *goquery.Selection, fn func(header, data *goquery.Selection)) {
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		header := row.Find("th").First()
		data := row.Find("td").First()
		if header.Length() == 0 || data.Length() == 0 {
			return
		}
		fn(header, data)
	})
}
