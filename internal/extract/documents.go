package extract

import (
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

var modalCall = regexp.MustCompile(`actionModalShowFiles\((.*)\)`)

// FileModal identifies the attachment modal of one document row.
type FileModal struct {
	LotID      string
	DocumentID string
}

// ParseDocuments returns a FileModal for every documents-tab row whose title
// mentions a technical specification. No matching row yields an empty slice.
func ParseDocuments(r io.Reader) ([]FileModal, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return nil, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, structureError("documents tab has no table")
	}

	modals := []FileModal{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 || !isTechSpecTitle(stripText(cells.First())) {
			return
		}
		onclick, _ := row.Find("button").First().Attr("onclick")
		match := modalCall.FindStringSubmatch(onclick)
		if match == nil {
			return
		}
		params := strings.Split(match[1], ",")
		if len(params) < 2 {
			return
		}
		modals = append(modals, FileModal{
			LotID:      cleanParam(params[0]),
			DocumentID: cleanParam(params[1]),
		})
	})
	return modals, nil
}

func isTechSpecTitle(title string) bool {
	lower := strings.ToLower(title)
	return strings.Contains(lower, "техн") && strings.Contains(lower, "спецификац")
}

func cleanParam(p string) string {
	return strings.Trim(strings.TrimSpace(p), `"'`)
}

// ParseFileModal extracts the file references listed in an attachment modal.
func ParseFileModal(r io.Reader, modal FileModal) ([]tender.TechSpecFile, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return nil, err
	}
	files := []tender.TechSpecFile{}
	var rowErr error
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return true
		}
		anchor := cells.Eq(1).Find("a").First()
		href, ok := anchor.Attr("href")
		if !ok {
			rowErr = structureError("file modal row without a file link")
			return false
		}
		files = append(files, tender.TechSpecFile{
			LotID:    modal.LotID,
			FileLink: href,
			FileName: stripText(anchor),
		})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return files, nil
}
