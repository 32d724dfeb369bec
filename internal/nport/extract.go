package nport

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/fundlens/nportd/pkg/models"
)

// Section and cell labels as they appear in EDGAR's HTML rendering of
// N-PORT filings. The extractor matches on substrings because the
// renderer pads and numbers these headings inconsistently.
const (
	labelGeneralInfo     = "NPORT-P: Part A: General Information"
	labelReportingPeriod = "Item A.3. Reporting period"
	labelReportDate      = "b. Date as of which information is reported"
	labelSeriesInfo      = "Item A.2. Information about the Series"
	labelSeriesNameA     = "a. Name of Series"
	labelSeriesItemB1    = "Item B.1. Name of series"
	labelSeriesNameB     = "a. Name of series"
	labelSeriesGeneric   = "Name of series"
	labelInvestments     = "NPORT-P: Part C: Schedule of Portfolio Investments"
	labelIdentification  = "Item C.1. Identification of investment"
	labelIssuerName      = "a. Name of issuer"
	labelCUSIP           = "d. CUSIP"
	labelAmount          = "Item C.2. Amount of each investment"
	labelBalance         = "Balance"
	labelUSDValue        = "Report values in U.S. dollars"
)

// ParseDocument parses a filing's HTML rendering into a queryable
// document tree.
func ParseDocument(content []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse filing HTML: %w", err)
	}
	return doc, nil
}

// docIndex assigns every node its position in document order so that
// "the first X after Y" queries can cross subtree boundaries the way
// the filing layout requires (headers and their tables are siblings,
// cousins, or worse depending on the renderer).
type docIndex struct {
	doc   *goquery.Document
	order map[*html.Node]int
}

func indexDocument(doc *goquery.Document) *docIndex {
	idx := &docIndex{doc: doc, order: make(map[*html.Node]int)}
	n := 0
	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		idx.order[node] = n
		n++
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, root := range doc.Nodes {
		walk(root)
	}
	return idx
}

// nextAfter returns the first node matching selector that follows ref
// in document order, or an empty selection.
func (d *docIndex) nextAfter(ref *html.Node, selector string) *goquery.Selection {
	refPos := d.order[ref]
	var found *html.Node
	d.doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if d.order[sel.Get(0)] > refPos {
			found = sel.Get(0)
			return false
		}
		return true
	})
	if found == nil {
		return d.doc.Selection.Slice(0, 0)
	}
	return d.doc.FindNodes(found)
}

// headersContaining returns all nodes matching selector whose text
// contains substr, in document order.
func headersContaining(doc *goquery.Document, selector, substr string) *goquery.Selection {
	return doc.Find(selector).FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return strings.Contains(sel.Text(), substr)
	})
}

// cellText returns the trimmed text of every td in the table, in
// order.
func cellText(table *goquery.Selection) []string {
	var texts []string
	table.Find("td").Each(func(_ int, td *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(td.Text()))
	})
	return texts
}

// ExtractReportingPeriod pulls the "date as of which information is
// reported" out of the filing's general information section. Returns
// "" when any step of the lookup fails; the caller falls back to the
// filing date.
func ExtractReportingPeriod(doc *goquery.Document) string {
	idx := indexDocument(doc)

	var period string
	headersContaining(doc, "h1", labelGeneralInfo).EachWithBreak(func(_ int, section *goquery.Selection) bool {
		periodHeader := firstContainingAfter(idx, section.Get(0), "h4", labelReportingPeriod)
		if periodHeader.Length() == 0 {
			return true
		}

		table := idx.nextAfter(periodHeader.Get(0), "table")
		if table.Length() == 0 {
			return true
		}

		var dateCell *goquery.Selection
		table.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
			if strings.Contains(td.Text(), labelReportDate) {
				dateCell = td
				return false
			}
			return true
		})
		if dateCell == nil {
			return true
		}

		next := dateCell.NextFiltered("td")
		if next.Length() == 0 {
			return true
		}
		period = strings.TrimSpace(next.Text())
		return period == "" // keep searching other sections if empty
	})
	return period
}

// firstContainingAfter finds the first node matching selector after
// ref whose text contains substr.
func firstContainingAfter(idx *docIndex, ref *html.Node, selector, substr string) *goquery.Selection {
	refPos := idx.order[ref]
	var found *html.Node
	idx.doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if idx.order[sel.Get(0)] > refPos && strings.Contains(sel.Text(), substr) {
			found = sel.Get(0)
			return false
		}
		return true
	})
	if found == nil {
		return idx.doc.Selection.Slice(0, 0)
	}
	return idx.doc.FindNodes(found)
}

// ExtractSeriesName tries three strategies, most specific first, to
// find the series name. Returns "" when none succeed; the caller
// synthesizes a name.
func ExtractSeriesName(doc *goquery.Document) string {
	idx := indexDocument(doc)

	// Method 1: Part A, Item A.2.
	partA := headersContaining(doc, "h1", labelGeneralInfo)
	if partA.Length() > 0 {
		itemA2 := firstContainingAfter(idx, partA.Get(0), "h4", labelSeriesInfo)
		if itemA2.Length() > 0 {
			table := idx.nextAfter(itemA2.Get(0), "table")
			if table.Length() > 0 {
				if name := labeledPair(table, labelSeriesNameA); name != "" {
					return name
				}
			}
		}
	}

	// Method 2: Item B.1 headers.
	var name string
	headersContaining(doc, "h4", labelSeriesItemB1).EachWithBreak(func(_ int, header *goquery.Selection) bool {
		table := idx.nextAfter(header.Get(0), "table")
		if table.Length() == 0 {
			return true
		}
		name = labeledPair(table, labelSeriesNameB)
		return name == ""
	})
	if name != "" {
		return name
	}

	// Method 3: generic scan of every table cell.
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if !strings.Contains(strings.TrimSpace(td.Text()), labelSeriesGeneric) {
			return true
		}
		next := td.NextFiltered("td")
		if next.Length() == 0 {
			return true
		}
		if v := strings.TrimSpace(next.Text()); v != "" {
			name = v
			return false
		}
		return true
	})
	return name
}

// labeledPair scans a table's cells for one containing label and
// returns the trimmed text of the cell after it.
func labeledPair(table *goquery.Selection, label string) string {
	texts := cellText(table)
	for i, text := range texts {
		if strings.Contains(text, label) && i+1 < len(texts) {
			if v := texts[i+1]; v != "" {
				return v
			}
		}
	}
	return ""
}

// ExtractHoldings pulls every holding out of the filing's schedule of
// portfolio investments sections. A positive limit caps how many
// sections are processed. A record is kept only when both issuer name
// and dollar value were found.
func ExtractHoldings(doc *goquery.Document, limit int) []models.Holding {
	idx := indexDocument(doc)

	sections := headersContaining(doc, "h1", labelInvestments)
	var holdings []models.Holding

	sections.EachWithBreak(func(i int, section *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}

		var title, cusip string
		var balance, value float64
		var hasBalance, hasValue bool

		// Item C.1: issuer name and CUSIP.
		c1 := firstContainingAfter(idx, section.Get(0), "h4", labelIdentification)
		if c1.Length() > 0 {
			if table := idx.nextAfter(c1.Get(0), "table"); table.Length() > 0 {
				texts := cellText(table)
				for j, text := range texts {
					if j+1 >= len(texts) {
						break
					}
					switch {
					case strings.Contains(text, labelIssuerName):
						title = texts[j+1]
					case strings.Contains(text, labelCUSIP):
						cusip = texts[j+1]
					}
				}
			}
		}

		// Item C.2: balance and dollar value.
		c2 := firstContainingAfter(idx, section.Get(0), "h4", labelAmount)
		if c2.Length() > 0 {
			if table := idx.nextAfter(c2.Get(0), "table"); table.Length() > 0 {
				texts := cellText(table)
				for j, text := range texts {
					if j+1 >= len(texts) {
						break
					}
					switch {
					case strings.Contains(text, labelBalance):
						balance = parseAmount(texts[j+1])
						hasBalance = true
					case strings.Contains(text, labelUSDValue):
						value = parseAmount(texts[j+1])
						hasValue = true
					}
				}
			}
		}

		if title == "" || !hasValue {
			return true
		}
		if cusip == "" {
			cusip = "N/A"
		}
		if !hasBalance {
			balance = 0.0
		}
		holdings = append(holdings, models.Holding{
			Title:   title,
			Cusip:   cusip,
			Balance: balance,
			Value:   value,
		})
		return true
	})

	return holdings
}

// parseAmount parses a numeric cell after stripping thousands
// separators. Unparsable, infinite, or not-a-number text collapses to
// 0 rather than propagating.
func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0.0
	}
	return v
}
