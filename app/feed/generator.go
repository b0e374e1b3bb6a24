package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/ebay-watchlist/app/database"
	"github.com/lysyi3m/ebay-watchlist/app/listing"
)

// Channel describes the feed as a whole.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfURL     string
}

type Generator struct {
	version string
}

func NewGenerator(version string) *Generator {
	return &Generator{version: version}
}

// Run renders listings as an RSS 2.0 document, newest first as given.
func (g *Generator) Run(channel Channel, listings []database.Listing) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(channel.Title, "eBay Watchlist"), 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	g.writeElement(&buf, "description", cmp.Or(channel.Description, "Newest auctions from watched sellers and categories"), 4)

	if channel.SelfURL != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfURL)))
	}

	lastBuildDate := time.Now().UTC()
	if len(listings) > 0 {
		lastBuildDate = cmp.Or(listings[0].ListedDate, listings[0].FirstSeenAt, lastBuildDate)
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", "ebay-watchlist/"+cmp.Or(g.version, "dev"), 4)

	for _, l := range listings {
		g.writeItem(&buf, l)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, l database.Listing) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(l.ItemID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", l.Title, 6)
	g.writeElement(buf, "link", l.WebURL, 6)
	g.writeElement(buf, "description", Describe(l), 6)
	g.writeElement(buf, "pubDate", l.ListedDate.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", l.SellerName, 6)
	g.writeElement(buf, "category", l.CategoryName, 6)

	if l.ImageURL != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(l.ImageURL),
			imageType(l.ImageURL)))
	}

	buf.WriteString("    </item>\n")
}

// Describe summarizes price, bids and end time of a listing on one line.
func Describe(l database.Listing) string {
	parts := []string{"Price: " + formatPrice(l.DisplayPrice())}
	if l.BidCount == 1 {
		parts = append(parts, "1 bid")
	} else {
		parts = append(parts, fmt.Sprintf("%d bids", l.BidCount))
	}
	if l.Condition != "" {
		parts = append(parts, l.Condition)
	}
	parts = append(parts, "Ends "+l.EndDate.UTC().Format("2006-01-02 15:04 MST"))
	return strings.Join(parts, " | ")
}

func formatPrice(p *listing.Price) string {
	if p == nil {
		return "n/a"
	}
	return p.Amount.StringFixed(2) + " " + p.Currency
}

func imageType(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
