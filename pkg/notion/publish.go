package notion

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/civimetric/robustness-cli/internal/robustness"
)

// Publisher upserts scored assessments into a Notion database, one page
// per (iso3, year).
type Publisher struct {
	client Client
	dbID   string
}

// NewPublisher creates a Publisher writing to the given database.
func NewPublisher(client Client, dbID string) *Publisher {
	return &Publisher{client: client, dbID: dbID}
}

// Publish writes one page per assessment. A page whose (iso3, year) key
// already exists in the database is updated in place; everything else is
// created. Returns created and updated page counts.
func (p *Publisher) Publish(ctx context.Context, rows []robustness.Assessment) (created, updated int, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	existing, err := p.existingPages(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, row := range rows {
		key := assessmentKey(row.ISO3, row.Year)
		props := assessmentProperties(row)

		if pageID, ok := existing[key]; ok {
			if _, err := p.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
				return created, updated, eris.Wrapf(err, "notion: update assessment %s", key)
			}
			updated++
			continue
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(p.dbID),
			},
			Properties: props,
		}
		if _, err := p.client.CreatePage(ctx, req); err != nil {
			return created, updated, eris.Wrapf(err, "notion: create assessment %s", key)
		}
		created++
	}

	return created, updated, nil
}

// existingPages maps every page already in the database to its ID, keyed
// by (iso3, year), following pagination.
func (p *Publisher) existingPages(ctx context.Context) (map[string]string, error) {
	pages := make(map[string]string)
	req := &notionapi.DatabaseQueryRequest{PageSize: 100}

	for {
		resp, err := p.client.QueryDatabase(ctx, p.dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query assessment database")
		}
		for _, page := range resp.Results {
			if key, ok := pageKey(page); ok {
				pages[key] = page.ID.String()
			}
		}
		if !resp.HasMore {
			return pages, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

func assessmentKey(iso3 string, year int) string {
	return fmt.Sprintf("%s|%d", iso3, year)
}

// pageKey recovers the (iso3, year) key from a page's properties. Pages
// without both properties are ignored.
func pageKey(page notionapi.Page) (string, bool) {
	var iso3 string
	var year int

	if prop, ok := page.Properties["iso3"]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			iso3 = plainText(rt.RichText)
		}
	}
	if prop, ok := page.Properties["year"]; ok {
		if num, ok := prop.(*notionapi.NumberProperty); ok {
			year = int(num.Number)
		}
	}

	if iso3 == "" || year == 0 {
		return "", false
	}
	return assessmentKey(iso3, year), true
}

// assessmentProperties builds the page properties for one scored row.
// Undefined risk scores are omitted rather than written as zero.
func assessmentProperties(a robustness.Assessment) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(fmt.Sprintf("%s %d", a.ISO3, a.Year)),
		},
		"iso3": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(a.ISO3),
		},
		"year": notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(a.Year),
		},
		"risk_band": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: a.RiskBand},
		},
		"guardrail_breach": checkbox(a.GuardrailBreach),
		"alignment_low":    checkbox(a.AlignmentLow),
		"tipping_zone":     checkbox(a.TippingZone),
		"percolation_risk": checkbox(a.PercolationRisk),
		"shock_high":       checkbox(a.ShockHigh),
		"decline_high":     checkbox(a.DeclineHigh),
	}

	if score := float64(a.RiskScore); !math.IsNaN(score) {
		props["risk_score"] = notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: score,
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

func checkbox(b bool) notionapi.CheckboxProperty {
	return notionapi.CheckboxProperty{
		Type:     notionapi.PropertyTypeCheckbox,
		Checkbox: b,
	}
}

func plainText(rts []notionapi.RichText) string {
	var sb strings.Builder
	for _, rt := range rts {
		if rt.PlainText != "" {
			sb.WriteString(rt.PlainText)
			continue
		}
		if rt.Text != nil {
			sb.WriteString(rt.Text.Content)
		}
	}
	return sb.String()
}
