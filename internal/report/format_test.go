package report

import (
	"strings"
	"testing"
)

const twoSections = `Weekly digest, generated automatically.

## FedEx SOAP Retirement
**Release Date:** 2026-06-01 | **Type:** Breaking Change | **Impact:** High
### Summary
FedEx retires the SOAP web services.
### Technical Details
- Rate and Ship endpoints removed
- OAuth required for REST
### Logiwa Impact
Carrier connector must move to REST.
### Action Required
> Migrate the FedEx connector before June.
---

## Shopify GraphQL Admin API
**Release Date:** 2026-04-01 | **Type:** Deprecation | **Impact:** Medium
### Summary
REST Admin API product endpoints are deprecated.
### Technical Details
- Use productSet mutation
### Logiwa Impact
Product sync jobs affected.
### Recommended Action
> Plan the GraphQL migration.
`

func TestParse_TwoSections(t *testing.T) {
	res := Parse(twoSections)
	if res.Kind != Parsed {
		t.Fatalf("kind = %v, want parsed (err %v)", res.Kind, res.Err)
	}
	if len(res.Sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(res.Sections))
	}

	fedex := res.Sections[0]
	checks := map[string][2]string{
		"title":          {fedex.Title, "FedEx SOAP Retirement"},
		"releaseDate":    {fedex.ReleaseDate, "2026-06-01"},
		"type":           {fedex.Type, "Breaking Change"},
		"impact":         {fedex.Impact, "High"},
		"summary":        {fedex.Summary, "FedEx retires the SOAP web services."},
		"logiwaImpact":   {fedex.LogiwaImpact, "Carrier connector must move to REST."},
		"actionRequired": {fedex.ActionRequired, "Migrate the FedEx connector before June."},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", field, c[0], c[1])
		}
	}
	if len(fedex.Details) != 2 || fedex.Details[0] != "Rate and Ship endpoints removed" || fedex.Details[1] != "OAuth required for REST" {
		t.Errorf("details = %q", fedex.Details)
	}
	if fedex.Logo == "" {
		t.Error("expected fedex logo")
	}

	shopify := res.Sections[1]
	if shopify.ActionRequired != "Plan the GraphQL migration." {
		t.Errorf("recommended action = %q", shopify.ActionRequired)
	}
	if shopify.Impact != "Medium" || shopify.Type != "Deprecation" {
		t.Errorf("marker = %q / %q", shopify.Type, shopify.Impact)
	}
}

func TestParse_MissingTechnicalDetails(t *testing.T) {
	res := Parse("## NetSuite 2026.1\n### Summary\nAI close manager.\n### Logiwa Impact\nNone.\n")
	if res.Kind != Parsed || len(res.Sections) != 1 {
		t.Fatalf("res = %+v", res)
	}
	s := res.Sections[0]
	if s.Details == nil || len(s.Details) != 0 {
		t.Errorf("details = %#v, want empty list", s.Details)
	}
	if s.Summary != "AI close manager." || s.LogiwaImpact != "None." {
		t.Errorf("section = %+v", s)
	}
}

func TestParse_MarkerDefaults(t *testing.T) {
	res := Parse("## Walmart\n### Summary\ntext\n")
	s := res.Sections[0]
	if s.Impact != "Low" || s.ReleaseDate != "N/A" || s.Type != "N/A" {
		t.Errorf("defaults = %q %q %q", s.Impact, s.ReleaseDate, s.Type)
	}
}

func TestParse_PartialMarker(t *testing.T) {
	res := Parse("## Etsy\n- **Release Date:** 2026-01-15 | **Type:** Feature\n")
	s := res.Sections[0]
	if s.ReleaseDate != "2026-01-15" || s.Type != "Feature" || s.Impact != "Low" {
		t.Errorf("marker = %q %q %q", s.ReleaseDate, s.Type, s.Impact)
	}
}

func TestParse_BoldSubHeaders(t *testing.T) {
	content := "## Amazon SP-API\n**Summary:**\nFees change.\n**Action Required**\n> Verify billing.\n> Update reports.\n***\ntrailing\n"
	s := Parse(content).Sections[0]
	if s.Summary != "Fees change." {
		t.Errorf("summary = %q", s.Summary)
	}
	if s.ActionRequired != "Verify billing.\nUpdate reports." {
		t.Errorf("action = %q", s.ActionRequired)
	}
}

func TestParse_FirstSubHeaderWins(t *testing.T) {
	content := "## Shippo\n### Summary\nfirst\n### Logiwa Impact\nimpact\n### Summary\nsecond\n"
	s := Parse(content).Sections[0]
	if s.Summary != "first" {
		t.Errorf("summary = %q, want first", s.Summary)
	}
	if !strings.Contains(s.LogiwaImpact, "impact") {
		t.Errorf("logiwa impact = %q", s.LogiwaImpact)
	}
}

func TestParse_DetailsOnlyDashLines(t *testing.T) {
	content := "## TikTok\n### Technical Details\nintro line\n- one\n  - two\n---\n"
	s := Parse(content).Sections[0]
	if len(s.Details) != 2 || s.Details[0] != "one" || s.Details[1] != "two" {
		t.Errorf("details = %q", s.Details)
	}
}

func TestParse_Kinds(t *testing.T) {
	if k := Parse("").Kind; k != Empty {
		t.Errorf("empty content kind = %v", k)
	}
	if k := Parse("  \n\t").Kind; k != Empty {
		t.Errorf("blank content kind = %v", k)
	}
	res := Parse("just a paragraph\n### Summary\nno section header")
	if res.Kind != Unparseable || res.Err == nil {
		t.Errorf("headerless content = %+v", res)
	}
	if res.HasContent() {
		t.Error("unparseable result must not have content")
	}
}

func TestParse_CRLF(t *testing.T) {
	res := Parse("## FedEx\r\n### Summary\r\nline\r\n")
	if got := res.Sections[0].Summary; got != "line" {
		t.Errorf("summary = %q", got)
	}
}

func TestLogoFor(t *testing.T) {
	cases := map[string]bool{
		"NetSuite 2026.1":     true,
		"AMAZON SP-API fees":  true,
		"TikTok Shop updates": true,
		"Magento 2.5 release": false,
		"":                    false,
	}
	for title, want := range cases {
		if got := LogoFor(title) != ""; got != want {
			t.Errorf("LogoFor(%q) found = %v, want %v", title, got, want)
		}
	}
	if LogoFor("Shopify and Amazon") != LogoFor("shopify") {
		t.Error("table order must decide between multiple matches")
	}
}
