package mcpserver

// ReportFormat describes the Markdown structure the dashboard parses into
// integration sections.
const ReportFormat = `# Intel Report Format

A report is Markdown. Everything before the first level-2 header is ignored.

## Structure

` + "```" + `markdown
Optional preamble (not shown).

## <Integration title>
**Release Date:** 2026-02-01 | **Type:** Breaking Change | **Impact:** High

### Summary
One or two sentences.

### Technical Details
- One change per dash line.
- Lines without a leading dash are dropped.

### Logiwa Impact
What this means for our integration.

### Action Required
> What the integration team must do.

---
` + "```" + `

## Rules

1. **One section per integration**, each starting with ` + "`" + `## ` + "`" + ` and the integration name.
   Include the platform name (NetSuite, Shopify, Shippo, FedEx, Amazon, Walmart,
   TikTok, Etsy) in the title so the logo is shown.
2. **Marker line**: the first line starting with "Release Date" holds
   ` + "`" + `key: value` + "`" + ` pairs separated by ` + "`" + `|` + "`" + `. Keys are Release Date, Type and Impact.
   Missing values default to N/A (date, type) and Low (impact).
3. **Sub-headers** may be ` + "`" + `###` + "`" + ` headers or fully bold lines (` + "`" + `**Summary**` + "`" + `).
   Recognised names: Summary, Technical Details, Logiwa Impact, Action Required
   (or Recommended Action). Only the first occurrence of each counts.
4. **Action Required** text may be quoted with ` + "`" + `>` + "`" + `; it ends at a horizontal rule
   (` + "`" + `---` + "`" + `, ` + "`" + `***` + "`" + ` or ` + "`" + `___` + "`" + `).
5. Missing sub-headers are allowed and leave the field empty.
6. **Encoding** is UTF-8.

## Inbox files

Files dropped into the inbox directory may start with YAML frontmatter:

` + "```" + `markdown
---
name: Weekly Intel 2026-02-20
status: completed
alert_count: 2
timestamp: 2026-02-20T09:00:00Z
---
## FedEx API
...
` + "```" + `
`
