package report

import "strings"

type logo struct {
	key string
	url string
}

// logos is scanned in order; the first key contained in the title wins.
var logos = []logo{
	{"netsuite", "https://logo.clearbit.com/netsuite.com"},
	{"shopify", "https://logo.clearbit.com/shopify.com"},
	{"shippo", "https://logo.clearbit.com/goshippo.com"},
	{"fedex", "https://logo.clearbit.com/fedex.com"},
	{"amazon", "https://logo.clearbit.com/amazon.com"},
	{"walmart", "https://logo.clearbit.com/walmart.com"},
	{"tiktok", "https://logo.clearbit.com/tiktok.com"},
	{"etsy", "https://logo.clearbit.com/etsy.com"},
}

// LogoFor returns the logo URL for an integration title, or "" if none matches.
func LogoFor(title string) string {
	lower := strings.ToLower(title)
	for _, l := range logos {
		if strings.Contains(lower, l.key) {
			return l.url
		}
	}
	return ""
}
