package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// PageProfile describes how to read a product page and how to recognize the
// challenge pages a source serves to automated clients.
type PageProfile struct {
	// PriceSelectors are tried in order; the first non-empty match wins.
	PriceSelectors []string
	// TitleSelectors locate the product title.
	TitleSelectors []string
	// ChallengePhrases mark a page as an anti-automation interstitial.
	ChallengePhrases []string
	// ChallengeSelectors mark a page as an interstitial by markup (e.g. captcha forms).
	ChallengeSelectors []string
	// WaitSelector is the element a rendering browser waits for before reading the DOM.
	WaitSelector string
}

// DefaultProfile reads Amazon storefront product pages.
func DefaultProfile() PageProfile {
	return PageProfile{
		PriceSelectors: []string{
			"#corePrice_feature_div span.a-offscreen",
			"span.a-price span.a-offscreen",
			"span.a-offscreen",
			"#priceblock_ourprice",
			"#priceblock_dealprice",
			"span.a-price-whole",
		},
		TitleSelectors: []string{"#productTitle", "title"},
		ChallengePhrases: []string{
			"Enter the characters you see below",
			"Type the characters you see in this image",
			"To discuss automated access to Amazon data",
			"Sorry, we just need to make sure you're not a robot",
		},
		ChallengeSelectors: []string{
			`form[action*="validateCaptcha"]`,
			"#captchacharacters",
		},
		WaitSelector: ".a-price-whole",
	}
}

// Observation is a successful price read.
type Observation struct {
	Price    decimal.Decimal
	Title    string
	Attempts int
}

// Inspect classifies an HTML document and extracts the observation from it.
// Challenge pages yield a blocked error, pages without price markup a
// not-found error and unreadable price text a parse failure.
func Inspect(html string, profile PageProfile) (*Observation, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, NewParseError("", err)
	}

	if IsChallenge(doc, profile) {
		return nil, NewBlockedError(0, "anti-automation challenge page served")
	}

	priceText := firstText(doc, profile.PriceSelectors)
	if priceText == "" {
		return nil, NewNotFoundError(0, "price element not found on page")
	}

	price, err := ParsePrice(priceText)
	if err != nil {
		return nil, err
	}

	return &Observation{
		Price: price,
		Title: firstText(doc, profile.TitleSelectors),
	}, nil
}

// IsChallenge reports whether doc is an anti-automation challenge page.
func IsChallenge(doc *goquery.Document, profile PageProfile) bool {
	for _, sel := range profile.ChallengeSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	text := doc.Text()
	for _, phrase := range profile.ChallengePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// isChallengeHTML is IsChallenge for raw markup.
func isChallengeHTML(html string, profile PageProfile) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return IsChallenge(doc, profile)
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = strings.Join(strings.Fields(s.Text()), " ")
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}
