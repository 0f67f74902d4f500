package site

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/fetch"
	"github.com/user/brandwatch/pkg/utils"
)

const (
	DefaultItemsPerPage = 10
	maxTitleRunes       = 100
	maxPriceRunes       = 50
	selfSelector        = "self"
)

var errExcluded = errors.New("title matches an exclusion pattern")

// Adapter builds search URLs for one marketplace and extracts listings from
// its result pages. Extraction is a pure function of the markup.
type Adapter struct {
	cfg    Config
	base   *url.URL
	limit  int
	logger *zap.Logger
}

func NewAdapter(cfg Config, limit int, logger *zap.Logger) (*Adapter, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url for %s: %w", cfg.Name, err)
	}
	if limit < 1 {
		limit = DefaultItemsPerPage
	}
	return &Adapter{cfg: cfg, base: base, limit: limit, logger: logger}, nil
}

func (a *Adapter) Platform() entity.PlatformID { return entity.PlatformID(a.cfg.Name) }

func (a *Adapter) Key() string { return a.cfg.Key }

// ExpectedMarker is the selector whose presence proves a real results page.
func (a *Adapter) ExpectedMarker() string { return a.cfg.ExpectedMarker }

// BuildSearchURL returns the primary search URL for keyword.
func (a *Adapter) BuildSearchURL(keyword string) string {
	return a.SearchURLs(keyword)[0]
}

// SearchURLs returns every configured search URL for keyword, primary first.
func (a *Adapter) SearchURLs(keyword string) []string {
	escaped := strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(keyword)), "+", "%20")
	out := make([]string, 0, len(a.cfg.SearchURLs))
	for _, tmpl := range a.cfg.SearchURLs {
		out = append(out, strings.ReplaceAll(tmpl, KeywordPlaceholder, escaped))
	}
	return out
}

// Extract returns at most limit listings from the first limit cards in markup.
// Malformed cards are skipped without affecting the rest of the page.
func (a *Adapter) Extract(markup string) ([]entity.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s markup: %w", a.cfg.Name, err)
	}

	cards := doc.Find(a.cfg.CardSelector)
	if cards.Length() > a.limit {
		cards = cards.Slice(0, a.limit)
	}

	var listings []entity.RawListing
	cards.Each(func(i int, card *goquery.Selection) {
		raw, err := a.extractCard(card)
		if err != nil {
			a.logger.Debug("Skipping card", zap.String("platform", a.cfg.Name), zap.Int("index", i), zap.Error(err))
			return
		}
		listings = append(listings, raw)
	})
	return listings, nil
}

func (a *Adapter) extractCard(card *goquery.Selection) (raw entity.RawListing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", fetch.ErrAdapterParse, r)
		}
	}()

	title := truncate(firstValue(card, a.cfg.Fields.Title, textOf), maxTitleRunes)
	href := firstValue(card, a.cfg.Fields.Link, attrOf("href"))
	if title == "" && href == "" {
		return raw, fmt.Errorf("%w: no title and no link", fetch.ErrAdapterParse)
	}
	for _, pattern := range a.cfg.ExcludeTitles {
		if pattern != "" && strings.Contains(title, pattern) {
			return raw, errExcluded
		}
	}
	if title == "" {
		title = entity.NoTitle
	}

	price := truncate(firstValue(card, a.cfg.Fields.Price, textOf), maxPriceRunes)
	if price == "" {
		price = entity.PriceUnavailable
	}

	var image string
	for _, attr := range a.cfg.ImageAttrs {
		v := firstValue(card, a.cfg.Fields.Image, attrOf(attr))
		if v != "" && !strings.HasPrefix(v, "data:") {
			image = v
			break
		}
	}

	return entity.RawListing{
		Title:     title,
		PriceText: price,
		URL:       a.resolve(href),
		ImageURL:  a.resolve(image),
		Platform:  a.Platform(),
	}, nil
}

// resolve makes href absolute against the site base URL. Protocol-relative
// URLs are upgraded to https.
func (a *Adapter) resolve(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	}
	abs, err := utils.ToAbsoluteURL(a.base, href)
	if err != nil {
		return href
	}
	return abs
}

type valueFunc func(*goquery.Selection) string

func textOf(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func attrOf(name string) valueFunc {
	return func(s *goquery.Selection) string {
		v, _ := s.Attr(name)
		return strings.TrimSpace(v)
	}
}

// firstValue walks the candidate selectors in order and returns the first
// non-empty value. "sel@attr" reads attr from the match instead of using get.
func firstValue(card *goquery.Selection, selectors []string, get valueFunc) string {
	for _, sel := range selectors {
		sel, attr := splitAttr(sel)
		var match *goquery.Selection
		if sel == selfSelector {
			match = card
		} else {
			match = card.Find(sel).First()
		}
		if match.Length() == 0 {
			continue
		}
		read := get
		if attr != "" {
			read = attrOf(attr)
		}
		if v := read(match); v != "" {
			return v
		}
	}
	return ""
}

func splitAttr(sel string) (string, string) {
	i := strings.LastIndex(sel, "@")
	if i <= 0 || i == len(sel)-1 {
		return sel, ""
	}
	attr := sel[i+1:]
	for _, r := range attr {
		if !(r == '-' || r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return sel, ""
		}
	}
	return sel[:i], attr
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
