package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"
)

var (
	// ErrRetryLater is reported when the storefront asks to come back later (HTTP 429/503).
	ErrRetryLater = errors.New("storefront asked to retry later")
	// ErrNoTitle is reported when the page does not look like a product page.
	ErrNoTitle = errors.New("product title not found")
	// ErrNoPrice is reported when no price could be read from the page.
	ErrNoPrice = errors.New("product price not found")
)

// StatusError is a non-200 response from the storefront.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code error: [%d] %s", e.Code, e.Status)
}

// Is makes busy and rate-limit responses match ErrRetryLater.
func (e *StatusError) Is(target error) bool {
	return target == ErrRetryLater &&
		(e.Code == http.StatusServiceUnavailable || e.Code == http.StatusTooManyRequests)
}

var priceRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// HTTPScraper fetches a product page and reads a Snapshot from its markup.
type HTTPScraper struct {
	log       *slog.Logger
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPScraper creates a scraper issuing at most rps requests per second; rps <= 0 disables throttling.
func NewHTTPScraper(log *slog.Logger, timeout time.Duration, rps float64) *HTTPScraper {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPScraper{
		log:       log,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: "Mozilla/5.0 (compatible; PriceWatch/1.0)",
	}
}

// Scrape downloads the page at rawURL and parses it into a Snapshot.
func (s *HTTPScraper) Scrape(ctx context.Context, rawURL string) (models.Snapshot, error) {
	resp, err := s.getHTMLResponse(ctx, rawURL)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to get html response: %w", err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return models.Snapshot{}, err
	}

	return s.parseProductPage(ctx, rawURL, body)
}

func (s *HTTPScraper) getHTMLResponse(ctx context.Context, rawURL string) (*http.Response, error) {
	reqURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse product URL %s: %w", rawURL, err)
	}

	if err = s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request %s: %w", reqURL.String(), err)
	}

	req.Header.Add("User-Agent", s.userAgent)
	req.Header.Add("Accept-Language", "en-US,en;q=0.9")

	s.log.DebugContext(ctx, "Send request", "method", req.Method, "URL", req.URL)

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", rawURL, err)
	}

	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, &StatusError{Code: res.StatusCode, Status: res.Status}
	}

	s.log.DebugContext(ctx, "Successfully received http response", "status code", res.StatusCode)

	return res, nil
}

// decodeBody converts legacy single-byte encodings to UTF-8 before parsing.
func decodeBody(resp *http.Response) (io.Reader, error) {
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return resp.Body, nil //nolint:nilerr // a missing or broken header means UTF-8
	}

	switch strings.ToLower(params["charset"]) {
	case "windows-1252", "cp1252":
		return transform.NewReader(resp.Body, charmap.Windows1252.NewDecoder()), nil
	case "iso-8859-1", "latin1":
		return transform.NewReader(resp.Body, charmap.ISO8859_1.NewDecoder()), nil
	case "iso-8859-15":
		return transform.NewReader(resp.Body, charmap.ISO8859_15.NewDecoder()), nil
	default:
		return resp.Body, nil
	}
}

func (s *HTTPScraper) parseProductPage(ctx context.Context, rawURL string, inp io.Reader) (models.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(inp)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("data cannot be parsed as HTML: %w", err)
	}

	snap := models.Snapshot{
		URL: rawURL,
		Title: firstNonEmpty(
			text(doc, "#productTitle"),
			attr(doc, `meta[property="og:title"]`, "content"),
			text(doc, "title"),
		),
		Currency: firstNonEmpty(
			text(doc, ".a-price-symbol"),
			attr(doc, `meta[property="product:price:currency"]`, "content"),
			attr(doc, `[itemprop="priceCurrency"]`, "content"),
		),
		ImageURL: firstNonEmpty(
			attr(doc, "#landingImage", "data-old-hires"),
			attr(doc, "#landingImage", "src"),
			attr(doc, `meta[property="og:image"]`, "content"),
		),
		Description: firstNonEmpty(
			attr(doc, `meta[name="description"]`, "content"),
			attr(doc, `meta[property="og:description"]`, "content"),
		),
		Availability: parseAvailability(doc),
		DiscountRate: parseDiscount(text(doc, ".savingsPercentage")),
	}

	if snap.Title == "" {
		return models.Snapshot{}, ErrNoTitle
	}

	snap.Price = extractPrice(
		text(doc, ".priceToPay span.a-price-whole"),
		text(doc, ".a.size.base.a-color-price"),
		text(doc, ".a-button-selected .a-color-base"),
		text(doc, "#priceblock_dealprice"),
		text(doc, "#priceblock_ourprice"),
		attr(doc, `meta[property="product:price:amount"]`, "content"),
		attr(doc, `[itemprop="price"]`, "content"),
		text(doc, `[itemprop="price"]`),
	)
	if !snap.Price.IsPositive() {
		return models.Snapshot{}, ErrNoPrice
	}

	snap.OriginalPrice = extractPrice(
		text(doc, "#priceblock_ourprice"),
		text(doc, ".a-price.a-text-price span.a-offscreen"),
		text(doc, "#listPrice"),
		text(doc, ".basisPrice .a-offscreen"),
	)
	if !snap.OriginalPrice.IsPositive() {
		snap.OriginalPrice = snap.Price
	}

	s.log.DebugContext(
		ctx,
		"Parsed product",
		"title", snap.Title,
		"price", snap.Price.String(),
		"availability", snap.Availability,
	)

	return snap, nil
}

func parseAvailability(doc *goquery.Document) models.Availability {
	status := strings.ToLower(firstNonEmpty(
		text(doc, "#availability span"),
		attr(doc, `meta[property="product:availability"]`, "content"),
		attr(doc, `link[itemprop="availability"]`, "href"),
	))

	switch {
	case status == "":
		return models.AvailabilityUnknown
	case strings.Contains(status, "currently unavailable"),
		strings.Contains(status, "out of stock"),
		strings.Contains(status, "outofstock"):
		return models.AvailabilityOutOfStock
	default:
		return models.AvailabilityInStock
	}
}

// extractPrice returns the first parseable price among the candidate texts.
func extractPrice(candidates ...string) decimal.Decimal {
	for _, c := range candidates {
		m := priceRe.FindString(c)
		if m == "" {
			continue
		}
		price, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
		if err == nil && price.IsPositive() {
			return price
		}
	}
	return decimal.Zero
}

func parseDiscount(s string) int {
	s = strings.Trim(strings.TrimSpace(s), "-%")
	rateVal, err := strconv.Atoi(s)
	if err != nil || rateVal < 0 || rateVal > 100 {
		return 0
	}
	return rateVal
}

func text(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
