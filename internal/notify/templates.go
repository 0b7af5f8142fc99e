package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/Houeta/pricewatch/internal/models"
)

// shortTitleLen is the number of title characters kept in a subject line.
const shortTitleLen = 20

type messageTemplate struct {
	subject string
	body    *template.Template
}

var messageTemplates = map[models.Category]messageTemplate{
	models.CategoryWelcome: {
		subject: "Welcome to Price Tracking for %s",
		body: template.Must(template.New("welcome").Parse(`<div>
  <h2>Welcome to PriceWatch</h2>
  <p>You are now tracking <strong>{{ .Title }}</strong>.</p>
  <p>We will email you when the price drops, hits a new low or the item is back in stock.</p>
  <p><a href="{{ .URL }}" target="_blank" rel="noopener noreferrer">View product</a></p>
</div>`)),
	},
	models.CategoryBackInStock: {
		subject: "%s is now back in stock!",
		body: template.Must(template.New("stock").Parse(`<div>
  <h4>Hey, {{ .Title }} is now restocked! Grab yours before it runs out again!</h4>
  <p>See the product <a href="{{ .URL }}" target="_blank" rel="noopener noreferrer">here</a>.</p>
</div>`)),
	},
	models.CategoryLowestPriceEver: {
		subject: "Lowest Price Alert for %s",
		body: template.Must(template.New("lowest").Parse(`<div>
  <h4>Hey, {{ .Title }} has reached its lowest price ever: {{ .Currency }}{{ .Price }}!</h4>
  <p>Grab the product <a href="{{ .URL }}" target="_blank" rel="noopener noreferrer">here</a> now.</p>
</div>`)),
	},
	models.CategoryPriceDrop: {
		subject: "Price Drop Alert for %s",
		body: template.Must(template.New("drop").Parse(`<div>
  <h4>The price of {{ .Title }} dropped to {{ .Currency }}{{ .Price }}.</h4>
  <p>Check it out <a href="{{ .URL }}" target="_blank" rel="noopener noreferrer">here</a>.</p>
</div>`)),
	},
	models.CategoryThresholdCrossed: {
		subject: "Discount Alert for %s",
		body: template.Must(template.New("threshold").Parse(`<div>
  <h4>Hey, {{ .Title }} is now available at {{ .Currency }}{{ .Price }}{{ if .Discount }} ({{ .Discount }}% off){{ end }}!</h4>
  <p>Grab it right away from <a href="{{ .URL }}" target="_blank" rel="noopener noreferrer">here</a>.</p>
</div>`)),
	},
}

type messageData struct {
	Title    string
	URL      string
	Currency string
	Price    string
	Discount int
}

// BuildMessage renders the email for the category, referencing the product title and URL.
func BuildMessage(product models.TrackedProduct, category models.Category) (models.EmailContent, error) {
	tmpl, ok := messageTemplates[category]
	if !ok {
		return models.EmailContent{}, fmt.Errorf("notify.BuildMessage: unsupported category %q", category)
	}

	data := messageData{
		Title:    product.Title,
		URL:      product.URL,
		Currency: product.Currency,
		Price:    product.CurrentPrice.StringFixed(2),
		Discount: product.DiscountRate,
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, data); err != nil {
		return models.EmailContent{}, fmt.Errorf("notify.BuildMessage: failed to render %s body: %w", category, err)
	}

	return models.EmailContent{
		Subject: fmt.Sprintf(tmpl.subject, shortenTitle(product.Title)),
		Body:    body.String(),
	}, nil
}

func shortenTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= shortTitleLen {
		return title
	}
	return strings.TrimSpace(string(runes[:shortTitleLen])) + "..."
}
