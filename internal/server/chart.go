package server

import (
	"bytes"
	"net/http"

	"github.com/Houeta/pricewatch/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// PriceChart renders the price history of a product as an HTML line chart.
func (s *Server) PriceChart(c *gin.Context) {
	const opn = "server.PriceChart"

	product, ok := s.lookup(c, opn)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := historyChart(product).Render(&buf); err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to render chart", "op", opn, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render chart"})
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func historyChart(product *models.TrackedProduct) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: product.Title}),
		charts.WithTitleOpts(opts.Title{
			Title:    product.Title,
			Subtitle: "Lowest " + product.LowestPrice.String() + " / Highest " + product.HighestPrice.String() +
				" / Average " + product.AveragePrice.StringFixed(2) + " " + product.Currency,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)

	x := make([]string, 0, len(product.PriceHistory))
	y := make([]opts.LineData, 0, len(product.PriceHistory))
	for _, point := range product.PriceHistory {
		x = append(x, point.RecordedAt.Format("2006-01-02 15:04"))
		y = append(y, opts.LineData{Value: point.Price.InexactFloat64()})
	}

	line.SetXAxis(x).AddSeries("Price", y)

	return line
}
