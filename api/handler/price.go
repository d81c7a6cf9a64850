package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/liveprice/api/middleware"
	"github.com/use-agent/liveprice/models"
	"github.com/use-agent/liveprice/scraper"
)

// Price returns a handler for GET /price/:ticker.
//
// The body is always a bare JSON string: the price on success, a fixed
// message otherwise. Error detail is logged, never returned.
func Price(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params models.PriceParams
		if err := c.ShouldBindUri(&params); err != nil {
			c.JSON(http.StatusBadRequest, models.MsgBadRequest)
			return
		}

		price, err := sc.FetchPrice(c.Request.Context(), params.Ticker)
		if err != nil {
			respondError(c, params.Ticker, err)
			return
		}
		c.JSON(http.StatusOK, price)
	}
}

// respondError is the single place where scrape errors become statuses.
func respondError(c *gin.Context, ticker string, err error) {
	var ae *models.AutomationError
	if !errors.As(err, &ae) {
		ae = models.NewAutomationError(models.ErrCodeProtocolError, "unclassified scrape failure", err)
	}

	if ae.Code == models.ErrCodeInvalidTicker {
		slog.Info("rejected ticker",
			"ticker", ticker,
			"request_id", middleware.GetRequestID(c),
		)
		c.JSON(http.StatusBadRequest, models.MsgBadRequest)
		return
	}

	if c.Request.Context().Err() != nil {
		slog.Info("client went away during scrape",
			"ticker", ticker,
			"code", ae.Code,
			"request_id", middleware.GetRequestID(c),
		)
		c.JSON(http.StatusInternalServerError, models.MsgInternalServerError)
		return
	}

	slog.Error("price scrape failed",
		"ticker", ticker,
		"code", ae.Code,
		"retryable", ae.Retryable(),
		"error", ae.Error(),
		"request_id", middleware.GetRequestID(c),
	)
	c.JSON(http.StatusInternalServerError, models.MsgInternalServerError)
}
