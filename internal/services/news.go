package services

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/quantpulse/pulse/internal/contracts"
)

// NewsClient wraps the news source collaborator. The primary contract
// is JSON; some providers serve a rendered headline page instead, so
// the client falls back to HTML parsing before giving up on a response.
type NewsClient struct {
	caller *Caller
}

// NewNewsClient creates a news client.
func NewNewsClient(caller *Caller) *NewsClient {
	return &NewsClient{caller: caller}
}

type catalystsRequest struct {
	Symbols  []string `json:"symbols,omitempty"`
	Lookback string   `json:"lookback"`
}

type catalystsResponse struct {
	Catalysts []contracts.Catalyst `json:"catalysts"`
}

// Catalysts fetches news catalysts, optionally scoped to symbols.
// Returns events grouped by symbol.
func (c *NewsClient) Catalysts(ctx context.Context, symbols []string, lookback time.Duration, timeout time.Duration) (map[string][]contracts.Catalyst, contracts.ServiceCallResult) {
	result := c.caller.Call(ctx, contracts.ServiceNews, "catalysts", catalystsRequest{
		Symbols:  symbols,
		Lookback: lookback.String(),
	}, timeout)

	if !result.Success {
		return nil, result
	}

	var resp catalystsResponse
	if looksLikeHTML(result.Payload) {
		events, err := parseHeadlineHTML(result.Payload)
		if err != nil {
			result.Success = false
			result.ErrorKind = contracts.ErrKindMalformedResponse
			result.Error = "html fallback parse failed: " + err.Error()
			return nil, result
		}
		resp.Catalysts = events
	} else if !DecodeResult(&result, &resp) {
		return nil, result
	}

	grouped := make(map[string][]contracts.Catalyst, len(resp.Catalysts))
	for _, ev := range resp.Catalysts {
		grouped[ev.Symbol] = append(grouped[ev.Symbol], ev)
	}
	return grouped, result
}

func looksLikeHTML(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// parseHeadlineHTML extracts catalysts from a provider headline page.
// Expected markup: list items carrying data-symbol / data-sentiment /
// data-strength attributes with the headline as text.
func parseHeadlineHTML(payload []byte) ([]contracts.Catalyst, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var events []contracts.Catalyst
	doc.Find("[data-symbol]").Each(func(_ int, sel *goquery.Selection) {
		symbol, _ := sel.Attr("data-symbol")
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			return
		}

		ev := contracts.Catalyst{
			Symbol:      symbol,
			Headline:    strings.TrimSpace(sel.Text()),
			PublishedAt: time.Now(),
		}
		if v, ok := sel.Attr("data-sentiment"); ok {
			ev.Sentiment, _ = strconv.ParseFloat(v, 64)
		}
		if v, ok := sel.Attr("data-strength"); ok {
			ev.Strength, _ = strconv.ParseFloat(v, 64)
		}
		if v, ok := sel.Attr("data-type"); ok {
			ev.CatalystType = v
		}
		events = append(events, ev)
	})

	return events, nil
}
