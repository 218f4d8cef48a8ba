// Package polymarket implements the REST client for the Polymarket CLOB API:
// market listing, top-of-book retrieval, and signed order placement.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/dutchbot/internal/crypto"
	"github.com/alanyoungcy/dutchbot/internal/domain"
)

const (
	// usdcScale converts share/price amounts to the venue's 6-decimal
	// fixed-point integers.
	usdcScale = 1e6

	// zeroAddress is the taker for open (non-private) orders.
	zeroAddress = "0x0000000000000000000000000000000000000000"

	defaultTimeout = 10 * time.Second
)

// Client talks to the CLOB REST API. Read endpoints need no credentials;
// PlaceOrder requires both a Signer (EIP-712) and HMAC credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	signer   *crypto.Signer
	hmacAuth *crypto.HMACAuth

	chainID       int
	signatureType int
}

// Option customizes a Client.
type Option func(*Client)

// WithSigner attaches an EIP-712 signer for authenticated endpoints.
func WithSigner(s *crypto.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithHMACAuth attaches L2 API credentials for authenticated endpoints.
func WithHMACAuth(a *crypto.HMACAuth) Option {
	return func(c *Client) { c.hmacAuth = a }
}

// WithSignatureType sets the order signature type (0 = EOA).
func WithSignatureType(t int) Option {
	return func(c *Client) { c.signatureType = t }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a CLOB client for the given base URL and chain ID.
func NewClient(baseURL string, chainID int, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		chainID:    chainID,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("component", "polymarket"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListMarkets fetches one page of markets. Pass an empty cursor for the first
// page; a returned MarketPage with an empty NextCursor means the listing is
// exhausted.
func (c *Client) ListMarkets(ctx context.Context, cursor string) (domain.MarketPage, error) {
	endpoint := c.baseURL + "/markets"
	if cursor != "" {
		endpoint += "?next_cursor=" + url.QueryEscape(cursor)
	}

	var resp marketsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return domain.MarketPage{}, fmt.Errorf("polymarket: listing markets: %w", err)
	}

	page := domain.MarketPage{Markets: make([]domain.Market, 0, len(resp.Data))}
	for _, m := range resp.Data {
		page.Markets = append(page.Markets, m.ToDomain())
	}
	if resp.NextCursor != "" && resp.NextCursor != endCursor {
		page.NextCursor = resp.NextCursor
	}
	return page, nil
}

// GetBook fetches the orderbook for a single outcome token.
func (c *Client) GetBook(ctx context.Context, tokenID string) (domain.TokenBook, error) {
	endpoint := c.baseURL + "/book?token_id=" + url.QueryEscape(tokenID)

	var resp apiBook
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return domain.TokenBook{}, fmt.Errorf("polymarket: fetching book for token %s: %w", tokenID, err)
	}
	return resp.ToDomain(), nil
}

// PlaceOrder signs and submits a limit order, returning the normalized leg
// result. A rejected order ("success": false) is reported as an unfilled leg,
// not an error; errors indicate the submission itself could not complete.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if c.signer == nil || c.hmacAuth == nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: placing order: credentials not configured: %w", domain.ErrUnauthorized)
	}
	if req.Price <= 0 || req.Price >= 1 || req.Shares <= 0 {
		return domain.OrderResult{}, fmt.Errorf("polymarket: price=%.4f shares=%.2f: %w", req.Price, req.Shares, domain.ErrInvalidOrder)
	}

	payload, err := c.buildSignedOrder(req)
	if err != nil {
		return domain.OrderResult{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: encoding order: %w", err)
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, err
	}

	var resp apiOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket: decoding order response: %w", err)
	}

	result := resp.ToOrderResult(req)
	c.logger.Info("order submitted",
		"token_id", req.TokenID,
		"side", string(req.Side),
		"price", req.Price,
		"shares", req.Shares,
		"status", string(result.Status),
		"order_id", result.OrderID,
		"error_msg", resp.ErrorMsg,
	)
	return result, nil
}

// buildSignedOrder assembles and signs the EIP-712 order payload.
//
// Amount convention (6-decimal fixed point):
//
//	BUY:  makerAmount = price * shares (USDC in), takerAmount = shares (tokens out)
//	SELL: makerAmount = shares (tokens in), takerAmount = price * shares (USDC out)
func (c *Client) buildSignedOrder(req domain.OrderRequest) (map[string]any, error) {
	shares := math.Round(req.Shares * usdcScale)
	usdc := math.Round(req.Price * req.Shares * usdcScale)

	var makerAmount, takerAmount string
	var sideNum int
	if req.Side == domain.SideSell {
		sideNum = 1
		makerAmount = strconv.FormatFloat(shares, 'f', 0, 64)
		takerAmount = strconv.FormatFloat(usdc, 'f', 0, 64)
	} else {
		makerAmount = strconv.FormatFloat(usdc, 'f', 0, 64)
		takerAmount = strconv.FormatFloat(shares, 'f', 0, 64)
	}

	addr := c.signer.Address().Hex()
	order := crypto.OrderPayload{
		Salt:          crypto.NewSalt(),
		Maker:         addr,
		Signer:        addr,
		Taker:         zeroAddress,
		TokenID:       req.TokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideNum,
		SignatureType: c.signatureType,
	}

	sig, err := c.signer.SignOrder(order)
	if err != nil {
		return nil, fmt.Errorf("polymarket: %w: %v", domain.ErrSigningFailed, err)
	}

	return map[string]any{
		"order": map[string]any{
			"salt":          order.Salt,
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenId":       order.TokenID,
			"makerAmount":   order.MakerAmount,
			"takerAmount":   order.TakerAmount,
			"expiration":    order.Expiration,
			"nonce":         order.Nonce,
			"feeRateBps":    order.FeeRateBps,
			"side":          string(req.Side),
			"signatureType": order.SignatureType,
			"signature":     sig,
		},
		"owner":     c.hmacAuth.Key,
		"orderType": "FOK",
	}, nil
}

// DeriveAPIKey obtains (or re-derives) L2 API credentials using an L1
// (EIP-712 auth message) signed request. The derived credentials are stored
// on the client and returned.
func (c *Client) DeriveAPIKey(ctx context.Context) (*crypto.HMACAuth, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("polymarket: deriving API key: signer not configured: %w", domain.ErrUnauthorized)
	}

	ts := time.Now().Unix()
	const nonce = 0
	addr := c.signer.Address().Hex()

	sig, err := c.signer.SignAuthMessage(addr, ts, nonce)
	if err != nil {
		return nil, fmt.Errorf("polymarket: signing auth message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket: building request: %w", err)
	}
	httpReq.Header.Set("POLY_ADDRESS", addr)
	httpReq.Header.Set("POLY_SIGNATURE", sig)
	httpReq.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(ts, 10))
	httpReq.Header.Set("POLY_NONCE", strconv.Itoa(nonce))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("polymarket: deriving API key: %w", err)
	}
	defer httpResp.Body.Close()

	if err := checkHTTPStatus(httpResp); err != nil {
		return nil, fmt.Errorf("polymarket: deriving API key: %w", err)
	}

	var creds struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("polymarket: decoding credentials: %w", err)
	}

	auth := &crypto.HMACAuth{
		Key:        creds.APIKey,
		Secret:     creds.Secret,
		Passphrase: creds.Passphrase,
	}
	c.hmacAuth = auth
	c.logger.Info("derived API credentials", "auth", auth)
	return auth, nil
}

// --------------------------------------------------------------------------
// Transport helpers
// --------------------------------------------------------------------------

// getJSON performs an unauthenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// doAuthenticatedRequest performs an L2 (HMAC) authenticated request and
// returns the raw response body.
func (c *Client) doAuthenticatedRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("polymarket: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	for k, v := range c.hmacAuth.L2Headers(c.signer.Address().Hex(), method, path, string(body)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return nil, fmt.Errorf("polymarket: %s %s: %w", method, path, err)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("polymarket: reading response: %w", err)
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx responses onto domain errors.
func checkHTTPStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
}
