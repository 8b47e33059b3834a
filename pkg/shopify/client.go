package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/bargaining-backend/pkg/errors"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultBaseURLTemplate       = "https://%s.myshopify.com/admin/api/%s"
	DefaultPageSize              = 250
	accessTokenHeader            = "X-Shopify-Access-Token"
	responseBodyReadLimit  int64 = 1024
	defaultTimeout               = 10 * time.Second
)

// Credentials identify a shop on the Admin API.
type Credentials struct {
	ShopName    string
	APIVersion  string
	AccessToken string
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.ShopName) == "" || strings.TrimSpace(c.APIVersion) == "" || strings.TrimSpace(c.AccessToken) == "" {
		return pkgerrors.New(pkgerrors.CodeNotFound, "commerce credentials are incomplete")
	}
	return nil
}

// Client wraps the Admin REST endpoints used to read a merchant's catalog.
type Client struct {
	httpClient      *http.Client
	baseURLTemplate string
	pageSize        int
	retryAttempts   uint64
	retryBase       time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURLTemplate overrides the shop URL template; it receives the shop
// name and API version.
func WithBaseURLTemplate(template string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(template)
		if trimmed != "" {
			c.baseURLTemplate = trimmed
		}
	}
}

// WithPageSize sets the single-page limit requested from the catalog.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithTimeoutRetry retries timed out calls up to attempts times with exponential backoff.
func WithTimeoutRetry(attempts uint64, base time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		if base > 0 {
			c.retryBase = base
		}
	}
}

// NewClient builds the Admin API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient:      &http.Client{Timeout: defaultTimeout},
		baseURLTemplate: DefaultBaseURLTemplate,
		pageSize:        DefaultPageSize,
		retryBase:       200 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Product mirrors the fields read from products.json.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	ProductType string    `json:"product_type"`
	Variants    []Variant `json:"variants"`
}

// Variant mirrors a product variant; price arrives as a decimal string.
type Variant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// ProductPage is a single page of products.
type ProductPage struct {
	Products []Product
	// HasNextPage is set when the response advertises a further page that was not fetched.
	HasNextPage bool
}

// Collection is a custom or smart collection.
type Collection struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

// ListProducts fetches the first page of the shop's products.
func (c *Client) ListProducts(ctx context.Context, creds Credentials) (*ProductPage, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "commerce client not configured")
	}
	if err := creds.validate(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))

	var payload struct {
		Products *[]Product `json:"products"`
	}
	header, err := c.get(ctx, creds, "products", query, &payload)
	if err != nil {
		return nil, err
	}
	if payload.Products == nil {
		return nil, upstreamFailure("products", &UpstreamError{Kind: KindMalformed, Status: http.StatusOK, Body: "missing products key"})
	}

	return &ProductPage{
		Products:    *payload.Products,
		HasNextPage: hasNextPage(header.Get("Link")),
	}, nil
}

// ListCustomCollections fetches the shop's custom collections.
func (c *Client) ListCustomCollections(ctx context.Context, creds Credentials) ([]Collection, error) {
	var payload struct {
		Collections []Collection `json:"custom_collections"`
	}
	if err := c.listCollections(ctx, creds, "custom_collections", &payload); err != nil {
		return nil, err
	}
	return payload.Collections, nil
}

// ListSmartCollections fetches the shop's smart collections.
func (c *Client) ListSmartCollections(ctx context.Context, creds Credentials) ([]Collection, error) {
	var payload struct {
		Collections []Collection `json:"smart_collections"`
	}
	if err := c.listCollections(ctx, creds, "smart_collections", &payload); err != nil {
		return nil, err
	}
	return payload.Collections, nil
}

func (c *Client) listCollections(ctx context.Context, creds Credentials, resource string, dest any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "commerce client not configured")
	}
	if err := creds.validate(); err != nil {
		return err
	}
	_, err := c.get(ctx, creds, resource, nil, dest)
	return err
}

func (c *Client) get(ctx context.Context, creds Credentials, resource string, query url.Values, dest any) (http.Header, error) {
	if c.retryAttempts == 0 {
		return c.doGet(ctx, creds, resource, query, dest)
	}

	var header http.Header
	backoff := retry.WithMaxRetries(c.retryAttempts, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		h, err := c.doGet(ctx, creds, resource, query, dest)
		if err != nil {
			var upErr *UpstreamError
			if errors.As(err, &upErr) && upErr.Kind == KindTimeout {
				return retry.RetryableError(err)
			}
			return err
		}
		header = h
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return nil, upstreamFailure(resource, classifyTransportError(err))
		}
		return nil, err
	}
	return header, nil
}

func (c *Client) doGet(ctx context.Context, creds Credentials, resource string, query url.Values, dest any) (http.Header, error) {
	endpoint := c.buildURL(creds, resource)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build catalog request")
	}
	httpReq.Header.Set(accessTokenHeader, creds.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, upstreamFailure(resource, classifyTransportError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, upstreamFailure(resource, &UpstreamError{
			Kind:   kindForStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		})
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return nil, upstreamFailure(resource, &UpstreamError{Kind: KindMalformed, Status: resp.StatusCode, Err: err})
	}
	return resp.Header, nil
}

func (c *Client) buildURL(creds Credentials, resource string) string {
	base := strings.TrimRight(fmt.Sprintf(c.baseURLTemplate, url.PathEscape(creds.ShopName), url.PathEscape(creds.APIVersion)), "/")
	return fmt.Sprintf("%s/%s.json", base, strings.TrimLeft(resource, "/"))
}

func hasNextPage(link string) bool {
	for _, part := range strings.Split(link, ",") {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}

func classifyTransportError(err error) *UpstreamError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &UpstreamError{Kind: KindTimeout, Err: err}
	}
	return &UpstreamError{Kind: KindOther, Err: err}
}
