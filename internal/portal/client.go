package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vk/solkit/internal/ctxlog"
)

// ClientConfig holds the settings for a Client.
type ClientConfig struct {
	// BaseURL is the root of the content REST API, without a trailing slash.
	BaseURL string
	// Token authenticates every request. Session renewal is out of scope;
	// the token must stay valid for the duration of a run.
	Token string
	// Timeout bounds a single remote call. Zero means 30s.
	Timeout time.Duration
}

// Client is the HTTP implementation of Repository.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

var _ Repository = (*Client)(nil)

// NewClient creates a Repository backed by the remote content REST API.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GetItem fetches an item's base record.
func (c *Client) GetItem(ctx context.Context, itemID string) (Item, error) {
	raw, err := c.get(ctx, "/content/items/"+url.PathEscape(itemID), nil)
	if err != nil {
		return Item{}, fmt.Errorf("fetching item %s: %w", itemID, err)
	}
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return Item{}, fmt.Errorf("parsing item %s: %w", itemID, err)
	}
	item.Raw = raw
	return item, nil
}

// GetItemData fetches an item's data payload. Items without a data
// section yield a nil payload.
func (c *Client) GetItemData(ctx context.Context, itemID string) (json.RawMessage, error) {
	raw, err := c.get(ctx, "/content/items/"+url.PathEscape(itemID)+"/data", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching item %s data: %w", itemID, err)
	}
	if len(raw) == 0 || string(raw) == "{}" {
		return nil, nil
	}
	return raw, nil
}

// GetItemResources fetches an item's auxiliary resource payloads.
func (c *Client) GetItemResources(ctx context.Context, itemID string) ([]json.RawMessage, error) {
	raw, err := c.get(ctx, "/content/items/"+url.PathEscape(itemID)+"/resources", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching item %s resources: %w", itemID, err)
	}
	var body struct {
		Resources []json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("parsing item %s resources: %w", itemID, err)
	}
	return body.Resources, nil
}

// GetGroupContent lists a group's member item ids, following pagination
// until the remote reports no further page.
func (c *Client) GetGroupContent(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	start := 1
	for {
		params := url.Values{
			"start": {strconv.Itoa(start)},
			"num":   {"100"},
		}
		raw, err := c.get(ctx, "/content/groups/"+url.PathEscape(groupID), params)
		if err != nil {
			return nil, fmt.Errorf("fetching group %s content: %w", groupID, err)
		}
		var page struct {
			Items []struct {
				ID string `json:"id"`
			} `json:"items"`
			NextStart int `json:"nextStart"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("parsing group %s content: %w", groupID, err)
		}
		for _, it := range page.Items {
			ids = append(ids, it.ID)
		}
		if page.NextStart <= 0 {
			return ids, nil
		}
		start = page.NextStart
	}
}

// AddItem creates a content item.
func (c *Client) AddItem(ctx context.Context, item NewItem) (CreatedItem, error) {
	form := url.Values{"type": {item.Type}}
	if item.Folder != "" {
		form.Set("folder", item.Folder)
	}
	if len(item.Item) > 0 {
		form.Set("item", string(item.Item))
	}
	if len(item.Data) > 0 {
		form.Set("text", string(item.Data))
	}
	var resp struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
		URL     string `json:"url"`
	}
	if err := c.post(ctx, "/content/addItem", form, &resp); err != nil {
		return CreatedItem{}, fmt.Errorf("adding item of type %q: %w", item.Type, err)
	}
	if !resp.Success {
		return CreatedItem{}, fmt.Errorf("adding item of type %q: %w", item.Type, errNotAcknowledged)
	}
	return CreatedItem{ID: resp.ID, URL: resp.URL}, nil
}

// UpdateItem rewrites an item's base and data payloads.
func (c *Client) UpdateItem(ctx context.Context, itemID string, item, data json.RawMessage) error {
	form := url.Values{}
	if len(item) > 0 {
		form.Set("item", string(item))
	}
	if len(data) > 0 {
		form.Set("text", string(data))
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "/content/items/"+url.PathEscape(itemID)+"/update", form, &resp); err != nil {
		return fmt.Errorf("updating item %s: %w", itemID, err)
	}
	if !resp.Success {
		return fmt.Errorf("updating item %s: %w", itemID, errNotAcknowledged)
	}
	return nil
}

// CreateGroup creates an empty group container.
func (c *Client) CreateGroup(ctx context.Context, group NewGroup) (CreatedItem, error) {
	form := url.Values{"title": {group.Title}}
	if len(group.Raw) > 0 {
		form.Set("group", string(group.Raw))
	}
	var resp struct {
		Success bool `json:"success"`
		Group   struct {
			ID string `json:"id"`
		} `json:"group"`
	}
	if err := c.post(ctx, "/community/createGroup", form, &resp); err != nil {
		return CreatedItem{}, fmt.Errorf("creating group %q: %w", group.Title, err)
	}
	if !resp.Success {
		return CreatedItem{}, fmt.Errorf("creating group %q: %w", group.Title, errNotAcknowledged)
	}
	return CreatedItem{ID: resp.Group.ID}, nil
}

// ShareItems shares the given items into a group.
func (c *Client) ShareItems(ctx context.Context, groupID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	form := url.Values{"items": {strings.Join(itemIDs, ",")}}
	var resp struct {
		ItemID string `json:"itemId"`
	}
	if err := c.post(ctx, "/content/groups/"+url.PathEscape(groupID)+"/share", form, &resp); err != nil {
		return fmt.Errorf("sharing %d items to group %s: %w", len(itemIDs), groupID, err)
	}
	return nil
}

// UnprotectItem clears an item's delete protection.
func (c *Client) UnprotectItem(ctx context.Context, itemID string) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "/content/items/"+url.PathEscape(itemID)+"/unprotect", url.Values{}, &resp); err != nil {
		return fmt.Errorf("unprotecting item %s: %w", itemID, err)
	}
	return nil
}

// RemoveItem deletes an item.
func (c *Client) RemoveItem(ctx context.Context, itemID string) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "/content/items/"+url.PathEscape(itemID)+"/delete", url.Values{}, &resp); err != nil {
		return fmt.Errorf("removing item %s: %w", itemID, err)
	}
	if !resp.Success {
		return fmt.Errorf("removing item %s: %w", itemID, errNotAcknowledged)
	}
	return nil
}

var errNotAcknowledged = fmt.Errorf("remote did not acknowledge success")

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("f", "json")
	if c.token != "" {
		params.Set("token", c.token)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	form.Set("f", "json")
	if c.token != "" {
		form.Set("token", c.token)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// do executes the request and unwraps the remote API's error envelope.
// The remote reports application errors inside a 200 response, so the
// envelope check happens regardless of HTTP status.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	logger := ctxlog.FromContext(req.Context())
	logger.Debug("Portal request.", "method", req.Method, "path", req.URL.Path)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var envelope struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return nil, &RemoteError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return body, nil
}
