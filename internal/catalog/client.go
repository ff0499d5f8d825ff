package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subtitle-pipeline-go/internal/remote"
	"subtitle-pipeline-go/internal/types"
)

// ErrCaptionExists marks a put-caption conflict. The upload stage treats it
// as recoverable: delete the existing caption and put again.
var ErrCaptionExists = errors.New("caption already exists for language")

const pageSize = 100

// Caption is one published subtitle as the catalog stores it.
type Caption struct {
	Language string `json:"language"`
	Content  string `json:"content"`
}

// Client talks to the catalog service. All failures come back classified as
// *remote.Error so the retry controller can branch on kind.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	session *remote.Session
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// UseSession attaches the process-wide session whose token is sent as a
// bearer header on every call except authentication itself.
func (c *Client) UseSession(s *remote.Session) { c.session = s }

type authResponse struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
}

// Authenticate implements remote.Authenticator against POST /auth.
func (c *Client) Authenticate(ctx context.Context) (remote.Credential, error) {
	body, _ := json.Marshal(map[string]string{"api_key": c.apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return remote.Credential{}, remote.Fatal("authenticate", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// no bearer header here: the session calls Authenticate while holding
	// its own lock, so this path must never ask the session for a token
	var resp authResponse
	if err := c.doJSONBare(req, "authenticate", &resp); err != nil {
		return remote.Credential{}, err
	}
	if resp.Token == "" {
		return remote.Credential{}, remote.Fatal("authenticate", fmt.Errorf("empty token in auth response"))
	}
	return remote.Credential{Token: resp.Token, Expiry: resp.Expiry}, nil
}

type itemPage struct {
	Items []struct {
		ID         string    `json:"id"`
		Title      string    `json:"title"`
		AssetURL   string    `json:"asset_url"`
		SourceLang string    `json:"source_lang"`
		CreatedAt  time.Time `json:"created_at"`
	} `json:"items"`
	NextPage int `json:"next_page"`
}

// ListItems walks the paginated listing until the catalog reports no next page.
func (c *Client) ListItems(ctx context.Context) ([]*types.Item, error) {
	var out []*types.Item
	page := 1
	for {
		u := fmt.Sprintf("%s/items?page=%d&page_size=%d", c.baseURL, page, pageSize)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, remote.Fatal("list-items", err)
		}
		var p itemPage
		if err := c.doJSON(req, "list-items", &p); err != nil {
			return nil, err
		}
		for _, raw := range p.Items {
			out = append(out, &types.Item{
				ID:         raw.ID,
				Title:      raw.Title,
				AssetURL:   raw.AssetURL,
				SourceLang: raw.SourceLang,
				CreatedAt:  raw.CreatedAt,
			})
		}
		if p.NextPage <= 0 || p.NextPage <= page {
			return out, nil
		}
		page = p.NextPage
	}
}

// GetCaptions returns the captions currently published for an item.
func (c *Client) GetCaptions(ctx context.Context, itemID string) ([]Caption, error) {
	u := fmt.Sprintf("%s/items/%s/captions", c.baseURL, url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, remote.Fatal("get-captions", err)
	}
	var resp struct {
		Captions []Caption `json:"captions"`
	}
	if err := c.doJSON(req, "get-captions", &resp); err != nil {
		return nil, err
	}
	return resp.Captions, nil
}

// PutCaption publishes one language-tagged caption. A conflict surfaces as
// ErrCaptionExists.
func (c *Client) PutCaption(ctx context.Context, itemID, lang, content string) error {
	u := fmt.Sprintf("%s/items/%s/captions/%s", c.baseURL, url.PathEscape(itemID), url.PathEscape(lang))
	body, _ := json.Marshal(map[string]string{"content": content})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return remote.Fatal("put-caption", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, respBody, err := c.do(req, "put-caption")
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		return fmt.Errorf("put-caption %s/%s: %w", itemID, lang, ErrCaptionExists)
	}
	return remote.FromStatus("put-caption", status, string(respBody))
}

// DeleteCaption removes a published caption for one language.
func (c *Client) DeleteCaption(ctx context.Context, itemID, lang string) error {
	u := fmt.Sprintf("%s/items/%s/captions/%s", c.baseURL, url.PathEscape(itemID), url.PathEscape(lang))
	return c.doDelete(ctx, u, "delete-caption")
}

// DeleteItem removes an item from the catalog.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	u := fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(itemID))
	return c.doDelete(ctx, u, "delete-item")
}

func (c *Client) doDelete(ctx context.Context, u, op string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return remote.Fatal(op, err)
	}
	status, body, err := c.do(req, op)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		// deleting something already gone is success for our purposes
		return nil
	}
	return remote.FromStatus(op, status, string(body))
}

// do executes the request with the bearer header attached and returns the
// raw status and body; transport failures are classified rate-limited so
// flaky networks get bounded backoff.
func (c *Client) do(req *http.Request, op string) (int, []byte, error) {
	if c.session != nil {
		tok, err := c.session.Token(req.Context())
		if err != nil {
			return 0, nil, remote.Fatal(op, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return c.doBare(req, op)
}

func (c *Client) doBare(req *http.Request, op string) (int, []byte, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, remote.RateLimited(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, remote.RateLimited(op, err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) doJSON(req *http.Request, op string, target interface{}) error {
	status, body, err := c.do(req, op)
	if err != nil {
		return err
	}
	return decodeJSON(status, body, op, target)
}

func (c *Client) doJSONBare(req *http.Request, op string, target interface{}) error {
	status, body, err := c.doBare(req, op)
	if err != nil {
		return err
	}
	return decodeJSON(status, body, op, target)
}

func decodeJSON(status int, body []byte, op string, target interface{}) error {
	if err := remote.FromStatus(op, status, string(body)); err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return remote.Validation(op, fmt.Errorf("json decode error: %v body=%s", err, string(body)))
	}
	return nil
}
