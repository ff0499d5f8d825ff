package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"subtitle-pipeline-go/internal/remote"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, "test-key")
}

// TestListItemsPaginates walks two pages and merges the results.
func TestListItemsPaginates(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			fmt.Fprint(w, `{"items":[{"id":"a","title":"First","asset_url":"http://x/a"}],"next_page":2}`)
		case "2":
			fmt.Fprint(w, `{"items":[{"id":"b","title":"Second","asset_url":"http://x/b"}],"next_page":0}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	})

	items, err := client.ListItems(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != "a" || items[1].ID != "b" {
		t.Fatalf("items = %+v, want a then b", items)
	}
}

// TestListItemsClassifiesRateLimit maps 429 to a rate-limited error kind.
func TestListItemsClassifiesRateLimit(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := client.ListItems(context.Background())
	if remote.KindOf(err) != remote.KindRateLimited {
		t.Fatalf("kind = %s, want rate_limited", remote.KindOf(err))
	}
}

// TestSessionBearerAttached verifies authenticated calls carry the session
// token and the auth endpoint itself does not.
func TestSessionBearerAttached(t *testing.T) {
	var sawAuthHeaderOnAuth, sawBearer bool
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			if r.Header.Get("Authorization") != "" {
				sawAuthHeaderOnAuth = true
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"token":  "tok-1",
				"expiry": time.Now().Add(time.Hour),
			})
		default:
			sawBearer = r.Header.Get("Authorization") == "Bearer tok-1"
			fmt.Fprint(w, `{"captions":[]}`)
		}
	})
	client.UseSession(remote.NewSession(client))

	if _, err := client.GetCaptions(context.Background(), "item-1"); err != nil {
		t.Fatalf("get captions: %v", err)
	}
	if sawAuthHeaderOnAuth {
		t.Fatal("auth request must not carry a bearer header")
	}
	if !sawBearer {
		t.Fatal("caption request missing session bearer token")
	}
}

// TestPutCaptionConflict surfaces 409 as ErrCaptionExists.
func TestPutCaptionConflict(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := client.PutCaption(context.Background(), "item-1", "es", "content")
	if !errors.Is(err, ErrCaptionExists) {
		t.Fatalf("err = %v, want ErrCaptionExists", err)
	}
}

// TestDeleteCaptionGoneIsSuccess treats 404 on delete as already done.
func TestDeleteCaptionGoneIsSuccess(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if err := client.DeleteCaption(context.Background(), "item-1", "es"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
