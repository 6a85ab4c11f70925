package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates a Client against a test server with retries that
// do not sleep.
func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := []Option{
		WithBaseURL(server.URL),
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	}
	return New("test-token", append(base, opts...)...)
}

func TestGetSprite(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/sprites/gh-org-repo-ci-1-build", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(Sprite{Name: "gh-org-repo-ci-1-build", Status: "running"})
	}))

	sprite, err := client.GetSprite(context.Background(), "gh-org-repo-ci-1-build")
	require.NoError(t, err)
	assert.Equal(t, "gh-org-repo-ci-1-build", sprite.Name)
	assert.Equal(t, "running", sprite.Status)
}

func TestGetSprite_NotFound(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "sprite not found", http.StatusNotFound)
	}))

	_, err := client.GetSprite(context.Background(), "missing", NoRetryOn404())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), calls.Load(), "404 with retry suppression must not retry")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "/sprites/missing", apiErr.Path)
}

func TestCreateSprite(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sprites", r.URL.Path)

		var req createSpriteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gh-org-repo-ci-1-build", req.Name)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Sprite{Name: req.Name, Status: "creating"})
	}))

	sprite, err := client.CreateSprite(context.Background(), "gh-org-repo-ci-1-build")
	require.NoError(t, err)
	assert.Equal(t, "gh-org-repo-ci-1-build", sprite.Name)
}

func TestCreateOrGetSprite(t *testing.T) {
	t.Parallel()

	t.Run("already exists", func(t *testing.T) {
		t.Parallel()

		var creates atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				creates.Add(1)
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(Sprite{Name: "existing"})
				return
			}
			json.NewEncoder(w).Encode(Sprite{Name: "existing", Status: "running"})
		}))

		sprite, err := client.CreateOrGetSprite(context.Background(), "existing")
		require.NoError(t, err)
		assert.Equal(t, "existing", sprite.Name)
		assert.Equal(t, int32(0), creates.Load(), "existing sprite must not be re-created")
	})

	t.Run("created when absent", func(t *testing.T) {
		t.Parallel()

		var creates atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			creates.Add(1)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Sprite{Name: "fresh", Status: "creating"})
		}))

		sprite, err := client.CreateOrGetSprite(context.Background(), "fresh")
		require.NoError(t, err)
		assert.Equal(t, "fresh", sprite.Name)
		assert.Equal(t, int32(1), creates.Load())
	})

	t.Run("lost create race falls back to get", func(t *testing.T) {
		t.Parallel()

		var gets atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				http.Error(w, "name already taken", http.StatusConflict)
				return
			}
			// First GET reports absent; after the conflicting create the
			// winner's sprite exists.
			if gets.Add(1) == 1 {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(Sprite{Name: "contested", Status: "running"})
		}))

		sprite, err := client.CreateOrGetSprite(context.Background(), "contested")
		require.NoError(t, err)
		assert.Equal(t, "contested", sprite.Name)
	})

	t.Run("get failure propagates", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))

		_, err := client.CreateOrGetSprite(context.Background(), "denied")
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.Status)
	})
}

func TestDeleteSprite(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/sprites/doomed", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, client.DeleteSprite(context.Background(), "doomed"))
}

func TestListSprites_SinglePage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gh-", r.URL.Query().Get("prefix"))
		json.NewEncoder(w).Encode(SpriteList{
			Sprites: []*Sprite{{Name: "gh-a"}, {Name: "gh-b"}},
			HasMore: false,
		})
	}))

	list, err := client.ListSprites(context.Background(), "gh-", "")
	require.NoError(t, err)
	assert.Len(t, list.Sprites, 2)
	assert.False(t, list.HasMore)
}

func TestListAllSprites_Pagination(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("continuation_token") {
		case "":
			json.NewEncoder(w).Encode(SpriteList{
				Sprites:               []*Sprite{{Name: "gh-a"}, {Name: "gh-b"}},
				HasMore:               true,
				NextContinuationToken: "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(SpriteList{
				Sprites: []*Sprite{{Name: "gh-c"}},
				HasMore: false,
			})
		default:
			t.Errorf("unexpected continuation token %q", r.URL.Query().Get("continuation_token"))
			http.Error(w, "bad token", http.StatusBadRequest)
		}
	}))

	all, err := client.ListAllSprites(context.Background(), "gh-")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "gh-a", all[0].Name)
	assert.Equal(t, "gh-c", all[2].Name)
}

func TestListCheckpoints(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sprites/gh-a/checkpoints", r.URL.Path)
		json.NewEncoder(w).Encode([]*Checkpoint{
			{ID: "v1", CreateTime: created, Comment: "ghrun=1;job=ci;step=install"},
			{ID: "v2", CreateTime: created.Add(time.Minute)},
		})
	}))

	checkpoints, err := client.ListCheckpoints(context.Background(), "gh-a")
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)
	assert.Equal(t, "v1", checkpoints[0].ID)
	assert.Equal(t, "ghrun=1;job=ci;step=install", checkpoints[0].Comment)
	assert.True(t, checkpoints[0].CreateTime.Equal(created))
}

func TestGetCheckpoint_NotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such checkpoint", http.StatusNotFound)
	}))

	_, err := client.GetCheckpoint(context.Background(), "gh-a", "v9", NoRetryOn404())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_TerminalErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := client.GetSprite(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx other than retryable statuses must not retry")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.False(t, apiErr.Retryable())
}

func TestAPIError_Message(t *testing.T) {
	t.Parallel()

	err := &APIError{
		Method:   http.MethodGet,
		Path:     "/sprites/x",
		Status:   503,
		Message:  "upstream unavailable",
		Attempts: 4,
	}

	msg := err.Error()
	assert.Contains(t, msg, "GET /sprites/x")
	assert.Contains(t, msg, "503")
	assert.Contains(t, msg, "upstream unavailable")
	assert.Contains(t, msg, "4 attempts")
}

func TestAPIError_Retryable(t *testing.T) {
	t.Parallel()

	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, (&APIError{Status: status}).Retryable(), "status %d", status)
	}
	for _, status := range []int{400, 401, 403, 404, 409, 422} {
		assert.False(t, (&APIError{Status: status}).Retryable(), "status %d", status)
	}
}
