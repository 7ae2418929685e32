package openai

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comic-vault/api/internal/imaging"
	"comic-vault/api/internal/vision"
)

func testRequest() vision.Request {
	return vision.Request{
		Prompt: vision.ExtractionPrompt,
		Image:  imaging.Encoded{Data: []byte{0x89, 'P', 'N', 'G'}, MIME: "image/png"},
	}
}

func TestComplete_SendsPromptAndImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type     string `json:"type"`
					Text     string `json:"text"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body.Model)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		require.Len(t, body.Messages[0].Content, 2)
		assert.Equal(t, "text", body.Messages[0].Content[0].Type)
		assert.Equal(t, vision.ExtractionPrompt, body.Messages[0].Content[0].Text)
		assert.Equal(t, "image_url", body.Messages[0].Content[1].Type)
		assert.True(t, strings.HasPrefix(body.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"title\":\"X-Men\"} "}}]}`))
	}))
	defer srv.Close()

	e := New("sk-test", "gpt-4o").WithBaseURL(srv.URL + "/v1/")
	out, err := e.Complete(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"title":"X-Men"}`, out)
}

func TestComplete_MissingKeyNoNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	e := New("  ", "gpt-4o").WithBaseURL(srv.URL)
	_, err := e.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestComplete_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer srv.Close()

	_, err := New("sk-bad", "gpt-4o").WithBaseURL(srv.URL).Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, "openai 401: Incorrect API key provided", err.Error())
}

func TestDescribe_StatusErrorPrefixedOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer srv.Close()

	n := &imaging.Normalized{Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), Format: "png", Mode: imaging.ModeRGB}
	c := vision.NewClient(New("sk-bad", "gpt-4o").WithBaseURL(srv.URL))
	_, err := c.Describe(context.Background(), n)
	assert.EqualError(t, err, "openai 401: Incorrect API key provided")
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := New("sk", "gpt-4o").WithBaseURL(srv.URL).Complete(context.Background(), testRequest())
	assert.EqualError(t, err, "openai: empty response")
}

func TestComplete_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New("sk", "gpt-4o").WithBaseURL(srv.URL).Complete(ctx, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorMessage_FallsBackToBody(t *testing.T) {
	assert.Equal(t, "upstream exploded", errorMessage([]byte("  upstream exploded\n")))
}
