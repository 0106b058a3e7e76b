package docedit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adcraft/ad-pipeline/internal/apierr"
	"github.com/adcraft/ad-pipeline/internal/imsauth"
	"github.com/adcraft/ad-pipeline/pkg/pipeline"
)

type fakeSigner struct{}

func (fakeSigner) PresignGet(ctx context.Context, h pipeline.AssetHandle) (string, error) {
	return "https://store.test/get/" + h.Namespace + "/" + h.Key, nil
}

func (fakeSigner) PresignPut(ctx context.Context, h pipeline.AssetHandle) (string, error) {
	return "https://store.test/put/" + h.Namespace + "/" + h.Key, nil
}

func tokenServer(t *testing.T) *imsauth.TokenSource {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return imsauth.New(srv.URL, "id", "secret", "", nil)
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Options{
		BaseURL:  srv.URL,
		ClientID: "client-id",
		Tokens:   tokenServer(t),
	}, fakeSigner{}, zerolog.Nop())
}

func doc() pipeline.AssetHandle {
	return pipeline.AssetHandle{Namespace: "summer.yaml", Key: "square.psd"}
}

func TestReplaceTextLayersSortedAndExternal(t *testing.T) {
	var got editRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/replaceText", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "client-id", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	out, err := c.ReplaceText(context.Background(), doc(), map[string]string{
		pipeline.LayerCallToAction: "Shop Now",
		pipeline.LayerCampaignText: "Run further",
	})
	require.NoError(t, err)

	assert.Equal(t, "summer.yaml", out.Namespace)
	assert.True(t, strings.HasPrefix(out.Key, "text_replace/"))

	require.Len(t, got.Inputs, 1)
	assert.Equal(t, "external", got.Inputs[0].Storage)
	assert.Contains(t, got.Inputs[0].Href, "square.psd")
	require.Len(t, got.Outputs, 1)
	assert.Contains(t, got.Outputs[0].Href, "text_replace/")

	// Layers arrive in sorted name order.
	require.Len(t, got.Options.Layers, 2)
	assert.Equal(t, pipeline.LayerCampaignText, got.Options.Layers[0].Name)
	assert.Equal(t, "Run further", got.Options.Layers[0].Text.Content)
	assert.Equal(t, pipeline.LayerCallToAction, got.Options.Layers[1].Name)
}

func TestReplaceEmbeddedImage(t *testing.T) {
	var got editRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/replaceSmartObject", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	img := pipeline.AssetHandle{Namespace: "summer.yaml", Key: "cutout/shoes.png"}
	out, err := c.ReplaceEmbeddedImage(context.Background(), doc(), img)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.Key, "final_template/"))
	require.Len(t, got.Options.Layers, 1)
	assert.Equal(t, "product_photo", got.Options.Layers[0].Name)
	require.NotNil(t, got.Options.Layers[0].SmartObject)
	assert.Contains(t, got.Options.Layers[0].SmartObject.Href, "cutout/shoes.png")
}

func TestReplaceEmbeddedImageCustomSmartObjectName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got editRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "hero_shot", got.Options.Layers[0].Name)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Options{
		BaseURL:         srv.URL,
		SmartObjectName: "hero_shot",
		Tokens:          tokenServer(t),
	}, fakeSigner{}, zerolog.Nop())

	_, err := c.ReplaceEmbeddedImage(context.Background(), doc(), pipeline.AssetHandle{Namespace: "n", Key: "k.png"})
	require.NoError(t, err)
}

func TestRenderRequestsPNG(t *testing.T) {
	var got editRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/createRendition", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	out, err := c.Render(context.Background(), doc())
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(out.Key, ".png"))
	assert.Equal(t, "image/png", got.Options.Format)
	assert.Equal(t, "image/png", got.Outputs[0].Type)
}

func TestSubmitServerErrorIsRetryable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Render(context.Background(), doc())
	require.Error(t, err)
	assert.True(t, apierr.IsRetryable(err))
}

func TestSubmitBadRequestIsPermanent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such layer", http.StatusBadRequest)
	})

	_, err := c.ReplaceText(context.Background(), doc(), map[string]string{"x": "y"})
	require.Error(t, err)
	assert.False(t, apierr.IsRetryable(err))
}

func TestDerivedKeysUniquePerCall(t *testing.T) {
	a := derived(doc(), "text_replace", "")
	b := derived(doc(), "text_replace", "")
	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, a.Namespace, b.Namespace)
}
