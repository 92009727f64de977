package server_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmpim/kabe/config"
	"github.com/tmpim/kabe/history"
	"github.com/tmpim/kabe/server"
)

const redScript = "setblock ~3 ~2 ~0 minecraft:red_wool\n" +
	"setblock ~3 ~2 ~1 minecraft:red_wool\n" +
	"setblock ~3 ~1 ~0 minecraft:red_wool\n" +
	"setblock ~3 ~1 ~1 minecraft:red_wool"

func newServer(t *testing.T, withHistory bool, edit func(*config.Config)) *server.Server {
	t.Helper()

	cfg := config.Default()
	cfg.TargetSize = 4
	if edit != nil {
		edit(&cfg)
	}

	var store *history.Store
	if withHistory {
		var err error
		store, err = history.Open(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
	}

	s, err := server.New(cfg, store)
	require.NoError(t, err)
	return s
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func solidPNG(t *testing.T, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	for i := 0; i < 36; i++ {
		img.Set(i%6, i/6, c)
	}
	return encodePNG(t, img)
}

func noisePNG(t *testing.T) []byte {
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	rng.Read(img.Pix)
	return encodePNG(t, img)
}

func do(s http.Handler, method, target string, body io.Reader,
	contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// pngHeader returns the signature and IHDR chunk of a grayscale PNG claiming
// the given size, with no pixel data.
func pngHeader(width, height uint32) []byte {
	ihdr := []byte("IHDR")
	ihdr = binary.BigEndian.AppendUint32(ihdr, width)
	ihdr = binary.BigEndian.AppendUint32(ihdr, height)
	ihdr = append(ihdr, 8, 0, 0, 0, 0)

	data := []byte("\x89PNG\r\n\x1a\n")
	data = binary.BigEndian.AppendUint32(data, 13)
	data = append(data, ihdr...)
	return binary.BigEndian.AppendUint32(data, crc32.ChecksumIEEE(ihdr))
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestConvert_RawBody(t *testing.T) {
	s := newServer(t, true, nil)

	rec := do(s, http.MethodPost, "/api/convert?size=2",
		bytes.NewReader(solidPNG(t, color.RGBA{255, 0, 0, 255})), "image/png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, redScript, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get(server.ConversionHeader))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestConvert_MultipartAndHistory(t *testing.T) {
	s := newServer(t, true, nil)

	body, contentType := multipartBody(t, "cat.png",
		solidPNG(t, color.RGBA{255, 0, 0, 255}))
	rec := do(s, http.MethodPost, "/api/convert?size=2", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, http.MethodGet, "/api/conversions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "cat.png", entries[0].Name)
	assert.Equal(t, 2, entries[0].Size)
	assert.Equal(t, 4, entries[0].Commands)
	assert.Equal(t, history.Digest(redScript), entries[0].Digest)

	rec = do(s, http.MethodGet, "/api/conversions/1/script", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, redScript, rec.Body.String())

	rec = do(s, http.MethodGet, "/api/conversions/99/script", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodGet, "/api/conversions/abc/script", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConvert_Errors(t *testing.T) {
	s := newServer(t, false, func(cfg *config.Config) {
		cfg.Server.MaxUploadBytes = 1024
	})

	tests := []struct {
		name   string
		target string
		body   []byte
		status int
	}{
		{"garbage", "/api/convert", []byte("not an image"), http.StatusBadRequest},
		{"zero size", "/api/convert?size=0", solidPNG(t, color.White), http.StatusBadRequest},
		{"bad size", "/api/convert?size=big", solidPNG(t, color.White), http.StatusBadRequest},
		{"huge size", "/api/convert?size=100000", solidPNG(t, color.White), http.StatusBadRequest},
		{"too large", "/api/convert", noisePNG(t), http.StatusRequestEntityTooLarge},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, test.target, bytes.NewReader(test.body), "")
			assert.Equal(t, test.status, rec.Code, rec.Body.String())
		})
	}
}

func TestConvert_MissingFormFile(t *testing.T) {
	s := newServer(t, false, nil)

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	rec := do(s, http.MethodPost, "/api/convert", body, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreview(t *testing.T) {
	s := newServer(t, false, nil)

	rec := do(s, http.MethodPost, "/api/preview",
		bytes.NewReader(solidPNG(t, color.RGBA{0, 0, 255, 255})), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())

	r, g, b, _ := img.At(1, 1).RGBA()
	assert.Equal(t, []uint32{0, 0, 0xffff}, []uint32{r, g, b})
}

func TestDatapack(t *testing.T) {
	s := newServer(t, false, nil)

	body, contentType := multipartBody(t, "My Cat.png",
		solidPNG(t, color.RGBA{255, 0, 0, 255}))
	rec := do(s, http.MethodPost, "/api/datapack?size=2", body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{
		"pack.mcmeta",
		"data/kabe/function/my_cat.mcfunction",
	}, names)

	assert.Equal(t, `attachment; filename="kabe.zip"`,
		rec.Header().Get("Content-Disposition"))

	rec = do(s, http.MethodPost, "/api/datapack?name=Bad%20Name",
		bytes.NewReader(solidPNG(t, color.White)), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDatapack_EmptyNamespace(t *testing.T) {
	s := newServer(t, false, func(cfg *config.Config) {
		cfg.Datapack.Namespace = ""
	})

	rec := do(s, http.MethodPost, "/api/datapack?name=wall",
		bytes.NewReader(solidPNG(t, color.White)), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="kabe.zip"`,
		rec.Header().Get("Content-Disposition"))

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "data/kabe/function/wall.mcfunction")
}

func TestConvert_SourcePixelLimit(t *testing.T) {
	s := newServer(t, false, nil)

	// A 100000x100000 PNG header, far under the upload byte limit.
	header := pngHeader(100000, 100000)

	rec := do(s, http.MethodPost, "/api/convert?size=4",
		bytes.NewReader(header), "image/png")
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	body, contentType := multipartBody(t, "huge.png", header)
	rec = do(s, http.MethodPost, "/api/preview", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	limited := newServer(t, false, func(cfg *config.Config) {
		cfg.Server.MaxSourcePixels = 35
	})
	rec = do(limited, http.MethodPost, "/api/convert",
		bytes.NewReader(solidPNG(t, color.White)), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	limited = newServer(t, false, func(cfg *config.Config) {
		cfg.Server.MaxSourcePixels = 36
	})
	rec = do(limited, http.MethodPost, "/api/convert",
		bytes.NewReader(solidPNG(t, color.White)), "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPalette(t *testing.T) {
	s := newServer(t, false, nil)

	rec := do(s, http.MethodGet, "/api/palette", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Name   string `json:"name"`
		Blocks []struct {
			ID    string `json:"id"`
			Color string `json:"color"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "default", doc.Name)
	require.Len(t, doc.Blocks, 17)
	assert.Equal(t, "white_wool", doc.Blocks[0].ID)
	assert.Equal(t, "#ffffff", doc.Blocks[0].Color)
}

func TestConversions_HistoryDisabled(t *testing.T) {
	s := newServer(t, false, nil)

	rec := do(s, http.MethodGet, "/api/conversions", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodPost, "/api/convert",
		bytes.NewReader(solidPNG(t, color.White)), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(server.ConversionHeader))
}

func TestWebsocket(t *testing.T) {
	s := newServer(t, true, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"size":2}`)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage,
		solidPNG(t, color.RGBA{255, 0, 0, 255})))

	var stages []string
	for i := 0; i < 3; i++ {
		var msg server.Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, server.MessageProgress, msg.Type)
		stages = append(stages, msg.Stage)
	}
	assert.Equal(t, []string{"normalized", "quantized", "compiled"}, stages)

	var msg server.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessageScript, msg.Type)
	assert.Equal(t, redScript, msg.Script)
	assert.Equal(t, int64(1), msg.ID)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("junk")))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessageError, msg.Type)
	assert.NotEmpty(t, msg.Error)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pngHeader(100000, 100000)))
	msg = server.Message{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessageError, msg.Type)
	assert.Contains(t, msg.Error, "dimensions")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"size":-1}`)))
	msg = server.Message{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, server.MessageError, msg.Type)
}
