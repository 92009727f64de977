// Package server exposes conversions over HTTP and websockets.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tmpim/kabe"
	"github.com/tmpim/kabe/config"
	"github.com/tmpim/kabe/datapack"
	"github.com/tmpim/kabe/history"
	"github.com/tmpim/kabe/palettefile"
)

// MaxTargetSize bounds the size query parameter.
const MaxTargetSize = 1024

// ConversionHeader carries the history ID of a recorded conversion.
const ConversionHeader = "X-Kabe-Conversion"

var errInvalidSize = fmt.Errorf("kabe server: size must be between 1 and %d: %w",
	MaxTargetSize, kabe.ErrInvalidOptions)

// Server serves the kabe API.
type Server struct {
	cfg      config.Config
	opts     kabe.Options
	history  *history.Store
	echo     *echo.Echo
	upgrader websocket.Upgrader
}

// New returns a server using cfg. store may be nil to disable history.
func New(cfg config.Config, store *history.Store) (*Server, error) {
	opts, err := cfg.ConverterOptions()
	if err != nil {
		return nil, err
	}

	if _, err := kabe.NewConverter(opts); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		opts:    opts,
		history: store,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())

	api := e.Group("/api")
	api.GET("/palette", s.handlePalette)
	api.POST("/convert", s.handleConvert)
	api.POST("/preview", s.handlePreview)
	api.POST("/datapack", s.handleDatapack)
	api.GET("/conversions", s.handleConversions)
	api.GET("/conversions/:id/script", s.handleConversionScript)
	api.GET("/ws", s.handleWS)

	s.echo = e
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and serves until the server is shut down.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// converter returns a converter for size, or the configured size if zero.
func (s *Server) converter(size int, progress func(kabe.Stage)) (*kabe.Converter, error) {
	opts := s.opts
	if size != 0 {
		opts.TargetSize = size
	}
	opts.Progress = progress
	return kabe.NewConverter(opts)
}

func parseSize(param string) (int, error) {
	if param == "" {
		return 0, nil
	}

	size, err := strconv.Atoi(param)
	if err != nil || size <= 0 || size > MaxTargetSize {
		return 0, errInvalidSize
	}

	return size, nil
}

type upload struct {
	name  string
	size  int
	image image.Image
}

// readUpload reads an image from either a multipart "image" field or the raw
// request body.
func (s *Server) readUpload(c echo.Context) (*upload, error) {
	size, err := parseSize(c.QueryParam("size"))
	if err != nil {
		return nil, err
	}

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body,
		s.cfg.Server.MaxUploadBytes)

	up := &upload{
		name: c.QueryParam("name"),
		size: size,
	}

	var rd io.Reader = req.Body
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType),
		echo.MIMEMultipartForm) {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, err
		}

		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if up.name == "" {
			up.name = filepath.Base(fh.Filename)
		}
		rd = f
	}

	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	up.image, err = kabe.DecodeLimited(data, s.cfg.Server.MaxSourcePixels)
	if err != nil {
		return nil, err
	}

	return up, nil
}

func (s *Server) record(ctx context.Context, name string, res *kabe.Result) int64 {
	if s.history == nil {
		return 0
	}

	if name == "" {
		name = "upload"
	}

	e, err := s.history.Record(ctx, history.Entry{
		Name:     name,
		Size:     res.Blocks.Width,
		Commands: len(res.Commands),
		Script:   res.Script(),
	})
	if err != nil {
		log.Println("kabe server: failed to record conversion:", err)
		return 0
	}

	return e.ID
}

func (s *Server) handlePalette(c echo.Context) error {
	name := "default"
	if s.cfg.PaletteFile != "" {
		name = datapack.FunctionName(s.cfg.PaletteFile)
	}

	return c.JSON(http.StatusOK, palettefile.FromPalette(name, s.opts.Palette))
}

func (s *Server) convertUpload(c echo.Context) (*upload, *kabe.Result, error) {
	up, err := s.readUpload(c)
	if err != nil {
		return nil, nil, httpError(err)
	}

	conv, err := s.converter(up.size, nil)
	if err != nil {
		return nil, nil, httpError(err)
	}

	res, err := conv.Convert(up.image)
	if err != nil {
		return nil, nil, httpError(err)
	}

	return up, res, nil
}

func (s *Server) handleConvert(c echo.Context) error {
	up, res, err := s.convertUpload(c)
	if err != nil {
		return err
	}

	if id := s.record(c.Request().Context(), up.name, res); id != 0 {
		c.Response().Header().Set(ConversionHeader, strconv.FormatInt(id, 10))
	}

	return c.String(http.StatusOK, res.Script())
}

func (s *Server) handlePreview(c echo.Context) error {
	_, res, err := s.convertUpload(c)
	if err != nil {
		return err
	}

	img, err := kabe.Preview(res.Blocks, s.opts.Palette)
	if err != nil {
		return httpError(err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return err
	}

	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) handleDatapack(c echo.Context) error {
	up, res, err := s.convertUpload(c)
	if err != nil {
		return err
	}

	name := c.QueryParam("name")
	if name == "" {
		name = datapack.FunctionName(up.name)
	}

	pack := s.cfg.NewPack()
	if err := pack.Add(name, res.Script()); err != nil {
		return httpError(err)
	}

	buf := new(bytes.Buffer)
	if _, err := pack.WriteTo(buf); err != nil {
		return httpError(err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", pack.NamespaceOrDefault()+".zip"))
	return c.Blob(http.StatusOK, "application/zip", buf.Bytes())
}

func (s *Server) handleConversions(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "history is disabled")
	}

	limit := 0
	if param := c.QueryParam("limit"); param != "" {
		var err error
		limit, err = strconv.Atoi(param)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}

	entries, err := s.history.List(c.Request().Context(), limit)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, entries)
}

func (s *Server) handleConversionScript(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "history is disabled")
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	script, err := s.history.Script(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}

	return c.String(http.StatusOK, script)
}

// httpError maps an error to the HTTP status it should be reported with.
func httpError(err error) error {
	var maxBytes *http.MaxBytesError
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.As(err, &maxBytes):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, kabe.ErrImageDecode),
		errors.Is(err, kabe.ErrInvalidDimensions),
		errors.Is(err, kabe.ErrInvalidOptions),
		errors.Is(err, datapack.ErrInvalidName),
		errors.Is(err, http.ErrMissingFile):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, kabe.ErrEmptyGrid):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, history.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		log.Println("kabe server: internal error:", err)
		return echo.NewHTTPError(http.StatusInternalServerError,
			"internal server error")
	}
}
