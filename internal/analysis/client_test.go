package analysis

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return NewClient("http://analysis.test/api/import",
		WithDial(func(addr string) (net.Conn, error) { return ln.Dial() }),
		WithRetry(3),
	)
}

func TestUploadReturnsURL(t *testing.T) {
	var gotPGN string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Method()) != fasthttp.MethodPost || string(ctx.Path()) != "/api/import" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		gotPGN = string(ctx.PostArgs().Peek("pgn"))
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"id":"abc123","url":"https://lichess.org/abc123"}`)
	})
	u, err := c.Upload(context.Background(), "1. e4 e5 *")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if u != "https://lichess.org/abc123" {
		t.Fatalf("url = %q", u)
	}
	if gotPGN != "1. e4 e5 *" {
		t.Fatalf("server saw pgn %q", gotPGN)
	}
}

func TestUploadBuildsURLFromID(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"id":"xyz"}`)
	})
	u, err := c.Upload(context.Background(), "1. d4 *")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if u != "http://analysis.test/xyz" {
		t.Fatalf("url = %q", u)
	}
}

func TestUploadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
			return
		}
		ctx.SetBodyString(`{"id":"ok","url":"https://lichess.org/ok"}`)
	})
	if _, err := c.Upload(context.Background(), "1. e4 *"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestUploadClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
	})
	_, err := c.Upload(context.Background(), "garbage")
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestUploadEmptyPGN(t *testing.T) {
	c := NewClient("")
	if _, err := c.Upload(context.Background(), "  "); !errors.Is(err, ErrUpload) {
		t.Fatalf("err = %v", err)
	}
}
