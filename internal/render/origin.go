package render

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/any-hub/pagecache/internal/cache"
	"github.com/any-hub/pagecache/internal/server"
)

// StatusError 表示源站返回了不可缓存的 5xx 响应。
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("origin %s returned %d", e.URL, e.Code)
}

// Origin 负责向源站发起请求，所有页面共享同一个 http.Client。
type Origin struct {
	client *http.Client
	base   *url.URL
}

// NewOrigin 校验 base 并构建 Origin，client 为空时使用 http.DefaultClient。
func NewOrigin(client *http.Client, base string) (*Origin, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute http(s) url: %q", base)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Origin{client: client, base: parsed}, nil
}

// Base 返回源站地址。
func (o *Origin) Base() *url.URL {
	return o.base
}

// Resolve 将请求 URI（路径 + 可选查询串）拼接到源站地址上。
func (o *Origin) Resolve(uri string) (*url.URL, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse request uri: %w", err)
	}
	target := *o.base
	target.Path = strings.TrimSuffix(o.base.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	target.RawPath = ""
	target.RawQuery = ref.RawQuery
	return &target, nil
}

// Do 以 method 请求源站上的 uri，header 中的 hop-by-hop 字段会被忽略。
func (o *Origin) Do(ctx context.Context, method, uri string, header http.Header, body io.Reader) (*http.Response, error) {
	target, err := o.Resolve(uri)
	if err != nil {
		return nil, err
	}
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}
	server.CopyHeaders(req.Header, header)
	req.Host = target.Host
	return o.client.Do(req)
}

// Page 返回抓取 uri 的生成器。生成器把完整响应序列化到 w；
// 5xx 视为失败，不会进入缓存。
func (o *Origin) Page(uri string, header http.Header) cache.Generator {
	return cache.GeneratorFunc(func(ctx context.Context, w io.Writer) error {
		return o.fetch(ctx, w, uri, header)
	})
}

func (o *Origin) fetch(ctx context.Context, w io.Writer, uri string, header http.Header) error {
	resp, err := o.Do(ctx, http.MethodGet, uri, header, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &StatusError{URL: resp.Request.URL.String(), Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read origin body: %w", err)
	}
	return WritePage(w, resp.StatusCode, resp.Header, body)
}

// WritePage 以 HTTP/1.1 响应格式写出一个页面，Content-Length 由 body 决定。
func WritePage(w io.Writer, status int, header http.Header, body []byte) error {
	page := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header, len(header)),
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
	server.CopyHeaders(page.Header, header)
	page.Header.Del("Content-Length")
	return page.Write(w)
}

// Page 是从 Slot 中还原出的响应。
type Page struct {
	Status int
	Header http.Header
	Body   []byte
}

// ReadPage 解析 WritePage 写出的内容。
func ReadPage(r io.Reader) (*Page, error) {
	resp, err := http.ReadResponse(bufio.NewReader(r), nil)
	if err != nil {
		return nil, fmt.Errorf("parse cached page: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cached page body: %w", err)
	}
	return &Page{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
