package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/keshon/memoria/pkg/retrylimit"
)

const maxResponseBytes = 5 << 20

// request describes one outbound call. body is rebuilt on every attempt.
type request struct {
	method  string
	url     string
	headers map[string]string
	body    func() io.Reader
}

type response struct {
	body   []byte
	header http.Header
}

func (f *fetcher) do(ctx context.Context, r request) (response, error) {
	var out response
	err := retrylimit.Do(ctx, f.lim, retrylimit.DefaultPolicy(), func() error {
		var body io.Reader
		if r.body != nil {
			body = r.body()
		}
		req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
		if err != nil {
			return err
		}
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := retrylimit.CheckStatus(resp); err != nil {
			return err
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		out = response{body: data, header: resp.Header}
		return nil
	})
	return out, err
}
