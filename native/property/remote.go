package property

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultRemoteTimeout = 5 * time.Second

// Remote queries an HTTP property registry exposing GET {base}/lands/{id}.
// A 404 response means the land does not exist.
type Remote struct {
	baseURL string
	client  *http.Client
}

// RemoteLand is the JSON document served by the registry.
type RemoteLand struct {
	ID      uint64 `json:"id"`
	Owner   string `json:"owner"`
	Price   string `json:"price"`
	ForSale bool   `json:"forSale"`
}

// NewRemote builds a client for the registry at baseURL. A nil client gets a
// traced default with a short timeout.
func NewRemote(baseURL string, client *http.Client) (*Remote, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("property: registry url required")
	}
	if client == nil {
		client = &http.Client{
			Timeout:   defaultRemoteTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Remote{baseURL: trimmed, client: client}, nil
}

// Land implements Directory.
func (r *Remote) Land(ctx context.Context, id uint64) (Land, bool, error) {
	endpoint := r.baseURL + "/lands/" + strconv.FormatUint(id, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Land{}, false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return Land{}, false, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Land{}, false, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Land{}, false, fmt.Errorf("%w: status %d: %s", ErrDirectoryUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc RemoteLand
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&doc); err != nil {
		return Land{}, false, fmt.Errorf("%w: decode: %v", ErrDirectoryUnavailable, err)
	}
	if doc.ID != id {
		return Land{}, false, fmt.Errorf("%w: registry returned land %d for %d", ErrDirectoryUnavailable, doc.ID, id)
	}
	if !common.IsHexAddress(doc.Owner) {
		return Land{}, false, fmt.Errorf("%w: invalid owner %q", ErrDirectoryUnavailable, doc.Owner)
	}
	price := big.NewInt(0)
	if doc.Price != "" {
		if _, ok := price.SetString(doc.Price, 10); !ok {
			return Land{}, false, fmt.Errorf("%w: invalid price %q", ErrDirectoryUnavailable, doc.Price)
		}
	}
	return Land{ID: doc.ID, Owner: common.HexToAddress(doc.Owner), Price: price, ForSale: doc.ForSale}, true, nil
}
