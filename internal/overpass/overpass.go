// Package overpass implements the challenge resolver against an
// Overpass-style count oracle: it asks how many map elements in the region
// carry every tag in the pool.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mweiss/tagduel/internal/game"
	"github.com/mweiss/tagduel/internal/session"
)

const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

const queryTimeout = 25 // seconds, embedded in the query itself

type Client struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger
}

func NewClient(endpoint string, log *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: (queryTimeout + 10) * time.Second},
		log:      log,
	}
}

type response struct {
	Elements []struct {
		Type string            `json:"type"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
	Remark string `json:"remark"`
}

// Count runs the count query. A timeout reported by the oracle itself maps
// to the CountUnknown sentinel (the combination is treated as existing);
// transport failures are the caller's problem and come back as errors.
func (c *Client) Count(ctx context.Context, tags []game.Tag, region string) (int64, error) {
	query := buildQuery(tags, region)
	c.log.Debug("resolving challenge", zap.String("query", query))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader("data="+query))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("oracle status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("oracle response: %w", err)
	}
	if strings.Contains(parsed.Remark, "timed out") {
		c.log.Warn("oracle timed out, treating combination as existing")
		return session.CountUnknown, nil
	}
	for _, el := range parsed.Elements {
		if el.Type != "count" {
			continue
		}
		total, err := strconv.ParseInt(el.Tags["total"], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("oracle count %q: %w", el.Tags["total"], err)
		}
		return total, nil
	}
	return 0, fmt.Errorf("oracle response carried no count element")
}

// buildQuery shapes the pool into one nwr statement: bare keys become
// existence filters, valued keys exact-match filters, scoped to the named
// region's area.
func buildQuery(tags []game.Tag, region string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];", queryTimeout)
	fmt.Fprintf(&b, "area[name=%s]->.region;", quote(region))
	b.WriteString("nwr(area.region)")
	for _, t := range tags {
		if t.Value != nil {
			fmt.Fprintf(&b, "[%s=%s]", quote(t.Key), quote(*t.Value))
		} else {
			fmt.Fprintf(&b, "[%s]", quote(t.Key))
		}
	}
	b.WriteString(";out count;")
	return b.String()
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
