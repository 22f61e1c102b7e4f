package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/metersync/internal/config"
	contractdomain "github.com/smallbiznis/metersync/internal/contract/domain"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"go.uber.org/zap"
)

// HTTPGateway implements Gateway against the upstream REST API.
type HTTPGateway struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	node       *snowflake.Node
	log        *zap.Logger
}

func NewHTTPGateway(cfg config.Config, node *snowflake.Node, log *zap.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL:  strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		apiToken: cfg.Upstream.APIToken,
		httpClient: &http.Client{
			Timeout: cfg.Upstream.Timeout,
		},
		node: node,
		log:  log.Named("gateway"),
	}
}

// usageRow is the loose upstream shape. Numeric fields arrive as strings
// and are validated before a record is produced.
type usageRow struct {
	Date               string `json:"date"`
	Value              string `json:"value"`
	Unit               string `json:"unit"`
	DollarValue        string `json:"dollarValue"`
	OffpeakValue       string `json:"offpeakValue"`
	OffpeakDollarValue string `json:"offpeakDollarValue"`
	UnchargedValue     string `json:"unchargedValue"`
}

type contractRow struct {
	ContractID string `json:"contractId"`
	AccountID  string `json:"accountId"`
	Division   string `json:"division"`
	Address    string `json:"address"`
}

func (g *HTTPGateway) FetchUsage(ctx context.Context, contractID string, kind usagedomain.IntervalKind, from, to time.Time) ([]usagedomain.UsageRecord, error) {
	q := url.Values{}
	q.Set("interval", string(kind))
	q.Set("from", from.UTC().Format("2006-01-02"))
	q.Set("to", to.UTC().Format("2006-01-02"))

	endpoint := fmt.Sprintf("%s/usage/v2/%s?%s", g.baseURL, url.PathEscape(contractID), q.Encode())

	body, err := g.do(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var rows []usageRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("decode usage response: %v", err)}
	}

	records := make([]usagedomain.UsageRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := g.toRecord(contractID, kind, row)
		if err != nil {
			g.log.Warn("skipping malformed usage row",
				zap.String("contract_id", contractID),
				zap.String("date", row.Date),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (g *HTTPGateway) FetchContracts(ctx context.Context) ([]contractdomain.Contract, error) {
	body, err := g.do(ctx, g.baseURL+"/accounts/v2/contracts")
	if err != nil {
		return nil, err
	}

	var rows []contractRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("decode contracts response: %v", err)}
	}

	contracts := make([]contractdomain.Contract, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(row.ContractID)
		if id == "" {
			g.log.Warn("skipping contract without id")
			continue
		}
		contracts = append(contracts, contractdomain.Contract{
			ContractID: id,
			AccountID:  row.AccountID,
			Division:   row.Division,
			Address:    row.Address,
		})
	}
	return contracts, nil
}

func (g *HTTPGateway) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+g.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindAuth, StatusCode: resp.StatusCode, Message: "credentials rejected"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, StatusCode: resp.StatusCode, Message: "rate limited"}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Kind: KindNotFound, StatusCode: resp.StatusCode, Message: "no data for range"}
	default:
		return nil, &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: truncate(string(body), 200)}
	}
}

func (g *HTTPGateway) toRecord(contractID string, kind usagedomain.IntervalKind, row usageRow) (usagedomain.UsageRecord, error) {
	date, err := parseUpstreamDate(row.Date)
	if err != nil {
		return usagedomain.UsageRecord{}, err
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(row.Value), 64)
	if err != nil {
		return usagedomain.UsageRecord{}, fmt.Errorf("invalid value %q: %w", row.Value, err)
	}
	if value < 0 {
		return usagedomain.UsageRecord{}, fmt.Errorf("negative value %q", row.Value)
	}

	rec := usagedomain.UsageRecord{
		ID:           g.node.Generate(),
		ContractID:   contractID,
		Date:         usagedomain.Day(date),
		IntervalKind: kind,
		Value:        value,
		Unit:         strings.TrimSpace(row.Unit),
		RecordedAt:   time.Now().UTC(),
	}
	if kind == usagedomain.IntervalMonthly {
		rec.Date = usagedomain.MonthStart(date)
	}

	rec.DollarValue = parseOptionalFloat(row.DollarValue)
	rec.OffpeakValue = parseOptionalFloat(row.OffpeakValue)
	rec.OffpeakDollarValue = parseOptionalFloat(row.OffpeakDollarValue)
	rec.UnchargedValue = parseOptionalFloat(row.UnchargedValue)
	return rec, nil
}

func parseUpstreamDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

func parseOptionalFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
