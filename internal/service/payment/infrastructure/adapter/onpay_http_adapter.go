package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"paysync/internal/service/payment/domain"
)

// OnpayHTTPAdapter 是 port.GatewayClient 的 OnPay REST 实现。
// 所有请求带 Bearer 认证并产生 Client Span，超时完全受控于传入的 context。
type OnpayHTTPAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tracer     trace.Tracer
}

func NewOnpayHTTPAdapter(baseURL, apiKey string) *OnpayHTTPAdapter {
	return &OnpayHTTPAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
		tracer: otel.Tracer("onpay-gateway"),
	}
}

// onpayTransaction 是网关交易的线格式。
type onpayTransaction struct {
	UUID         string `json:"uuid"`
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Charged      int64  `json:"charged"`
	CurrencyCode string `json:"currency_code"`
	Wallet       string `json:"wallet"`
	Created      string `json:"created"`
}

func (t *onpayTransaction) toDomain() *domain.TransactionDetail {
	detail := &domain.TransactionDetail{
		UUID:         t.UUID,
		OrderNumber:  t.OrderID,
		Status:       t.Status,
		Amount:       t.Amount,
		Charged:      t.Charged,
		CurrencyCode: t.CurrencyCode,
		Method:       t.Wallet,
	}
	if t.Created != "" {
		if created, err := time.Parse(time.RFC3339, t.Created); err == nil {
			detail.CreatedAt = created
		}
	}
	return detail
}

func (a *OnpayHTTPAdapter) FetchTransaction(ctx context.Context, transactionID string) (*domain.TransactionDetail, error) {
	var envelope struct {
		Data onpayTransaction `json:"data"`
	}
	path := "/v1/transaction/" + url.PathEscape(transactionID)
	if err := a.get(ctx, "onpay.FetchTransaction", path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data.toDomain(), nil
}

func (a *OnpayHTTPAdapter) SearchTransactions(ctx context.Context, orderNumber string) ([]*domain.TransactionDetail, error) {
	var envelope struct {
		Data []onpayTransaction `json:"data"`
	}
	query := url.Values{"query": {orderNumber}}
	if err := a.get(ctx, "onpay.SearchTransactions", "/v1/transaction/", query, &envelope); err != nil {
		return nil, err
	}

	details := make([]*domain.TransactionDetail, 0, len(envelope.Data))
	for i := range envelope.Data {
		details = append(details, envelope.Data[i].toDomain())
	}
	return details, nil
}

func (a *OnpayHTTPAdapter) PollEvents(ctx context.Context, cursor string) ([]domain.TransactionEvent, string, error) {
	var envelope struct {
		Data []domain.TransactionEvent `json:"data"`
		Meta struct {
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
	}

	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if err := a.get(ctx, "onpay.PollEvents", "/v1/transaction/events/", query, &envelope); err != nil {
		return nil, "", err
	}
	return envelope.Data, envelope.Meta.NextCursor, nil
}

// get 执行一次带追踪的网关 GET 请求并解码 JSON 响应。
func (a *OnpayHTTPAdapter) get(ctx context.Context, spanName, path string, query url.Values, out interface{}) error {
	ctx, span := a.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	requestURL := a.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "build gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")

	span.SetAttributes(
		attribute.String("http.url", requestURL),
		attribute.String("http.method", http.MethodGet),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrapf(domain.ErrUpstreamUnavailable, "%s: %v", spanName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("gateway returned status %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrapf(domain.ErrUpstreamUnavailable, "%s: %v", spanName, err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "decode gateway response")
	}
	return nil
}
