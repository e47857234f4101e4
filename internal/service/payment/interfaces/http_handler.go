package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"paysync/internal/pkg/logger"
	"paysync/internal/service/payment/application"
	"paysync/internal/service/payment/domain"
)

// PaymentHandler 封装了支付服务的 HTTP 处理器。
type PaymentHandler struct {
	service *application.ReconciliationService
}

// NewPaymentHandler 创建一个新的 HTTP 处理器实例。
func NewPaymentHandler(service *application.ReconciliationService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/payment/prepare", h.preparePaymentHandler)
	mux.HandleFunc("GET /api/payment/verify", h.verifyPaymentHandler)
	mux.HandleFunc("POST /api/payment-callback", h.paymentCallbackHandler)
	mux.HandleFunc("GET /api/orders/{orderNumber}/status", h.orderStatusHandler)
}

func (h *PaymentHandler) preparePaymentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req application.PreparePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.PreparePayment(ctx, &req)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("prepare payment failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// 与网关表单格式保持一致：参数平铺在顶层
	writeJSON(w, http.StatusOK, resp.Params)
}

func (h *PaymentHandler) verifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	params := flattenValues(r.URL.Query())

	details, err := h.service.VerifyReturnParams(params)
	if errors.Is(err, domain.ErrInvalidSignature) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "Failed",
			"error":  "HMAC verification failed",
		})
		return
	}
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// paymentCallbackHandler 是网关回调入口。
// 结构上可接受的回调一律立即返回 200，处理在后台异步进行：
// 网关侧有投递超时，且无论处理结果如何都不该触发它的重试风暴。
// 处理失败只通过告警侧信道和存储里的权威状态可见。
func (h *PaymentHandler) paymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	params, err := parseCallbackBody(r)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("malformed callback body")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))

	// 脱离请求生命周期继续处理；请求取消不应打断资金相关写入
	processCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := h.service.ApplyCallback(processCtx, params); err != nil {
			logger.Ctx(processCtx).Error().Err(err).
				Str("order_number", params["onpay_reference"]).
				Msg("asynchronous callback processing failed")
		}
	}()
}

func (h *PaymentHandler) orderStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	orderNumber := r.PathValue("orderNumber")

	resp, err := h.service.GetOrderStatus(ctx, orderNumber)
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Order not found"})
		return
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_number", orderNumber).Msg("order status lookup failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseCallbackBody 把回调体解析成扁平的字符串参数表。
// 网关可能以表单或 JSON 两种形态投递，这里都接受。
func parseCallbackBody(r *http.Request) (map[string]string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var params map[string]string
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			return nil, errors.Wrap(err, "decode json callback")
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, errors.Wrap(err, "parse form callback")
	}
	return flattenValues(r.PostForm), nil
}

func flattenValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}
	return out
}

func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
