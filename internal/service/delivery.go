package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"storesync/internal/config"
)

// 物流状态码 -> 状态文案 的固定映射表
// 表由物流服务方定义，这里只消费；业务侧的扩展映射不属于本服务。
var deliveryCodeTable = map[int]string{
	1: "pendiente",
	2: "confirmado",
	3: "guia_generada",
	4: "en_ruta",
	5: "entregado",
	6: "devolucion",
	7: "cancelado",
}

// DeliveryStatusLabel 物流状态码对应的文案；未知码返回空串
func DeliveryStatusLabel(code int) string {
	return deliveryCodeTable[code]
}

// DeliveryStatusProvider 物流状态服务接口
// 独立的外部服务：按订单展示单号查询，凭证按店铺配置选择。
type DeliveryStatusProvider interface {
	// QueryByReference 查询单号的当前物流状态码
	// 单号不存在时返回 (0, nil)
	QueryByReference(ctx context.Context, credentialKey, reference string) (int, error)
}

// deliveryClient 基于 resty 的实现
type deliveryClient struct {
	httpClient  *resty.Client
	credentials map[string]string
	logger      *zap.Logger
}

// deliveryEnvelope 物流状态服务响应
type deliveryEnvelope struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Code   int    `json:"code"`
}

// NewDeliveryClient 创建物流状态客户端
func NewDeliveryClient(cfg *config.DeliveryConfig, logger *zap.Logger) DeliveryStatusProvider {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")

	return &deliveryClient{
		httpClient:  client,
		credentials: cfg.Credentials,
		logger:      logger,
	}
}

var _ DeliveryStatusProvider = (*deliveryClient)(nil)

// QueryByReference 查询单号的物流状态码
func (c *deliveryClient) QueryByReference(ctx context.Context, credentialKey, reference string) (int, error) {
	token, ok := c.credentials[credentialKey]
	if !ok {
		return 0, fmt.Errorf("no delivery credential for key %q", credentialKey)
	}

	var envelope deliveryEnvelope
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("reference", reference).
		SetResult(&envelope).
		Get("/api/v1/shipments/status")

	if err != nil {
		return 0, &TransportError{Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return 0, &RateLimitError{}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return 0, &TransportError{
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected status: %s", resp.Status()),
		}
	}
	if envelope.Status != 0 {
		return 0, fmt.Errorf("delivery API error: %s (status: %d)", envelope.Msg, envelope.Status)
	}

	return envelope.Code, nil
}

// NoopDeliveryProvider 未配置物流服务时的占位实现
// 所有查询都视作单号不存在，状态核对只做漂移侦测。
type NoopDeliveryProvider struct{}

func NewNoopDeliveryProvider() *NoopDeliveryProvider {
	return &NoopDeliveryProvider{}
}

func (p *NoopDeliveryProvider) QueryByReference(ctx context.Context, credentialKey, reference string) (int, error) {
	return 0, nil
}

var _ DeliveryStatusProvider = (*NoopDeliveryProvider)(nil)
