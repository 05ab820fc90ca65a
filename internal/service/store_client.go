package service

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"storesync/internal/domain"
)

// OrderPage 上游订单列表的一页（按订单号从新到旧排序）
type OrderPage struct {
	Orders  []domain.RawOrder
	HasMore bool
	Dropped int // 边界校验丢弃的坏记录数（缺外部订单号等）
}

// StoreOrderClient 单个店铺的上游订单 API 客户端
// 每个店铺有独立的地址和凭证；列表按订单号从新到旧分页。
type StoreOrderClient interface {
	// FetchOrdersPage 抓取第 page 页（从 1 开始），每页 size 条
	FetchOrdersPage(ctx context.Context, page, size int) (*OrderPage, error)

	// FetchOrder 按外部订单号直取单条（漂移诊断用）
	// 上游不存在时返回 (nil, nil)
	FetchOrder(ctx context.Context, externalID string) (*domain.RawOrder, error)
}

// StoreClientFactory 按店铺配置构造客户端（测试注入假客户端）
type StoreClientFactory func(tenant *domain.Tenant, logger *zap.Logger) StoreOrderClient

// storeClient 基于 resty 的实现
type storeClient struct {
	httpClient *resty.Client
	tenantCode string
	logger     *zap.Logger
}

// ordersEnvelope 上游订单列表响应
type ordersEnvelope struct {
	Orders  []domain.RawOrder `json:"orders"`
	HasMore bool              `json:"has_more"`
}

// NewStoreClient 创建店铺订单 API 客户端
// 瞬时网络错误在这里有界重试（resty），业务层看到的失败都已经过重试。
func NewStoreClient(tenant *domain.Tenant, logger *zap.Logger) StoreOrderClient {
	client := resty.New().
		SetBaseURL(tenant.APIBaseURL).
		SetAuthToken(tenant.APIToken).
		SetTimeout(20 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json")

	return &storeClient{
		httpClient: client,
		tenantCode: tenant.TenantCode,
		logger:     logger,
	}
}

var _ StoreOrderClient = (*storeClient)(nil)

// FetchOrdersPage 抓取一页订单
func (c *storeClient) FetchOrdersPage(ctx context.Context, page, size int) (*OrderPage, error) {
	var envelope ordersEnvelope
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("size", strconv.Itoa(size)).
		SetQueryParam("sort", "-id").
		SetResult(&envelope).
		Get("/api/v1/orders")

	if err != nil {
		return nil, &TransportError{TenantCode: c.tenantCode, Err: err}
	}
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	result := &OrderPage{HasMore: envelope.HasMore}
	for _, raw := range envelope.Orders {
		// 边界校验：没有外部订单号的记录不允许流入内层
		if raw.ExternalID == "" {
			result.Dropped++
			c.logger.Warn("Dropping upstream order without external id",
				zap.String("tenant_code", c.tenantCode),
				zap.String("reference", raw.Reference),
			)
			continue
		}
		result.Orders = append(result.Orders, raw)
	}

	c.logger.Debug("Fetched orders page",
		zap.String("tenant_code", c.tenantCode),
		zap.Int("page", page),
		zap.Int("order_count", len(result.Orders)),
		zap.Bool("has_more", result.HasMore),
	)

	return result, nil
}

// FetchOrder 按外部订单号直取单条
func (c *storeClient) FetchOrder(ctx context.Context, externalID string) (*domain.RawOrder, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external_id is required")
	}

	var raw domain.RawOrder
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&raw).
		Get("/api/v1/orders/" + externalID)

	if err != nil {
		return nil, &TransportError{TenantCode: c.tenantCode, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}
	if raw.ExternalID == "" {
		return nil, &TransportError{
			TenantCode: c.tenantCode,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("upstream returned order without external id"),
		}
	}

	return &raw, nil
}

// checkStatus 非 2xx 响应转换为类型化错误
func (c *storeClient) checkStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	if code == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header().Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		c.logger.Warn("Upstream rate limited",
			zap.String("tenant_code", c.tenantCode),
			zap.Duration("retry_after", retryAfter),
		)
		return &RateLimitError{TenantCode: c.tenantCode, RetryAfter: retryAfter}
	}
	return &TransportError{
		TenantCode: c.tenantCode,
		StatusCode: code,
		Err:        fmt.Errorf("unexpected status: %s", resp.Status()),
	}
}
