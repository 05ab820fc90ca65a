package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"storesync/internal/domain"
)

// PostgresOrdersRepository 订单Repository实现
// 身份解析与幂等写入都在这里落地：
//   - 复合键 (tenant_id, external_id) 是唯一合法的查找键
//   - 写入走 INSERT ... ON CONFLICT，保证重复应用只产生一行
type PostgresOrdersRepository struct {
	db *sql.DB
}

// NewPostgresOrdersRepository 创建订单Repository
func NewPostgresOrdersRepository(db *sql.DB) *PostgresOrdersRepository {
	return &PostgresOrdersRepository{db: db}
}

// 确保实现了接口
var _ OrdersRepository = (*PostgresOrdersRepository)(nil)

// extIDNumExpr 外部订单号数值核的 SQL 表达式（与 domain.ExternalIDNumber 对齐）
const extIDNumExpr = `NULLIF(substring(external_id from '\d+'), '')::bigint`

const orderColumns = `
	order_id::text,
	tenant_id::text,
	external_id,
	COALESCE(external_ref, '') as external_ref,
	status,
	total_cents,
	COALESCE(customer_name, '') as customer_name,
	COALESCE(customer_phone, '') as customer_phone,
	COALESCE(items, '[]'::jsonb) as items,
	flagged,
	external_created_at,
	created_at,
	updated_at
`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var order domain.Order
	var itemsRaw json.RawMessage
	err := row.Scan(
		&order.OrderID,
		&order.TenantID,
		&order.ExternalID,
		&order.ExternalRef,
		&order.Status,
		&order.TotalCents,
		&order.CustomerName,
		&order.CustomerPhone,
		&itemsRaw,
		&order.Flagged,
		&order.ExternalCreatedAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Items = itemsRaw
	return &order, nil
}

// ResolveOrder 解析 (店铺, 外部订单号) 对应的本地订单身份
// 历史脏数据可能导致同一复合键命中多行：返回 created_at 最新的一行，
// 并通过 Matches 报告歧义，由调用方记入运行摘要。
func (r *PostgresOrdersRepository) ResolveOrder(ctx context.Context, tenantID, externalID string) (*ResolveResult, error) {
	if tenantID == "" || externalID == "" {
		return nil, fmt.Errorf("tenant_id and external_id are required")
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE tenant_id = $1::uuid AND external_id = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve order: %w", err)
	}
	defer rows.Close()

	result := &ResolveResult{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if result.Order == nil {
			result.Order = order
		}
		result.Matches++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return result, nil
}

// UpsertOrder 幂等写入订单
// 单条语句内完成"读旧状态 + 插入或更新"，并发重复应用收敛到同一行。
func (r *PostgresOrdersRepository) UpsertOrder(ctx context.Context, order *domain.Order) (*UpsertResult, error) {
	if order.TenantID == "" || order.ExternalID == "" {
		return nil, fmt.Errorf("tenant_id and external_id are required")
	}

	items := order.Items
	if len(items) == 0 {
		items = json.RawMessage(`[]`)
	}

	query := `
		WITH existing AS (
			SELECT status FROM orders
			WHERE tenant_id = $2::uuid AND external_id = $3
			ORDER BY created_at DESC
			LIMIT 1
		), up AS (
			INSERT INTO orders (
				order_id, tenant_id, external_id, external_ref, status,
				total_cents, customer_name, customer_phone, items,
				external_created_at, created_at, updated_at
			) VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, now(), now())
			ON CONFLICT (tenant_id, external_id) DO UPDATE SET
				external_ref = EXCLUDED.external_ref,
				status = EXCLUDED.status,
				total_cents = EXCLUDED.total_cents,
				customer_name = EXCLUDED.customer_name,
				customer_phone = EXCLUDED.customer_phone,
				items = EXCLUDED.items,
				external_created_at = EXCLUDED.external_created_at,
				updated_at = now()
			RETURNING order_id::text, status
		)
		SELECT up.order_id, up.status, (SELECT status FROM existing) FROM up
	`

	var orderID string
	var newStatus domain.OrderStatus
	var prevStatus sql.NullString
	err := r.db.QueryRowContext(ctx, query,
		order.OrderID,
		order.TenantID,
		order.ExternalID,
		order.ExternalRef,
		string(order.Status),
		order.TotalCents,
		order.CustomerName,
		order.CustomerPhone,
		string(items),
		order.ExternalCreatedAt,
	).Scan(&orderID, &newStatus, &prevStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert order: %w", err)
	}

	order.OrderID = orderID

	result := &UpsertResult{Created: !prevStatus.Valid}
	if prevStatus.Valid {
		result.PrevStatus = domain.OrderStatus(prevStatus.String)
		result.StatusChanged = result.PrevStatus != newStatus
	}
	return result, nil
}

// GetOrder 按内部身份读取订单
func (r *PostgresOrdersRepository) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	if tenantID == "" || orderID == "" {
		return nil, fmt.Errorf("tenant_id and order_id are required")
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id = $1::uuid AND order_id = $2::uuid`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, tenantID, orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("order not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListRecentExternalIDs 最近同步的 N 个外部订单号（数值核降序）
func (r *PostgresOrdersRepository) ListRecentExternalIDs(ctx context.Context, tenantID string, limit int) ([]string, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT external_id FROM orders
		WHERE tenant_id = $1::uuid
		ORDER BY ` + extIDNumExpr + ` DESC NULLS LAST
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent external ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate external ids: %w", err)
	}

	return ids, nil
}

// ListOpenOrders 非终态订单（物流状态核对的候选集）
func (r *PostgresOrdersRepository) ListOpenOrders(ctx context.Context, tenantID string, limit int) ([]*domain.Order, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if limit < 1 {
		limit = 200
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE tenant_id = $1::uuid
		  AND status NOT IN ('delivered', 'returned', 'cancelled')
		ORDER BY ` + extIDNumExpr + ` DESC NULLS LAST
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return orders, nil
}

// MaxExternalID 本地最大外部订单号
func (r *PostgresOrdersRepository) MaxExternalID(ctx context.Context, tenantID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT external_id FROM orders
		WHERE tenant_id = $1::uuid
		ORDER BY ` + extIDNumExpr + ` DESC NULLS LAST
		LIMIT 1
	`

	var id string
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get max external id: %w", err)
	}
	return id, nil
}

// FlagOrder 标记订单
func (r *PostgresOrdersRepository) FlagOrder(ctx context.Context, tenantID, orderID string, flagged bool) error {
	if tenantID == "" || orderID == "" {
		return fmt.Errorf("tenant_id and order_id are required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET flagged = $3, updated_at = now() WHERE tenant_id = $1::uuid AND order_id = $2::uuid`,
		tenantID, orderID, flagged,
	)
	if err != nil {
		return fmt.Errorf("failed to flag order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order not found: %s", orderID)
	}

	return nil
}
