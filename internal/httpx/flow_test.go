package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/notify"
	"github.com/safar/go-sql-shop/internal/orders"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/safar/go-sql-shop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderFlowOverHTTP(t *testing.T) {
	db := testutil.SetupDB(t)
	log := quietLogger()
	svc := orders.NewService(db, nil, nil, orders.Config{
		CancelWindow:   24 * time.Hour,
		NumberAttempts: 3,
	}, log)
	router := NewRouter(&Handler{DB: db, Orders: svc, JWTSecret: testSecret, Log: log})

	customer := testutil.CreateUser(t, db, models.RoleUser)
	admin := testutil.CreateUser(t, db, models.RoleAdmin)
	userAuth := bearer(t, customer.ID, models.RoleUser)
	adminAuth := bearer(t, admin.ID, models.RoleAdmin)

	rec, env := do(t, router, http.MethodPost, "/api/admin/products", adminAuth, `{"name":"Oud Royal","slug":"oud-royal"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product models.Product
	require.NoError(t, json.Unmarshal(env.Data, &product))

	rec, env = do(t, router, http.MethodPost, fmt.Sprintf("/api/admin/products/%d/variants", product.ID), adminAuth,
		`{"size_ml":100,"concentration":"EDP","price_cents":500,"stock_qty":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var variant models.ProductVariant
	require.NoError(t, json.Unmarshal(env.Data, &variant))

	rec, _ = do(t, router, http.MethodPost, fmt.Sprintf("/api/admin/products/%d/variants", product.ID), adminAuth,
		`{"size_ml":100,"concentration":"EDP","price_cents":700}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, router, http.MethodGet, fmt.Sprintf("/api/products/%d/variants", product.ID), "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodPost, "/api/orders", userAuth,
		`{"shipping_name":"Ada","shipping_phone":"555","shipping_address":"1 Main St"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "checkout of an empty cart")

	rec, _ = do(t, router, http.MethodPost, "/api/cart/items", userAuth, fmt.Sprintf(`{"variant_id":%d,"qty":6}`, variant.ID))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = do(t, router, http.MethodPost, "/api/cart/items", userAuth, fmt.Sprintf(`{"variant_id":%d,"qty":2}`, variant.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = do(t, router, http.MethodPost, "/api/orders", userAuth,
		`{"shipping_name":"Ada","shipping_phone":"555","shipping_address":"1 Main St"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, int64(1000), order.TotalCents)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	rec, env = do(t, router, http.MethodGet, fmt.Sprintf("/api/orders/%d/status", order.ID), userAuth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"PENDING"`)

	stranger := bearer(t, admin.ID, models.RoleUser)
	rec, _ = do(t, router, http.MethodGet, fmt.Sprintf("/api/orders/%d", order.ID), stranger, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, router, http.MethodPatch, fmt.Sprintf("/api/admin/orders/%d/status", order.ID), adminAuth, `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, testutil.StockOf(t, db, variant.ID))

	rec, _ = do(t, router, http.MethodPatch, fmt.Sprintf("/api/admin/orders/%d/status", order.ID), adminAuth, `{"status":"CONFIRMED"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 3, testutil.StockOf(t, db, variant.ID))

	rec, _ = do(t, router, http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", order.ID), userAuth, `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "user cancel of a confirmed order")

	rec, _ = do(t, router, http.MethodDelete, fmt.Sprintf("/api/admin/orders/%d", order.ID), adminAuth, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = do(t, router, http.MethodPatch, fmt.Sprintf("/api/admin/orders/%d/status", order.ID), adminAuth,
		`{"status":"CANCELLED","reason":"out of stock"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"out of stock"`)
	assert.Equal(t, 5, testutil.StockOf(t, db, variant.ID))

	rec, _ = do(t, router, http.MethodPost, fmt.Sprintf("/api/admin/variants/%d/adjust-stock", variant.ID), adminAuth, `{"delta":-6}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, env = do(t, router, http.MethodPost, fmt.Sprintf("/api/admin/variants/%d/adjust-stock", variant.ID), adminAuth, `{"delta":-5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &variant))
	assert.Equal(t, 0, variant.StockQty)

	rec, _ = do(t, router, http.MethodGet, "/api/admin/orders/stats", adminAuth, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodDelete, fmt.Sprintf("/api/admin/orders/%d", order.ID), adminAuth, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.Wait()
}

func TestNotificationFlowOverHTTP(t *testing.T) {
	db := testutil.SetupDB(t)
	log := quietLogger()
	dispatcher := notify.NewDispatcher(notify.DBStore{DB: db}, 1, log)
	router := NewRouter(&Handler{DB: db, Notifier: dispatcher, JWTSecret: testSecret, Log: log})

	customer := testutil.CreateUser(t, db, models.RoleUser)
	admin := testutil.CreateUser(t, db, models.RoleAdmin)
	userAuth := bearer(t, customer.ID, models.RoleUser)
	adminAuth := bearer(t, admin.ID, models.RoleAdmin)

	rec, env := do(t, router, http.MethodPost, "/api/admin/notifications", adminAuth,
		`{"type":"PROMOTIONAL","title":"Spring sale","body":"Everything is 20% off."}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var broadcast notify.BroadcastOutcome
	require.NoError(t, json.Unmarshal(env.Data, &broadcast))
	assert.Equal(t, 2, broadcast.Recipients)

	rec, _ = do(t, router, http.MethodPost, "/api/admin/notifications", adminAuth,
		fmt.Sprintf(`{"type":"SYSTEM","title":"Account note","body":"Please verify your email.","user_id":%d}`, customer.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = do(t, router, http.MethodGet, "/api/notifications/stats", userAuth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.NotificationStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Unread)

	rec, env = do(t, router, http.MethodGet, "/api/notifications", userAuth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Notifications struct {
			Items []models.Notification `json:"items"`
		} `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Notifications.Items, 2)
	newest := list.Notifications.Items[0]
	assert.Equal(t, "Account note", newest.Title)

	rec, env = do(t, router, http.MethodGet, fmt.Sprintf("/api/notifications/%d", newest.ID), userAuth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var opened models.Notification
	require.NoError(t, json.Unmarshal(env.Data, &opened))
	assert.True(t, opened.IsRead)

	rec, env = do(t, router, http.MethodGet, "/api/notifications/stats", userAuth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.Unread)

	rec, env = do(t, router, http.MethodGet, "/api/admin/notifications", adminAuth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var campaigns struct {
		Campaigns []store.NotificationCampaign `json:"campaigns"`
		Total     int                          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &campaigns))
	require.Equal(t, 2, campaigns.Total)
	assert.Equal(t, int64(1), campaigns.Campaigns[0].Recipients)
	assert.Equal(t, int64(2), campaigns.Campaigns[1].Recipients)

	otherAuth := bearer(t, admin.ID, models.RoleUser)
	rec, _ = do(t, router, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", newest.ID), otherAuth, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, router, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", newest.ID), userAuth, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodGet, fmt.Sprintf("/api/notifications/%d", newest.ID), userAuth, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
