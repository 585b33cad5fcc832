package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradechat_backend/internal/chat"
	"tradechat_backend/internal/negotiation"
	"tradechat_backend/internal/ws"
	"tradechat_backend/middleware"
	"tradechat_backend/models"
	"tradechat_backend/utils"
)

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	buyer  models.User
	seller models.User
	trade  models.Trade
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	dsn := filepath.Join(t.TempDir(), "chat.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.ListingImage{},
		&models.Region{},
		&models.Trade{},
		&models.TradeRecord{},
		&models.Message{},
		&models.MessageImage{},
	)
	if err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	env := &testEnv{db: db}
	env.buyer = models.User{Username: "buyer", Email: "buyer@example.com", Password: "x"}
	env.seller = models.User{Username: "seller", Email: "seller@example.com", Password: "x"}
	if err := db.Create(&env.buyer).Error; err != nil {
		t.Fatalf("seeding buyer: %v", err)
	}
	if err := db.Create(&env.seller).Error; err != nil {
		t.Fatalf("seeding seller: %v", err)
	}

	listing := models.Listing{SellerID: env.seller.ID, Title: "Used bike", Price: 350000, Status: "available"}
	if err := db.Create(&listing).Error; err != nil {
		t.Fatalf("seeding listing: %v", err)
	}
	region := models.Region{RegionCode: "1111010100", Sido: "Seoul", Sigungu: "Jongno-gu", Eubmyeonli: "Cheongun-dong"}
	if err := db.Create(&region).Error; err != nil {
		t.Fatalf("seeding region: %v", err)
	}
	env.trade = models.Trade{
		ListingID: listing.ID,
		BuyerID:   env.buyer.ID,
		SellerID:  env.seller.ID,
		Status:    models.TradeStatusPending,
	}
	if err := db.Create(&env.trade).Error; err != nil {
		t.Fatalf("seeding trade: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()
	chatService := chat.NewService(db)
	engine := negotiation.NewEngine(db, negotiation.GormRegions{}, nil)
	chatHandler := NewChatHandler(hub, chatService, engine)
	tradeHandler := NewTradeHandler(db)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	api := app.Group("/api", utils.AuthMiddleware)
	chatRoutes := api.Group("/chat")
	chatRoutes.Post("/rooms", chatHandler.CreateChatRoom)
	chatRoutes.Get("/rooms", chatHandler.GetMyChatRooms)
	chatRoutes.Get("/rooms/:tradeId", chatHandler.GetChatRoomDetail)
	chatRoutes.Get("/rooms/:tradeId/messages", chatHandler.GetChatMessages)
	chatRoutes.Post("/rooms/:tradeId/messages", chatHandler.SendMessage)
	chatRoutes.Post("/rooms/:tradeId/status-requests", chatHandler.CreateStatusRequest)
	chatRoutes.Post("/rooms/:tradeId/status-requests/:messageId/approve", chatHandler.ApproveStatusRequest)
	chatRoutes.Post("/rooms/:tradeId/status-requests/:messageId/reject", chatHandler.RejectStatusRequest)
	chatRoutes.Patch("/rooms/:tradeId/status", chatHandler.UpdateTradeStatus)
	api.Get("/trades", tradeHandler.GetMyTrades)
	api.Get("/trades/count", tradeHandler.GetMyTradeCount)
	env.app = app
	return env
}

func (e *testEnv) request(t *testing.T, method, path string, asUser uint, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if asUser != 0 {
		token, err := utils.GenerateToken(asUser)
		if err != nil {
			t.Fatalf("issuing token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) models.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/api/chat/rooms", 0, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCreateChatRoom_CreatedThenFound(t *testing.T) {
	env := newTestEnv(t)

	second := models.Listing{SellerID: env.seller.ID, Title: "Old desk", Price: 20000, Status: "available"}
	if err := env.db.Create(&second).Error; err != nil {
		t.Fatalf("seeding listing: %v", err)
	}

	body := fiber.Map{"listingId": second.ID}
	resp := env.request(t, http.MethodPost, "/api/chat/rooms", env.buyer.ID, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first call status = %d, want 201", resp.StatusCode)
	}
	decodeResponse(t, resp)

	resp = env.request(t, http.MethodPost, "/api/chat/rooms", env.buyer.ID, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second call status = %d, want 200", resp.StatusCode)
	}

	// The seller cannot open a room on their own listing.
	resp = env.request(t, http.MethodPost, "/api/chat/rooms", env.seller.ID, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("own listing status = %d, want 400", resp.StatusCode)
	}
}

func TestNegotiationFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	base := fmt.Sprintf("/api/chat/rooms/%d", env.trade.ID)

	// Buyer requests an in-person trade with logistics.
	resp := env.request(t, http.MethodPost, base+"/status-requests", env.buyer.ID, fiber.Map{
		"requestedStatus": "IN_PERSON",
		"regionCode":      "1111010100",
		"addressDetail":   "Exit 3",
		"amount":          50000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request status = %d, want 201", resp.StatusCode)
	}
	out := decodeResponse(t, resp)
	data := out.Data.(map[string]interface{})
	msg := data["message"].(map[string]interface{})
	messageID := uint(msg["id"].(float64))

	// The buyer cannot approve their own request.
	resp = env.request(t, http.MethodPost, fmt.Sprintf("%s/status-requests/%d/approve", base, messageID), env.buyer.ID, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self-approval status = %d, want 400", resp.StatusCode)
	}

	// An outsider gets a 403 before any state is touched.
	resp = env.request(t, http.MethodPost, fmt.Sprintf("%s/status-requests/%d/approve", base, messageID), 99, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider status = %d, want 403", resp.StatusCode)
	}

	// Seller approves; the trade moves to IN_PERSON.
	resp = env.request(t, http.MethodPost, fmt.Sprintf("%s/status-requests/%d/approve", base, messageID), env.seller.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d, want 200", resp.StatusCode)
	}
	out = decodeResponse(t, resp)
	data = out.Data.(map[string]interface{})
	if got := data["newStatus"].(string); got != "IN_PERSON" {
		t.Errorf("newStatus = %q, want IN_PERSON", got)
	}

	var reloaded models.Trade
	if err := env.db.First(&reloaded, env.trade.ID).Error; err != nil {
		t.Fatalf("reloading trade: %v", err)
	}
	if reloaded.Status != models.TradeStatusInPerson {
		t.Errorf("trade status = %q, want IN_PERSON", reloaded.Status)
	}

	// Approving again is a validation failure.
	resp = env.request(t, http.MethodPost, fmt.Sprintf("%s/status-requests/%d/approve", base, messageID), env.seller.ID, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("double approve status = %d, want 400", resp.StatusCode)
	}

	// The history now carries the request plus the system summary.
	resp = env.request(t, http.MethodGet, base+"/messages", env.buyer.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("messages status = %d, want 200", resp.StatusCode)
	}
	out = decodeResponse(t, resp)
	page := out.Data.(map[string]interface{})
	messages := page["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("message count = %d, want request + system summary", len(messages))
	}
}

func TestRejectFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	base := fmt.Sprintf("/api/chat/rooms/%d", env.trade.ID)

	resp := env.request(t, http.MethodPost, base+"/status-requests", env.buyer.ID, fiber.Map{
		"requestedStatus": "COMPLETED",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request status = %d, want 201", resp.StatusCode)
	}
	out := decodeResponse(t, resp)
	data := out.Data.(map[string]interface{})
	msg := data["message"].(map[string]interface{})
	messageID := uint(msg["id"].(float64))

	resp = env.request(t, http.MethodPost, fmt.Sprintf("%s/status-requests/%d/reject", base, messageID), env.seller.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject status = %d, want 200", resp.StatusCode)
	}

	var reloaded models.Trade
	if err := env.db.First(&reloaded, env.trade.ID).Error; err != nil {
		t.Fatalf("reloading trade: %v", err)
	}
	if reloaded.Status != models.TradeStatusPending {
		t.Errorf("trade status = %q, want PENDING after reject", reloaded.Status)
	}
}

func TestSendAndFetchMessages(t *testing.T) {
	env := newTestEnv(t)
	base := fmt.Sprintf("/api/chat/rooms/%d", env.trade.ID)

	resp := env.request(t, http.MethodPost, base+"/messages", env.buyer.ID, fiber.Map{
		"content": "is this still available?",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d, want 201", resp.StatusCode)
	}

	// Empty message is rejected.
	resp = env.request(t, http.MethodPost, base+"/messages", env.buyer.ID, fiber.Map{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty send status = %d, want 400", resp.StatusCode)
	}

	// An outsider cannot read the room.
	resp = env.request(t, http.MethodGet, base+"/messages", 99, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider read status = %d, want 403", resp.StatusCode)
	}

	// A negative cursor is rejected instead of wrapping to a huge one.
	resp = env.request(t, http.MethodGet, base+"/messages?beforeId=-1", env.buyer.ID, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative cursor status = %d, want 400", resp.StatusCode)
	}

	resp = env.request(t, http.MethodGet, base+"/messages?limit=10", env.seller.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read status = %d, want 200", resp.StatusCode)
	}
	out := decodeResponse(t, resp)
	page := out.Data.(map[string]interface{})
	messages := page["messages"].([]interface{})
	if len(messages) != 1 {
		t.Fatalf("message count = %d, want 1", len(messages))
	}
}

func TestDirectStatusUpdateOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	base := fmt.Sprintf("/api/chat/rooms/%d", env.trade.ID)

	resp := env.request(t, http.MethodPatch, base+"/status", env.seller.ID, fiber.Map{
		"status": "CANCELED",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var reloaded models.Trade
	if err := env.db.First(&reloaded, env.trade.ID).Error; err != nil {
		t.Fatalf("reloading trade: %v", err)
	}
	if reloaded.Status != models.TradeStatusCanceled {
		t.Errorf("trade status = %q, want CANCELED", reloaded.Status)
	}

	resp = env.request(t, http.MethodPatch, base+"/status", env.seller.ID, fiber.Map{
		"status": "BOGUS",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status = %d, want 400", resp.StatusCode)
	}
}

func TestTradeHistoryOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	base := fmt.Sprintf("/api/chat/rooms/%d", env.trade.ID)

	// Drive one trade to completion through the approval protocol so the
	// history carries a trade record.
	resp := env.request(t, http.MethodPost, base+"/status-requests", env.buyer.ID, fiber.Map{
		"requestedStatus": "IN_PERSON",
		"regionCode":      "1111010100",
		"addressDetail":   "Exit 3",
		"amount":          50000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request status = %d, want 201", resp.StatusCode)
	}
	out := decodeResponse(t, resp)
	msg := out.Data.(map[string]interface{})["message"].(map[string]interface{})
	messageID := uint(msg["id"].(float64))

	resp = env.request(t, http.MethodPost, fmt.Sprintf("%s/status-requests/%d/approve", base, messageID), env.seller.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d, want 200", resp.StatusCode)
	}

	resp = env.request(t, http.MethodGet, "/api/trades", env.buyer.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trades status = %d, want 200", resp.StatusCode)
	}
	out = decodeResponse(t, resp)
	data := out.Data.(map[string]interface{})
	trades := data["trades"].([]interface{})
	if len(trades) != 1 {
		t.Fatalf("trade count = %d, want 1", len(trades))
	}
	item := trades[0].(map[string]interface{})
	if item["type"].(string) != "buy" {
		t.Errorf("type = %v, want buy", item["type"])
	}
	if item["trade_record_id"] == nil {
		t.Error("trade_record_id is nil, want bound record")
	}

	resp = env.request(t, http.MethodGet, "/api/trades/count", env.seller.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("count status = %d, want 200", resp.StatusCode)
	}
	out = decodeResponse(t, resp)
	counts := out.Data.(map[string]interface{})
	if got := counts["sellCount"].(float64); got != 1 {
		t.Errorf("sellCount = %v, want 1", got)
	}

	// A broken record store surfaces as a 500, not as a silently missing
	// trade_record_id.
	if err := env.db.Migrator().DropTable(&models.TradeRecord{}); err != nil {
		t.Fatalf("dropping trade_records: %v", err)
	}
	resp = env.request(t, http.MethodGet, "/api/trades", env.buyer.ID, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("broken store status = %d, want 500", resp.StatusCode)
	}
}

func TestRejectOwnRequestOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	base := fmt.Sprintf("/api/chat/rooms/%d", env.trade.ID)

	resp := env.request(t, http.MethodPost, base+"/status-requests", env.buyer.ID, fiber.Map{
		"requestedStatus": "COMPLETED",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request status = %d, want 201", resp.StatusCode)
	}
	out := decodeResponse(t, resp)
	msg := out.Data.(map[string]interface{})["message"].(map[string]interface{})
	messageID := uint(msg["id"].(float64))

	// The requester may withdraw their own pending request.
	resp = env.request(t, http.MethodPost, fmt.Sprintf("%s/status-requests/%d/reject", base, messageID), env.buyer.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("withdraw status = %d, want 200", resp.StatusCode)
	}
	out = decodeResponse(t, resp)
	payload := out.Data.(map[string]interface{})["payload"].(map[string]interface{})
	if got := payload["status"].(string); got != "REJECTED" {
		t.Errorf("payload status = %q, want REJECTED", got)
	}
}
