// Package api は在庫台帳のHTTPインターフェースです
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/uma-arai/sbcntr-inventory/internal/common/models"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"go.uber.org/zap"
)

// AvailabilityReader は在庫の読み取りです
type AvailabilityReader interface {
	Get(ctx context.Context, roomID string, day model.DayKey) (model.AvailabilityRecord, error)
	ListRange(ctx context.Context, roomID string, r model.DateRange) iter.Seq2[model.AvailabilityRecord, error]
}

// Reserver は枠の確保・解放です
type Reserver interface {
	Reserve(ctx context.Context, intent model.ReservationIntent) (model.ReservationConfirmation, error)
	Release(ctx context.Context, intent model.ReservationIntent) (model.ReleaseAck, error)
	ResizeCapacity(ctx context.Context, roomID string, newCapacity int) error
}

// Seeder は在庫の初期投入と延長です
type Seeder interface {
	Seed(ctx context.Context, roomID string, totalSlots, horizonDays int, fromDate time.Time) error
	ExtendHorizon(ctx context.Context, roomID string, totalSlots int, newHorizonEnd model.DayKey) (int, error)
	Today() model.DayKey
	HorizonDays() int
}

// AuditReader は監査イベントの読み取りです
type AuditReader interface {
	ListByRoom(ctx context.Context, roomID string, limit int) ([]model.LedgerEvent, error)
}

// RoomReader は部屋情報の読み取りです
type RoomReader interface {
	GetByID(ctx context.Context, roomID string) (models.Room, error)
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Handler はHTTPリクエストを在庫台帳の操作に変換します
type Handler struct {
	ledger   AvailabilityReader
	engine   Reserver
	seeder   Seeder
	audit    AuditReader
	rooms    RoomReader
	verifier *TokenVerifier
	validate *validator.Validate
	logger   *zap.Logger
	// exposeErrors が true の場合は内部エラーの詳細をレスポンスに含めます（LOCALのみ）
	exposeErrors bool
}

// HandlerDeps はHandlerの依存です
type HandlerDeps struct {
	Ledger       AvailabilityReader
	Engine       Reserver
	Seeder       Seeder
	Audit        AuditReader
	Rooms        RoomReader
	Verifier     *TokenVerifier
	Logger       *zap.Logger
	ExposeErrors bool
}

// NewHandler は新しいHandlerを作成します
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		ledger:       deps.Ledger,
		engine:       deps.Engine,
		seeder:       deps.Seeder,
		audit:        deps.Audit,
		rooms:        deps.Rooms,
		verifier:     deps.Verifier,
		validate:     validator.New(),
		logger:       deps.Logger,
		exposeErrors: deps.ExposeErrors,
	}
}

type rangeRequest struct {
	CheckIn  string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut string `json:"check_out" validate:"required,datetime=2006-01-02"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type seedRequest struct {
	TotalSlots  *int   `json:"total_slots" validate:"omitempty,min=0"`
	HorizonDays int    `json:"horizon_days" validate:"omitempty,min=1"`
	From        string `json:"from" validate:"omitempty,datetime=2006-01-02"`
}

type extendRequest struct {
	TotalSlots *int   `json:"total_slots" validate:"omitempty,min=0"`
	HorizonEnd string `json:"horizon_end" validate:"omitempty,datetime=2006-01-02"`
}

type capacityRequest struct {
	Capacity int `json:"capacity" validate:"min=0"`
}

type seedResponse struct {
	RoomID     string          `json:"room_id"`
	Range      model.DateRange `json:"range"`
	TotalSlots int             `json:"total_slots"`
}

type extendResponse struct {
	RoomID     string       `json:"room_id"`
	HorizonEnd model.DayKey `json:"horizon_end"`
	DaysAdded  int          `json:"days_added"`
}

// Health はliveness確認用です
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListAvailability は GET /v1/rooms/{roomId}/availability?checkIn=&checkOut= です
func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	q := r.URL.Query()

	dr, err := parseRange(q.Get("checkIn"), q.Get("checkOut"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records := []model.AvailabilityRecord{}
	for rec, err := range h.ledger.ListRange(r.Context(), roomID, dr) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		records = append(records, rec)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":   roomID,
		"check_in":  dr.CheckIn,
		"check_out": dr.CheckOut,
		"records":   records,
	})
}

// GetAvailability は GET /v1/rooms/{roomId}/availability/{date} です
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	day, err := model.ParseDayKey(vars["date"])
	if err != nil {
		h.writeError(w, r, model.NewValidationError("date must be YYYY-MM-DD"))
		return
	}

	rec, err := h.ledger.Get(r.Context(), vars["roomId"], day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Reserve は POST /v1/rooms/{roomId}/reservations です
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	intent, err := h.decodeIntent(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	conf, err := h.engine.Reserve(r.Context(), intent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conf)
}

// Release は POST /v1/rooms/{roomId}/releases です
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	intent, err := h.decodeIntent(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ack, err := h.engine.Release(r.Context(), intent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// SeedInventory は POST /v1/rooms/{roomId}/inventory です
// total_slots を省略した場合は部屋の定員を使います
func (h *Handler) SeedInventory(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	var req seedRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	totalSlots, err := h.totalSlots(r.Context(), roomID, req.TotalSlots)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	horizonDays := req.HorizonDays
	if horizonDays == 0 {
		horizonDays = h.seeder.HorizonDays()
	}
	from := h.seeder.Today()
	if req.From != "" {
		if from, err = model.ParseDayKey(req.From); err != nil {
			h.writeError(w, r, model.NewValidationError("from must be YYYY-MM-DD"))
			return
		}
	}

	if err := h.seeder.Seed(r.Context(), roomID, totalSlots, horizonDays, from.Time()); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, seedResponse{
		RoomID:     roomID,
		Range:      model.DateRange{CheckIn: from, CheckOut: from.AddDays(horizonDays)},
		TotalSlots: totalSlots,
	})
}

// ExtendInventory は POST /v1/rooms/{roomId}/inventory/extend です
// horizon_end を省略した場合は今日から設定日数後までを用意します
func (h *Handler) ExtendInventory(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	var req extendRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	totalSlots, err := h.totalSlots(r.Context(), roomID, req.TotalSlots)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	end := h.seeder.Today().AddDays(h.seeder.HorizonDays())
	if req.HorizonEnd != "" {
		if end, err = model.ParseDayKey(req.HorizonEnd); err != nil {
			h.writeError(w, r, model.NewValidationError("horizon_end must be YYYY-MM-DD"))
			return
		}
	}

	added, err := h.seeder.ExtendHorizon(r.Context(), roomID, totalSlots, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, extendResponse{RoomID: roomID, HorizonEnd: end, DaysAdded: added})
}

// ResizeCapacity は PUT /v1/rooms/{roomId}/capacity です
func (h *Handler) ResizeCapacity(w http.ResponseWriter, r *http.Request) {
	var req capacityRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.engine.ResizeCapacity(r.Context(), mux.Vars(r)["roomId"], req.Capacity); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents は GET /v1/rooms/{roomId}/events?limit= です
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxEventLimit {
			h.writeError(w, r, model.NewValidationError("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	events, err := h.audit.ListByRoom(r.Context(), mux.Vars(r)["roomId"], limit)
	if err != nil {
		h.writeError(w, r, model.NewStorageError("list ledger events", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handler) totalSlots(ctx context.Context, roomID string, requested *int) (int, error) {
	if requested != nil {
		return *requested, nil
	}

	room, err := h.rooms.GetByID(ctx, roomID)
	if err != nil {
		if model.KindOf(err) == model.KindNotFound {
			return 0, err
		}
		return 0, model.NewStorageError("get room", err)
	}
	return room.Capacity, nil
}

func (h *Handler) decodeIntent(r *http.Request) (model.ReservationIntent, error) {
	var req rangeRequest
	if err := h.decode(r, &req); err != nil {
		return model.ReservationIntent{}, err
	}

	dr, err := parseRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return model.ReservationIntent{}, err
	}

	return model.ReservationIntent{
		RoomID:   mux.Vars(r)["roomId"],
		Range:    dr,
		Quantity: req.Quantity,
	}, nil
}

func (h *Handler) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	// 省略可能な項目しかないリクエストは空のボディを許可する
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return model.NewValidationError("invalid request body")
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return model.NewValidationError("invalid field " + verrs[0].Field() + ": " + verrs[0].Tag())
		}
		return model.NewValidationError("invalid request body")
	}
	return nil
}

func parseRange(checkIn, checkOut string) (model.DateRange, error) {
	in, err := model.ParseDayKey(checkIn)
	if err != nil {
		return model.DateRange{}, model.NewValidationError("checkIn must be YYYY-MM-DD")
	}
	out, err := model.ParseDayKey(checkOut)
	if err != nil {
		return model.DateRange{}, model.NewValidationError("checkOut must be YYYY-MM-DD")
	}

	dr := model.DateRange{CheckIn: in, CheckOut: out}
	if err := dr.Validate(); err != nil {
		return model.DateRange{}, err
	}
	return dr, nil
}
