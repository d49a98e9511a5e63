package batch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/sbcntr-inventory/internal/common/config"
	"github.com/uma-arai/sbcntr-inventory/internal/common/models"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"go.uber.org/zap"
)

// MockRoomRepository はテスト用のモックリポジトリです
type MockRoomRepository struct {
	rooms         []models.Room
	listActiveErr error
	getByIDsCalls int
	getByIDsArgs  []string
	getByIDsErr   error
}

func (m *MockRoomRepository) GetByID(ctx context.Context, roomID string) (models.Room, error) {
	for _, room := range m.rooms {
		if room.ID == roomID {
			return room, nil
		}
	}
	return models.Room{}, model.NewRoomNotFoundError(roomID)
}

func (m *MockRoomRepository) GetByIDs(ctx context.Context, roomIDs []string) (map[string]models.Room, error) {
	m.getByIDsCalls++
	m.getByIDsArgs = roomIDs
	if m.getByIDsErr != nil {
		return nil, m.getByIDsErr
	}
	found := make(map[string]models.Room)
	for _, room := range m.rooms {
		for _, id := range roomIDs {
			if room.ID == id {
				found[id] = room
			}
		}
	}
	return found, nil
}

func (m *MockRoomRepository) ListActive(ctx context.Context) ([]models.Room, error) {
	if m.listActiveErr != nil {
		return nil, m.listActiveErr
	}
	var active []models.Room
	for _, room := range m.rooms {
		if room.IsAvailable {
			active = append(active, room)
		}
	}
	return active, nil
}

// MockInitializer はテスト用の在庫初期化です
type MockInitializer struct {
	mu       sync.Mutex
	today    model.DayKey
	added    map[string]int
	errs     map[string]error
	extended map[string]model.DayKey
	seeded   []string
}

func (m *MockInitializer) ExtendHorizon(ctx context.Context, roomID string, totalSlots int, end model.DayKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[roomID]; err != nil {
		return 0, err
	}
	if m.extended == nil {
		m.extended = make(map[string]model.DayKey)
	}
	m.extended[roomID] = end
	return m.added[roomID], nil
}

func (m *MockInitializer) Today() model.DayKey { return m.today }
func (m *MockInitializer) HorizonDays() int    { return 30 }

func (m *MockInitializer) SeedNewRoom(ctx context.Context, room models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[room.ID]; err != nil {
		return err
	}
	m.seeded = append(m.seeded, room.ID)
	return nil
}

// MockSFNClient はテスト用のStep Functionsクライアントです
type MockSFNClient struct {
	successInputs []*sfn.SendTaskSuccessInput
	failureInputs []*sfn.SendTaskFailureInput
	successErr    error
}

func (m *MockSFNClient) SendTaskSuccess(ctx context.Context, params *sfn.SendTaskSuccessInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskSuccessOutput, error) {
	m.successInputs = append(m.successInputs, params)
	return &sfn.SendTaskSuccessOutput{}, m.successErr
}

func (m *MockSFNClient) SendTaskFailure(ctx context.Context, params *sfn.SendTaskFailureInput, optFns ...func(*sfn.Options)) (*sfn.SendTaskFailureOutput, error) {
	m.failureInputs = append(m.failureInputs, params)
	return &sfn.SendTaskFailureOutput{}, nil
}

func (m *MockSFNClient) summary(t *testing.T) model.BatchSummary {
	t.Helper()
	require.Len(t, m.successInputs, 1)
	var summary model.BatchSummary
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(m.successInputs[0].Output)), &summary))
	return summary
}

func testConfig() *config.Config {
	cfg := &config.Config{Env: "PRODUCTION"}
	cfg.SFN.TaskToken = "task-token"
	cfg.Inventory.HorizonDays = 30
	return cfg
}

func testContext(t *testing.T) context.Context {
	// X-Rayのセグメントを設定
	ctx, seg := xray.BeginSegment(context.Background(), t.Name())
	t.Cleanup(func() { seg.Close(nil) })
	return ctx
}

func mustDay(t *testing.T, s string) model.DayKey {
	t.Helper()
	d, err := model.ParseDayKey(s)
	require.NoError(t, err)
	return d
}

func TestHorizonBatchService_Run(t *testing.T) {
	rooms := []models.Room{
		{ID: "room-1", Capacity: 4, IsAvailable: true},
		{ID: "room-2", Capacity: 2, IsAvailable: true},
		{ID: "room-3", Capacity: 6, IsAvailable: true},
		{ID: "room-4", Capacity: 1, IsAvailable: false},
	}
	initializer := &MockInitializer{
		today: mustDay(t, "2024-01-01"),
		added: map[string]int{"room-1": 5, "room-2": 0},
		errs:  map[string]error{"room-3": model.NewStorageError("insert availability", errors.New("connection reset"))},
	}
	sfnClient := &MockSFNClient{}
	service := &HorizonBatchService{
		roomRepo:    &MockRoomRepository{rooms: rooms},
		initializer: initializer,
		sfnClient:   sfnClient,
		cfg:         testConfig(),
		logger:      zap.NewNop(),
	}

	require.NoError(t, service.Run(testContext(t)), "部屋ごとの失敗ではバッチを止めない")

	summary := sfnClient.summary(t)
	assert.Equal(t, model.BatchSummary{
		Processed: 3,
		Succeeded: 1,
		Skipped:   1,
		Failed:    1,
		DaysAdded: 5,
		FailedIDs: []string{"room-3"},
	}, summary)
	assert.Equal(t, "task-token", aws.ToString(sfnClient.successInputs[0].TaskToken))

	assert.Equal(t, mustDay(t, "2024-01-31"), initializer.extended["room-1"])
	_, extended := initializer.extended["room-4"]
	assert.False(t, extended, "非公開の部屋は延長しない")
}

func TestHorizonBatchService_Run_ListError(t *testing.T) {
	sfnClient := &MockSFNClient{}
	service := &HorizonBatchService{
		roomRepo:    &MockRoomRepository{listActiveErr: errors.New("connection refused")},
		initializer: &MockInitializer{today: mustDay(t, "2024-01-01")},
		sfnClient:   sfnClient,
		cfg:         testConfig(),
		logger:      zap.NewNop(),
	}

	err := service.Run(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list active rooms")
	assert.Empty(t, sfnClient.successInputs)
}

func TestHorizonBatchService_Run_Local(t *testing.T) {
	sfnClient := &MockSFNClient{}
	cfg := testConfig()
	cfg.Env = "LOCAL"
	service := &HorizonBatchService{
		roomRepo:    &MockRoomRepository{rooms: []models.Room{{ID: "room-1", Capacity: 1, IsAvailable: true}}},
		initializer: &MockInitializer{today: mustDay(t, "2024-01-01"), added: map[string]int{"room-1": 30}},
		sfnClient:   sfnClient,
		cfg:         cfg,
		logger:      zap.NewNop(),
	}

	require.NoError(t, service.Run(testContext(t)))
	assert.Empty(t, sfnClient.successInputs, "LOCALではStep Functionsに通知しない")
}

func TestSeedBatchService_Run(t *testing.T) {
	tests := []struct {
		name        string
		input       model.SeedInput
		errs        map[string]error
		wantSummary model.BatchSummary
		wantLookup  []string
		wantErr     bool
	}{
		{
			name:        "0件の部屋を正常に処理",
			input:       model.SeedInput{},
			wantSummary: model.BatchSummary{},
			wantLookup:  []string{},
		},
		{
			name: "重複した部屋は1回だけ処理",
			input: model.SeedInput{Rooms: []model.RoomCreatedEvent{
				{RoomID: "room-1"}, {RoomID: "room-2"}, {RoomID: "room-1"},
			}},
			wantSummary: model.BatchSummary{Processed: 2, Succeeded: 2, DaysAdded: 60},
			wantLookup:  []string{"room-1", "room-2"},
		},
		{
			name: "投入済みの部屋はスキップ",
			input: model.SeedInput{Rooms: []model.RoomCreatedEvent{
				{RoomID: "room-1"}, {RoomID: "room-2"},
			}},
			errs:        map[string]error{"room-2": model.NewConflictError("room-2", mustDay(t, "2024-01-01"), nil)},
			wantSummary: model.BatchSummary{Processed: 2, Succeeded: 1, Skipped: 1, DaysAdded: 30},
			wantLookup:  []string{"room-1", "room-2"},
		},
		{
			name: "存在しない部屋と投入失敗は失敗として数える",
			input: model.SeedInput{Rooms: []model.RoomCreatedEvent{
				{RoomID: "room-1"}, {RoomID: "room-9"}, {RoomID: "room-2"},
			}},
			errs: map[string]error{"room-2": model.NewStorageError("insert availability", errors.New("timeout"))},
			wantSummary: model.BatchSummary{
				Processed: 3, Succeeded: 1, Failed: 2, DaysAdded: 30,
				FailedIDs: []string{"room-9", "room-2"},
			},
			wantLookup: []string{"room-1", "room-9", "room-2"},
		},
		{
			name:    "部屋IDなしはエラー",
			input:   model.SeedInput{Rooms: []model.RoomCreatedEvent{{RoomID: ""}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roomRepo := &MockRoomRepository{rooms: []models.Room{
				{ID: "room-1", Capacity: 4, IsAvailable: true},
				{ID: "room-2", Capacity: 2, IsAvailable: true},
			}}
			sfnClient := &MockSFNClient{}
			service := &SeedBatchService{
				roomRepo:    roomRepo,
				initializer: &MockInitializer{errs: tt.errs},
				sfnClient:   sfnClient,
				cfg:         testConfig(),
				logger:      zap.NewNop(),
			}
			service.SetArgs(tt.input)

			err := service.Run(testContext(t))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, sfnClient.successInputs)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, 1, roomRepo.getByIDsCalls, "部屋情報は1回で取得する")
			assert.Equal(t, tt.wantLookup, roomRepo.getByIDsArgs)
			assert.Equal(t, tt.wantSummary, sfnClient.summary(t))
		})
	}
}

func TestSendTaskFailure(t *testing.T) {
	sfnClient := &MockSFNClient{}
	err := SendTaskFailure(context.Background(), sfnClient, "task-token", model.NewStorageError("list rooms", errors.New("down")))
	require.NoError(t, err)

	require.Len(t, sfnClient.failureInputs, 1)
	assert.Equal(t, "task-token", aws.ToString(sfnClient.failureInputs[0].TaskToken))
	assert.Equal(t, string(model.KindStorage), aws.ToString(sfnClient.failureInputs[0].Cause))

	assert.NoError(t, SendTaskFailure(context.Background(), nil, "task-token", errors.New("x")))
}
