package game

import (
	"boardship/battle"
	"boardship/domain"
	"boardship/protocol"
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// --- WebsocketConnection ---

type MockWebsocketConnection struct {
	mock.Mock
}

func (m *MockWebsocketConnection) Close() {
	m.Called()
}

func (m *MockWebsocketConnection) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockWebsocketConnection) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockWebsocketConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// --- UniqueIdGenerator ---

type MockUniqueIdGenerator struct {
	mock.Mock
}

func (m *MockUniqueIdGenerator) Generate() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockUniqueIdGenerator) Reserve(id string) bool {
	args := m.Called(id)
	return args.Bool(0)
}

func (m *MockUniqueIdGenerator) Dispose(id string) {
	m.Called(id)
}

// --- PeriodicTickerChannelCreator ---

type MockPeriodicTickerChannelCreator struct {
	mock.Mock
}

func (m *MockPeriodicTickerChannelCreator) Create(duration time.Duration) <-chan time.Time {
	args := m.Called(duration)
	return args.Get(0).(chan time.Time)
}

// --- TimerScheduler ---

// fakeTimers keeps every scheduled func so tests decide when timers fire.
type fakeTimers struct {
	locker  sync.Mutex
	pending []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) func() bool {
	ft.locker.Lock()
	defer ft.locker.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.pending = append(ft.pending, t)
	return func() bool {
		ft.locker.Lock()
		defer ft.locker.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

// last returns the most recently armed timer that was not stopped.
func (ft *fakeTimers) last() *fakeTimer {
	ft.locker.Lock()
	defer ft.locker.Unlock()
	for i := len(ft.pending) - 1; i >= 0; i-- {
		if !ft.pending[i].stopped {
			return ft.pending[i]
		}
	}
	return nil
}

func (ft *fakeTimers) armed() int {
	ft.locker.Lock()
	defer ft.locker.Unlock()
	n := 0
	for _, t := range ft.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// --- UserGetter ---

type MockUserGetter struct {
	mock.Mock
}

func (m *MockUserGetter) GetUserById(ctx context.Context, id string) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

// --- MatchLoader ---

type MockMatchLoader struct {
	mock.Mock
}

func (m *MockMatchLoader) LoadMatch(ctx context.Context, id string) (battle.Record, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(battle.Record), args.Error(1)
}

// --- Recorder ---

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) SaveMatch(rec battle.Record) {
	m.Called(rec)
}

func (m *MockRecorder) RecordResult(res domain.MatchResult) {
	m.Called(res)
}

// --- MatchStore ---

type MockMatchStore struct {
	mock.Mock
}

func (m *MockMatchStore) SaveMatch(ctx context.Context, rec battle.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockMatchStore) RecordResult(ctx context.Context, res domain.MatchResult) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

// --- Player ---

type MockPlayer struct {
	mock.Mock
	rankPoints int
}

func (m *MockPlayer) Id() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockPlayer) Username() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockPlayer) RankPoints() int {
	return m.rankPoints
}

func (m *MockPlayer) Codec() protocol.Codec {
	args := m.Called()
	return args.Get(0).(protocol.Codec)
}

func (m *MockPlayer) Send(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockPlayer) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockPlayer) SetRoom(r Room) {
	m.Called(r)
}

func (m *MockPlayer) CancelAndRelease() {
	m.Called()
}

// --- Room ---

type MockRoom struct {
	mock.Mock
}

func (m *MockRoom) Id() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockRoom) PingPlayers() {
	m.Called()
}

func (m *MockRoom) Send(ctx context.Context, e intentEnvelope) {
	m.Called(ctx, e)
}

func (m *MockRoom) RemoveMe(p Player) {
	m.Called(p)
}

func (m *MockRoom) RequestJoin(jreq roomJoinRequest) {
	m.Called(jreq)
}

func (m *MockRoom) RequestSnapshot(sreq snapshotRequest) {
	m.Called(sreq)
}

func (m *MockRoom) Tick(now time.Time) {
	m.Called(now)
}

func (m *MockRoom) GameLoop() {
	m.Called()
}

func (m *MockRoom) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(chan struct{})
}

func (m *MockRoom) CloseAndRelease() {
	m.Called()
}

func (m *MockRoom) SetParentLobby(l Lobby) {
	m.Called(l)
}

func (m *MockRoom) SetId(id string) {
	m.Called(id)
}

// --- Lobby ---

type MockLobby struct {
	mock.Mock
}

func (m *MockLobby) RequestAddAndRunRoom(ctx context.Context, r Room) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockLobby) RequestRestoreRoom(ctx context.Context, r Room, jreq roomJoinRequest) error {
	args := m.Called(ctx, r, jreq)
	return args.Error(0)
}

func (m *MockLobby) ForwardPlayerJoinRequestToRoom(ctx context.Context, jreq roomJoinRequest) {
	m.Called(ctx, jreq)
}

func (m *MockLobby) ForwardSnapshotRequestToRoom(ctx context.Context, sreq snapshotRequest) {
	m.Called(ctx, sreq)
}

func (m *MockLobby) RemoveRoom(roomId string) {
	m.Called(roomId)
}

func newMockPlayer(id, username string) *MockPlayer {
	p := &MockPlayer{}
	p.On("Id").Return(id).Maybe()
	p.On("Username").Return(username).Maybe()
	p.On("Codec").Return(protocol.JSON).Maybe()
	return p
}
