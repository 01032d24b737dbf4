package game

import (
	"boardship/battle"
	"boardship/domain"
	"boardship/protocol"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (st dataSendTask) String() string {
	toName := "<nil>"
	if st.to != nil {
		toName = st.to.Username()
	}
	data, err := protocol.JSON.EncodeEvent(st.event)
	if err != nil {
		return fmt.Sprintf("dataSendTask{to: %s, event: <unencodable %T>}", toName, st.event)
	}
	return fmt.Sprintf("dataSendTask{to: %s, event: %s}", toName, data)
}

func MakeDataSendTasks(args ...any) []dataSendTask {
	if len(args)%2 != 0 {
		panic("must provide arguments in pairs!")
	}
	res := make([]dataSendTask, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		to, ok1 := args[i].(Player)
		event, ok2 := args[i+1].(protocol.Event)
		if !ok1 || !ok2 {
			panic(fmt.Sprintf("Bad types at index %d, expected (Player, protocol.Event)", i))
		}
		res = append(res, dataSendTask{to: to, event: event})
	}
	return res
}

func AssertEqualDataSendTasks(t *testing.T, expected []dataSendTask, actual []dataSendTask) {
	t.Helper()
	expectedStr := []string{}
	actualStr := []string{}

	for _, d := range expected {
		expectedStr = append(expectedStr, d.String())
	}
	for _, d := range actual {
		actualStr = append(actualStr, d.String())
	}

	assert.ElementsMatch(t, expectedStr, actualStr)
}

func line(row, col, size int, o battle.Orientation) []battle.Cell {
	cells := make([]battle.Cell, 0, size)
	for i := 0; i < size; i++ {
		if o == battle.Horizontal {
			cells = append(cells, battle.Cell{Row: row, Col: col + i})
		} else {
			cells = append(cells, battle.Cell{Row: row + i, Col: col})
		}
	}
	return cells
}

func ship(size, row, col int, o battle.Orientation) battle.Ship {
	return battle.Ship{Size: size, Positions: line(row, col, size, o), Orientation: o}
}

// standardFleet leaves row 9 empty.
func standardFleet() []battle.Ship {
	return []battle.Ship{
		ship(2, 0, 0, battle.Horizontal),
		ship(5, 2, 0, battle.Horizontal),
		ship(4, 4, 0, battle.Horizontal),
		ship(3, 6, 0, battle.Horizontal),
		ship(3, 5, 9, battle.Vertical),
	}
}

func fleetCells() []battle.Cell {
	var out []battle.Cell
	for _, s := range standardFleet() {
		out = append(out, s.Positions...)
	}
	return out
}

func snapshotOf(t *testing.T, r *room, p Player) protocol.Event {
	t.Helper()
	v, err := r.match.Snapshot(p.Id())
	require.NoError(t, err)
	return &protocol.SnapshotEvent{View: v}
}

func sendIntent(r *room, p Player, i protocol.Intent) {
	r.handleIntent(intentEnvelope{intent: i, from: p})
}

func TestRoom_ClassicScenario(t *testing.T) {
	t.Parallel()
	naruto := newMockPlayer("naruto-id", "naruto")
	sasuke := newMockPlayer("sasuke-id", "sasuke")
	sasuke2 := newMockPlayer("sasuke-id", "sasuke")
	itachi := newMockPlayer("itachi-id", "itachi")
	naruto.On("SetRoom", mock.Anything).Return().Once()
	sasuke.On("SetRoom", mock.Anything).Return().Once()
	sasuke2.On("SetRoom", mock.Anything).Return().Once()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recorder := &MockRecorder{}
	recorder.On("SaveMatch", mock.Anything).Return()
	recorder.On("RecordResult", mock.MatchedBy(func(res domain.MatchResult) bool {
		return res.MatchID == "ROOM1" && res.WinnerID == "naruto-id" && res.LoserID == "sasuke-id" &&
			res.Reason == "forfeit" && res.WinnerHits == 1 && res.LoserHits == 0 && res.WinnerDelta == nil
	})).Return().Once()
	l := &MockLobby{}

	r, err := NewRoom(naruto, battle.ModeClassic, RoomOptions{Recorder: recorder, Now: func() time.Time { return now }})
	require.NoError(t, err)
	r.SetParentLobby(l)
	r.SetId("ROOM1")
	AssertEqualDataSendTasks(t, MakeDataSendTasks(naruto, snapshotOf(t, r, naruto)), r.dataSendTasks)
	r.dataSendTasks = nil

	hit := true

	testCases := []struct {
		desc                   string
		action                 func(t *testing.T)
		setupLobbyExpectations func()
		expectedDataSendTasks  func(t *testing.T) []dataSendTask
	}{
		{
			desc: "Sasuke joins",
			action: func(t *testing.T) {
				errChan := make(chan error, 1)
				r.handleJoinRequest(roomJoinRequest{roomId: "ROOM1", player: sasuke, errChan: errChan})
				err, open := <-errChan
				assert.NoError(t, err)
				assert.False(t, open)
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					naruto, &protocol.PlayerJoinedEvent{PlayerID: "sasuke-id", Name: "sasuke"},
					sasuke, snapshotOf(t, r, sasuke),
				)
			},
		},
		{
			desc: "Itachi finds the room full",
			action: func(t *testing.T) {
				errChan := make(chan error, 1)
				r.handleJoinRequest(roomJoinRequest{roomId: "ROOM1", player: itachi, errChan: errChan})
				assert.ErrorIs(t, <-errChan, battle.ErrRoomFull)
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask { return nil },
		},
		{
			desc: "Naruto places overlapping ships",
			action: func(t *testing.T) {
				ships := standardFleet()
				ships[1] = ship(5, 0, 0, battle.Vertical)
				sendIntent(r, naruto, &protocol.ReadyIntent{Ships: ships})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					naruto, &protocol.IntentRejectedEvent{Intent: protocol.TypeReady, Reason: "ships-overlap"},
				)
			},
		},
		{
			desc: "Naruto is ready",
			action: func(t *testing.T) {
				sendIntent(r, naruto, &protocol.ReadyIntent{Ships: standardFleet()})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					naruto, snapshotOf(t, r, naruto),
					naruto, &protocol.PlayerReadyEvent{PlayerID: "naruto-id"},
					sasuke, &protocol.PlayerReadyEvent{PlayerID: "naruto-id"},
				)
			},
		},
		{
			desc: "Naruto is ready twice",
			action: func(t *testing.T) {
				sendIntent(r, naruto, &protocol.ReadyIntent{Ships: standardFleet()})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					naruto, &protocol.IntentRejectedEvent{Intent: protocol.TypeReady, Reason: "already-ready"},
				)
			},
		},
		{
			desc: "Sasuke attacks during placement",
			action: func(t *testing.T) {
				sendIntent(r, sasuke, &protocol.AttackIntent{Cell: battle.Cell{Row: 0, Col: 0}})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					sasuke, &protocol.AttackErrorEvent{Cell: battle.Cell{Row: 0, Col: 0}, Reason: "wrong-phase"},
				)
			},
		},
		{
			desc: "Sasuke is ready and the game starts with the host",
			action: func(t *testing.T) {
				sendIntent(r, sasuke, &protocol.ReadyIntent{Ships: standardFleet()})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				start := &protocol.GameStartEvent{FirstPlayer: "naruto-id", GameMode: battle.ModeClassic}
				return MakeDataSendTasks(
					sasuke, snapshotOf(t, r, sasuke),
					naruto, &protocol.PlayerReadyEvent{PlayerID: "sasuke-id"},
					sasuke, &protocol.PlayerReadyEvent{PlayerID: "sasuke-id"},
					naruto, start,
					sasuke, start,
				)
			},
		},
		{
			desc: "Sasuke attacks out of turn",
			action: func(t *testing.T) {
				sendIntent(r, sasuke, &protocol.AttackIntent{Cell: battle.Cell{Row: 0, Col: 0}})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					sasuke, &protocol.AttackErrorEvent{Cell: battle.Cell{Row: 0, Col: 0}, Reason: "not-your-turn"},
				)
			},
		},
		{
			desc: "Naruto hits and keeps the turn",
			action: func(t *testing.T) {
				sendIntent(r, naruto, &protocol.AttackIntent{Cell: battle.Cell{Row: 2, Col: 0}})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				result := &protocol.AttackResultEvent{PlayerID: "naruto-id", Cell: battle.Cell{Row: 2, Col: 0}, IsHit: true}
				keep := &protocol.TurnKeepEvent{CurrentPlayer: "naruto-id"}
				return MakeDataSendTasks(
					naruto, result,
					sasuke, result,
					naruto, keep,
					sasuke, keep,
				)
			},
		},
		{
			desc: "Naruto repeats the shot",
			action: func(t *testing.T) {
				sendIntent(r, naruto, &protocol.AttackIntent{Cell: battle.Cell{Row: 2, Col: 0}})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					naruto, &protocol.AttackErrorEvent{
						Cell:       battle.Cell{Row: 2, Col: 0},
						Reason:     "cell-already-attacked",
						AttackedBy: "naruto-id",
						IsHit:      &hit,
					},
				)
			},
		},
		{
			desc: "Naruto misses and passes the turn",
			action: func(t *testing.T) {
				sendIntent(r, naruto, &protocol.AttackIntent{Cell: battle.Cell{Row: 9, Col: 0}})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				result := &protocol.AttackResultEvent{PlayerID: "naruto-id", Cell: battle.Cell{Row: 9, Col: 0}}
				change := &protocol.TurnChangeEvent{CurrentPlayer: "sasuke-id", PreviousPlayer: "naruto-id", Reason: protocol.TurnReasonMiss}
				return MakeDataSendTasks(
					naruto, result,
					sasuke, result,
					naruto, change,
					sasuke, change,
				)
			},
		},
		{
			desc: "Sasuke reconnects and the old connection is released",
			action: func(t *testing.T) {
				sasuke.On("CancelAndRelease").Return().Once()
				errChan := make(chan error, 1)
				r.handleJoinRequest(roomJoinRequest{roomId: "ROOM1", player: sasuke2, errChan: errChan})
				_, open := <-errChan
				assert.False(t, open)
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					sasuke2, snapshotOf(t, r, sasuke2),
					naruto, &protocol.PresenceEvent{PlayerID: "sasuke-id", Connected: true},
				)
			},
		},
		{
			desc: "The old connection is ignored",
			action: func(t *testing.T) {
				sendIntent(r, sasuke, &protocol.AttackIntent{Cell: battle.Cell{Row: 0, Col: 0}})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask { return nil },
		},
		{
			desc: "Sasuke claims a timeout in classic mode",
			action: func(t *testing.T) {
				sendIntent(r, sasuke2, &protocol.TimeoutIntent{})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					sasuke2, &protocol.IntentRejectedEvent{Intent: protocol.TypeTimeout, Reason: "no-turn-clock"},
				)
			},
		},
		{
			desc: "Sasuke leaves",
			action: func(t *testing.T) {
				sendIntent(r, sasuke2, &protocol.LeaveIntent{})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				over := &protocol.GameOverEvent{
					Winner:  "naruto-id",
					Loser:   "sasuke-id",
					Reason:  battle.ReasonForfeit,
					Message: "sasuke left the game",
				}
				return MakeDataSendTasks(
					naruto, over,
					sasuke2, over,
				)
			},
		},
		{
			desc: "Naruto attacks after the game is over",
			action: func(t *testing.T) {
				sendIntent(r, naruto, &protocol.AttackIntent{Cell: battle.Cell{Row: 9, Col: 9}})
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					naruto, &protocol.AttackErrorEvent{Cell: battle.Cell{Row: 9, Col: 9}, Reason: "match-finished"},
				)
			},
		},
		{
			desc: "Naruto disconnects",
			action: func(t *testing.T) {
				naruto.On("CancelAndRelease").Return().Once()
				r.handleRemovePlayer(naruto)
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask {
				return MakeDataSendTasks(
					sasuke2, &protocol.PresenceEvent{PlayerID: "naruto-id"},
				)
			},
		},
		{
			desc: "Tick within retention keeps the room",
			action: func(t *testing.T) {
				r.handleTick(now.Add(time.Minute))
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask { return nil },
		},
		{
			desc: "Tick after retention releases the room once",
			setupLobbyExpectations: func() {
				l.On("RemoveRoom", "ROOM1").Return().Once()
			},
			action: func(t *testing.T) {
				r.handleTick(now.Add(DefaultFinishedRetention))
				r.handleTick(now.Add(2 * DefaultFinishedRetention))
			},
			expectedDataSendTasks: func(t *testing.T) []dataSendTask { return nil },
		},
	}

	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			if tC.setupLobbyExpectations != nil {
				tC.setupLobbyExpectations()
			}
			tC.action(t)
			AssertEqualDataSendTasks(t, tC.expectedDataSendTasks(t), r.dataSendTasks)
			r.dataSendTasks = nil
		})
	}

	l.AssertExpectations(t)
	recorder.AssertExpectations(t)
	naruto.AssertExpectations(t)
	sasuke.AssertExpectations(t)
	sasuke2.AssertExpectations(t)
}

func TestRoom_RankedGameRecordsResult(t *testing.T) {
	t.Parallel()
	naruto := newMockPlayer("naruto-id", "naruto")
	sasuke := newMockPlayer("sasuke-id", "sasuke")
	naruto.On("SetRoom", mock.Anything).Return()
	sasuke.On("SetRoom", mock.Anything).Return()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := start
	recorder := &MockRecorder{}
	recorder.On("SaveMatch", mock.Anything).Return()
	recorder.On("RecordResult", mock.MatchedBy(func(res domain.MatchResult) bool {
		return res.WinnerID == "naruto-id" && res.Mode == "ranked" && res.Reason == "all_ships_sunk" &&
			res.WinnerHits == 17 && res.LoserHits == 0 &&
			res.WinnerDelta != nil && *res.WinnerDelta == 25 &&
			res.LoserDelta != nil && *res.LoserDelta == -20 &&
			res.Duration == 17*time.Second
	})).Return().Once()

	r, err := NewRoom(naruto, battle.ModeRanked, RoomOptions{
		RankPolicy: battle.FlatRankPolicy(25, -20),
		Recorder:   recorder,
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	r.SetId("ROOM1")
	r.handleJoinRequest(roomJoinRequest{player: sasuke, errChan: make(chan error, 1)})
	sendIntent(r, naruto, &protocol.ReadyIntent{Ships: standardFleet()})
	sendIntent(r, sasuke, &protocol.ReadyIntent{Ships: standardFleet()})
	r.dataSendTasks = nil

	for _, c := range fleetCells() {
		now = now.Add(time.Second)
		sendIntent(r, naruto, &protocol.AttackIntent{Cell: c})
	}

	var over *protocol.GameOverEvent
	for _, task := range r.dataSendTasks {
		if e, ok := task.event.(*protocol.GameOverEvent); ok && task.to == naruto {
			over = e
		}
	}
	require.NotNil(t, over)
	assert.Equal(t, map[string]int{"naruto-id": 25, "sasuke-id": -20}, over.RPDelta)
	assert.Equal(t, battle.ReasonAllShipsSunk, over.Reason)

	// a second pass through afterTransition must not record the result again
	r.afterTransition()
	recorder.AssertExpectations(t)
}

func TestRoom_SpeedTurnExpiry(t *testing.T) {
	t.Parallel()
	naruto := newMockPlayer("naruto-id", "naruto")
	sasuke := newMockPlayer("sasuke-id", "sasuke")
	naruto.On("SetRoom", mock.Anything).Return()
	sasuke.On("SetRoom", mock.Anything).Return()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	timers := &fakeTimers{}
	r, err := NewRoom(naruto, battle.ModeSpeed, RoomOptions{
		TurnTimeLimit: 3 * time.Second,
		Timers:        timers,
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)
	r.SetId("ROOM1")
	r.handleJoinRequest(roomJoinRequest{player: sasuke, errChan: make(chan error, 1)})
	sendIntent(r, naruto, &protocol.ReadyIntent{Ships: standardFleet()})
	assert.Zero(t, timers.armed(), "no clock before the game starts")
	sendIntent(r, sasuke, &protocol.ReadyIntent{Ships: standardFleet()})
	r.dataSendTasks = nil

	first := timers.last()
	require.NotNil(t, first)
	assert.Equal(t, 3*time.Second, first.d)

	// naruto hits one second in, which restarts the clock
	now = now.Add(time.Second)
	sendIntent(r, naruto, &protocol.AttackIntent{Cell: battle.Cell{Row: 0, Col: 0}})
	assert.Equal(t, 1, timers.armed())
	second := timers.last()
	require.NotSame(t, first, second)
	r.dataSendTasks = nil

	t.Run("Stale expiry is dropped", func(t *testing.T) {
		first.f()
		r.handleTurnExpiry(<-r.expiries)
		assert.Empty(t, r.dataSendTasks)
		assert.Equal(t, "naruto-id", r.match.CurrentTurn())
	})

	t.Run("Early expiry is re-armed", func(t *testing.T) {
		now = now.Add(time.Second)
		second.f()
		r.handleTurnExpiry(<-r.expiries)
		assert.Empty(t, r.dataSendTasks)
		assert.Equal(t, 1, timers.armed())
		assert.Equal(t, 2*time.Second, timers.last().d)
	})

	t.Run("Expiry passes the turn", func(t *testing.T) {
		now = now.Add(2 * time.Second)
		timers.last().f()
		r.handleTurnExpiry(<-r.expiries)

		deadline := now.Add(3 * time.Second)
		change := &protocol.TurnChangeEvent{
			CurrentPlayer:  "sasuke-id",
			PreviousPlayer: "naruto-id",
			Reason:         protocol.TurnReasonTimeout,
			Deadline:       &deadline,
		}
		AssertEqualDataSendTasks(t, MakeDataSendTasks(naruto, change, sasuke, change), r.dataSendTasks)
		r.dataSendTasks = nil
	})

	t.Run("Attack after the deadline is refused", func(t *testing.T) {
		now = now.Add(4 * time.Second)
		sendIntent(r, sasuke, &protocol.AttackIntent{Cell: battle.Cell{Row: 0, Col: 0}})
		AssertEqualDataSendTasks(t, MakeDataSendTasks(
			sasuke, &protocol.AttackErrorEvent{Cell: battle.Cell{Row: 0, Col: 0}, Reason: "turn-expired"},
		), r.dataSendTasks)
		r.dataSendTasks = nil
	})

	t.Run("Holder claims the timeout first", func(t *testing.T) {
		sendIntent(r, naruto, &protocol.TimeoutIntent{})
		AssertEqualDataSendTasks(t, MakeDataSendTasks(
			naruto, &protocol.IntentRejectedEvent{Intent: protocol.TypeTimeout, Reason: "not-your-turn"},
		), r.dataSendTasks)
		r.dataSendTasks = nil

		sendIntent(r, sasuke, &protocol.TimeoutIntent{})
		deadline := now.Add(3 * time.Second)
		change := &protocol.TurnChangeEvent{
			CurrentPlayer:  "naruto-id",
			PreviousPlayer: "sasuke-id",
			Reason:         protocol.TurnReasonTimeout,
			Deadline:       &deadline,
		}
		AssertEqualDataSendTasks(t, MakeDataSendTasks(naruto, change, sasuke, change), r.dataSendTasks)
		r.dataSendTasks = nil
	})

	t.Run("Finishing stops the clock", func(t *testing.T) {
		sendIntent(r, sasuke, &protocol.LeaveIntent{})
		assert.Zero(t, timers.armed())
	})
}

func TestRoom_SlowPlayerIsDropped(t *testing.T) {
	t.Parallel()
	naruto := newMockPlayer("naruto-id", "naruto")
	sasuke := newMockPlayer("sasuke-id", "sasuke")
	naruto.On("SetRoom", mock.Anything).Return()
	sasuke.On("SetRoom", mock.Anything).Return()

	r, err := NewRoom(naruto, battle.ModeClassic, RoomOptions{})
	require.NoError(t, err)
	r.SetId("ROOM1")
	r.handleJoinRequest(roomJoinRequest{player: sasuke, errChan: make(chan error, 1)})

	naruto.On("Send", mock.Anything).Return(ErrSendBufferFull).Once()
	naruto.On("CancelAndRelease").Return().Once()
	sasuke.On("Send", mock.Anything).Return(nil)

	r.flush()

	assert.NotContains(t, r.players, "naruto-id")
	assert.Empty(t, r.dataSendTasks)
	presence, err := protocol.JSON.EncodeEvent(&protocol.PresenceEvent{PlayerID: "naruto-id"})
	require.NoError(t, err)
	sasuke.AssertCalled(t, "Send", presence)
	naruto.AssertExpectations(t)
}

func TestRestoreRoom(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cfg := battle.Config{Mode: battle.ModeSpeed, TurnTimeLimit: 3 * time.Second, Now: func() time.Time { return now }}

	m, err := battle.NewMatch("ROOM1", battle.Participant{ID: "naruto-id", Name: "naruto"}, cfg)
	require.NoError(t, err)
	require.NoError(t, m.Join(battle.Participant{ID: "sasuke-id", Name: "sasuke"}))
	_, err = m.SubmitFleet("naruto-id", standardFleet())
	require.NoError(t, err)
	_, err = m.SubmitFleet("sasuke-id", standardFleet())
	require.NoError(t, err)
	rec := m.Record()

	t.Run("Speed match resumes with its clock", func(t *testing.T) {
		t.Parallel()
		later := now.Add(time.Minute)
		timers := &fakeTimers{}
		recorder := &MockRecorder{}
		recorder.On("SaveMatch", mock.Anything).Return()

		r, err := RestoreRoom(rec, RoomOptions{Timers: timers, Recorder: recorder, Now: func() time.Time { return later }})
		require.NoError(t, err)
		assert.Equal(t, "ROOM1", r.Id())
		r.SetId("IGNORED")
		assert.Equal(t, "ROOM1", r.Id())

		r.afterTransition()
		require.NotNil(t, timers.last())
		assert.LessOrEqual(t, timers.last().d, time.Duration(0), "the stored deadline already passed")

		sasuke := newMockPlayer("sasuke-id", "sasuke")
		sasuke.On("SetRoom", r).Return().Once()
		errChan := make(chan error, 1)
		r.handleJoinRequest(roomJoinRequest{roomId: "ROOM1", player: sasuke, errChan: errChan})
		_, open := <-errChan
		assert.False(t, open)
		AssertEqualDataSendTasks(t, MakeDataSendTasks(sasuke, snapshotOf(t, r, sasuke)), r.dataSendTasks)

		itachi := newMockPlayer("itachi-id", "itachi")
		errChan = make(chan error, 1)
		r.handleJoinRequest(roomJoinRequest{roomId: "ROOM1", player: itachi, errChan: errChan})
		assert.ErrorIs(t, <-errChan, battle.ErrRoomFull)
		sasuke.AssertExpectations(t)
	})

	t.Run("Corrupt record yields an aborted room without result", func(t *testing.T) {
		t.Parallel()
		corrupt := m.Record()
		corrupt.Phase = "paused"
		recorder := &MockRecorder{}
		recorder.On("SaveMatch", mock.MatchedBy(func(rec battle.Record) bool {
			return rec.Phase == battle.PhaseFinished && rec.Result != nil && rec.Result.Reason == battle.ReasonAborted
		})).Return().Once()

		r, err := RestoreRoom(corrupt, RoomOptions{Recorder: recorder})
		require.NoError(t, err)
		r.afterTransition()
		recorder.AssertExpectations(t)
		recorder.AssertNotCalled(t, "RecordResult", mock.Anything)
	})

	t.Run("Record without identity", func(t *testing.T) {
		t.Parallel()
		_, err := RestoreRoom(battle.Record{}, RoomOptions{})
		assert.ErrorIs(t, err, battle.ErrCorruptRecord)
	})
}
