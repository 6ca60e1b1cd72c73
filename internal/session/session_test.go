package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/onion-topology/internal/classification"
	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
	"github.com/Veraticus/onion-topology/internal/model"
	"github.com/Veraticus/onion-topology/internal/onion"
	"github.com/Veraticus/onion-topology/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func officeLog() *testutil.LogBuilder {
	b := testutil.NewLogBuilder()
	for u := 0; u < 6; u++ {
		user := fmt.Sprintf("emp-%d", u)
		start := time.Duration(u) * 3 * time.Minute
		b.Walk(start, 5*time.Minute, user, "MAIN", "HALL", "LAB")
		b.Walk(start+24*time.Hour, 5*time.Minute, user, "MAIN", "HALL", "OFFICE")
	}
	return b
}

func request(b *testutil.LogBuilder) Request {
	return Request{Table: b.Table(), Mapping: testutil.StandardMapping()}
}

type recordingObserver struct {
	started  []Stage
	finished []Stage
	statuses []Status
	mu       sync.Mutex
}

func (r *recordingObserver) StageStarted(s Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, s)
}

func (r *recordingObserver) StageFinished(s Stage, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, s)
}

func (r *recordingObserver) RunFinished(s Status, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func TestRun_MainScenario(t *testing.T) {
	obs := &recordingObserver{}
	ctx, _, err := Run(request(officeLog()), classification.NewCache(nil), config.DefaultProcessing(), obs)
	require.NoError(t, err)
	require.NotNil(t, ctx)

	main, ok := ctx.Door("MAIN")
	require.True(t, ok)
	assert.Equal(t, 0, main.OnionLayer)
	assert.True(t, main.IsEntranceExit)
	assert.Equal(t, "HALL", main.MostCommonNext)

	hall, _ := ctx.Door("HALL")
	assert.Equal(t, 1, hall.OnionLayer)
	assert.Equal(t, []string{"MAIN"}, ctx.ConfirmedEntrances)

	assert.Equal(t, 36, ctx.OriginalRowCount)
	assert.Equal(t, 36, ctx.CleanedRowCount)
	assert.Equal(t, StatusCompleted, ctx.Status)
	assert.Equal(t, 6, ctx.Stats.UniqueUsers)
	assert.Equal(t, 4, ctx.Stats.UniqueDevices)

	assert.Equal(t, Stages, obs.started)
	assert.Equal(t, Stages, obs.finished)
	assert.Equal(t, []Status{StatusCompleted}, obs.statuses)
}

func TestRun_Idempotent(t *testing.T) {
	req := request(officeLog())
	cache := classification.NewCache(nil)

	first, _, err := Run(req, cache, config.DefaultProcessing(), nil)
	require.NoError(t, err)
	second, _, err := Run(req, cache, config.DefaultProcessing(), nil)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	ea, _ := json.Marshal(first.Elements())
	eb, _ := json.Marshal(second.Elements())
	assert.Equal(t, string(ea), string(eb))
	assert.Equal(t, first.ID, second.ID)
}

func TestRun_SessionIDFollowsContent(t *testing.T) {
	a := Request{Raw: []byte("a,b\n1,2\n")}
	b := Request{Raw: []byte("a,b\n1,3\n")}
	assert.Equal(t, ID(a), ID(a))
	assert.NotEqual(t, ID(a), ID(b))
}

func TestRun_SchemaErrorReturnsNoContext(t *testing.T) {
	req := request(officeLog())
	delete(req.Mapping, testutil.ColDoor)
	obs := &recordingObserver{}

	ctx, _, err := Run(req, classification.NewCache(nil), config.DefaultProcessing(), obs)

	assert.Nil(t, ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrSchema))
	assert.Equal(t, []Status{StatusFailed}, obs.statuses)
}

func TestRun_EmptyData(t *testing.T) {
	b := testutil.NewLogBuilder().Raw("garbage", "alice", "MAIN", "ACCESS GRANTED")

	ctx, _, err := Run(request(b), classification.NewCache(nil), config.DefaultProcessing(), nil)

	var empty *common.EmptyDataError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, 1, empty.OriginalRows)
	assert.False(t, common.IsFatal(err))

	require.NotNil(t, ctx)
	assert.Equal(t, StatusEmpty, ctx.Status)
	assert.Equal(t, 1, ctx.Stats.NonAccessEvents)
	assert.False(t, ctx.Stats.HasData())
	assert.True(t, ctx.Graph.NoData)
	assert.Empty(t, ctx.Doors)

	var kinds []model.AnomalyKind
	for _, f := range ctx.Flags {
		kinds = append(kinds, f.Kind)
	}
	assert.Contains(t, kinds, model.AnomalyNoData)
}

func TestRun_ManualClassificationPersistsUnderFingerprint(t *testing.T) {
	req := request(officeLog())
	req.ManualEnabled = true
	req.Classifications = model.ClassificationRecord{
		"LAB":   {SecurityLevel: model.SecurityRed},
		"GHOST": {SecurityLevel: model.SecurityGreen},
	}

	ctx, cache, err := Run(req, classification.NewCache(nil), config.DefaultProcessing(), nil)
	require.NoError(t, err)

	lab, _ := ctx.Door("LAB")
	assert.Equal(t, model.SecurityRed, lab.SecurityLevel)
	assert.True(t, lab.IsCritical)

	var mismatch bool
	for _, f := range ctx.Flags {
		if f.Kind == model.AnomalyClassificationMismatch && f.DoorID == "GHOST" {
			mismatch = true
		}
	}
	assert.True(t, mismatch)

	saved, ok := cache.Lookup(req.Table.Fingerprint())
	require.True(t, ok)
	assert.Equal(t, req.Classifications, saved)

	other := model.Fingerprint([]string{"When", "Who", "Where", "What"})
	_, ok = cache.Lookup(other)
	assert.False(t, ok)
}

func TestRun_ToggleOffFallsBackWithoutDeleting(t *testing.T) {
	req := request(officeLog())
	req.ManualEnabled = true
	req.Classifications = model.ClassificationRecord{
		"MAIN": {IsEntranceExit: model.Bool(false)},
		"HALL": {IsEntranceExit: model.Bool(true), SecurityLevel: model.SecurityYellow},
	}
	_, cache, err := Run(req, classification.NewCache(nil), config.DefaultProcessing(), nil)
	require.NoError(t, err)

	off := request(officeLog())
	ctx, cache, err := Run(off, cache, config.DefaultProcessing(), nil)
	require.NoError(t, err)

	for _, d := range ctx.Doors {
		assert.Equal(t, model.SecurityUnclassified, d.SecurityLevel, d.DoorID)
		assert.Equal(t, model.DefaultFloor, d.Floor, d.DoorID)
	}
	main, _ := ctx.Door("MAIN")
	assert.True(t, main.IsEntranceExit)
	assert.Equal(t, 0, main.OnionLayer)

	on := request(officeLog())
	on.ManualEnabled = true
	ctx, _, err = Run(on, cache, config.DefaultProcessing(), nil)
	require.NoError(t, err)

	hall, _ := ctx.Door("HALL")
	assert.Equal(t, model.SecurityYellow, hall.SecurityLevel, "the saved record is used again once re-enabled")
	assert.Equal(t, []string{"HALL"}, ctx.ConfirmedEntrances)
	assert.Equal(t, 0, hall.OnionLayer)
}

func TestManager_NoCrossSessionLeakage(t *testing.T) {
	m := NewManager(config.DefaultProcessing(), classification.NewCache(nil))

	good, err := m.Generate(request(officeLog()))
	require.NoError(t, err)
	require.True(t, good.Stats.HasData())
	assert.Same(t, good, m.Current())

	garbage := testutil.NewLogBuilder().Raw("not a time", "x", "y", "z")
	ctx, err := m.Generate(request(garbage))
	require.Error(t, err)
	require.NotNil(t, ctx)
	assert.Zero(t, ctx.Stats.CleanedEvents)
	assert.Zero(t, ctx.Stats.UniqueUsers)
	assert.Empty(t, ctx.Stats.TopDevices)
	assert.Empty(t, ctx.Doors)

	broken := request(officeLog())
	broken.Mapping = model.ColumnMapping{}
	ctx, err = m.Generate(broken)
	require.Error(t, err)
	assert.Nil(t, ctx)
	assert.Nil(t, m.Current(), "a failed run leaves no session behind")

	assert.True(t, good.Stats.HasData(), "earlier contexts are never modified")
}

func TestManager_RejectsOverlappingRuns(t *testing.T) {
	m := NewManager(config.DefaultProcessing(), classification.NewCache(nil))

	require.True(t, m.runMu.TryLock())
	_, err := m.Generate(request(officeLog()))
	m.runMu.Unlock()

	assert.ErrorIs(t, err, common.ErrSessionBusy)

	_, err = m.Generate(request(officeLog()))
	assert.NoError(t, err)
}

func TestManager_KeepsCacheAcrossRuns(t *testing.T) {
	m := NewManager(config.DefaultProcessing(), classification.NewCache(nil))

	req := request(officeLog())
	req.ManualEnabled = true
	req.Classifications = model.ClassificationRecord{"LAB": {SecurityLevel: model.SecurityRed}}
	_, err := m.Generate(req)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Cache().Len())

	again := request(officeLog())
	again.ManualEnabled = true
	ctx, err := m.Generate(again)
	require.NoError(t, err)
	lab, _ := ctx.Door("LAB")
	assert.Equal(t, model.SecurityRed, lab.SecurityLevel)
}

func TestElements(t *testing.T) {
	ctx, _, err := Run(request(officeLog()), classification.NewCache(nil), config.DefaultProcessing(), nil)
	require.NoError(t, err)

	el := ctx.Elements()
	require.Len(t, el.Nodes, 4)
	assert.Equal(t, "MAIN", el.Nodes[0].ID)
	assert.Equal(t, 0, el.Nodes[0].Layer)
	assert.True(t, el.Nodes[0].IsEntranceExit)

	var transitions, mostCommon int
	for _, e := range el.Edges {
		switch e.Kind {
		case onion.EdgeTransition:
			transitions++
		case onion.EdgeMostCommonNext:
			mostCommon++
			assert.Positive(t, e.Weight)
		}
	}
	assert.Equal(t, 3, transitions)
	assert.Equal(t, 2, mostCommon)
}

func TestCombine(t *testing.T) {
	assert.Equal(t, NopObserver{}, Combine())
	assert.Equal(t, NopObserver{}, Combine(nil))

	r := &recordingObserver{}
	assert.Same(t, r, Combine(nil, r))

	r2 := &recordingObserver{}
	both := Combine(r, r2)
	both.StageStarted(StageGraph)
	assert.Equal(t, []Stage{StageGraph}, r.started)
	assert.Equal(t, []Stage{StageGraph}, r2.started)
}
