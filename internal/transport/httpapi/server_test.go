package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcascade.ai/internal/sim/catalogs"
	"voxelcascade.ai/internal/sim/grid"
	"voxelcascade.ai/internal/sim/host"
	"voxelcascade.ai/internal/sim/metrics"
	"voxelcascade.ai/internal/sim/region"
	"voxelcascade.ai/internal/sim/tuning"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

type fakeHost struct {
	regions map[string]*region.Region
}

func (f *fakeHost) Regions() []string {
	var out []string
	for id := range f.regions {
		out = append(out, id)
	}
	return out
}

func (f *fakeHost) Do(_ context.Context, id string, fn func(*region.Region) error) error {
	r, ok := f.regions[id]
	if !ok {
		return fmt.Errorf("%w: %s", host.ErrUnknownRegion, id)
	}
	return fn(r)
}

func newServer(t *testing.T) (*httptest.Server, *region.Region) {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	require.NoError(t, err)
	tu := tuning.Defaults()
	tu.World.Height = 16
	tu.World.BoundaryR = 64

	reg := prometheus.NewRegistry()
	mets := metrics.New()
	require.NoError(t, mets.Register(reg))

	r, err := region.New(region.Config{ID: "alpha", Tuning: tu}, &cats.Blocks,
		region.WithDrainReporter(mets.DrainReporter("alpha")))
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(&fakeHost{regions: map[string]*region.Region{"alpha": r}}, reg, nil))
	t.Cleanup(srv.Close)
	return srv, r
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestHandler_CircuitOverHTTP(t *testing.T) {
	srv, r := newServer(t)
	_, lamp, err := r.PlaceCircuit(grid.Pos{Y: 1}, 2)
	require.NoError(t, err)

	code, body := do(t, http.MethodPost, srv.URL+"/regions/alpha/blocks/0/1/0/toggle", "")
	require.Equal(t, http.StatusOK, code, body)
	var b Block
	require.NoError(t, json.Unmarshal([]byte(body), &b))
	assert.Equal(t, "SWITCH", b.Block)
	assert.Equal(t, uint8(1), b.Meta)

	code, body = do(t, http.MethodGet, fmt.Sprintf("%s/regions/alpha/blocks/%d/%d/%d", srv.URL, lamp.X, lamp.Y, lamp.Z), "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal([]byte(body), &b))
	assert.Equal(t, Block{Pos: lamp.Array(), Block: "LAMP", Meta: 1}, b)

	// Switching off leaves the lamp lit until its scheduled tick.
	code, _ = do(t, http.MethodPost, srv.URL+"/regions/alpha/blocks/0/1/0/toggle", "")
	require.Equal(t, http.StatusOK, code)
	code, body = do(t, http.MethodGet, srv.URL+"/regions/alpha/ticks", "")
	require.Equal(t, http.StatusOK, code)
	var pending []PendingTick
	require.NoError(t, json.Unmarshal([]byte(body), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "LAMP", pending[0].Type)
	assert.Equal(t, lamp.Array(), pending[0].Pos)

	code, body = do(t, http.MethodDelete, fmt.Sprintf("%s/regions/alpha/blocks/%d/%d/%d/ticks", srv.URL, lamp.X, lamp.Y, lamp.Z), "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"removed":1}`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/regions/alpha", "")
	require.Equal(t, http.StatusOK, code)
	var sum RegionSummary
	require.NoError(t, json.Unmarshal([]byte(body), &sum))
	assert.Equal(t, "alpha", sum.ID)
	assert.Equal(t, 0, sum.PendingTicks)
	assert.Positive(t, sum.Drains.Drains)

	code, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `voxelcascade_drains_total{region="alpha"}`)
}

func TestHandler_PutBlock(t *testing.T) {
	srv, r := newServer(t)

	code, body := do(t, http.MethodPut, srv.URL+"/regions/alpha/blocks/3/5/3", `{"block":"SAND"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.True(t, r.HasScheduledTick(grid.Pos{X: 3, Y: 5, Z: 3}, r.Catalog().MustType("SAND")))

	code, _ = do(t, http.MethodPut, srv.URL+"/regions/alpha/blocks/4/5/4", `{"block":"SAND","silent":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, r.HasScheduledTick(grid.Pos{X: 4, Y: 5, Z: 4}, r.Catalog().MustType("SAND")))

	code, _ = do(t, http.MethodPut, srv.URL+"/regions/alpha/blocks/3/5/3", `{"block":"UNOBTAINIUM"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = do(t, http.MethodPut, srv.URL+"/regions/alpha/blocks/3/5/3", `{`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodGet, srv.URL+"/regions/alpha/blocks/1000/5/3", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = do(t, http.MethodGet, srv.URL+"/regions/alpha/blocks/x/5/3", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodPost, srv.URL+"/regions/alpha/blocks/3/5/3/toggle", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestHandler_UnknownRegionAndHealth(t *testing.T) {
	srv, _ := newServer(t)

	code, _ := do(t, http.MethodGet, srv.URL+"/regions/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, body = do(t, http.MethodGet, srv.URL+"/regions", "")
	require.Equal(t, http.StatusOK, code)
	var list []RegionSummary
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "alpha", list[0].ID)
}
