package node

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ringd/internal/logging"
	"ringd/internal/ringcfg"
	"ringd/internal/ringid"
	"ringd/internal/ringnode"
	"ringd/internal/rpc"
)

func newTestNode(t *testing.T) *Node {
	cfg := ringcfg.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	n, err := New(cfg, logging.Nop())
	require.NoError(t, err)
	return n
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func Test_AddKey_FindKey_RoundTrip(t *testing.T) {
	n := newTestNode(t)
	srv := httptest.NewServer(n.mux())
	defer srv.Close()

	owner := n.Self().ID
	resp := postJSON(t, srv, "/rpc/"+string(rpc.OpAddKey), struct {
		Owner ringid.ID `json:"owner"`
		Key   string    `json:"key"`
		Value []byte    `json:"value"`
	}{Owner: owner, Key: "k", Value: []byte("v")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/rpc/"+string(rpc.OpFindKey), struct {
		Owner ringid.ID `json:"owner"`
		Key   string    `json:"key"`
	}{Owner: owner, Key: "k"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var entry struct {
		Value   []byte `json:"value"`
		Version uint64 `json:"version"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	require.Equal(t, []byte("v"), entry.Value)
	require.Equal(t, uint64(1), entry.Version)
}

func Test_FindKey_UnknownOwnerIs404(t *testing.T) {
	n := newTestNode(t)
	srv := httptest.NewServer(n.mux())
	defer srv.Close()

	resp := postJSON(t, srv, "/rpc/"+string(rpc.OpFindKey), struct {
		Owner ringid.ID `json:"owner"`
		Key   string    `json:"key"`
	}{Owner: ringid.ID(9999), Key: "k"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_HandleNotify_AdoptsFirstPredecessor(t *testing.T) {
	n := newTestNode(t)
	srv := httptest.NewServer(n.mux())
	defer srv.Close()

	other := ringnode.Node{ID: n.Self().ID - 1, Host: "127.0.0.1", Port: 9999}
	resp := postJSON(t, srv, "/rpc/"+string(rpc.OpNotify), struct {
		Node ringnode.Node `json:"node"`
	}{Node: other})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	pred, ok := n.state.Predecessor()
	require.True(t, ok)
	require.Equal(t, other, pred)
}

func Test_Snapshot_ReflectsRoutingState(t *testing.T) {
	n := newTestNode(t)
	snap := n.Snapshot()
	require.Equal(t, n.Self(), snap.Self)
	require.Nil(t, snap.Predecessor)
	require.Len(t, snap.Successors, n.cfg.SuccessorListSize)
}
