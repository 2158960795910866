package node

import (
	"encoding/json"
	"errors"
	"net/http"

	"ringd/internal/ringerr"
	"ringd/internal/ringid"
	"ringd/internal/ringnode"
	"ringd/internal/rpc"
	"ringd/internal/store"
)

// mux builds the HTTP front-end serving every operation of the wire
// protocol at POST /rpc/<op>, plus a GET /snapshot introspection
// endpoint.
func (n *Node) mux() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/rpc/"+string(rpc.OpFindSuccessor), n.handleFindSuccessor)
	m.HandleFunc("/rpc/"+string(rpc.OpPredecessor), n.handlePredecessor)
	m.HandleFunc("/rpc/"+string(rpc.OpSuccessor), n.handleSuccessor)
	m.HandleFunc("/rpc/"+string(rpc.OpSuccessorCache), n.handleSuccessorCache)
	m.HandleFunc("/rpc/"+string(rpc.OpNotify), n.handleNotify)
	m.HandleFunc("/rpc/"+string(rpc.OpAddKey), n.handleAddKey)
	m.HandleFunc("/rpc/"+string(rpc.OpFindKey), n.handleFindKey)
	m.HandleFunc("/rpc/"+string(rpc.OpGetStoreVersion), n.handleGetStoreVersion)
	m.HandleFunc("/rpc/"+string(rpc.OpDeleteStore), n.handleDeleteStore)
	m.HandleFunc("/rpc/"+string(rpc.OpReplicateIn), n.handleReplicateIn)
	m.HandleFunc("/rpc/"+string(rpc.OpPort), n.handlePort)
	m.HandleFunc("/rpc/"+string(rpc.OpIsAlive), n.handleIsAlive)
	m.HandleFunc("/rpc/snapshot", n.handleSnapshot)
	m.HandleFunc("/snapshot", n.handleSnapshot)
	return m
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ringerr.ErrStoreNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ringerr.ErrVersionRegressed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (n *Node) handleFindSuccessor(w http.ResponseWriter, r *http.Request) {
	var args struct {
		ID    ringid.ID `json:"id"`
		HopIn int       `json:"hop_in"`
	}
	if err := decodeJSON(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	succ, hopOut, err := n.engine.FindSuccessor(r.Context(), args.ID, args.HopIn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Node   ringnode.Node `json:"node"`
		HopOut int           `json:"hop_out"`
	}{Node: succ, HopOut: hopOut})
}

func (n *Node) handlePredecessor(w http.ResponseWriter, r *http.Request) {
	pred, ok := n.state.Predecessor()
	writeJSON(w, http.StatusOK, struct {
		Node ringnode.Node `json:"node"`
		Set  bool          `json:"set"`
	}{Node: pred, Set: ok})
}

func (n *Node) handleSuccessor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Node ringnode.Node `json:"node"`
	}{Node: n.state.Successor(n.prober)})
}

func (n *Node) handleSuccessorCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Successors []ringnode.Node `json:"successors"`
	}{Successors: n.state.SuccessorCache()})
}

// handleNotify handles a peer believing itself to be our predecessor
// telling us so; we adopt it if we have none yet or it is closer than
// our current one.
func (n *Node) handleNotify(w http.ResponseWriter, r *http.Request) {
	var args struct {
		Node ringnode.Node `json:"node"`
	}
	if err := decodeJSON(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	self := n.Self()
	current, ok := n.state.Predecessor()
	if !ok || current == self || ringid.InOpenRange(args.Node.ID, current.ID, self.ID) {
		n.state.SetPredecessor(args.Node)
	}
	writeJSON(w, http.StatusOK, nil)
}

func (n *Node) handleAddKey(w http.ResponseWriter, r *http.Request) {
	var args struct {
		Owner ringid.ID `json:"owner"`
		Key   string    `json:"key"`
		Value []byte    `json:"value"`
	}
	if err := decodeJSON(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	entry := n.manager.AddKey(args.Owner, args.Key, args.Value)
	writeJSON(w, http.StatusOK, entry)
}

func (n *Node) handleFindKey(w http.ResponseWriter, r *http.Request) {
	var args struct {
		Owner ringid.ID `json:"owner"`
		Key   string    `json:"key"`
	}
	if err := decodeJSON(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	entry, err := n.manager.FindKey(args.Owner, args.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (n *Node) handleGetStoreVersion(w http.ResponseWriter, r *http.Request) {
	var args struct {
		Owner ringid.ID `json:"owner"`
	}
	if err := decodeJSON(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	version, err := n.manager.GetStoreVersion(args.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Version uint64 `json:"version"`
	}{Version: version})
}

func (n *Node) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	var args struct {
		Owner ringid.ID `json:"owner"`
	}
	if err := decodeJSON(r, &args); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	n.manager.DeleteStore(args.Owner)
	writeJSON(w, http.StatusOK, nil)
}

func (n *Node) handleReplicateIn(w http.ResponseWriter, r *http.Request) {
	var snap store.Snapshot
	if err := decodeJSON(r, &snap); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := n.manager.ReplicateIn(snap); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (n *Node) handlePort(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Port uint16 `json:"port"`
	}{Port: n.Self().Port})
}

func (n *Node) handleIsAlive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Alive bool `json:"alive"`
	}{Alive: true})
}

func (n *Node) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.Snapshot())
}
