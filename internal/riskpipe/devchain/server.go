package devchain

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Server exposes the chain over the same HTTP surface the connectors
// consume: /chain/head, /block/by-number/N, and a /ws pending feed.
type Server struct {
	chain    *Chain
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewServer(chain *Chain, log zerolog.Logger) *Server {
	return &Server{chain: chain, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chain/head", s.handleChainHead)
	mux.HandleFunc("/block/by-number/", s.handleBlockByNumber)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleChainHead(w http.ResponseWriter, r *http.Request) {
	head, ok := s.chain.Head()
	if !ok {
		writeJSON(w, 200, map[string]any{"empty": true})
		return
	}
	writeJSON(w, 200, map[string]any{
		"head_num":       head.Number,
		"head_hash":      head.Hash,
		"head_timestamp": head.Timestamp,
	})
}

func (s *Server) handleBlockByNumber(w http.ResponseWriter, r *http.Request) {
	nStr := strings.TrimPrefix(r.URL.Path, "/block/by-number/")
	n, err := strconv.ParseInt(nStr, 10, 64)
	if err != nil || n <= 0 {
		http.Error(w, "bad block number", http.StatusBadRequest)
		return
	}
	blk, ok := s.chain.Block(n)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, 200, blk)
}

type subscribeReq struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var sub subscribeReq
	if err := conn.ReadJSON(&sub); err != nil || sub.Op != "subscribe" {
		s.log.Warn().Err(err).Msg("ws: bad handshake")
		return
	}

	feed, cancel := s.chain.Subscribe()
	defer cancel()

	// drain control frames so pings and client close are noticed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case tx, ok := <-feed:
			if !ok {
				return
			}
			if err := conn.WriteJSON(tx); err != nil {
				return
			}
		}
	}
}
