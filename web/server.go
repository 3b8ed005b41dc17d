// Package web is the HTTP surface: a stats snapshot, block lookups served
// through a FIFO cache, and the prometheus endpoint. Persistence stays the
// source of truth; the cache only shortcuts repeated lookups of hot blocks.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/model"
	"github.com/supertypo/simply-kaspa-indexer/signal"
)

const blockCacheSize = 1000

// BlockResponse is the JSON shape of one indexed block.
type BlockResponse struct {
	Hash                 model.Hash    `json:"hash"`
	AcceptedIDMerkleRoot *model.Hash   `json:"acceptedIdMerkleRoot,omitempty"`
	MergeSetBluesHashes  []model.Hash  `json:"mergeSetBluesHashes,omitempty"`
	MergeSetRedsHashes   []model.Hash  `json:"mergeSetRedsHashes,omitempty"`
	SelectedParentHash   *model.Hash   `json:"selectedParentHash,omitempty"`
	Bits                 *int64        `json:"bits,omitempty"`
	BlueScore            *int64        `json:"blueScore,omitempty"`
	BlueWork             hexutil.Bytes `json:"blueWork,omitempty"`
	DaaScore             *int64        `json:"daaScore,omitempty"`
	HashMerkleRoot       *model.Hash   `json:"hashMerkleRoot,omitempty"`
	Nonce                hexutil.Bytes `json:"nonce,omitempty"`
	PruningPoint         *model.Hash   `json:"pruningPoint,omitempty"`
	Timestamp            *int64        `json:"timestamp,omitempty"`
	UtxoCommitment       *model.Hash   `json:"utxoCommitment,omitempty"`
	Version              *int16        `json:"version,omitempty"`
	TransactionCount     int64         `json:"transactionCount"`
}

// Server serves the HTTP API.
type Server struct {
	listen     string
	basePath   string
	sig        *signal.Handler
	met        *metrics.Metrics
	db         *database.Client
	blockCache *FifoCache[model.Hash, *BlockResponse]
}

// NewServer wires the HTTP surface.
func NewServer(listen, basePath string, sig *signal.Handler, met *metrics.Metrics, db *database.Client) *Server {
	return &Server{
		listen:     listen,
		basePath:   basePath,
		sig:        sig,
		met:        met,
		db:         db,
		blockCache: NewFifoCache[model.Hash, *BlockResponse](blockCacheSize),
	}
}

// Run serves until shutdown.
func (s *Server) Run(ctx context.Context) error {
	router := chi.NewRouter()
	base := s.basePath
	if base == "" {
		base = "/"
	}
	router.Route(base, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/blocks/{hash}", s.handleBlock)
		r.Get("/api/blocks/{hash}/chain", s.handleIsChainBlock)
		r.Handle("/metrics", promhttp.Handler())
	})
	server := &http.Server{Addr: s.listen, Handler: router}
	go func() {
		<-s.sig.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	log.Infof("Web server listening on %s", s.listen)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web server")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.met.Snapshot())
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	hash, err := model.ParseHash(strings.ToLower(chi.URLParam(r, "hash")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid block hash"})
		return
	}
	if cached, ok := s.blockCache.Get(hash); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}
	block, err := s.db.SelectBlock(r.Context(), hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "block not found"})
		} else {
			log.Errorf("Block lookup failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		}
		return
	}
	txCount, err := s.db.SelectTxCount(r.Context(), hash)
	if err != nil {
		log.Errorf("Tx count lookup failed: %v", err)
	}
	response := &BlockResponse{
		Hash:                 block.Hash,
		AcceptedIDMerkleRoot: block.AcceptedIDMerkleRoot,
		MergeSetBluesHashes:  block.MergeSetBluesHashes,
		MergeSetRedsHashes:   block.MergeSetRedsHashes,
		SelectedParentHash:   block.SelectedParentHash,
		Bits:                 block.Bits,
		BlueScore:            block.BlueScore,
		BlueWork:             block.BlueWork,
		DaaScore:             block.DaaScore,
		HashMerkleRoot:       block.HashMerkleRoot,
		Nonce:                block.Nonce,
		PruningPoint:         block.PruningPoint,
		Timestamp:            block.Timestamp,
		UtxoCommitment:       block.UtxoCommitment,
		Version:              block.Version,
		TransactionCount:     txCount,
	}
	s.blockCache.Insert(hash, response)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleIsChainBlock(w http.ResponseWriter, r *http.Request) {
	hash, err := model.ParseHash(strings.ToLower(chi.URLParam(r, "hash")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid block hash"})
		return
	}
	isChainBlock, err := s.db.SelectIsChainBlock(r.Context(), hash)
	if err != nil {
		log.Errorf("Chain block lookup failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"chainBlock": isChainBlock})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debugf("Writing response failed: %v", err)
	}
}
