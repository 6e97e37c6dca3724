package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"openvote-backend/board"
	"openvote-backend/election"
	"openvote-backend/models"
	"openvote-backend/roster"
	"openvote-backend/schnorr"
	"openvote-backend/service"
	"openvote-backend/storage"
)

type Config struct {
	ElectionFile string
	StorageDir   string
	Window       time.Duration
	QueueSize    int
	Port         int
}

// ElectionFile is the operator-supplied election definition.
type ElectionFile struct {
	Candidates    []string `json:"candidates"`
	Voters        []string `json:"voters"`
	RosterFile    string   `json:"roster_file"`
	P             string   `json:"p"`
	G             string   `json:"g"`
	GroupBits     int      `json:"group_bits"`
	SlotWidth     uint     `json:"slot_width"`
	StrictBallots bool     `json:"strict_ballots"`
}

type RegisterRequest struct {
	VoterID    string `json:"voter_id"`
	PublicKey  string `json:"public_key"`
	Commitment string `json:"commitment"`
	Response   string `json:"response"`
}

type CastBallotRequest struct {
	VoterID string `json:"voter_id"`
	Ballot  string `json:"ballot"`
}

type CastBallotResponse struct {
	ReceiptID string `json:"receipt_id"`
}

type TallyRequest struct {
	Counts []uint64 `json:"counts"`
}

type CandidateVotesResponse struct {
	Candidate string `json:"candidate"`
	Votes     uint64 `json:"votes"`
}

type BoardEntryResponse struct {
	Index     uint64 `json:"index"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
	Data      string `json:"data"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
}

type BoardResponse struct {
	Log        string               `json:"log"`
	EntryCount int                  `json:"entry_count"`
	IsValid    bool                 `json:"is_valid"`
	LastHash   string               `json:"last_hash"`
	Entries    []BoardEntryResponse `json:"entries"`
}

type Server struct {
	coordinator *service.CoordinatorService
	queue       *service.QueueProcessor
}

func main() {
	config := parseFlags()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	coordinator, err := initializeCoordinator(config)
	if err != nil {
		log.Fatalf("Failed to initialize coordinator: %v", err)
	}

	queue := service.NewQueueProcessor(coordinator, config.QueueSize)
	queue.Start()

	server := &Server{coordinator: coordinator, queue: queue}

	http.HandleFunc("/api/register", server.handleRegister)
	http.HandleFunc("/api/vote", server.handleCastBallot)
	http.HandleFunc("/api/tally", server.handleTally)
	http.HandleFunc("/api/params", server.handleGetParams)
	http.HandleFunc("/api/status", server.handleGetStatus)
	http.HandleFunc("/api/results", server.handleGetResults)
	http.HandleFunc("/api/results/candidate", server.handleGetCandidateVotes)
	http.HandleFunc("/api/metrics", server.handleGetMetrics)
	http.HandleFunc("/api/close-window", server.handleCloseWindow)
	http.HandleFunc("/api/board/registrations", server.handleGetBoard("registrations"))
	http.HandleFunc("/api/board/ballots", server.handleGetBoard("ballots"))
	http.HandleFunc("/api/board/tally", server.handleGetBoard("tally"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	serverChan := make(chan error, 1)
	go func() {
		log.Printf("Starting coordinator on port %d...", config.Port)
		serverChan <- http.ListenAndServe(fmt.Sprintf(":%d", config.Port), nil)
	}()

	select {
	case err := <-serverChan:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		queue.Stop()
		log.Println("Coordinator shutdown completed")
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	proof, err := decodeProofRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := <-s.queue.QueueRegistration(req.VoterID, proof)
	if result.Err != nil {
		http.Error(w, result.Err.Error(), service.StatusForError(result.Err))
		return
	}

	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleCastBallot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CastBallotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ballot, err := models.DecodeBig(req.Ballot)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := <-s.queue.QueueBallot(req.VoterID, ballot)
	if result.Err != nil {
		http.Error(w, result.Err.Error(), service.StatusForError(result.Err))
		return
	}

	writeJSON(w, CastBallotResponse{ReceiptID: result.ReceiptID})
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TallyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result := <-s.queue.QueueTally(req.Counts)
	if result.Err != nil {
		http.Error(w, result.Err.Error(), service.StatusForError(result.Err))
		return
	}

	writeJSON(w, result.Tally)
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.coordinator.Params())
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.coordinator.Status())
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	results, err := s.coordinator.Results()
	if err != nil {
		http.Error(w, err.Error(), service.StatusForError(err))
		return
	}
	writeJSON(w, results)
}

func (s *Server) handleGetCandidateVotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Missing candidate name", http.StatusBadRequest)
		return
	}

	votes, err := s.coordinator.CandidateVotes(name)
	if err != nil {
		http.Error(w, err.Error(), service.StatusForError(err))
		return
	}
	writeJSON(w, CandidateVotesResponse{Candidate: name, Votes: votes})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.coordinator.Metrics())
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.coordinator.CloseWindow()
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleGetBoard(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var entries []*board.Entry
		switch name {
		case "registrations":
			entries = s.coordinator.RegistrationEntries()
		case "ballots":
			entries = s.coordinator.BallotEntries()
		case "tally":
			entries = s.coordinator.TallyEntries()
		}

		response := BoardResponse{
			Log:        name,
			EntryCount: len(entries),
			IsValid:    board.Validate(entries) == nil,
			Entries:    make([]BoardEntryResponse, len(entries)),
		}
		if len(entries) > 0 {
			response.LastHash = hex.EncodeToString(entries[len(entries)-1].Hash)
		}
		for i, entry := range entries {
			response.Entries[i] = BoardEntryResponse{
				Index:     entry.Index,
				Timestamp: entry.Timestamp,
				Kind:      string(entry.Kind),
				Data:      string(entry.Data),
				PrevHash:  hex.EncodeToString(entry.PrevHash),
				Hash:      hex.EncodeToString(entry.Hash),
			}
		}

		writeJSON(w, response)
	}
}

func decodeProofRequest(req RegisterRequest) (schnorr.Proof, error) {
	publicKey, err := models.DecodeBig(req.PublicKey)
	if err != nil {
		return schnorr.Proof{}, err
	}
	commitment, err := models.DecodeBig(req.Commitment)
	if err != nil {
		return schnorr.Proof{}, err
	}
	response, err := models.DecodeBig(req.Response)
	if err != nil {
		return schnorr.Proof{}, err
	}
	return schnorr.Proof{PublicKey: publicKey, Commitment: commitment, Response: response}, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.ElectionFile, "election", "election.json", "Path to the election definition file")
	flag.StringVar(&config.StorageDir, "storage", "data", "Directory for board persistence (empty disables persistence)")
	flag.DurationVar(&config.Window, "window", 0, "Submission window duration (0 = no deadline)")
	flag.IntVar(&config.QueueSize, "queue", 64, "Submission queue size")
	flag.IntVar(&config.Port, "port", 8080, "Server port")

	flag.Parse()
	return config
}

func initializeCoordinator(config *Config) (*service.CoordinatorService, error) {
	data, err := os.ReadFile(config.ElectionFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read election file: %w", err)
	}

	var def ElectionFile
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse election file: %w", err)
	}

	voterRoster, err := loadRoster(def)
	if err != nil {
		return nil, err
	}

	group, err := loadGroup(def)
	if err != nil {
		return nil, err
	}

	var store *storage.JSONStore
	if config.StorageDir != "" {
		store, err = storage.NewJSONStore(config.StorageDir)
		if err != nil {
			return nil, err
		}
	}

	return service.NewCoordinatorService(service.Config{
		Candidates:    def.Candidates,
		Roster:        voterRoster,
		Group:         group,
		SlotWidth:     def.SlotWidth,
		StrictBallots: def.StrictBallots,
		Window:        config.Window,
		Store:         store,
	})
}

func loadRoster(def ElectionFile) (roster.Roster, error) {
	if def.RosterFile != "" {
		return roster.LoadFile(def.RosterFile)
	}
	return roster.NewStatic(def.Voters)
}

func loadGroup(def ElectionFile) (election.Group, error) {
	if def.P != "" && def.G != "" {
		p, err := models.DecodeBig(def.P)
		if err != nil {
			return election.Group{}, err
		}
		g, err := models.DecodeBig(def.G)
		if err != nil {
			return election.Group{}, err
		}
		return election.Group{P: p, G: g}, nil
	}
	if def.P != "" || def.G != "" {
		return election.Group{}, errors.New("election file must set both p and g, or neither")
	}

	bits := def.GroupBits
	if bits == 0 {
		bits = 1024
	}
	log.Printf("Generating a %d-bit safe prime group, this can take a while...", bits)
	return election.GenerateGroup(bits)
}
