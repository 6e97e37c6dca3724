// Command voter is a client for the election coordinator: it generates key
// material, builds registration proofs and encodes ballots locally, and only
// ever sends public values to the server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"openvote-backend/election"
	"openvote-backend/models"
	"openvote-backend/voter"
)

type paramsResponse struct {
	P          string   `json:"p"`
	G          string   `json:"g"`
	SlotWidth  uint     `json:"slot_width"`
	Candidates []string `json:"candidates"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Coordinator base URL")
	action := flag.String("action", "", "One of: keygen, register, vote, tally, status, results")
	voterID := flag.String("voter", "", "Voter identity (register, vote)")
	secretHex := flag.String("secret", "", "Voter secret as 0x-hex (register)")
	candidate := flag.Int("candidate", -1, "Candidate index to vote for (vote)")
	counts := flag.String("counts", "", "Comma-separated claimed counts (tally)")
	flag.Parse()

	log.SetFlags(0)

	var err error
	switch *action {
	case "keygen":
		err = runKeygen(*server)
	case "register":
		err = runRegister(*server, *voterID, *secretHex)
	case "vote":
		err = runVote(*server, *voterID, *candidate)
	case "tally":
		err = runTally(*server, *counts)
	case "status":
		err = printEndpoint(*server, "/api/status")
	case "results":
		err = printEndpoint(*server, "/api/results")
	default:
		flag.Usage()
		log.Fatalf("unknown action %q", *action)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runKeygen(server string) error {
	group, _, err := fetchParams(server)
	if err != nil {
		return err
	}

	keyPair, err := voter.GenerateKeyPair(group)
	if err != nil {
		return err
	}

	fmt.Printf("secret:     %s\n", models.EncodeBig(keyPair.Secret))
	fmt.Printf("public_key: %s\n", models.EncodeBig(keyPair.PublicKey))
	return nil
}

func runRegister(server, voterID, secretHex string) error {
	if voterID == "" || secretHex == "" {
		return fmt.Errorf("register requires -voter and -secret")
	}

	group, _, err := fetchParams(server)
	if err != nil {
		return err
	}

	secret, err := models.DecodeBig(secretHex)
	if err != nil {
		return err
	}
	keyPair := &voter.KeyPair{Secret: secret}

	proof, err := keyPair.RegistrationProof(voterID, group)
	if err != nil {
		return err
	}

	request := map[string]string{
		"voter_id":   voterID,
		"public_key": models.EncodeBig(proof.PublicKey),
		"commitment": models.EncodeBig(proof.Commitment),
		"response":   models.EncodeBig(proof.Response),
	}
	return postJSON(server+"/api/register", request)
}

func runVote(server, voterID string, candidate int) error {
	if voterID == "" || candidate < 0 {
		return fmt.Errorf("vote requires -voter and -candidate")
	}

	group, params, err := fetchParams(server)
	if err != nil {
		return err
	}
	if candidate >= len(params.Candidates) {
		return fmt.Errorf("candidate index %d out of range (%d candidates)", candidate, len(params.Candidates))
	}

	ballot, err := voter.EncodeBallot(candidate, params.SlotWidth, group)
	if err != nil {
		return err
	}

	log.Printf("voting for %q", params.Candidates[candidate])
	request := map[string]string{
		"voter_id": voterID,
		"ballot":   models.EncodeBig(ballot),
	}
	return postJSON(server+"/api/vote", request)
}

func runTally(server, counts string) error {
	if counts == "" {
		return fmt.Errorf("tally requires -counts")
	}

	parts := strings.Split(counts, ",")
	claimed := make([]uint64, len(parts))
	for i, part := range parts {
		count, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", part, err)
		}
		claimed[i] = count
	}

	return postJSON(server+"/api/tally", map[string][]uint64{"counts": claimed})
}

func fetchParams(server string) (election.Group, *paramsResponse, error) {
	resp, err := http.Get(server + "/api/params")
	if err != nil {
		return election.Group{}, nil, fmt.Errorf("failed to fetch parameters: %w", err)
	}
	defer resp.Body.Close()

	var params paramsResponse
	if err := json.NewDecoder(resp.Body).Decode(&params); err != nil {
		return election.Group{}, nil, fmt.Errorf("failed to parse parameters: %w", err)
	}

	p, err := models.DecodeBig(params.P)
	if err != nil {
		return election.Group{}, nil, err
	}
	g, err := models.DecodeBig(params.G)
	if err != nil {
		return election.Group{}, nil, err
	}

	return election.Group{P: p, G: g}, &params, nil
}

func postJSON(url string, request any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	response, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server rejected request (%s): %s", resp.Status, strings.TrimSpace(string(response)))
	}

	fmt.Println(strings.TrimSpace(string(response)))
	return nil
}

func printEndpoint(server, path string) error {
	resp, err := http.Get(server + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}
