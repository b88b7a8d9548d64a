// Local target servers for exercising rampline against real endpoints.
//
//	go run ./scripts/testservers -mode http -port 8080
//	go run ./scripts/testservers -mode websocket -port 8081
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	mode := flag.String("mode", "", "Server mode: http, websocket")
	port := flag.Int("port", 0, "Listening port")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	switch *mode {
	case "http":
		log.Fatal(runHTTPServer(*port))
	case "websocket":
		log.Fatal(runWebSocketServer(*port))
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func runHTTPServer(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "invalid_request"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"access_token": "local-test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(50+rand.Intn(200)) * time.Millisecond)
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if rand.Intn(10) == 0 {
			respondJSON(w, http.StatusInternalServerError, map[string]any{"status": "error"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "echo": body})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "path": r.URL.Path})
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("test HTTP server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func runWebSocketServer(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	})

	addr := fmt.Sprintf(":%d", port)
	log.Printf("test WebSocket server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
