// Command mock-engine is a stand-in whisper server for local development.
// It accepts the multipart upload captiond sends and replies with a canned
// Japanese transcription so the full pipeline can run without a model.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"
)

type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcriptionResponse struct {
	Text     string    `json:"text"`
	Segments []segment `json:"segments"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
}

var cannedLines = []string{
	"血圧は142の86です",
	"スポ2 95%で安定しています",
	"主訴は頭痛と発熱です",
}

var lineIndex int

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("request_id=%s language=%s beam_size=%s best_of=%s temperature=%s sample_rate=%s file=%s size=%d",
		r.FormValue("request_id"),
		r.FormValue("language"),
		r.FormValue("beam_size"),
		r.FormValue("best_of"),
		r.FormValue("temperature"),
		r.FormValue("sample_rate"),
		header.Filename,
		len(audioData),
	)

	// Simulate inference latency
	time.Sleep(200 * time.Millisecond)

	text := cannedLines[lineIndex%len(cannedLines)]
	lineIndex++

	response := transcriptionResponse{
		Text:     text,
		Segments: []segment{{Start: 0, End: 2.0, Text: text}},
		Language: "ja",
		Duration: 2.0,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("responded: %q", text)
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)

	log.Printf("Mock transcription engine listening on %s", *addr)
	log.Printf("Point captiond at: http://localhost%s/transcribe", *addr)

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
