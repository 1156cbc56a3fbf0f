// LKT-LNS Integration Receiver Example
//
// This is a minimal example of how to receive and verify uplink events
// from the bridge's HTTP integrations.
//
// Usage:
//   export LNS_INTEGRATION_SECRET="the secret returned when creating the integration"
//   go run main.go
//
// Then point your integration endpoint at https://your-server/events.

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"
)

// UplinkEvent is the payload posted for each bridged uplink frame.
type UplinkEvent struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func main() {
	secret := os.Getenv("LNS_INTEGRATION_SECRET")
	if secret == "" {
		log.Fatal("LNS_INTEGRATION_SECRET environment variable is required")
	}

	// Deliveries are signed with the SHA256 of the plaintext secret.
	keyBytes := sha256.Sum256([]byte(secret))
	signingKey := hex.EncodeToString(keyBytes[:])

	http.HandleFunc("/events", eventHandler(signingKey))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting integration receiver on :9000")
	log.Println("Endpoint: http://localhost:9000/events")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func eventHandler(signingKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Printf("Error reading body: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		signature := r.Header.Get("X-LNS-Signature")
		timestamp := r.Header.Get("X-LNS-Timestamp")
		if signature == "" || timestamp == "" {
			log.Println("Missing signature headers")
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}

		if !verifySignature(signingKey, signature, timestamp, body) {
			log.Println("Invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		var event UplinkEvent
		if err := json.Unmarshal(body, &event); err != nil {
			log.Printf("Error parsing JSON: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		log.Printf("✓ Received %s event %s", event.EventType, event.EventID)
		log.Printf("  Delivery: %s", r.Header.Get("X-LNS-Delivery-Id"))
		log.Printf("  DevAddr:  %v", event.Data["dev_addr"])
		log.Printf("  FCnt:     %v", event.Data["f_cnt"])

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	}
}

// verifySignature checks the HMAC-SHA256 delivery signature.
// Signed payload: {timestamp}.{body}
func verifySignature(signingKey, signature, timestamp string, body []byte) bool {
	// Reject stale timestamps (±5 min tolerance)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if math.Abs(float64(time.Now().Unix()-ts)) > 300 {
		log.Println("Signature timestamp too old or in future")
		return false
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, body)
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
