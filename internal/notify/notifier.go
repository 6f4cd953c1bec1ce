// Package notify is the fire-and-forget bridge to the external
// patient-communications service. The scheduling core never blocks on
// delivery and never fails a booking because a notification did not send.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPNotifier posts transition events to the communications endpoint from a
// detached goroutine with its own timeout.
type HTTPNotifier struct {
	client   *http.Client
	endpoint string
	log      zerolog.Logger
}

func NewHTTPNotifier(endpoint string, log zerolog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: endpoint,
		log:      log,
	}
}

// Notify detaches from the request context: the caller must not wait on
// delivery and a finished request must not cancel it.
func (n *HTTPNotifier) Notify(_ context.Context, clinicID uuid.UUID, event string, appointmentID uuid.UUID) {
	if n.endpoint == "" {
		return
	}
	go n.send(clinicID, event, appointmentID)
}

func (n *HTTPNotifier) send(clinicID uuid.UUID, event string, appointmentID uuid.UUID) {
	body, err := json.Marshal(map[string]string{
		"clinic_id":      clinicID.String(),
		"event":          event,
		"appointment_id": appointmentID.String(),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		n.log.Error().Err(err).Msg("build notification request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn().Err(err).Str("event", event).Msg("notification delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn().
			Str("event", event).
			Str("status", fmt.Sprintf("%d", resp.StatusCode)).
			Msg("notification rejected")
	}
}

// LogNotifier records notifications instead of delivering them, for dev runs
// and tests.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, clinicID uuid.UUID, event string, appointmentID uuid.UUID) {
	n.log.Info().
		Str("clinic_id", clinicID.String()).
		Str("event", event).
		Str("appointment_id", appointmentID.String()).
		Msg("notification")
}
