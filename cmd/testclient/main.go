package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "lecture-interpreter/internal/api/grpc"
	"lecture-interpreter/internal/service/recognition/mock"
)

// testclient starts a session over HTTP, then replays a scripted lecture
// through the gRPC ingress as if it were a capture client.
func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	httpAddr := flag.String("http", "http://localhost:8080", "HTTP base URL")
	topic := flag.String("topic", "Thermodynamics", "Lecture topic")
	mode := flag.String("mode", "economy", "Translation mode (economy, full_power)")
	token := flag.String("token", "", "Bearer token, if the server requires auth")
	pace := flag.Duration("pace", 300*time.Millisecond, "Delay between recognition events")
	end := flag.Bool("end", true, "End the session after the script")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// The capture stream must be attached before the session starts its
	// recognizer.
	stream, err := grpcapi.OpenStream(ctx, conn)
	if err != nil {
		log.Fatalf("failed to create stream: %v", err)
	}
	log.Printf("Connected to %s", *serverAddr)

	if err := post(ctx, *httpAddr+"/v1/session/start", *token, map[string]string{"topic": *topic, "mode": *mode}); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	log.Printf("Session started: topic=%s mode=%s", *topic, *mode)

	send := func(typ, text string) {
		if err := stream.Send(grpcapi.EventFrame(typ, text, "")); err != nil {
			log.Fatalf("failed to send %s: %v", typ, err)
		}
		time.Sleep(*pace)
	}

	for _, u := range mock.DefaultUtterances {
		for _, p := range u.Partials {
			send("partial", p)
		}
		log.Printf("Sending final: %q", u.Final)
		send("final", u.Final)
	}

	if *end {
		if err := post(ctx, *httpAddr+"/v1/session/end", *token, nil); err != nil {
			log.Printf("failed to end session: %v", err)
		}
	}

	if err := stream.CloseAndRecv(); err != nil {
		log.Fatalf("failed to receive ack: %v", err)
	}
	log.Println("Script replayed")
}

func post(ctx context.Context, url, token string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s", resp.Status, e["error"])
	}
	return nil
}
