// lecture-tail consumes the interpreter's Kafka topics and prints the
// lecture as it is transcribed, translated and summarized.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"lecture-interpreter/internal/models"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topics := flag.String("topics", "lecture.transcript,lecture.translation,lecture.notes", "Topics to consume (comma-separated)")
	since := flag.Duration("since", time.Hour, "Replay messages newer than this")
	partials := flag.Bool("partials", false, "Also print in-progress sentences")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lines := make(chan string, 100)
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range strings.Split(*topics, ",") {
		topic := strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		g.Go(func() error {
			consume(gctx, strings.Split(*brokers, ","), topic, *since, *partials, lines)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(lines)
	}()

	for line := range lines {
		fmt.Println(line)
	}
}

// consume reads partition 0 of topic without a consumer group.
func consume(ctx context.Context, brokers []string, topic string, since time.Duration, partials bool, out chan<- string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from the committed offset")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		line, ok, err := render(msg.Value, partials)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping undecodable message")
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return
		}
	}
}

// render formats one event for the terminal. It reports false for events
// that are not printed.
func render(value []byte, partials bool) (string, bool, error) {
	var envelope struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return "", false, err
	}

	switch envelope.EventType {
	case models.EventTranscriptPartial:
		if !partials {
			return "", false, nil
		}
		var ev models.TranscriptPartial
		if err := json.Unmarshal(value, &ev); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("  #%d ... %s", ev.SentenceID, ev.Text), true, nil

	case models.EventTranscriptFinal:
		var ev models.TranscriptFinal
		if err := json.Unmarshal(value, &ev); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("  #%d EN %s", ev.SentenceID, ev.Text), true, nil

	case models.EventTranslation:
		var ev models.Translation
		if err := json.Unmarshal(value, &ev); err != nil {
			return "", false, err
		}
		tag := "ZH"
		if ev.Enhanced {
			tag = "ZH*"
		}
		return fmt.Sprintf("  #%d %s %s", ev.SentenceID, tag, ev.Text), true, nil

	case models.EventSessionStatus:
		var ev models.SessionStatus
		if err := json.Unmarshal(value, &ev); err != nil {
			return "", false, err
		}
		line := fmt.Sprintf("[%s] %s", strings.ToUpper(ev.Status), ev.Topic)
		if ev.Message != "" {
			line += ": " + ev.Message
		}
		return line, true, nil

	case models.EventInactivityWarning:
		var ev models.InactivityWarning
		if err := json.Unmarshal(value, &ev); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("[WARNING] no speech, ending in %ds", ev.RemainingMs/1000), true, nil

	case models.EventNote:
		var ev models.Note
		if err := json.Unmarshal(value, &ev); err != nil {
			return "", false, err
		}
		if ev.Title != "" {
			return fmt.Sprintf("== %s ==\n%s", ev.Title, ev.Body), true, nil
		}
		return "-- " + ev.Body, true, nil

	default:
		return "", false, nil
	}
}
