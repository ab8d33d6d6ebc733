// audioclient streams a WAV file to a running session over the gRPC
// ingress. The server must use the google engine and the session must be
// listening.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	grpcapi "lecture-interpreter/internal/api/grpc"
)

const expectedSampleRate = 16000

func main() {
	audioFile := flag.String("audio", "testdata/lecture-16khz.wav", "Path to WAV file (16-bit PCM mono)")
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	frame := flag.Duration("frame", 100*time.Millisecond, "Audio per frame, sent in real time")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *audioFile).Msg("Failed to open audio file")
	}
	defer f.Close()

	r := bufio.NewReader(f)
	format, dataSize, err := readWAVHeader(r)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read WAV header")
	}
	log.Info().
		Uint16("format", format.AudioFormat).
		Uint16("channels", format.Channels).
		Uint32("sampleRate", format.SampleRate).
		Uint16("bitsPerSample", format.BitsPerSample).
		Int64("dataBytes", dataSize).
		Msg("WAV file")

	if format.AudioFormat != pcmFormat {
		log.Fatal().Uint16("format", format.AudioFormat).Msg("Only PCM audio is supported")
	}
	if format.SampleRate != expectedSampleRate {
		log.Warn().Uint32("sampleRate", format.SampleRate).Msg("Sample rate differs from the recognizer's 16 kHz")
	}

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	stream, err := grpcapi.OpenStream(ctx, conn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ingress stream")
	}

	sent, err := sendPaced(ctx, stream.Send, io.LimitReader(r, dataSize), format, *frame)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to stream audio")
	}
	log.Info().Int64("bytes", sent).Msg("Finished streaming")

	if err := stream.CloseAndRecv(); err != nil {
		log.Fatal().Err(err).Msg("Failed to receive ack")
	}
}

// sendPaced sends r as audio frames of the given duration, one per tick, so
// the server sees audio at the rate it was recorded.
func sendPaced(ctx context.Context, send func(*structpb.Struct) error, r io.Reader, format wavFormat, frame time.Duration) (int64, error) {
	if frame <= 0 {
		frame = 100 * time.Millisecond
	}
	size := int(int64(format.bytesPerSecond()) * int64(frame) / int64(time.Second))
	// Keep frames on sample boundaries.
	if align := int(format.Channels) * int(format.BitsPerSample) / 8; align > 1 {
		size -= size % align
	}
	if size <= 0 {
		size = 3200
	}

	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	buf := make([]byte, size)
	var sent int64
	for n := 1; ; n++ {
		read, err := io.ReadFull(r, buf)
		if read > 0 {
			if err := send(grpcapi.AudioFrame(buf[:read])); err != nil {
				return sent, err
			}
			sent += int64(read)
			if n%50 == 0 {
				log.Debug().Int("frames", n).Int64("bytes", sent).Msg("Streaming")
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
}
