package session

import (
	"lecture-interpreter/internal/models"
	"lecture-interpreter/internal/service/transcript"
	"lecture-interpreter/internal/service/translate"
)

// presenter turns assembler and scheduler output into sink events stamped
// with the current session. It runs on the session loop.
type presenter struct {
	s *Session
}

func (p *presenter) RenderPartial(id uint64, committed, pending string) {
	p.s.sink.RenderPartial(models.TranscriptPartial{
		EventType:  models.EventTranscriptPartial,
		SessionID:  p.s.id,
		Timestamp:  p.s.now(),
		SentenceID: id,
		Committed:  committed,
		Pending:    pending,
		Text:       transcript.Buffer{Committed: committed, Pending: pending}.Text(),
	})
}

func (p *presenter) RenderFinal(rec transcript.Record) {
	p.s.sink.RenderFinal(models.TranscriptFinal{
		EventType:  models.EventTranscriptFinal,
		SessionID:  p.s.id,
		Timestamp:  p.s.now(),
		SentenceID: rec.ID,
		Text:       rec.Text,
		CreatedAt:  rec.CreatedAt.UnixMilli(),
	})
}

func (p *presenter) RenderTranslation(sentenceID uint64, ch translate.Channel, text string, enhanced, degraded bool) {
	p.s.sink.RenderTranslation(models.Translation{
		EventType:  models.EventTranslation,
		SessionID:  p.s.id,
		Timestamp:  p.s.now(),
		SentenceID: sentenceID,
		Channel:    ch.String(),
		Text:       text,
		Enhanced:   enhanced,
		Degraded:   degraded,
	})
}
