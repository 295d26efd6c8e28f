// Package processor orchestrates one farmer turn end to end: resolve
// the farmer, persist the inbound message, route it to an open record
// or a new one, merge and re-validate, persist, and reply.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akvo/logbook/internal/events"
	"github.com/akvo/logbook/internal/extractor"
	"github.com/akvo/logbook/internal/llm"
	"github.com/akvo/logbook/internal/merge"
	"github.com/akvo/logbook/internal/reply"
	"github.com/akvo/logbook/internal/schema"
	"github.com/akvo/logbook/internal/store"
	"github.com/akvo/logbook/internal/twilio"
	"github.com/akvo/logbook/internal/validation"
)

// Store is the persistence surface the processor needs.
type Store interface {
	GetOrCreateFarmer(ctx context.Context, externalID, name, phoneNumber string) (*store.Farmer, bool, error)
	InsertInboundMessage(ctx context.Context, farmerID uuid.UUID, providerSID, body, mediaURL string) (*store.Message, error)
	MarkMessageProcessed(ctx context.Context, id uuid.UUID) error
	GetOpenRecord(ctx context.Context, farmerID uuid.UUID) (*store.Record, error)
	CreateRecord(ctx context.Context, r *store.Record, inboundMessageID uuid.UUID) error
	UpdateRecord(ctx context.Context, r *store.Record, inboundMessageID uuid.UUID) error
}

// Extractor produces record candidates from a transcript.
type Extractor interface {
	Extract(ctx context.Context, in extractor.Input) ([]extractor.Candidate, error)
}

// Transcriber converts voice-note audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageHint string) (*llm.Transcription, error)
}

// Replier turns a reply payload into farmer-facing text.
type Replier interface {
	Generate(ctx context.Context, p reply.Payload) string
}

// Channel sends outbound messages and fetches inbound media.
type Channel interface {
	SendReply(ctx context.Context, to, body string) error
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, error)
}

// Publisher emits lifecycle events. May be nil.
type Publisher interface {
	Publish(subject string, data any) error
}

type Processor struct {
	store       Store
	extractor   Extractor
	transcriber Transcriber
	replier     Replier
	channel     Channel
	events      Publisher
	logger      *slog.Logger

	// Turns from the same farmer are serialized: the open-record lookup
	// is a read-then-write, and two concurrent turns must not both see
	// "no open record".
	mu          sync.Mutex
	farmerLocks map[string]*sync.Mutex
}

func New(s Store, ext Extractor, tr Transcriber, rep Replier, ch Channel, pub Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		store:       s,
		extractor:   ext,
		transcriber: tr,
		replier:     rep,
		channel:     ch,
		events:      pub,
		logger:      logger,
		farmerLocks: make(map[string]*sync.Mutex),
	}
}

func (p *Processor) farmerLock(externalID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.farmerLocks[externalID]
	if !ok {
		lock = &sync.Mutex{}
		p.farmerLocks[externalID] = lock
	}
	return lock
}

// HandleInbound processes one WhatsApp message. Upstream failures
// degrade to canned apologies; only persistence failures surface as
// errors, leaving the message unprocessed so the turn can be retried.
func (p *Processor) HandleInbound(ctx context.Context, in twilio.IncomingMessage) error {
	lock := p.farmerLock(in.From)
	lock.Lock()
	defer lock.Unlock()

	name := in.ProfileName
	if name == "" {
		name = in.From
	}

	farmer, created, err := p.store.GetOrCreateFarmer(ctx, in.From, name, in.From)
	if err != nil {
		return fmt.Errorf("resolve farmer: %w", err)
	}
	if created {
		p.logger.Info("new farmer", "external_id", farmer.ExternalID)
		p.publish(events.SubjectFarmerCreated, map[string]any{
			"farmer_id":   farmer.ID.String(),
			"external_id": farmer.ExternalID,
		})
	}

	msg, err := p.store.InsertInboundMessage(ctx, farmer.ID, in.MessageSID, in.Body, in.MediaURL)
	if err != nil {
		if err == store.ErrDuplicateMessage {
			p.logger.Info("duplicate message sid, skipping", "sid", in.MessageSID)
			return nil
		}
		return fmt.Errorf("store message: %w", err)
	}

	transcript, inputMode, apology := p.resolveTranscript(ctx, in)
	if apology != "" {
		return p.degrade(ctx, farmer, msg, apology)
	}
	if transcript == "" {
		p.logger.Warn("no content in message", "sid", in.MessageSID)
		return nil
	}

	// Router: an open record makes this turn a continuation.
	pending, err := p.store.GetOpenRecord(ctx, farmer.ID)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("lookup open record: %w", err)
	}

	extractIn := extractor.Input{
		Transcript:  transcript,
		FarmerID:    farmer.ExternalID,
		FarmerName:  farmer.Name,
		InputMode:   inputMode,
		CurrentDate: time.Now().UTC(),
	}
	if pending != nil {
		extractIn.Existing = &extractor.OpenRecordContext{
			RecordType:    pending.RecordType,
			Data:          pending.Data,
			MissingFields: pending.MissingFields,
			OccurredAt:    isoDate(pending.OccurredAt),
		}
		p.logger.Info("continuing open record", "record_id", pending.ID, "missing", pending.MissingFields)
	}

	candidates, err := p.extractor.Extract(ctx, extractIn)
	if err != nil {
		p.logger.Error("extraction failed", "sid", in.MessageSID, "error", err)
		return p.degrade(ctx, farmer, msg, reply.ApologyNoRecords)
	}
	if len(candidates) == 0 {
		return p.degrade(ctx, farmer, msg, reply.ApologyNoRecords)
	}
	if len(candidates) > 1 {
		// One record per turn: extras are dropped, not persisted.
		p.logger.Info("discarding extra candidates", "count", len(candidates)-1)
	}

	var rec *store.Record
	if pending != nil {
		rec, err = p.updateRecord(ctx, pending, candidates[0], transcript, msg.ID)
	} else {
		rec, err = p.createRecord(ctx, farmer, msg, candidates[0], inputMode, transcript)
	}
	if err != nil {
		return err
	}

	p.emitRecordEvents(farmer, rec, pending != nil)
	p.sendReply(ctx, farmer, rec)
	return nil
}

// resolveTranscript returns the turn's text, downloading and
// transcribing a voice note when needed. A non-empty apology means the
// turn must degrade.
func (p *Processor) resolveTranscript(ctx context.Context, in twilio.IncomingMessage) (transcript, inputMode, apology string) {
	if in.IsVoice() && in.MediaURL != "" {
		audio, err := p.channel.DownloadMedia(ctx, in.MediaURL)
		if err != nil {
			p.logger.Error("media download failed", "sid", in.MessageSID, "error", err)
			return "", schema.InputModeVoice, reply.ApologyDownload
		}
		tr, err := p.transcriber.Transcribe(ctx, audio, "")
		if err != nil {
			p.logger.Error("transcription failed", "sid", in.MessageSID, "error", err)
			return "", schema.InputModeVoice, reply.ApologyTranscription
		}
		return tr.Text, schema.InputModeVoice, ""
	}
	return in.Body, schema.InputModeText, ""
}

// degrade marks the message processed so it is not re-extracted, then
// sends the canned apology. No record is touched.
func (p *Processor) degrade(ctx context.Context, farmer *store.Farmer, msg *store.Message, apology string) error {
	if err := p.store.MarkMessageProcessed(ctx, msg.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if err := p.channel.SendReply(ctx, farmer.ExternalID, apology); err != nil {
		p.logger.Error("failed to send apology", "error", err)
	}
	return nil
}

func (p *Processor) createRecord(ctx context.Context, farmer *store.Farmer, msg *store.Message, c extractor.Candidate, inputMode, transcript string) (*store.Record, error) {
	recordType := c.Type()
	occurredAt := parseDate(c.OccurredAt)

	data := c.Data
	if data == nil {
		data = map[string]any{}
	}

	needsFollowup, missing := validation.Evaluate(recordType, isoDate(occurredAt), data)

	channel := c.Source.Channel
	if channel == "" {
		channel = "whatsapp"
	}

	rec := &store.Record{
		ID:              uuid.New(),
		FarmerID:        farmer.ID,
		MessageID:       &msg.ID,
		RecordType:      recordType,
		OccurredAt:      occurredAt,
		Data:            data,
		SourceChannel:   channel,
		SourceInputMode: inputMode,
		SourceLanguage:  schema.ParseLanguage(c.Source.Language),
		Confidence:      c.Quality.Confidence,
		MissingFields:   unionFields(missing, c.Quality.MissingFields),
		NeedsFollowup:   needsFollowup,
		Confirmed:       !needsFollowup,
		QualityNotes:    c.Quality.Notes,
		RawTranscript:   transcript,
	}

	if err := p.store.CreateRecord(ctx, rec, msg.ID); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	p.logger.Info("record created",
		"record_id", rec.ID,
		"record_type", rec.RecordType,
		"confirmed", rec.Confirmed,
		"missing", rec.MissingFields,
	)
	return rec, nil
}

func (p *Processor) updateRecord(ctx context.Context, rec *store.Record, c extractor.Candidate, transcript string, inboundID uuid.UUID) (*store.Record, error) {
	if parsed := parseDate(c.OccurredAt); parsed != nil {
		rec.OccurredAt = parsed
	}

	rec.Data = merge.Data(rec.Data, c.Data)
	rec.Confidence = merge.Confidence(rec.Confidence, c.Quality.Confidence)
	rec.QualityNotes = merge.Notes(rec.QualityNotes, c.Quality.Notes)
	rec.RawTranscript = merge.Transcript(rec.RawTranscript, transcript)

	// Re-validate against the merged state; the evaluator alone decides
	// whether the record is done.
	needsFollowup, missing := validation.Evaluate(rec.RecordType, isoDate(rec.OccurredAt), rec.Data)
	rec.MissingFields = missing
	if rec.MissingFields == nil {
		rec.MissingFields = []string{}
	}
	rec.NeedsFollowup = needsFollowup
	rec.Confirmed = !needsFollowup

	if err := p.store.UpdateRecord(ctx, rec, inboundID); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	p.logger.Info("record updated",
		"record_id", rec.ID,
		"record_type", rec.RecordType,
		"confirmed", rec.Confirmed,
		"missing", rec.MissingFields,
	)
	return rec, nil
}

func (p *Processor) sendReply(ctx context.Context, farmer *store.Farmer, rec *store.Record) {
	language := rec.SourceLanguage
	if language == "" {
		language = schema.LanguageEnglish
	}

	// Fold occurred_at into the data handed to the generator.
	data := make(map[string]any, len(rec.Data)+1)
	for k, v := range rec.Data {
		data[k] = v
	}
	if rec.OccurredAt != nil {
		data["occurred_at"] = isoDate(rec.OccurredAt)
	}

	text := p.replier.Generate(ctx, reply.Payload{
		RecordType:    rec.RecordType,
		Data:          data,
		MissingFields: rec.MissingFields,
		FarmerName:    farmer.Name,
		Language:      language,
		Confirmed:     rec.Confirmed,
	})

	if err := p.channel.SendReply(ctx, farmer.ExternalID, text); err != nil {
		p.logger.Error("failed to send reply", "farmer", farmer.ExternalID, "error", err)
	}
}

func (p *Processor) emitRecordEvents(farmer *store.Farmer, rec *store.Record, updated bool) {
	payload := map[string]any{
		"record_id":   rec.ID.String(),
		"farmer_id":   farmer.ID.String(),
		"record_type": string(rec.RecordType),
		"confirmed":   rec.Confirmed,
	}

	subject := events.SubjectRecordCreated
	if updated {
		subject = events.SubjectRecordUpdated
	}
	p.publish(subject, payload)

	if rec.Confirmed {
		p.publish(events.SubjectRecordConfirmed, payload)
	} else {
		followup := map[string]any{
			"record_id":      rec.ID.String(),
			"farmer_id":      farmer.ID.String(),
			"missing_fields": rec.MissingFields,
		}
		p.publish(events.SubjectFollowupRequested, followup)
	}
}

func (p *Processor) publish(subject string, data any) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(subject, data); err != nil {
		p.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

// unionFields keeps the evaluator's ordered verdict and appends any
// extra fields the model flagged that the evaluator did not.
func unionFields(validated, reported []string) []string {
	out := make([]string, 0, len(validated)+len(reported))
	seen := make(map[string]bool, len(validated))
	for _, f := range validated {
		out = append(out, f)
		seen[f] = true
	}
	for _, f := range reported {
		if !seen[f] {
			out = append(out, f)
			seen[f] = true
		}
	}
	return out
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func isoDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
