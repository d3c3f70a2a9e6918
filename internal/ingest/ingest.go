// Package ingest stages raw research payloads in the queue and turns
// claimed items into structured facts, entities, and relationships.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"deepresearch/internal/errs"
	"deepresearch/internal/extract"
	"deepresearch/internal/logging"
	"deepresearch/internal/store"
	"deepresearch/internal/types"
)

// Processor moves payloads through the ingest queue.
type Processor struct {
	store *store.Store
}

// NewProcessor builds a processor over st.
func NewProcessor(st *store.Store) *Processor {
	return &Processor{store: st}
}

// StageResult describes one staged payload.
type StageResult struct {
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	ContentType    string `json:"content_type"`
	StoredLength   int    `json:"stored_length"`
	OriginalLength int    `json:"original_length"`
}

// ItemOutcome reports one processed queue item.
type ItemOutcome struct {
	ID       int64  `json:"id"`
	Source   string `json:"source,omitempty"`
	Facts    int    `json:"facts"`
	Entities int    `json:"entities"`
	Error    string `json:"error,omitempty"`
}

// ProcessResult reports one processing round over the queue.
type ProcessResult struct {
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Facts     int           `json:"facts"`
	Entities  int           `json:"entities"`
	Remaining int           `json:"remaining"`
	Items     []ItemOutcome `json:"items"`
}

// Stage queues one payload as pending. HTML payloads, declared or sniffed,
// are reduced to plain text before staging; original_length keeps the
// pre-normalization size.
func (p *Processor) Stage(sessionID, source, contentType, payload string) (*StageResult, error) {
	const op = "ingest.Stage"
	if payload == "" {
		return nil, errs.Validation(op, "payload is required")
	}
	if _, err := p.store.GetSession(sessionID); err != nil {
		return nil, err
	}

	content := payload
	if contentType == "text/html" || (contentType == "" && looksLikeHTML(payload)) {
		contentType = "text/html"
		content = normalizeHTML(payload)
	}

	item := &types.IngestedItem{
		SessionID:      sessionID,
		Source:         source,
		ContentType:    contentType,
		Content:        content,
		OriginalLength: len(payload),
	}
	id, err := p.store.StageIngest(item)
	if err != nil {
		return nil, err
	}

	logging.Ingest().Debugf("staged item %d for session %s (%d bytes, %s)",
		id, sessionID, len(content), item.ContentType)
	return &StageResult{
		ID:             id,
		Status:         string(types.IngestPending),
		ContentType:    item.ContentType,
		StoredLength:   len(content),
		OriginalLength: len(payload),
	}, nil
}

// Process claims up to limit pending items and runs fact and entity
// extraction over each, persisting what it finds. Every claimed item
// finishes as completed or failed; cancellation fails the not-yet-started
// remainder instead of leaving it claimed.
func (p *Processor) Process(ctx context.Context, sessionID string, limit int) (*ProcessResult, error) {
	sess, err := p.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	items, err := p.store.ClaimPending(sessionID, limit)
	if err != nil {
		return nil, err
	}

	res := &ProcessResult{Items: []ItemOutcome{}}
	for _, item := range items {
		outcome := ItemOutcome{ID: item.ID, Source: item.Source}
		if ctx.Err() != nil {
			outcome.Error = "processing cancelled"
		} else {
			outcome = p.processOne(sessionID, item)
		}
		if err := p.store.CompleteIngest(item.ID, outcome.Error); err != nil {
			return nil, err
		}
		if outcome.Error == "" {
			res.Processed++
			res.Facts += outcome.Facts
			res.Entities += outcome.Entities
		} else {
			res.Failed++
		}
		res.Items = append(res.Items, outcome)
	}

	remaining, err := p.store.PendingCount(sessionID)
	if err != nil {
		return nil, err
	}
	res.Remaining = remaining

	if len(items) > 0 {
		logging.Ingest().Infof("processed %d/%d queue items for session %s (%d facts, %d entities, %d pending)",
			res.Processed, len(items), sessionID, res.Facts, res.Entities, res.Remaining)
		message := fmt.Sprintf("ingested %d items: %d facts, %d entities", res.Processed, res.Facts, res.Entities)
		if err := p.store.LogActivity(sessionID, sess.CurrentPhase, string(types.EventInfo), message, "ingest", ""); err != nil {
			logging.Ingest().Warnf("logging ingest activity failed: %v", err)
		}
	}
	return res, nil
}

func (p *Processor) processOne(sessionID string, item types.IngestedItem) ItemOutcome {
	outcome := ItemOutcome{ID: item.ID, Source: item.Source}

	extracted, err := extract.Run(item.Content, extract.Options{
		Mode:             extract.ModeAll,
		SourceURL:        item.Source,
		ExtractRelations: true,
	})
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	for i := range extracted.Facts {
		extracted.Facts[i].FactID = uuid.New().String()
		extracted.Facts[i].SessionID = sessionID
	}
	for i := range extracted.Entities {
		extracted.Entities[i].EntityID = uuid.New().String()
		extracted.Entities[i].SessionID = sessionID
	}
	for i := range extracted.Edges {
		extracted.Edges[i].RelationshipID = uuid.New().String()
		extracted.Edges[i].SessionID = sessionID
	}

	if outcome.Facts, err = p.store.InsertFacts(extracted.Facts); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if outcome.Entities, err = p.store.InsertEntities(extracted.Entities); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if _, err = p.store.InsertRelationships(extracted.Edges); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	return outcome
}

// looksLikeHTML sniffs the opening of an undeclared payload.
func looksLikeHTML(payload string) bool {
	head := payload
	if len(head) > 512 {
		head = head[:512]
	}
	head = strings.ToLower(head)
	return strings.Contains(head, "<!doctype html") ||
		strings.Contains(head, "<html") ||
		strings.Contains(head, "<body")
}

// normalizeHTML reduces markup to whitespace-collapsed text. Script and
// style subtrees contribute nothing.
func normalizeHTML(payload string) string {
	tok := html.NewTokenizer(strings.NewReader(payload))
	var b strings.Builder
	skip := 0
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if name, _ := tok.TagName(); isSkipped(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := tok.TagName(); isSkipped(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tok.Text())
				b.WriteByte('\n')
			}
		}
	}
}

func isSkipped(tag []byte) bool {
	t := string(tag)
	return t == "script" || t == "style"
}
