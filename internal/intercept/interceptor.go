// Package intercept turns user submissions into either an immediate upstream
// delivery or a durable queue record. Per submission the flow is a small
// state machine: Attempt (online) -> Delivered, or Attempt/offline -> Queue.
// Only transport-level failures qualify for queueing; an application error
// from a reachable portal is a real failure and is surfaced as such.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/civitasgis/ageo-edge/internal/metrics"
	"github.com/civitasgis/ageo-edge/internal/notify"
	"github.com/civitasgis/ageo-edge/internal/store"
	"github.com/civitasgis/ageo-edge/internal/types"
	"github.com/civitasgis/ageo-edge/internal/upstream"
)

// ErrQueueDisabled is returned when the durable store is unavailable and a
// submission cannot be captured. The caller must tell the user the data was
// NOT saved.
var ErrQueueDisabled = errors.New("offline queue disabled: store unavailable")

// maxAttachmentMemory bounds in-memory buffering of a body or body part.
const maxAttachmentMemory = 32 << 20

// Connectivity is the read side of the connectivity monitor.
type Connectivity interface {
	Online() bool
}

// Submission is a normalized user action ready to be attempted or queued.
type Submission struct {
	URL         string
	Method      string
	Kind        types.RecordKind
	Fields      []types.Field
	Attachments []types.Attachment
}

// Result describes what happened to a submission.
type Result struct {
	Queued   bool
	RecordID string
}

// Interceptor routes submissions between the upstream client and the durable
// queue. A nil store means the store failed to open; the interceptor then
// degrades to direct-network-only behavior.
type Interceptor struct {
	store    store.QueueStore
	client   upstream.Submitter
	monitor  Connectivity
	notifier notify.Notifier
}

// New creates an interceptor. store may be nil (degraded mode).
func New(qs store.QueueStore, client upstream.Submitter, monitor Connectivity, notifier notify.Notifier) *Interceptor {
	return &Interceptor{
		store:    qs,
		client:   client,
		monitor:  monitor,
		notifier: notifier,
	}
}

// QueueEnabled reports whether offline capture is available.
func (i *Interceptor) QueueEnabled() bool {
	return i.store != nil
}

// Submit runs the attempt/queue state machine for one submission.
//
// Online: attempt direct delivery. Success means nothing is queued. An
// application error is returned untouched. A transport failure falls
// through to queueing. Offline: no network attempt is made at all.
func (i *Interceptor) Submit(ctx context.Context, sub Submission) (*Result, error) {
	rec := &types.QueueRecord{
		URL:    sub.URL,
		Method: sub.Method,
		Kind:   sub.Kind,
		Fields: sub.Fields,
	}

	if i.monitor.Online() {
		err := i.client.Submit(ctx, rec, sub.Attachments)
		if err == nil {
			return &Result{Queued: false}, nil
		}
		if upstream.IsAppError(err) {
			return nil, err
		}
		slog.Warn("direct delivery failed, queueing",
			"component", "intercept",
			"url", sub.URL,
			"error", err,
		)
	}

	return i.queue(ctx, rec, sub.Attachments)
}

func (i *Interceptor) queue(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) (*Result, error) {
	if i.store == nil {
		i.notifier.Publish(notify.StorageError(ErrQueueDisabled))
		return nil, ErrQueueDisabled
	}

	id, err := i.store.Put(ctx, rec, atts)
	if err != nil {
		i.notifier.Publish(notify.StorageError(err))
		return nil, fmt.Errorf("queue submission: %w", err)
	}

	metrics.QueuedTotal.Inc()
	i.notifier.Publish(notify.Queued(id))

	slog.Info("submission queued",
		"component", "intercept",
		"record_id", id,
		"url", rec.URL,
		"kind", string(rec.Kind),
	)

	return &Result{Queued: true, RecordID: id}, nil
}

// FromRequest normalizes an inbound portal request into a Submission.
// Multipart bodies with file parts become request-with-attachments records,
// multipart bodies without files become form records, and urlencoded bodies
// become citizen-data records. Fields keep the order the browser sent them
// in, so a later replay presents the same body the user submitted. The
// anti-forgery token is stripped; the upstream client injects a fresh one at
// replay time.
func FromRequest(r *http.Request) (Submission, error) {
	sub := Submission{
		URL:    r.URL.Path,
		Method: r.Method,
	}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return sub, fmt.Errorf("parse content type: %w", err)
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := params["boundary"]
		if boundary == "" {
			return sub, errors.New("multipart body without boundary")
		}
		if err := readParts(&sub, multipart.NewReader(r.Body, boundary)); err != nil {
			return sub, err
		}
		if len(sub.Attachments) > 0 {
			sub.Kind = types.KindRequestWithAttachments
		} else {
			sub.Kind = types.KindForm
		}

	case mediaType == "application/x-www-form-urlencoded":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxAttachmentMemory))
		if err != nil {
			return sub, fmt.Errorf("read form body: %w", err)
		}
		fields, err := parseOrderedForm(string(body))
		if err != nil {
			return sub, fmt.Errorf("parse form: %w", err)
		}
		sub.Fields = fields
		sub.Kind = types.KindCitizenData

	default:
		return sub, fmt.Errorf("unsupported content type %q", mediaType)
	}

	return sub, nil
}

// parseOrderedForm decodes an urlencoded body pair by pair. url.ParseQuery
// would collapse the body into a map and lose field order, so the body is
// scanned in sequence instead.
func parseOrderedForm(body string) ([]types.Field, error) {
	var fields []types.Field
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return nil, fmt.Errorf("decode field name %q: %w", rawName, err)
		}
		if name == "csrfmiddlewaretoken" {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decode field %s: %w", name, err)
		}
		fields = append(fields, types.Field{Name: name, Value: value})
	}
	return fields, nil
}

// readParts walks a multipart body in wire order. ParseMultipartForm would
// collapse value parts into a map; reading parts sequentially keeps fields
// in submission order while splitting file parts into attachments.
func readParts(sub *Submission, mr *multipart.Reader) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read multipart part: %w", err)
		}
		name := part.FormName()
		if name == "" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, maxAttachmentMemory))
		part.Close()
		if err != nil {
			return fmt.Errorf("read part %s: %w", name, err)
		}
		if filename := part.FileName(); filename != "" {
			sub.Attachments = append(sub.Attachments, types.Attachment{
				Field:       name,
				Filename:    filename,
				ContentType: part.Header.Get("Content-Type"),
				Data:        data,
			})
			continue
		}
		if name == "csrfmiddlewaretoken" {
			continue
		}
		sub.Fields = append(sub.Fields, types.Field{Name: name, Value: string(data)})
	}
}
