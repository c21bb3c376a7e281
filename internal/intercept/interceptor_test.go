package intercept

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/civitasgis/ageo-edge/internal/notify"
	"github.com/civitasgis/ageo-edge/internal/store"
	"github.com/civitasgis/ageo-edge/internal/types"
	"github.com/civitasgis/ageo-edge/internal/upstream"
)

// fakeConnectivity reports a fixed state.
type fakeConnectivity bool

func (f fakeConnectivity) Online() bool { return bool(f) }

// fakeSubmitter records Submit calls and returns a scripted error.
type fakeSubmitter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSubmitter) Submit(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeSubmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeQueueStore keeps records in memory.
type fakeQueueStore struct {
	store.QueueStore
	mu      sync.Mutex
	records []types.QueueRecord
	putErr  error
}

func (f *fakeQueueStore) Put(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	rec.ID = "01FAKE"
	f.records = append(f.records, *rec)
	return rec.ID, nil
}

func (f *fakeQueueStore) Records() []types.QueueRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.QueueRecord, len(f.records))
	copy(out, f.records)
	return out
}

// captureNotifier records published events.
type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Publish(ev notify.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *captureNotifier) ByType(t notify.EventType) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func formSubmission() Submission {
	return Submission{
		URL:    "/ageo/intData/",
		Method: "POST",
		Kind:   types.KindForm,
		Fields: []types.Field{{Name: "name", Value: "Ana"}},
	}
}

func TestSubmit_OfflineQueuesWithoutNetworkAttempt(t *testing.T) {
	// Given: the device is offline
	client := &fakeSubmitter{}
	qs := &fakeQueueStore{}
	n := &captureNotifier{}
	ic := New(qs, client, fakeConnectivity(false), n)

	// When: a form is submitted
	res, err := ic.Submit(context.Background(), formSubmission())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Then: the record is queued and no network request was attempted
	if !res.Queued || res.RecordID == "" {
		t.Errorf("result = %+v, want queued with id", res)
	}
	if client.Calls() != 0 {
		t.Errorf("network attempts during offline capture = %d, want 0", client.Calls())
	}
	if got := qs.Records(); len(got) != 1 || got[0].Kind != types.KindForm {
		t.Errorf("stored records = %+v", got)
	}
	if len(n.ByType(notify.EventQueued)) != 1 {
		t.Error("missing queued notification")
	}
}

func TestSubmit_OnlineSuccessQueuesNothing(t *testing.T) {
	client := &fakeSubmitter{}
	qs := &fakeQueueStore{}
	ic := New(qs, client, fakeConnectivity(true), &captureNotifier{})

	res, err := ic.Submit(context.Background(), formSubmission())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Queued {
		t.Error("successful direct delivery must not queue")
	}
	if client.Calls() != 1 {
		t.Errorf("network attempts = %d, want 1", client.Calls())
	}
	if len(qs.Records()) != 0 {
		t.Errorf("records queued on success: %+v", qs.Records())
	}
}

func TestSubmit_TransportFailureQueues(t *testing.T) {
	client := &fakeSubmitter{err: errors.New("connection refused")}
	qs := &fakeQueueStore{}
	ic := New(qs, client, fakeConnectivity(true), &captureNotifier{})

	res, err := ic.Submit(context.Background(), formSubmission())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !res.Queued {
		t.Error("transport failure must fall through to queueing")
	}
	if len(qs.Records()) != 1 {
		t.Errorf("records = %+v, want 1", qs.Records())
	}
}

func TestSubmit_ApplicationErrorIsNeverQueued(t *testing.T) {
	client := &fakeSubmitter{err: &upstream.AppError{StatusCode: http.StatusUnprocessableEntity}}
	qs := &fakeQueueStore{}
	ic := New(qs, client, fakeConnectivity(true), &captureNotifier{})

	_, err := ic.Submit(context.Background(), formSubmission())
	if !upstream.IsAppError(err) {
		t.Fatalf("err = %v, want application error", err)
	}
	if len(qs.Records()) != 0 {
		t.Errorf("application error was queued: %+v", qs.Records())
	}
}

func TestSubmit_StorageFailureSurfaces(t *testing.T) {
	qs := &fakeQueueStore{putErr: store.ErrUnavailable}
	n := &captureNotifier{}
	ic := New(qs, &fakeSubmitter{}, fakeConnectivity(false), n)

	_, err := ic.Submit(context.Background(), formSubmission())
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if len(n.ByType(notify.EventStorageError)) != 1 {
		t.Error("storage failure must produce a visible error notification")
	}
}

func TestSubmit_DegradedModeWithoutStore(t *testing.T) {
	n := &captureNotifier{}
	ic := New(nil, &fakeSubmitter{}, fakeConnectivity(false), n)

	if ic.QueueEnabled() {
		t.Error("QueueEnabled should be false without a store")
	}

	_, err := ic.Submit(context.Background(), formSubmission())
	if !errors.Is(err, ErrQueueDisabled) {
		t.Fatalf("err = %v, want ErrQueueDisabled", err)
	}
}

func TestFromRequest_URLEncoded(t *testing.T) {
	body := strings.NewReader("name=Ana&direccion=Calle+Mayor+1&csrfmiddlewaretoken=tok")
	r := httptest.NewRequest(http.MethodPost, "/ageo/intData/", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	sub, err := FromRequest(r)
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if sub.Kind != types.KindCitizenData {
		t.Errorf("Kind = %q, want citizen-data", sub.Kind)
	}
	for _, f := range sub.Fields {
		if f.Name == "csrfmiddlewaretoken" {
			t.Error("anti-forgery token must be stripped at capture")
		}
	}
	if len(sub.Fields) != 2 {
		t.Errorf("fields = %+v, want 2", sub.Fields)
	}
}

func TestFromRequest_URLEncodedKeepsSubmissionOrder(t *testing.T) {
	// Field names chosen so sorted order differs from submission order.
	body := strings.NewReader("zeta=1&alpha=Calle+Mayor+1&csrfmiddlewaretoken=tok&mike=3&bravo=4")
	r := httptest.NewRequest(http.MethodPost, "/ageo/intData/", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	sub, err := FromRequest(r)
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}

	want := []types.Field{
		{Name: "zeta", Value: "1"},
		{Name: "alpha", Value: "Calle Mayor 1"},
		{Name: "mike", Value: "3"},
		{Name: "bravo", Value: "4"},
	}
	if len(sub.Fields) != len(want) {
		t.Fatalf("fields = %+v, want %d", sub.Fields, len(want))
	}
	for i, f := range want {
		if sub.Fields[i] != f {
			t.Errorf("field[%d] = %+v, want %+v", i, sub.Fields[i], f)
		}
	}
}

func TestFromRequest_MultipartKeepsSubmissionOrder(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("zeta", "1")
	w.WriteField("csrfmiddlewaretoken", "tok")
	w.WriteField("alpha", "2")
	w.WriteField("mike", "3")
	w.Close()

	r := httptest.NewRequest(http.MethodPost, "/ageo/intData/", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())

	sub, err := FromRequest(r)
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}

	want := []string{"zeta", "alpha", "mike"}
	if len(sub.Fields) != len(want) {
		t.Fatalf("fields = %+v, want %d", sub.Fields, len(want))
	}
	for i, name := range want {
		if sub.Fields[i].Name != name {
			t.Errorf("field[%d].Name = %q, want %q", i, sub.Fields[i].Name, name)
		}
	}
}

func TestFromRequest_MultipartWithFile(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("descripcion", "fachada")
	part, _ := w.CreateFormFile("foto", "obra.jpg")
	part.Write([]byte{0xff, 0xd8})
	w.Close()

	r := httptest.NewRequest(http.MethodPost, "/ageo/fotos/", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())

	sub, err := FromRequest(r)
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if sub.Kind != types.KindRequestWithAttachments {
		t.Errorf("Kind = %q, want request-with-attachments", sub.Kind)
	}
	if len(sub.Attachments) != 1 || sub.Attachments[0].Filename != "obra.jpg" {
		t.Errorf("attachments = %+v", sub.Attachments)
	}
	if len(sub.Fields) != 1 || sub.Fields[0].Name != "descripcion" {
		t.Errorf("fields = %+v", sub.Fields)
	}
}

func TestFromRequest_MultipartWithoutFileIsForm(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("name", "Ana")
	w.Close()

	r := httptest.NewRequest(http.MethodPost, "/ageo/intData/", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())

	sub, err := FromRequest(r)
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if sub.Kind != types.KindForm {
		t.Errorf("Kind = %q, want form", sub.Kind)
	}
}
