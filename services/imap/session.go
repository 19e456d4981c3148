package imap

import (
	"context"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/dmarcwatch/dmarcwatch/interfaces"
	er "github.com/dmarcwatch/dmarcwatch/internal/errors"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/services/mime"
)

type collectorSession struct {
	client    *client.Client
	log       logger.Logger
	extractor *mime.Extractor
}

// FetchUnseen lists unread messages and extracts the report payloads of each.
// Messages whose body cannot be read or parsed are logged and left unread on
// the server; they never abort the rest of the fetch.
func (s *collectorSession) FetchUnseen(ctx context.Context) ([]interfaces.ReportBatch, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "collectorSession.FetchUnseen")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	s.client.Timeout = 60 * time.Second
	defer func() { s.client.Timeout = 0 }()

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(er.ErrConnectionFailed, "unseen search failed: %v", err)
	}

	span.LogFields(log.Int("messages.unseen", len(uids)))
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		section.FetchItem(),
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchUid,
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var batches []interfaces.ReportBatch
	for msg := range messages {
		select {
		case <-ctx.Done():
			<-done
			return batches, ctx.Err()
		default:
		}

		batch, ok := s.buildBatch(ctx, msg, section)
		if ok {
			batches = append(batches, batch)
		}
	}

	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(er.ErrConnectionFailed, "fetch failed: %v", err)
	}

	span.LogFields(log.Int("batches.count", len(batches)))
	return batches, nil
}

func (s *collectorSession) buildBatch(ctx context.Context, msg *imap.Message, section *imap.BodySectionName) (interfaces.ReportBatch, bool) {
	batch := interfaces.ReportBatch{UID: msg.Uid}
	if msg.Envelope != nil {
		batch.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			batch.From = msg.Envelope.From[0].Address()
		}
	}

	literal := msg.GetBody(section)
	if literal == nil {
		s.log.Warnf("message %d has no body section, skipping", msg.Uid)
		return batch, false
	}

	raw, err := io.ReadAll(literal)
	if err != nil {
		s.log.Warnf("failed to read message %d: %v", msg.Uid, err)
		return batch, false
	}

	payloads, err := s.extractor.ExtractPayloads(ctx, raw)
	if err != nil {
		s.log.Warnf("failed to extract payloads from message %d: %v", msg.Uid, err)
		return batch, false
	}
	if len(payloads) == 0 {
		s.log.Debugf("message %d carries no report payloads", msg.Uid)
		return batch, false
	}

	batch.Payloads = payloads
	return batch, true
}

// Delete flags one processed message deleted and expunges it. The pipeline
// calls this only after the report row is committed.
func (s *collectorSession) Delete(ctx context.Context, uid uint32) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "collectorSession.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("message.uid", uid)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	s.client.Timeout = 30 * time.Second
	defer func() { s.client.Timeout = 0 }()

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := s.client.UidStore(seqSet, item, flags, nil); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(er.ErrConnectionFailed, "failed to flag message %d deleted: %v", uid, err)
	}

	if err := s.client.Expunge(nil); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(er.ErrConnectionFailed, "failed to expunge message %d: %v", uid, err)
	}

	return nil
}

func (s *collectorSession) Close() error {
	s.client.Timeout = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		done <- s.client.Logout()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(logoutTimeout):
		return errors.New("imap logout timed out")
	}
}
