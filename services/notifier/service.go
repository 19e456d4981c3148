package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/interfaces"
	er "github.com/dmarcwatch/dmarcwatch/internal/errors"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/internal/utils"
)

const implicitTLSPort = 465

type SMTPNotifier struct {
	cfg       *config.SMTPConfig
	alertCfg  *config.AlertConfig
	log       logger.Logger
	alertRepo interfaces.AlertRepository
}

func NewSMTPNotifier(cfg *config.SMTPConfig, alertCfg *config.AlertConfig, log logger.Logger, alertRepo interfaces.AlertRepository) interfaces.NotifierService {
	return &SMTPNotifier{
		cfg:       cfg,
		alertCfg:  alertCfg,
		log:       log,
		alertRepo: alertRepo,
	}
}

// SendAlert delivers one alert email and marks the alert dispatched on
// success. Delivery is at most once: a transport failure is returned wrapped
// in ErrDeliveryFailed and the alert stays undispatched, never re-queued.
func (s *SMTPNotifier) SendAlert(ctx context.Context, report *models.Report, alert *models.Alert) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPNotifier.SendAlert")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, alert.ID)
	span.LogKV("alertType", alert.Type.String(), "policyDomain", alert.PolicyDomain)

	recipients, err := s.validRecipients()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	buffer, err := s.prepareMessage(ctx, report, alert, recipients)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.sendToServer(ctx, recipients, buffer); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to deliver alert %s: %v", alert.ID, err)
		return errors.Wrapf(er.ErrDeliveryFailed, "alert %s: %v", alert.ID, err)
	}

	sentAt := utils.Now()
	if err := s.alertRepo.MarkDispatched(ctx, alert.ID, sentAt, recipients); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	alert.EmailSent = true
	alert.SentAt = utils.TimePtr(sentAt)
	alert.Recipients = recipients

	s.log.Infof("alert %s delivered to %d recipient(s)", alert.ID, len(recipients))
	return nil
}

// validRecipients drops syntactically invalid addresses instead of failing
// the whole dispatch over one typo in the recipient list.
func (s *SMTPNotifier) validRecipients() ([]string, error) {
	var valid []string
	for _, recipient := range utils.UniqueEmails(s.alertCfg.Recipients) {
		recipient = strings.TrimSpace(recipient)
		if recipient == "" {
			continue
		}
		validation := mailvalidate.ValidateEmailSyntax(recipient)
		if !validation.IsValid {
			s.log.Warnf("skipping invalid alert recipient %s", recipient)
			continue
		}
		valid = append(valid, recipient)
	}
	if len(valid) == 0 {
		return nil, errors.Wrap(er.ErrDeliveryFailed, "no valid alert recipients configured")
	}
	return valid, nil
}

// prepareMessage builds a multipart/alternative MIME message with plain text
// and HTML renderings of the alert.
func (s *SMTPNotifier) prepareMessage(ctx context.Context, report *models.Report, alert *models.Alert, recipients []string) (*bytes.Buffer, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPNotifier.prepareMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	buffer := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(buffer)

	headers := map[string]string{
		"From":         fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress),
		"To":           strings.Join(recipients, ", "),
		"Subject":      fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity.String()), alert.Title),
		"Message-ID":   utils.GenerateMessageID(utils.ExtractDomainFromEmail(s.cfg.FromAddress), alert.ID),
		"Date":         utils.Now().Format("Mon, 02 Jan 2006 15:04:05 -0700"),
		"MIME-Version": "1.0",
		"Content-Type": "multipart/alternative; boundary=" + writer.Boundary(),
	}
	writeHeaders(headers, buffer)

	if err := s.addTextPart(writer, formatAlertText(report, alert)); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := s.addHTMLPart(writer, formatAlertHTML(report, alert)); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}

	return buffer, nil
}

func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

func (s *SMTPNotifier) addTextPart(writer *multipart.Writer, content string) error {
	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create text part: %w", err)
	}
	_, err = textPart.Write([]byte(content))
	if err != nil {
		return fmt.Errorf("failed to write text content: %w", err)
	}
	return nil
}

func (s *SMTPNotifier) addHTMLPart(writer *multipart.Writer, content string) error {
	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create HTML part: %w", err)
	}
	_, err = htmlPart.Write([]byte(content))
	if err != nil {
		return fmt.Errorf("failed to write HTML content: %w", err)
	}
	return nil
}

// sendToServer authenticates and ships the message. Port 465 is implicit TLS,
// anything else negotiates STARTTLS.
func (s *SMTPNotifier) sendToServer(ctx context.Context, recipients []string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPNotifier.sendToServer")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("smtp_server", s.cfg.Host)
	span.LogKV("smtp_port", s.cfg.Port)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	if s.cfg.Port == implicitTLSPort {
		return s.sendWithImplicitTLS(ctx, addr, auth, recipients, buffer)
	}
	return s.sendWithSTARTTLS(ctx, addr, auth, recipients, buffer)
}

func (s *SMTPNotifier) sendWithSTARTTLS(ctx context.Context, addr string, auth smtp.Auth, recipients []string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPNotifier.sendWithSTARTTLS")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	client, err := smtp.Dial(addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: s.cfg.Host,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		err = fmt.Errorf("failed to start TLS: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = client.Auth(auth); err != nil {
		err = fmt.Errorf("SMTP authentication failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return s.transmit(span, client, recipients, buffer)
}

func (s *SMTPNotifier) sendWithImplicitTLS(ctx context.Context, addr string, auth smtp.Auth, recipients []string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPNotifier.sendWithImplicitTLS")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	tlsConfig := &tls.Config{
		ServerName: s.cfg.Host,
	}
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		err = fmt.Errorf("SMTP authentication failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return s.transmit(span, client, recipients, buffer)
}

func (s *SMTPNotifier) transmit(span opentracing.Span, client *smtp.Client, recipients []string, buffer *bytes.Buffer) error {
	if err := client.Mail(s.cfg.FromAddress); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	for _, recipient := range recipients {
		if err := client.Rcpt(recipient); err != nil {
			err = fmt.Errorf("SMTP RCPT command failed for %s: %w", recipient, err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if _, err = dataWriter.Write(buffer.Bytes()); err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = dataWriter.Close(); err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}
